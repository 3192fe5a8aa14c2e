// Package version exposes build metadata injected through ldflags:
//
//	go build -ldflags "-X github.com/oshokin/alarm-silencer/internal/version.Version=1.2.0"
package version
