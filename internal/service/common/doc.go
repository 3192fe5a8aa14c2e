// Package common holds helpers shared by several services: host identity
// for logs and events, and the single instance guard.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
