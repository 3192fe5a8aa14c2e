// Package logger wraps zap for the alarm silencer:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing for the config file,
//   - leveled helpers (Info, InfoKV, WarnKV, ErrorKV, ...).
//
// Components receive a context and log through it, so every line carries the
// name of the component that wrote it.
package logger
