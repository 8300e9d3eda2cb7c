// Package pkg provides shared utilities for the PIC32 USB driver.
//
// This package contains common functionality used by the driver, the
// simulator, and the tools built on them:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for bus, protocol and memory errors
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentBus, "endpoint allocated", "address", 0x81)
//
// Driver objects do not log through package state. They take a
// *slog.Logger at construction, by default [Logger] for their component.
//
// # Errors
//
// Bus errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrWouldBlock) {
//	    // poll and retry
//	}
package pkg
