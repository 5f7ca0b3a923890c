// Package log provides structured logging for the control plane via zerolog.
//
// Init configures the package-level Logger once at startup; WithComponent,
// WithNode and WithShard derive child loggers carrying the usual context
// fields so call sites don't repeat them on every line.
package log
