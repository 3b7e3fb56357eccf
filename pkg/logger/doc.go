// Package logger provides a structured logging interface for stravasync.
//
// It wraps the zerolog library behind a small Logger interface with
// support for:
// - Multiple log levels (Debug, Info, Warn, Error, Fatal)
// - Structured logging with fields
// - Pretty console output on stderr
// - Optional file output alongside the console
// - Global logger instance for easy access
//
// Basic Usage:
//
//	cfg := &config.LoggingConfig{Level: "info"}
//	err := logger.Initialize(cfg)
//
//	log := logger.GetLogger()
//	log.WithField("activity_id", 555).Info("activity stored")
//	log.WithError(err).Error("page fetch failed")
//
// Tests that want silence use logger.Nop().
package logger
