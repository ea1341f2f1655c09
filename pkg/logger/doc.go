// Package logger provides the structured logging interface used across igleads.
//
// It wraps zerolog with a small interface so components can take a Logger
// in their constructors and tests can swap in NewTestLogger or NewNopLogger.
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info", File: "igleads.log"})
//	log := logger.GetLogger().WithField("component", "traversal")
//	log.InfoWithFields("Hashtag opened", map[string]interface{}{"hashtag": "modafeminina"})
//
// When a file is configured, events go to both the console writer and the
// file as JSON lines.
package logger
