package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogNavigation logs the outcome of a guarded page load
func LogNavigation(l Logger, account, url string, duration time.Duration, err error) {
	entry := l.WithFields(map[string]interface{}{
		"account":  account,
		"url":      url,
		"duration": duration,
	})
	if err != nil {
		entry.WithError(err).Warn("Navigation failed")
		return
	}
	entry.Debug("Navigation completed")
}

// LogProfileDecision logs whether a visited profile was kept
func LogProfileDecision(l Logger, username string, accepted bool, reason string) {
	entry := l.WithFields(map[string]interface{}{
		"profile":  username,
		"accepted": accepted,
		"reason":   reason,
	})
	if accepted {
		entry.Info("Profile accepted")
	} else {
		entry.Debug("Profile rejected")
	}
}

// LogTraversalStop logs why a hashtag traversal ended
func LogTraversalStop(l Logger, hashtag, reason string, collected, clicks int) {
	l.WithFields(map[string]interface{}{
		"hashtag":   hashtag,
		"reason":    reason,
		"collected": collected,
		"clicks":    clicks,
	}).Info("Traversal stopped")
}

// LogAccountEvent logs a lifecycle change of a pooled account
func LogAccountEvent(l Logger, username, event string, fields map[string]interface{}) {
	entry := l.WithField("account", username).WithField("event", event)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	switch event {
	case "blocked", "cookies_deleted", "ip_cooldown":
		entry.Warn("Account state changed")
	default:
		entry.Info("Account state changed")
	}
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
