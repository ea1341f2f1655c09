package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/config"
)

func bufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog}
}

func lastEvent(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var event map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &event))
	return event
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"invalid level", &config.LoggingConfig{Level: "chatty"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"trace-ish", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestChildLoggersCarryFields(t *testing.T) {
	var buf bytes.Buffer
	base := bufferLogger(&buf)

	child := base.WithField("account", "acct_a").WithFields(map[string]interface{}{
		"hashtag": "modafeminina",
		"clicks":  3,
	})
	child.Info("opened")

	event := lastEvent(t, &buf)
	assert.Equal(t, "acct_a", event["account"])
	assert.Equal(t, "modafeminina", event["hashtag"])
	assert.Equal(t, float64(3), event["clicks"])

	// parent stays clean
	buf.Reset()
	base.Info("plain")
	event = lastEvent(t, &buf)
	_, ok := event["account"]
	assert.False(t, ok)
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	l.WithError(errors.New("frame detached")).Warn("navigation failed")
	event := lastEvent(t, &buf)
	assert.Equal(t, "frame detached", event["error"])

	assert.Same(t, l, l.WithError(nil))
}

func TestEventFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	l.InfoWithFields("typed", map[string]interface{}{
		"s":   "x",
		"b":   true,
		"f":   1.5,
		"d":   2 * time.Second,
		"ss":  []string{"a", "b"},
		"err": errors.New("boom"),
	})

	event := lastEvent(t, &buf)
	assert.Equal(t, "x", event["s"])
	assert.Equal(t, true, event["b"])
	assert.Equal(t, 1.5, event["f"])
	assert.Equal(t, "boom", event["err"])
	assert.Len(t, event["ss"], 2)
}

func TestGlobalLogger(t *testing.T) {
	tl := NewTestLogger()
	SetLogger(tl)
	t.Cleanup(func() { SetLogger(nil) })

	WithField("component", "scraper").Info("started")
	Warn("careful")

	assert.True(t, tl.HasMessage("INFO", "started"))
	assert.Equal(t, 1, tl.CountLevel("WARN"))
	assert.Len(t, tl.FindField("component", "scraper"), 1)
}

func TestDomainHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogNavigation(tl, "acct_a", "https://www.instagram.com/", time.Second, nil)
	LogNavigation(tl, "acct_a", "https://www.instagram.com/explore/", time.Second, errors.New("timeout"))
	LogProfileDecision(tl, "shop_br", true, "auto_approved")
	LogProfileDecision(tl, "foreign", false, "language")
	LogTraversalStop(tl, "modafeminina", "target_reached", 10, 14)
	LogAccountEvent(tl, "acct_a", "blocked", map[string]interface{}{"cooldown": time.Hour})

	assert.True(t, tl.HasMessage("DEBUG", "Navigation completed"))
	assert.True(t, tl.HasMessage("WARN", "Navigation failed"))
	assert.True(t, tl.HasMessage("INFO", "Profile accepted"))
	assert.True(t, tl.HasMessage("DEBUG", "Profile rejected"))
	assert.Len(t, tl.FindField("reason", "target_reached"), 1)
	assert.Len(t, tl.FindField("event", "blocked"), 1)
	assert.Equal(t, 2, tl.CountLevel("WARN"))

	failed := tl.FindField("url", "https://www.instagram.com/explore/")
	require.Len(t, failed, 1)
	assert.EqualError(t, failed[0].Error, "timeout")
}
