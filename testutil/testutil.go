// Package testutil holds the helpers shared by the tests of every package.
package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursehub/core"
	appfs "github.com/trezcool/coursehub/fs"
)

// NewConfig returns the configuration used by tests: in-memory storage, strict completion, no external service.
func NewConfig() *core.Config {
	conf := &core.Config{
		TestMode:             true,
		Env:                  "TEST",
		Build:                "test",
		AppName:              "CourseHub",
		SecretKey:            "test-secret",
		FrontendBaseURL:      "http://coursehub.test",
		DefaultFromEmailAddr: "noreply@coursehub.test",
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = time.Hour
	conf.Server.ShutdownTimeout = time.Second
	conf.Database.Engine = core.EngineMemory
	conf.Enrollment.StrictCompletion = true
	conf.Enrollment.MaxRetries = 3
	conf.Notify.Timeout = time.Second
	return conf
}

// EmailTemplates parses the embedded email templates.
func EmailTemplates(t *testing.T, conf *core.Config) *core.EmailTemplates {
	t.Helper()
	tmpls, err := core.ParseEmailTemplates(appfs.FS, conf)
	require.NoError(t, err)
	return tmpls
}

// LogEntry is one message received by Logger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger is a core.Logger keeping every entry in memory.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

// Entries returns the entries logged at level, or all of them if level is empty.
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
