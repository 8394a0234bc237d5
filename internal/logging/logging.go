// Package logging provides the structured logger shared across every
// component, backed by sirupsen/logrus the way
// fankserver-discord-voice-mcp wires it, exposed as plain key/value
// variadic calls the way the teacher's orchestrator.Logger interface
// expects.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the narrow logging seam every package depends on.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New builds a Logger backed by a logrus.Logger configured from LOG_LEVEL.
func New(component string) Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &logrusLogger{entry: l.WithField("component", component)}
}

func toFields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func (l *logrusLogger) Debug(msg string, kv ...any) { l.entry.WithFields(toFields(kv)).Debug(msg) }
func (l *logrusLogger) Info(msg string, kv ...any)  { l.entry.WithFields(toFields(kv)).Info(msg) }
func (l *logrusLogger) Warn(msg string, kv ...any)  { l.entry.WithFields(toFields(kv)).Warn(msg) }
func (l *logrusLogger) Error(msg string, kv ...any) { l.entry.WithFields(toFields(kv)).Error(msg) }
