// Package logger mirrors the context-carried logger convention the
// teacher (github.com/drone/runner-go) exposes as logger.FromContext /
// logger.WithContext, backed here by logrus. Core packages depend on the
// small Logger interface below, never on logrus directly.
package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of logrus.FieldLogger the core uses.
type Logger interface {
	WithField(key string, value interface{}) Logger
	WithError(err error) Logger
	Debugln(args ...interface{})
	Traceln(args ...interface{})
	Warnln(args ...interface{})
	Errorln(args ...interface{})
}

type logrusLogger struct {
	entry *logrus.Entry
}

// Logrus wraps a *logrus.Logger as a Logger.
func Logrus(l *logrus.Logger) Logger {
	return logrusLogger{entry: logrus.NewEntry(l)}
}

func (l logrusLogger) WithField(key string, value interface{}) Logger {
	return logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l logrusLogger) WithError(err error) Logger {
	return logrusLogger{entry: l.entry.WithError(err)}
}

func (l logrusLogger) Debugln(args ...interface{}) { l.entry.Debugln(args...) }
func (l logrusLogger) Traceln(args ...interface{}) { l.entry.Traceln(args...) }
func (l logrusLogger) Warnln(args ...interface{})  { l.entry.Warnln(args...) }
func (l logrusLogger) Errorln(args ...interface{}) { l.entry.Errorln(args...) }

type discard struct{}

// Discard is a Logger that drops everything; useful in tests.
var Discard Logger = discard{}

func (discard) WithField(string, interface{}) Logger { return discard{} }
func (discard) WithError(error) Logger                { return discard{} }
func (discard) Debugln(...interface{})                {}
func (discard) Traceln(...interface{})                {}
func (discard) Warnln(...interface{})                 {}
func (discard) Errorln(...interface{})                {}

type contextKey struct{}

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext returns the Logger carried by ctx, or Discard if none.
func FromContext(ctx context.Context) Logger {
	if log, ok := ctx.Value(contextKey{}).(Logger); ok {
		return log
	}
	return Discard
}
