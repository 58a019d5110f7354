// Package logrus adapts a *logrus.Entry to tilecache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/tilecache"
)

var _ tilecache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every record with component=tilecache.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "tilecache")}
}

func (l Logger) Debug(msg string, f tilecache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f tilecache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f tilecache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f tilecache.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f tilecache.Fields) *logrus.Entry {
	e := l.E
	if e == nil {
		e = logrus.NewEntry(logrus.StandardLogger())
	}
	if len(f) == 0 {
		return e
	}
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		// logrus renders errors under its own key
		if err, ok := v.(error); ok && k == "err" {
			k, v = logrus.ErrorKey, err.Error()
		}
		fields[k] = v
	}
	return e.WithFields(fields)
}
