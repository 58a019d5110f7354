// Package zap adapts a *zap.Logger to tilecache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/tilecache"
)

var _ tilecache.Logger = Logger{}

// Logger forwards to L; a nil L drops everything.
type Logger struct{ L *zap.Logger }

func New(l *zap.Logger) Logger { return Logger{L: l.Named("tilecache")} }

func (z Logger) Debug(msg string, f tilecache.Fields) { z.log(zap.DebugLevel, msg, f) }
func (z Logger) Info(msg string, f tilecache.Fields)  { z.log(zap.InfoLevel, msg, f) }
func (z Logger) Warn(msg string, f tilecache.Fields)  { z.log(zap.WarnLevel, msg, f) }
func (z Logger) Error(msg string, f tilecache.Fields) { z.log(zap.ErrorLevel, msg, f) }

func (z Logger) log(lvl zapcore.Level, msg string, f tilecache.Fields) {
	if z.L == nil || !z.L.Core().Enabled(lvl) {
		return
	}
	z.L.Log(lvl, msg, zf(f)...)
}

func zf(f tilecache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
