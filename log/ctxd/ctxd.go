// Package ctxd adapts a github.com/bool64/ctxd logger to tilecache.Logger.
package ctxd

import (
	"context"
	"sort"

	"github.com/bool64/ctxd"

	"github.com/unkn0wn-root/tilecache"
)

var _ tilecache.Logger = Logger{}

// Logger forwards to L with Ctx; a nil L drops everything and a nil Ctx
// means context.Background.
type Logger struct {
	L   ctxd.Logger
	Ctx context.Context
}

func (l Logger) Debug(msg string, f tilecache.Fields) { l.logger().Debug(l.ctx(), msg, kv(f)...) }
func (l Logger) Info(msg string, f tilecache.Fields)  { l.logger().Info(l.ctx(), msg, kv(f)...) }
func (l Logger) Warn(msg string, f tilecache.Fields)  { l.logger().Warn(l.ctx(), msg, kv(f)...) }
func (l Logger) Error(msg string, f tilecache.Fields) { l.logger().Error(l.ctx(), msg, kv(f)...) }

func (l Logger) logger() ctxd.Logger {
	if l.L == nil {
		return ctxd.NoOpLogger{}
	}
	return l.L
}

func (l Logger) ctx() context.Context {
	if l.Ctx == nil {
		return context.Background()
	}
	return l.Ctx
}

func kv(f tilecache.Fields) []interface{} {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]interface{}, 0, 2*len(f))
	for _, k := range keys {
		out = append(out, k, f[k])
	}
	return out
}
