// Package slogevents logs tile cache events with log/slog.
package slogevents

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tilecache/event"
	"github.com/unkn0wn-root/tilecache/store"
)

type Options struct {
	// Sampling for seed progress; 0/1 = log all. The final event (Remaining == 0) is always logged.
	ProgressEvery uint64
	// Optional key redactor applied to store names. Nil leaves names as-is;
	// use HashKey for a SHA-256 prefix.
	Redact func(string) string
}

type Listener struct {
	l    *slog.Logger
	opts Options

	progressCtr atomic.Uint64
}

var _ event.Listener = (*Listener)(nil)

func New(l *slog.Logger, opts Options) *Listener {
	return &Listener{l: l, opts: opts}
}

// HashKey is a Redact func that keeps the first 8 bytes of a SHA-256.
func HashKey(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func (h *Listener) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return k
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Listener) Handle(ev event.Event) {
	if h.l == nil {
		return
	}
	switch d := ev.Detail.(type) {
	case event.Progress:
		if d.Remaining != 0 && !sample(h.opts.ProgressEvery, &h.progressCtr) {
			return
		}
		h.l.Info("tilecache.seed_progress",
			"total", d.Total,
			"remaining", d.Remaining)
	case store.Upgrade:
		h.l.Info("tilecache.upgrade_needed",
			"db", d.Database,
			"store", h.redact(d.Store),
			"old_version", d.OldVersion,
			"new_version", d.NewVersion)
	case error:
		h.l.Warn("tilecache.error",
			"event", ev.Name,
			"err", d)
	default:
		h.l.Debug("tilecache.event",
			"event", ev.Name,
			"detail", d)
	}
}
