// usage:
//
//	raw := slogevents.New(slog.Default(), slogevents.Options{ProgressEvery: 50})
//	l := async.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer l.Close()
//
//	cache.Events().AddListener(event.Error, l)
//	cache.Events().AddListener(event.SeedProgress, l)
//
// Events are dropped when the queue is full; Dropped reports how many.
package async

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/tilecache/event"
)

type Listener struct {
	inner   event.Listener
	q       chan event.Event
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ event.Listener = (*Listener)(nil)

func New(inner event.Listener, workers, qlen int) *Listener {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	l := &Listener{inner: inner, q: make(chan event.Event, qlen)}
	l.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer l.wg.Done()
			for ev := range l.q {
				l.inner.Handle(ev)
			}
		}()
	}
	return l
}

// Close stops accepting events and waits for queued ones to be delivered.
func (l *Listener) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.q)
		l.mu.Unlock()
		l.wg.Wait()
	})
}

func (l *Listener) Handle(ev event.Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}
	select {
	case l.q <- ev:
	default: // drop
		l.dropped.Add(1)
	}
}

func (l *Listener) Dropped() uint64 { return l.dropped.Load() }
