// Package event is a synchronous name -> listeners notifier.
//
// Dispatch calls every listener registered for a name, in registration order,
// on the caller's goroutine. Events dispatched before a listener registers are
// not replayed. Wrap slow listeners with event/async.
package event

import "sync"

// Names dispatched by the tile cache.
const (
	UpgradeNeeded = "upgradeneeded" // Detail: store.Upgrade
	Error         = "error"         // Detail: error
	SeedProgress  = "seed-progress" // Detail: Progress
)

type Event struct {
	Name   string
	Detail any
}

// Progress is the detail of a SeedProgress event. Remaining counts the items
// not yet started, including the one about to be fetched.
type Progress struct {
	Total     int
	Remaining int
}

// Listener must not block for long; it runs inline with Dispatch.
type Listener interface {
	Handle(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) Handle(e Event) { f(e) }

type ListenerID uint64

type registration struct {
	id ListenerID
	l  Listener
}

// Emitter is safe for concurrent use. The zero value is ready.
type Emitter struct {
	mu     sync.RWMutex
	nextID ListenerID
	byName map[string][]registration
}

func New() *Emitter { return &Emitter{} }

// AddListener registers l for name and returns a handle for RemoveListener.
// Registering the same listener twice delivers each event to it twice.
func (e *Emitter) AddListener(name string, l Listener) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byName == nil {
		e.byName = make(map[string][]registration)
	}
	e.nextID++
	e.byName[name] = append(e.byName[name], registration{id: e.nextID, l: l})
	return e.nextID
}

// RemoveListener reports whether id was registered under name.
func (e *Emitter) RemoveListener(name string, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.byName[name]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		// copy so in-flight dispatch snapshots stay intact
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(e.byName, name)
		} else {
			e.byName[name] = next
		}
		return true
	}
	return false
}

// Dispatch delivers detail to the listeners registered for name at the time
// of the call. Listeners may add or remove listeners while being called.
func (e *Emitter) Dispatch(name string, detail any) {
	e.mu.RLock()
	regs := e.byName[name]
	e.mu.RUnlock()
	if len(regs) == 0 {
		return
	}
	ev := Event{Name: name, Detail: detail}
	for _, r := range regs {
		r.l.Handle(ev)
	}
}

// Len returns the number of listeners registered for name.
func (e *Emitter) Len(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byName[name])
}
