// Package store is the keyed persistent store the tile cache reads and writes.
//
// A store is identified by a database name, a store name and a schema
// version. Several stores can share one provider:
//
//	meta:<db>:<store>              - schema version record
//	tile:<db>:<store>:<entry key>  - one tile.Entry per key
//
// Records are framed by internal/wire and the entry body is encoded by a
// pluggable codec.Codec[tile.Entry].
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	c "github.com/unkn0wn-root/tilecache/codec"
	"github.com/unkn0wn-root/tilecache/internal/wire"
	pr "github.com/unkn0wn-root/tilecache/provider"
	"github.com/unkn0wn-root/tilecache/tile"
)

var (
	// ErrVersion is returned when the persisted schema is newer than requested.
	ErrVersion = errors.New("store: stored version is newer than requested")
	// ErrInvalidName rejects empty names and names containing the key separator.
	ErrInvalidName = errors.New("store: invalid database or store name")
	// ErrEmptyKey is returned by Put for an entry without a key.
	ErrEmptyKey = errors.New("store: entry key is empty")
)

// Upgrade describes a schema change observed while opening a store.
// OldVersion is 0 when the store did not exist yet.
type Upgrade struct {
	Database   string
	Store      string
	OldVersion uint32
	NewVersion uint32
}

type Config struct {
	Provider pr.Provider
	Codec    c.Codec[tile.Entry]
	Database string
	Name     string
	Version  uint32

	// OnUpgrade runs before the new version is recorded. An error aborts Open
	// and leaves the old version in place.
	OnUpgrade func(ctx context.Context, u Upgrade) error

	// OnCorrupt is told about undecodable records; they are dropped and read as a miss.
	OnCorrupt func(key string, err error)
}

type Store struct {
	p         pr.Provider
	codec     c.Codec[tile.Entry]
	db        string
	name      string
	version   uint32
	onCorrupt func(string, error)
}

// Open opens the named store, creating or upgrading it as needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Provider == nil {
		return nil, errors.New("store: provider is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("store: codec is required")
	}
	if cfg.Version == 0 {
		return nil, errors.New("store: version must be >= 1")
	}
	if !validName(cfg.Database) || !validName(cfg.Name) {
		return nil, fmt.Errorf("%w: db=%q store=%q", ErrInvalidName, cfg.Database, cfg.Name)
	}

	s := &Store{
		p:         cfg.Provider,
		codec:     cfg.Codec,
		db:        cfg.Database,
		name:      cfg.Name,
		version:   cfg.Version,
		onCorrupt: cfg.OnCorrupt,
	}
	if s.onCorrupt == nil {
		s.onCorrupt = func(string, error) {}
	}

	mk := s.metaKey()
	raw, ok, err := s.p.Get(ctx, mk)
	if err != nil {
		return nil, fmt.Errorf("store: read version: %w", err)
	}
	var current uint32
	if ok {
		current, err = wire.DecodeMeta(raw)
		if err != nil {
			// an unreadable version record is treated as a fresh store
			s.onCorrupt(mk, err)
			current = 0
		}
	}

	switch {
	case current == cfg.Version:
		return s, nil
	case current > cfg.Version:
		return nil, fmt.Errorf("%w: %s/%s has %d, requested %d", ErrVersion, s.db, s.name, current, cfg.Version)
	}

	if cfg.OnUpgrade != nil {
		u := Upgrade{Database: s.db, Store: s.name, OldVersion: current, NewVersion: cfg.Version}
		if err := cfg.OnUpgrade(ctx, u); err != nil {
			return nil, fmt.Errorf("store: upgrade %d -> %d: %w", current, cfg.Version, err)
		}
	}
	if err := s.p.Set(ctx, mk, wire.EncodeMeta(cfg.Version)); err != nil {
		return nil, fmt.Errorf("store: write version: %w", err)
	}
	return s, nil
}

func validName(n string) bool { return n != "" && !strings.Contains(n, ":") }

func (s *Store) Database() string { return s.db }
func (s *Store) Name() string     { return s.name }
func (s *Store) Version() uint32  { return s.version }

// Get returns the entry stored under key, or ok=false when there is none.
func (s *Store) Get(ctx context.Context, key string) (tile.Entry, bool, error) {
	k := s.entryKey(key)
	raw, ok, err := s.p.Get(ctx, k)
	if err != nil || !ok {
		return tile.Entry{}, false, err
	}
	payload, err := wire.DecodeTile(raw)
	if err != nil {
		s.dropCorrupt(ctx, k, err)
		return tile.Entry{}, false, nil
	}
	e, err := s.codec.Decode(payload)
	if err != nil {
		s.dropCorrupt(ctx, k, err)
		return tile.Entry{}, false, nil
	}
	return e, true, nil
}

// Put replaces whatever is stored under e.Key.
func (s *Store) Put(ctx context.Context, e tile.Entry) error {
	if e.Key == "" {
		return ErrEmptyKey
	}
	payload, err := s.codec.Encode(e)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", e.Key, err)
	}
	return s.p.Set(ctx, s.entryKey(e.Key), wire.EncodeTile(payload))
}

// Clear deletes every entry of this store. Other stores on the same provider
// and the version record are untouched.
func (s *Store) Clear(ctx context.Context) error {
	return s.p.DelPrefix(ctx, s.entryPrefix())
}

func (s *Store) dropCorrupt(ctx context.Context, k string, err error) {
	s.onCorrupt(k, err)
	_ = s.p.Del(ctx, k) // self-heal
}

func (s *Store) metaKey() string     { return "meta:" + s.db + ":" + s.name }
func (s *Store) entryPrefix() string { return "tile:" + s.db + ":" + s.name + ":" }
func (s *Store) entryKey(k string) string {
	return s.entryPrefix() + k
}
