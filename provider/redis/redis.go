package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/tilecache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// defaultScanCount is the COUNT hint used while walking a prefix.
const defaultScanCount = 512

// Redis lets several processes share one tile store. Writes are plain SET
// (whole-record replace), so concurrent fetches of the same tile are
// last-write-wins.
type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	scanCount   int64
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool  // set true only if this provider exclusively owns the client
	ScanCount   int64 // SCAN COUNT hint for DelPrefix; 0 => 512
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	n := cfg.ScanCount
	if n <= 0 {
		n = defaultScanCount
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient, scanCount: n}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte) error {
	return p.rdb.Set(ctx, key, value, 0).Err()
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

// DelPrefix scans with MATCH and deletes in batches. Keys written while the
// scan runs may survive; a purge only promises what existed when it started.
func (p *Redis) DelPrefix(ctx context.Context, prefix string) error {
	iter := p.rdb.Scan(ctx, 0, escapeGlob(prefix)+"*", p.scanCount).Iterator()
	batch := make([]string, 0, p.scanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if int64(len(batch)) >= p.scanCount {
			if err := p.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return p.rdb.Del(ctx, batch...).Err()
	}
	return nil
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats specially. Tile keys
// carry "{s}" and often "?" from query strings.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
