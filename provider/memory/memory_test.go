package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestMemoryGetSetDel(t *testing.T) {
	ctx := context.Background()
	p := New()
	t.Cleanup(func() { _ = p.Close(ctx) })

	if _, ok, err := p.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}

	in := []byte("value")
	if err := p.Set(ctx, "k", in); err != nil {
		t.Fatalf("Set: %v", err)
	}
	in[0] = 'X' // must not leak into the store

	got, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(got, []byte("value")) {
		t.Fatalf("Get: ok=%v err=%v got=%q", ok, err, got)
	}

	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after Del")
	}
	if err := p.Del(ctx, "missing"); err != nil {
		t.Fatalf("Del missing: %v", err)
	}
}

func TestMemoryDelPrefix(t *testing.T) {
	ctx := context.Background()
	p := New()
	for _, k := range []string{"tile:db:a:1", "tile:db:a:2", "tile:db:b:1", "meta:db:a"} {
		_ = p.Set(ctx, k, []byte(k))
	}

	if err := p.DelPrefix(ctx, "tile:db:a:"); err != nil {
		t.Fatalf("DelPrefix: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("Len=%d want 2", p.Len())
	}
	for _, k := range []string{"tile:db:b:1", "meta:db:a"} {
		if _, ok, _ := p.Get(ctx, k); !ok {
			t.Fatalf("%q should survive", k)
		}
	}
}
