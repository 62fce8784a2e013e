package kv_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/haivivi/kokoro/pkg/kv"
)

// stores returns one fresh store per implementation.
func stores(t *testing.T) map[string]kv.Store {
	t.Helper()
	b, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	m := kv.NewMemory()
	t.Cleanup(func() {
		b.Close()
		m.Close()
	})
	return map[string]kv.Store{"memory": m, "badger": b}
}

func TestGetSetDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := kv.Key{"phonemes", "en-us", "abc"}

			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := s.Set(ctx, key, []byte("hello"), 0); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "hello" {
				t.Fatalf("Get = %q, want hello", got)
			}

			if err := s.Set(ctx, key, []byte("world"), time.Hour); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, err = s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get after overwrite: %v", err)
			}
			if string(got) != "world" {
				t.Fatalf("Get = %q, want world", got)
			}

			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			if err := s.Delete(ctx, kv.Key{"no", "such", "key"}); err != nil {
				t.Fatalf("Delete non-existent: %v", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []kv.Key{
				{"phonemes", "en-us", "b"},
				{"phonemes", "en-us", "a"},
				{"phonemes", "en-usx", "c"},
				{"phonemes", "ja", "d"},
				{"other", "e"},
			} {
				if err := s.Set(ctx, k, []byte(k[len(k)-1]), 0); err != nil {
					t.Fatalf("Set %v: %v", k, err)
				}
			}

			list := func(prefix kv.Key) []string {
				var got []string
				for e, err := range s.List(ctx, prefix) {
					if err != nil {
						t.Fatalf("List: %v", err)
					}
					got = append(got, e.Key.String()+"="+string(e.Value))
				}
				return got
			}

			want := []string{"phonemes:en-us:a=a", "phonemes:en-us:b=b"}
			if got := list(kv.Key{"phonemes", "en-us"}); !slices.Equal(got, want) {
				t.Fatalf("List phonemes:en-us = %v, want %v", got, want)
			}
			if got := list(kv.Key{"phonemes"}); len(got) != 4 {
				t.Fatalf("List phonemes: got %d entries, want 4: %v", len(got), got)
			}
			if got := list(nil); len(got) != 5 {
				t.Fatalf("List all: got %d entries, want 5: %v", len(got), got)
			}
		})
	}
}

func TestListEarlyStop(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"1", "2", "3"} {
				if err := s.Set(ctx, kv.Key{"p", id}, []byte(id), 0); err != nil {
					t.Fatal(err)
				}
			}
			n := 0
			for _, err := range s.List(ctx, kv.Key{"p"}) {
				if err != nil {
					t.Fatal(err)
				}
				n++
				break
			}
			if n != 1 {
				t.Fatalf("iterated %d entries after break, want 1", n)
			}
		})
	}
}

func TestKeyString(t *testing.T) {
	if got := (kv.Key{"a", "b", "c"}).String(); got != "a:b:c" {
		t.Errorf("String = %q, want a:b:c", got)
	}
	if got := (kv.Key{}).String(); got != "" {
		t.Errorf("String = %q, want empty", got)
	}
}

func TestBadgerTTL(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for badger expiry")
	}
	s, err := kv.NewBadger(kv.BadgerOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	key := kv.Key{"ttl", "x"}
	if err := s.Set(ctx, key, []byte("v"), time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, key); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	time.Sleep(2100 * time.Millisecond)
	if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestBadgerRequiresDir(t *testing.T) {
	if _, err := kv.NewBadger(kv.BadgerOptions{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}
