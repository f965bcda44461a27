package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
)

// stores returns one constructor per backend so every test runs against
// both the in-memory map and a real badger engine.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	b, err := NewBadger(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"badger": b,
	}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, []byte("missing")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get missing = %v, want ErrNotFound", err)
			}
			if err := s.Set(ctx, []byte("k"), []byte("v1")); err != nil {
				t.Fatal(err)
			}
			v, err := s.Get(ctx, []byte("k"))
			if err != nil {
				t.Fatal(err)
			}
			if string(v) != "v1" {
				t.Fatalf("Get = %q, want v1", v)
			}
			if err := s.Set(ctx, []byte("k"), []byte("v2")); err != nil {
				t.Fatal(err)
			}
			v, _ = s.Get(ctx, []byte("k"))
			if string(v) != "v2" {
				t.Fatalf("Get after overwrite = %q, want v2", v)
			}
			if err := s.Delete(ctx, []byte("k")); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Get(ctx, []byte("k")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get after delete = %v, want ErrNotFound", err)
			}
			// Delete is idempotent.
			if err := s.Delete(ctx, []byte("k")); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// Absent key: f sees nil.
			v, err := s.Update(ctx, []byte("u"), func(old []byte) []byte {
				if old != nil {
					t.Errorf("old = %q, want nil", old)
				}
				return []byte("a")
			})
			if err != nil {
				t.Fatal(err)
			}
			if string(v) != "a" {
				t.Fatalf("Update = %q, want a", v)
			}

			// Existing key: f sees the current value.
			_, err = s.Update(ctx, []byte("u"), func(old []byte) []byte {
				return append(old, 'b')
			})
			if err != nil {
				t.Fatal(err)
			}
			v, _ = s.Get(ctx, []byte("u"))
			if string(v) != "ab" {
				t.Fatalf("Get = %q, want ab", v)
			}

			// Empty result deletes the key.
			if _, err := s.Update(ctx, []byte("u"), func([]byte) []byte { return nil }); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Get(ctx, []byte("u")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get after deleting update = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestUpdateConcurrentCounter(t *testing.T) {
	const (
		workers = 16
		perWork = 100
	)
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(workers)
			for range workers {
				go func() {
					defer wg.Done()
					for range perWork {
						_, err := s.Update(ctx, []byte("ctr"), func(old []byte) []byte {
							var n uint64
							if len(old) == 8 {
								n = binary.LittleEndian.Uint64(old)
							}
							return binary.LittleEndian.AppendUint64(nil, n+1)
						})
						if err != nil {
							t.Error(err)
							return
						}
					}
				}()
			}
			wg.Wait()

			v, err := s.Get(ctx, []byte("ctr"))
			if err != nil {
				t.Fatal(err)
			}
			if got := binary.LittleEndian.Uint64(v); got != workers*perWork {
				t.Fatalf("counter = %d, want %d", got, workers*perWork)
			}
		})
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			pairs := map[string]string{
				"a/1": "one",
				"a/2": "two",
				"b/1": "other",
			}
			for k, v := range pairs {
				if err := s.Set(ctx, []byte(k), []byte(v)); err != nil {
					t.Fatal(err)
				}
			}

			var got []string
			for e, err := range s.List(ctx, []byte("a/")) {
				if err != nil {
					t.Fatal(err)
				}
				got = append(got, string(e.Key))
			}
			if len(got) != 2 || got[0] != "a/1" || got[1] != "a/2" {
				t.Fatalf("List(a/) = %v, want [a/1 a/2]", got)
			}
		})
	}
}

func TestPartitionIsolation(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			p1, err := Partition(s, "one")
			if err != nil {
				t.Fatal(err)
			}
			p2, err := Partition(s, "two")
			if err != nil {
				t.Fatal(err)
			}

			if err := p1.Set(ctx, []byte("k"), []byte("in-one")); err != nil {
				t.Fatal(err)
			}
			if _, err := p2.Get(ctx, []byte("k")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("partition two sees partition one's key: %v", err)
			}
			v, err := p1.Get(ctx, []byte("k"))
			if err != nil {
				t.Fatal(err)
			}
			if string(v) != "in-one" {
				t.Fatalf("Get = %q, want in-one", v)
			}

			// List through the partition strips the partition prefix.
			var keys []string
			for e, err := range p1.List(ctx, nil) {
				if err != nil {
					t.Fatal(err)
				}
				keys = append(keys, string(e.Key))
			}
			if len(keys) != 1 || keys[0] != "k" {
				t.Fatalf("partition List = %v, want [k]", keys)
			}
		})
	}
}

func TestPartitionPrefixNotShadowed(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	ab, err := Partition(s, "ab")
	if err != nil {
		t.Fatal(err)
	}
	abc, err := Partition(s, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if err := abc.Set(ctx, []byte("x"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	for e, err := range ab.List(ctx, nil) {
		if err != nil {
			t.Fatal(err)
		}
		t.Fatalf("partition ab lists key %q from partition abc", e.Key)
	}
}

func TestPartitionBadName(t *testing.T) {
	s := NewMemory()
	if _, err := Partition(s, ""); err == nil {
		t.Error("expected error for empty partition name")
	}
	if _, err := Partition(s, "a\x00b"); err == nil {
		t.Error("expected error for NUL in partition name")
	}
}

func TestBadgerOnDiskRequiresDir(t *testing.T) {
	if _, err := NewBadger(BadgerOptions{}); err == nil {
		t.Error("expected error for missing Dir")
	}
}

func TestBadgerReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewBadger(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Set(ctx, []byte("persist"), []byte("me")); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	b, err = NewBadger(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	v, err := b.Get(ctx, []byte("persist"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "me" {
		t.Fatalf("Get after reopen = %q, want me", v)
	}
}
