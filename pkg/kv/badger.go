package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// updateRetries bounds the optimistic-transaction retry loop in Update.
// A conflict after this many attempts surfaces as ErrConflict.
const updateRetries = 256

// Badger is a Store implementation backed by BadgerDB v4.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs BadgerDB in memory-only mode (no disk persistence).
	// Useful for testing with a real badger engine.
	InMemory bool

	// Logger receives badger's own log output. If nil, badger warnings
	// and errors are forwarded to slog.Default and the rest is dropped.
	Logger badger.Logger
}

// NewBadger creates a new BadgerDB-backed Store.
func NewBadger(bopts BadgerOptions) (*Badger, error) {
	if !bopts.InMemory && bopts.Dir == "" {
		return nil, errors.New("kv: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(bopts.Dir)
	if bopts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if bopts.Logger != nil {
		dbOpts = dbOpts.WithLogger(bopts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(slogLogger{slog.Default()})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *Badger) Set(_ context.Context, key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (b *Badger) Delete(_ context.Context, key []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) Update(ctx context.Context, key []byte, f UpdateFunc) ([]byte, error) {
	for range updateRetries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []byte
		err := b.db.Update(func(txn *badger.Txn) error {
			var old []byte
			item, err := txn.Get(key)
			switch {
			case err == nil:
				if old, err = item.ValueCopy(nil); err != nil {
					return err
				}
			case errors.Is(err, badger.ErrKeyNotFound):
				old = nil
			default:
				return err
			}
			next = f(old)
			if len(next) == 0 {
				return txn.Delete(key)
			}
			return txn.Set(key, next)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, ErrConflict
}

func (b *Badger) List(_ context.Context, prefix []byte) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		err := b.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = prefix
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				key := item.KeyCopy(nil)
				val, err := item.ValueCopy(nil)
				if err != nil {
					if !yield(Entry{}, err) {
						return nil
					}
					continue
				}
				if !yield(Entry{Key: key, Value: val}, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(Entry{}, err)
		}
	}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// slogLogger adapts slog to badger's logger interface, dropping badger's
// chatty info and debug output.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Errorf(f string, v ...interface{}) {
	s.l.Error("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (s slogLogger) Warningf(f string, v ...interface{}) {
	s.l.Warn("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (s slogLogger) Infof(string, ...interface{})  {}
func (s slogLogger) Debugf(string, ...interface{}) {}
