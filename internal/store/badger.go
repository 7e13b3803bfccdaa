// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend stores each property under "prop:<target>:<key>".
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadgerBackend opens the badger directory at path.
func OpenBadgerBackend(path string) (*BadgerBackend, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("property store: open badger %s: %w", path, err)
	}
	return &BadgerBackend{db: db}, nil
}

func propPrefix(target string) []byte { return []byte("prop:" + target + ":") }

func propKey(target, key string) []byte { return append(propPrefix(target), key...) }

func (b *BadgerBackend) Get(_ context.Context, target, key string) (string, bool, error) {
	var (
		val   []byte
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(propKey(target, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("property store: get %s/%s: %w", target, key, err)
	}
	return string(val), found, nil
}

func (b *BadgerBackend) Set(_ context.Context, target, key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(propKey(target, key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("property store: set %s/%s: %w", target, key, err)
	}
	return nil
}

func (b *BadgerBackend) Delete(_ context.Context, target, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(propKey(target, key))
	})
	if err != nil {
		return fmt.Errorf("property store: delete %s/%s: %w", target, key, err)
	}
	return nil
}

func (b *BadgerBackend) All(_ context.Context, target string) (map[string]string, error) {
	out := map[string]string{}
	prefix := propPrefix(target)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.Key()[len(prefix):])] = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("property store: list %s: %w", target, err)
	}
	return out, nil
}

func (b *BadgerBackend) Close() error { return b.db.Close() }
