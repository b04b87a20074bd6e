// Copyright 2018 Mark Wardle / Eldrix Ltd
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.
//

package store

import (
	"bytes"
	"time"

	"go.etcd.io/bbolt"
)

// bboltStore is the concrete, file-based Store backed by go.etcd.io/bbolt.
// It is the single authoritative key-value backend: earlier iterations of
// the teacher repo tried bolt, leveldb and rocksdb in turn, but the store's
// write contract needs exactly one.
type bboltStore struct {
	db *bbolt.DB
}

var defaultOptions = bbolt.Options{
	Timeout: 10 * time.Second,
}

// Open opens (creating if necessary) a component store at filename.
// readOnly mirrors spec §6's {read-only?: bool = true} configuration
// option; mapSize sets bbolt's initial memory-map size in bytes (0 uses
// bbolt's default). The map still grows past it as the file grows, so it
// is not an upper bound.
func Open(filename string, readOnly bool, mapSize int) (Store, error) {
	options := defaultOptions
	options.ReadOnly = readOnly
	if mapSize > 0 {
		options.InitialMmapSize = mapSize
	}
	db, err := bbolt.Open(filename, 0600, &options)
	if err != nil {
		return nil, err
	}
	return &bboltStore{db: db}, nil
}

func (bs *bboltStore) View(f func(Batch) error) error {
	return bs.db.View(func(tx *bbolt.Tx) error {
		return f(&bboltBatch{tx: tx})
	})
}

func (bs *bboltStore) Update(f func(Batch) error) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		return f(&bboltBatch{tx: tx})
	})
}

func (bs *bboltStore) Close() error {
	return bs.db.Close()
}

// bboltBatch adapts a single bbolt transaction to the Batch interface.
// Index buckets are created lazily on first write, matching the teacher's
// createOrOpenBucket idiom.
type bboltBatch struct {
	tx *bbolt.Tx
}

func (bb *bboltBatch) Get(b bucket, key []byte) ([]byte, error) {
	bkt := bb.tx.Bucket(b.name())
	if bkt == nil {
		return nil, ErrDatabaseNotInitialised
	}
	v := bkt.Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	// bbolt's Get result is only valid for the life of the transaction;
	// callers decode it into an owned Go value immediately, but guard
	// against accidental retention by returning a copy.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (bb *bboltBatch) Put(b bucket, key []byte, value []byte) {
	bkt, err := bb.tx.CreateBucketIfNotExists(b.name())
	if err != nil {
		panic(err) // only fails on a read-only transaction, a caller contract violation
	}
	if err := bkt.Put(key, value); err != nil {
		panic(err)
	}
}

func (bb *bboltBatch) AddIndexEntry(b bucket, key []byte, value []byte) {
	bkt, err := bb.tx.CreateBucketIfNotExists(b.name())
	if err != nil {
		panic(err)
	}
	k := compoundKey(key, value)
	if err := bkt.Put(k, nil); err != nil {
		panic(err)
	}
}

func (bb *bboltBatch) GetIndexEntries(b bucket, key []byte) ([][]byte, error) {
	bkt := bb.tx.Bucket(b.name())
	if bkt == nil {
		return nil, nil
	}
	lp := len(key)
	c := bkt.Cursor()
	var result [][]byte
	for k, _ := c.Seek(key); k != nil && bytes.HasPrefix(k, key); k, _ = c.Next() {
		entry := make([]byte, len(k)-lp)
		copy(entry, k[lp:])
		result = append(result, entry)
	}
	return result, nil
}

func (bb *bboltBatch) ClearIndexEntries(b bucket) error {
	if err := bb.tx.DeleteBucket(b.name()); err != nil && err != bbolt.ErrBucketNotFound {
		return err
	}
	_, err := bb.tx.CreateBucketIfNotExists(b.name())
	return err
}

func (bb *bboltBatch) Iterate(b bucket, keyPrefix []byte, f func(key, value []byte) error) error {
	bkt := bb.tx.Bucket(b.name())
	if bkt == nil {
		return nil
	}
	c := bkt.Cursor()
	for k, v := c.Seek(keyPrefix); k != nil && bytes.HasPrefix(k, keyPrefix); k, v = c.Next() {
		if err := f(k, v); err != nil {
			return err
		}
	}
	return nil
}
