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

// Package store is the authoritative persistent storage for SNOMED-CT
// components and the ordered indices that make graph traversal and
// refset-membership lookup efficient range scans over a fixed-width key.
package store

import (
	"bytes"
	"errors"
)

// bucket names the logical databases described in the component store's
// key layout. All keys within a bucket are fixed-width big-endian tuples
// of signed 64-bit integers, so a prefix is always a contiguous range.
type bucket int

const (
	bkConcepts                   bucket = iota // conceptId -> Concept
	bkConceptDescriptions                      // conceptId ∥ descriptionId -> Description
	bkRelationships                            // relationshipId -> Relationship
	bkConcreteValues                           // sourceConceptId ∥ relationshipId -> ConcreteValue
	bkRefsetItems                              // uuidMsb ∥ uuidLsb -> RefsetItem
	bkRefsetFieldNames                         // refsetId -> column-name list

	ixDescriptionConcept         // descriptionId ∥ conceptId -> empty
	ixConceptParentRelationships // sourceId ∥ typeId ∥ group ∥ destinationId -> empty
	ixConceptChildRelationships  // destinationId ∥ typeId ∥ group ∥ sourceId -> empty
	ixComponentRefsets           // referencedComponentId ∥ refsetId ∥ uuidMsb ∥ uuidLsb -> empty
	ixAssociations               // targetComponentId ∥ refsetId ∥ referencedComponentId ∥ uuidMsb ∥ uuidLsb -> empty

	numBuckets
)

var bucketNames = [numBuckets][]byte{
	bkConcepts:                   []byte("concepts"),
	bkConceptDescriptions:        []byte("conceptDescriptions"),
	bkRelationships:              []byte("relationships"),
	bkConcreteValues:             []byte("concreteValues"),
	bkRefsetItems:                []byte("refsetItems"),
	bkRefsetFieldNames:           []byte("refsetFieldNames"),
	ixDescriptionConcept:         []byte("descriptionConcept"),
	ixConceptParentRelationships: []byte("conceptParentRelationships"),
	ixConceptChildRelationships:  []byte("conceptChildRelationships"),
	ixComponentRefsets:           []byte("componentRefsets"),
	ixAssociations:               []byte("associations"),
}

func (b bucket) name() []byte { return bucketNames[b] }

// compoundKey concatenates key fragments into the fixed-width tuple used
// as a bucket key or an index entry's range-scan prefix.
func compoundKey(keys ...[]byte) []byte {
	return bytes.Join(keys, nil)
}

// ErrDatabaseNotInitialised is returned when a read is attempted against a
// bucket that has never been created (an empty store opened read-only).
var ErrDatabaseNotInitialised = errors.New("store: database not initialised")

// ErrNotFound is returned when a key has no value in its bucket.
var ErrNotFound = errors.New("store: not found")

// Batch represents a single read-only or read-write transaction against
// the component store. Get/Put operate against a component bucket
// keyed by a fixed-width tuple; AddIndexEntry/GetIndexEntries/
// ClearIndexEntries operate against an index bucket, where the "value"
// passed to AddIndexEntry is suffixed onto the key so that a prefix scan
// of GetIndexEntries(idx, key) returns every suffix recorded for that key.
type Batch interface {
	Get(b bucket, key []byte) ([]byte, error)
	Put(b bucket, key []byte, value []byte)

	AddIndexEntry(b bucket, key []byte, value []byte)
	GetIndexEntries(b bucket, key []byte) ([][]byte, error)
	ClearIndexEntries(b bucket) error

	Iterate(b bucket, keyPrefix []byte, f func(key, value []byte) error) error
}

// Store is an abstract key-value store divided into logical buckets,
// accessed only through scoped read or read-write transactions.
type Store interface {
	// View creates a read-only transaction.
	View(func(Batch) error) error

	// Update creates a read-write transaction.
	Update(func(Batch) error) error

	// Close releases any resources associated with the store.
	Close() error
}
