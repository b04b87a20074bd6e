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

package searchindex

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/wardle/snomedq/snomed"
	"github.com/wardle/snomedq/store"
)

// batchSize bounds how many documents accumulate before a commit to the
// underlying bleve batch, keeping memory bounded during a full build.
const batchSize = 2000

// Build streams every concept out of cs, computes its extended form (the
// concept plus descriptions, expanded/direct parent relationships, concrete
// values and refset memberships) and indexes one document per description,
// per spec §4.2's index build description. Computation fans out across
// hardware parallelism via errgroup (the teacher's channel fan-out in
// StreamAllChildrenIDs, generalised from a graph walk to a document build);
// indexing itself is serialised through a single bleve batch.
func Build(ctx context.Context, cs *store.ComponentStore, idx *Index, preferredRefsetIDs []snomed.ConceptID) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))

	docs := make(chan namedDoc, batchSize)
	group.Go(func() error {
		defer close(docs)
		return cs.IterateConcepts(func(c *snomed.Concept) error {
			if !c.Active {
				return nil
			}
			concept := c
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			group.Go(func() error {
				built, err := buildConceptDocuments(cs, concept, preferredRefsetIDs)
				if err != nil {
					return err
				}
				for _, d := range built {
					select {
					case docs <- d:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				return nil
			})
			return nil
		})
	})

	commitErr := make(chan error, 1)
	go func() {
		commitErr <- commitDocuments(idx, docs)
	}()

	if err := group.Wait(); err != nil {
		return err
	}
	return <-commitErr
}

type namedDoc struct {
	id  string
	doc map[string]interface{}
}

func commitDocuments(idx *Index, docs <-chan namedDoc) error {
	batch := idx.bleve.NewBatch()
	n := 0
	for d := range docs {
		if err := batch.Index(d.id, d.doc); err != nil {
			return err
		}
		n++
		if n >= batchSize {
			if err := idx.bleve.Batch(batch); err != nil {
				return err
			}
			batch = idx.bleve.NewBatch()
			n = 0
		}
	}
	if n > 0 {
		if err := idx.bleve.Batch(batch); err != nil {
			return err
		}
	}
	return nil
}

// buildConceptDocuments materialises extendedConcept for c and returns one
// document per description, FSNs included; Search excludes them by default
// and IncludeFullySpecifiedNames opts back in.
func buildConceptDocuments(cs *store.ComponentStore, c *snomed.Concept, preferredRefsetIDs []snomed.ConceptID) ([]namedDoc, error) {
	descs, err := cs.Descriptions(c.ID)
	if err != nil {
		return nil, err
	}
	expanded, err := cs.ParentRelationshipsExpanded(c.ID)
	if err != nil {
		return nil, err
	}
	direct, err := cs.ParentRelationships(c.ID)
	if err != nil {
		return nil, err
	}
	concreteValues, err := cs.ConcreteValues(c.ID)
	if err != nil {
		return nil, err
	}
	conceptRefsets, err := cs.ComponentRefsetIDs(c.ID)
	if err != nil {
		return nil, err
	}

	preferredTerm := ""
	if pref, err := cs.PreferredSynonym(c.ID, preferredRefsetIDs); err == nil {
		preferredTerm = pref.Term
	}

	base := make(map[string]interface{})
	base[fieldModuleID] = float64(c.ModuleID)
	base[fieldConceptActive] = activeKeyword(c.Active)
	base[fieldConceptID] = float64(c.ID)
	base[fieldPreferredTerm] = preferredTerm
	for _, r := range conceptRefsets {
		addField(base, fieldConceptRefsets, float64(r))
	}
	for typeID, closure := range expanded {
		it := closure.Iterator()
		for it.HasNext() {
			addField(base, strField(typeID), float64(it.Next()))
		}
	}
	for typeID, destinations := range direct {
		addField(base, cField(typeID), float64(destinations.GetCardinality()))
		it := destinations.Iterator()
		for it.HasNext() {
			addField(base, dField(typeID), float64(it.Next()))
		}
	}
	for _, cv := range concreteValues {
		if !cv.Active {
			continue
		}
		key := vField(cv.TypeID)
		if cv.Kind == snomed.ConcreteValueNumber {
			if f, err := strconv.ParseFloat(cv.Value, 64); err == nil {
				addField(base, key, f)
				continue
			}
		}
		addField(base, key, cv.Value)
	}

	var result []namedDoc
	for _, d := range descs {
		doc := make(map[string]interface{}, len(base)+8)
		for k, v := range base {
			doc[k] = v
		}
		doc[fieldTerm] = d.Term
		doc[fieldLengthBoost] = 1 / math.Sqrt(float64(len(d.Term)))
		doc[fieldTypeID] = float64(d.TypeID)
		doc[fieldDescriptionID] = float64(d.ID)
		doc[fieldDescriptionActive] = activeKeyword(d.Active)

		descRefsets, err := cs.ComponentRefsetItems(snomed.ConceptID(d.ID))
		if err != nil {
			return nil, err
		}
		seenRefset := make(map[snomed.ConceptID]bool)
		for _, item := range descRefsets {
			if !item.Active {
				continue
			}
			if !seenRefset[item.RefsetID] {
				seenRefset[item.RefsetID] = true
				addField(doc, fieldDescriptionRefsets, float64(item.RefsetID))
			}
			if item.IsPreferred() {
				addField(doc, fieldPreferredIn, float64(item.RefsetID))
			} else if item.IsAcceptable() {
				addField(doc, fieldAcceptableIn, float64(item.RefsetID))
			}
		}
		result = append(result, namedDoc{id: fmt.Sprintf("%d:%d", d.ID, c.ID), doc: doc})
	}
	return result, nil
}

// addField appends to a multi-valued dynamic field, promoting a prior single
// value into a slice on the second write; bleve indexes a []interface{}
// value as one point/term per element of the same field name.
func addField(doc map[string]interface{}, key string, value interface{}) {
	existing, ok := doc[key]
	if !ok {
		doc[key] = value
		return
	}
	if values, ok := existing.([]interface{}); ok {
		doc[key] = append(values, value)
		return
	}
	doc[key] = []interface{}{existing, value}
}
