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

// Package engine is the single facade a caller opens to get a working query
// engine: the component store, the two bleve-backed indices and a compiler
// wired against them, opened and closed together as one handle.
package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/wardle/snomedq/ecl"
	"github.com/wardle/snomedq/internal/xlog"
	"github.com/wardle/snomedq/locale"
	"github.com/wardle/snomedq/memberindex"
	"github.com/wardle/snomedq/searchindex"
	"github.com/wardle/snomedq/snomed"
	"github.com/wardle/snomedq/store"
)

// Config is passed by value into Open.
type Config struct {
	// ReadOnly opens every backing store without write access, for a
	// query-serving process distinct from the exclusive import writer.
	ReadOnly bool
	// SkipCheck, when true, skips the post-open consistency check (a walk
	// of the root concept's ancestor closure, which fails only when the
	// store cannot be read) that every open otherwise runs.
	SkipCheck bool
	// MapSize sets the component store's initial memory-map size in bytes;
	// zero keeps bbolt's default. The map still grows past it as the file
	// grows, so it is not an upper bound.
	MapSize int
	// LanguagePriorityList is the default dialect preference, expressed as
	// locale aliases (e.g. "en-GB", "en-US"), that Build resolves to
	// language reference sets when its caller supplies none; those refsets
	// pick each concept's preferred term in the description index.
	LanguagePriorityList []string
}

// Engine bundles the component store, both search indices and a ready-to-use
// ECL compiler over them.
type Engine struct {
	cfg      Config
	Store    *store.ComponentStore
	Descs    *searchindex.Index
	Members  *memberindex.Index
	Compiler *ecl.Compiler
	log      *xlog.Logger
}

// Open opens (or creates, when !cfg.ReadOnly) the component store and the
// two bleve indices under dir, one subdirectory/file per backend.
func Open(dir string, cfg Config) (*Engine, error) {
	backing, err := store.Open(filepath.Join(dir, "core.db"), cfg.ReadOnly, cfg.MapSize)
	if err != nil {
		return nil, fmt.Errorf("engine: opening component store: %w", err)
	}
	cs := store.NewComponentStore(backing)

	descs, err := searchindex.Open(filepath.Join(dir, "descriptions.bleve"), cfg.ReadOnly)
	if err != nil {
		backing.Close()
		return nil, fmt.Errorf("engine: opening description index: %w", err)
	}

	members, err := memberindex.Open(filepath.Join(dir, "members.bleve"), cfg.ReadOnly)
	if err != nil {
		descs.Close()
		backing.Close()
		return nil, fmt.Errorf("engine: opening member index: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		Store:    cs,
		Descs:    descs,
		Members:  members,
		Compiler: &ecl.Compiler{Store: cs, Descriptions: descs, Members: members},
		log:      xlog.Default(),
	}
	if !cfg.SkipCheck {
		if err := e.checkConsistent(); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// checkConsistent walks the SNOMED CT root concept's ancestor closure as a
// cheap check that the store can be read before serving queries. It reports
// read errors only; a store without the root concept passes.
func (e *Engine) checkConsistent() error {
	const rootConcept snomed.ConceptID = 138875005
	if _, err := e.Store.AllParents(rootConcept); err != nil {
		return fmt.Errorf("engine: store failed consistency check: %w", err)
	}
	return nil
}

// Close releases every backing resource, search indices first so a crash
// mid-close can't leave the component store's write lock held longer than
// necessary.
func (e *Engine) Close() error {
	var firstErr error
	if e.Members != nil {
		if err := e.Members.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.Descs != nil {
		if err := e.Descs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build rebuilds the relationship/refset indices and both search indices
// from the component store's current contents: the single operation an
// importer runs after loading data and before serving queries. An empty
// preferredRefsetIDs falls back to the Config's LanguagePriorityList.
func (e *Engine) Build(ctx context.Context, preferredRefsetIDs []snomed.ConceptID) error {
	if len(preferredRefsetIDs) == 0 {
		for _, alias := range e.cfg.LanguagePriorityList {
			id, ok := locale.ReferenceSetID(alias)
			if !ok {
				return fmt.Errorf("engine: unknown language %q in LanguagePriorityList", alias)
			}
			preferredRefsetIDs = append(preferredRefsetIDs, id)
		}
	}
	if err := e.Store.IndexRelationships(); err != nil {
		return fmt.Errorf("engine: indexing relationships: %w", err)
	}
	if err := e.Store.IndexRefsets(); err != nil {
		return fmt.Errorf("engine: indexing refsets: %w", err)
	}
	if err := searchindex.Build(ctx, e.Store, e.Descs, preferredRefsetIDs); err != nil {
		return fmt.Errorf("engine: building description index: %w", err)
	}
	if err := memberindex.Build(e.Store, e.Members); err != nil {
		return fmt.Errorf("engine: building member index: %w", err)
	}
	return nil
}

// Query compiles an ECL expression constraint and realises every match
// against the description index, returning the deduplicated set of matched
// concept ids. Every hit is streamed; there is no bounded top-K collector.
func (e *Engine) Query(expr string) ([]snomed.ConceptID, error) {
	q, err := e.Compiler.Compile(expr)
	if err != nil {
		return nil, err
	}
	seen := make(map[snomed.ConceptID]bool)
	var result []snomed.ConceptID
	err = searchindex.StreamAll(e.Descs, q, func(h searchindex.Hit) error {
		if !seen[h.ConceptID] {
			seen[h.ConceptID] = true
			result = append(result, h.ConceptID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("engine: realising query: %w", err)
	}
	return result, nil
}
