package searchindex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wardle/snomedq/snomed"
	"github.com/wardle/snomedq/store"
)

func newTestFixture(t *testing.T) (*store.ComponentStore, *Index) {
	t.Helper()
	backing, err := store.Open(filepath.Join(t.TempDir(), "core.db"), false, 0)
	if err != nil {
		t.Fatalf("opening component store: %v", err)
	}
	t.Cleanup(func() { backing.Close() })
	cs := store.NewComponentStore(backing)

	idx, err := Open(filepath.Join(t.TempDir(), "search.bleve"), false)
	if err != nil {
		t.Fatalf("opening search index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return cs, idx
}

func populateMultipleSclerosis(t *testing.T, cs *store.ComponentStore) {
	t.Helper()
	date, err := time.Parse("20060102", "20170701")
	if err != nil {
		t.Fatal(err)
	}
	root := &snomed.Concept{ID: snomed.SNOMEDCTRootConcept, EffectiveTime: date, Active: true}
	demyelinating := &snomed.Concept{ID: 6118003, EffectiveTime: date, Active: true}
	ms := &snomed.Concept{ID: 24700007, EffectiveTime: date, Active: true}
	for _, c := range []*snomed.Concept{root, demyelinating, ms} {
		if err := cs.WriteConcept(c); err != nil {
			t.Fatal(err)
		}
	}
	descs := []*snomed.Description{
		{ID: 41398015, ConceptID: ms.ID, EffectiveTime: date, Active: true, Term: "Multiple sclerosis", TypeID: snomed.SynonymType, LanguageCode: "en"},
		{ID: 41398016, ConceptID: ms.ID, EffectiveTime: date, Active: true, Term: "Multiple sclerosis (disorder)", TypeID: snomed.FullySpecifiedNameType, LanguageCode: "en"},
	}
	for _, d := range descs {
		if err := cs.WriteDescription(d); err != nil {
			t.Fatal(err)
		}
	}
	rels := []*snomed.Relationship{
		{ID: 1, Active: true, EffectiveTime: date, SourceID: ms.ID, DestinationID: demyelinating.ID, TypeID: snomed.IsAConcept},
		{ID: 2, Active: true, EffectiveTime: date, SourceID: demyelinating.ID, DestinationID: root.ID, TypeID: snomed.IsAConcept},
	}
	for _, r := range rels {
		if err := cs.WriteRelationship(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := cs.IndexRelationships(); err != nil {
		t.Fatal(err)
	}
}

func TestBuildIndexesFSNDescriptionsExcludedFromSearchByDefault(t *testing.T) {
	cs, idx := newTestFixture(t)
	populateMultipleSclerosis(t, cs)

	if err := Build(context.Background(), cs, idx, nil); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	hits, err := Search(idx, SearchRequest{Query: "Multiple sclerosis", MaxHits: 10})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit (FSN excluded by default), got %d: %+v", len(hits), hits)
	}
	if hits[0].ConceptID != 24700007 {
		t.Errorf("expected concept 24700007, got %d", hits[0].ConceptID)
	}

	hits, err = Search(idx, SearchRequest{Query: "Multiple sclerosis", MaxHits: 10, IncludeFullySpecifiedNames: true})
	if err != nil {
		t.Fatalf("search with IncludeFullySpecifiedNames failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits with FSNs included (the FSN is indexed, just filtered by default), got %d: %+v", len(hits), hits)
	}
}

func TestQDescendantOfMatchesIndexedClosure(t *testing.T) {
	cs, idx := newTestFixture(t)
	populateMultipleSclerosis(t, cs)
	if err := Build(context.Background(), cs, idx, nil); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	hits, err := Search(idx, SearchRequest{Query: "sclerosis", MaxHits: 10, Filter: QDescendantOrSelfOf(snomed.SNOMEDCTRootConcept)})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit under root closure, got %d", len(hits))
	}
}
