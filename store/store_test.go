package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/wardle/snomedq/snomed"
)

func newTestStore(t *testing.T) *ComponentStore {
	t.Helper()
	backing, err := Open(filepath.Join(t.TempDir(), "core.db"), false, 0)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { backing.Close() })
	return NewComponentStore(backing)
}

func mustParseDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("20060102", s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestComponentStoreWriteRead(t *testing.T) {
	cs := newTestStore(t)
	date := mustParseDate(t, "20170701")

	c1 := &snomed.Concept{ID: 24700007, EffectiveTime: date, Active: true, DefinitionStatusID: 900000000000073002}
	c2 := &snomed.Concept{ID: 6118003, EffectiveTime: date, Active: true, DefinitionStatusID: 900000000000073002}
	if err := cs.WriteConcept(c1); err != nil {
		t.Fatal(err)
	}
	if err := cs.WriteConcept(c2); err != nil {
		t.Fatal(err)
	}

	d1 := &snomed.Description{ID: 41398015, ConceptID: c1.ID, EffectiveTime: date, Active: true, Term: "Multiple sclerosis", TypeID: snomed.SynonymType}
	d2 := &snomed.Description{ID: 1223979019, ConceptID: c1.ID, EffectiveTime: date, Active: true, Term: "Disseminated sclerosis", TypeID: snomed.SynonymType}
	if err := cs.WriteDescription(d1); err != nil {
		t.Fatal(err)
	}
	if err := cs.WriteDescription(d2); err != nil {
		t.Fatal(err)
	}

	r1 := &snomed.Relationship{ID: 1, Active: true, EffectiveTime: date, SourceID: c1.ID, DestinationID: c2.ID, TypeID: snomed.IsAConcept}
	if err := cs.WriteRelationship(r1); err != nil {
		t.Fatal(err)
	}
	if err := cs.IndexRelationships(); err != nil {
		t.Fatal(err)
	}

	got, err := cs.Concept(c1.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != c1.ID || !got.Active {
		t.Errorf("concept not stored and retrieved correctly: got %+v", got)
	}

	if _, err := cs.Concept(0); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing concept, got %v", err)
	}

	descs, err := cs.Descriptions(c1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 2 {
		t.Fatalf("expected 2 descriptions, got %d", len(descs))
	}

	parents, err := cs.ProximalParentIds(c1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(parents) != 1 || parents[0] != c2.ID {
		t.Errorf("expected proximal parent %d, got %v", c2.ID, parents)
	}
}

func TestUpsertIfNewerSkipsOlderEffectiveTime(t *testing.T) {
	cs := newTestStore(t)
	older := mustParseDate(t, "20170701")
	newer := mustParseDate(t, "20210301")

	c := &snomed.Concept{ID: 24700007, EffectiveTime: newer, Active: true, DefinitionStatusID: 900000000000073002}
	if err := cs.WriteConcept(c); err != nil {
		t.Fatal(err)
	}
	stale := &snomed.Concept{ID: 24700007, EffectiveTime: older, Active: false, DefinitionStatusID: 900000000000074008}
	if err := cs.WriteConcept(stale); err != nil {
		t.Fatal(err)
	}
	got, err := cs.Concept(24700007)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Active || got.DefinitionStatusID != 900000000000073002 {
		t.Errorf("stale write with older effectiveTime should have been a no-op, got %+v", got)
	}
}

func TestAllParentsIncludesSelfAndIsIdempotent(t *testing.T) {
	cs := newTestStore(t)
	date := mustParseDate(t, "20170701")
	ids := []snomed.ConceptID{138875005, 64572001, 404684003, 24700007}
	for _, id := range ids {
		if err := cs.WriteConcept(&snomed.Concept{ID: id, EffectiveTime: date, Active: true}); err != nil {
			t.Fatal(err)
		}
	}
	rels := []*snomed.Relationship{
		{ID: 1, Active: true, EffectiveTime: date, SourceID: 24700007, DestinationID: 404684003, TypeID: snomed.IsAConcept},
		{ID: 2, Active: true, EffectiveTime: date, SourceID: 404684003, DestinationID: 64572001, TypeID: snomed.IsAConcept},
		{ID: 3, Active: true, EffectiveTime: date, SourceID: 64572001, DestinationID: 138875005, TypeID: snomed.IsAConcept},
	}
	for _, r := range rels {
		if err := cs.WriteRelationship(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := cs.IndexRelationships(); err != nil {
		t.Fatal(err)
	}

	closure, err := cs.AllParents(24700007)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []snomed.ConceptID{24700007, 404684003, 64572001, 138875005} {
		if !closure.Contains(uint64(want)) {
			t.Errorf("expected %d in AllParents(24700007), closure=%v", want, closure.ToArray())
		}
	}

	children, err := cs.AllChildren(138875005)
	if err != nil {
		t.Fatal(err)
	}
	if !children.Contains(uint64(24700007)) {
		t.Errorf("expected 24700007 in AllChildren(138875005)")
	}
}

func TestIndexRefsetsRebuildsOnlyActiveMembers(t *testing.T) {
	cs := newTestStore(t)
	date := mustParseDate(t, "20170701")
	id1, _ := snomed.ParseRefsetItemID("de01d9e5-54e3-500b-8273-022996f9d43b")
	id2, _ := snomed.ParseRefsetItemID("7fb4e68f-6a61-5f8e-8e74-1a9e8a5a7a31")
	refsetID := snomed.ConceptID(999001261000000100)
	active := &snomed.RefsetItem{ID: id1, EffectiveTime: date, Active: true, RefsetID: refsetID, ReferencedComponentID: 24700007, Kind: snomed.RefsetLanguage, AcceptabilityID: snomed.PreferredAcceptability}
	inactive := &snomed.RefsetItem{ID: id2, EffectiveTime: date, Active: false, RefsetID: refsetID, ReferencedComponentID: 6118003, Kind: snomed.RefsetLanguage, AcceptabilityID: snomed.PreferredAcceptability}
	if err := cs.WriteRefsetItem(active, []string{"acceptabilityId"}); err != nil {
		t.Fatal(err)
	}
	if err := cs.WriteRefsetItem(inactive, []string{"acceptabilityId"}); err != nil {
		t.Fatal(err)
	}
	if err := cs.IndexRefsets(); err != nil {
		t.Fatal(err)
	}
	in, err := cs.ComponentInRefset(24700007, refsetID)
	if err != nil {
		t.Fatal(err)
	}
	if !in {
		t.Errorf("expected active member to be indexed")
	}
	in, err = cs.ComponentInRefset(6118003, refsetID)
	if err != nil {
		t.Fatal(err)
	}
	if in {
		t.Errorf("expected inactive member to be absent from the rebuilt index")
	}
	installed, err := cs.InstalledReferenceSets()
	if err != nil {
		t.Fatal(err)
	}
	if len(installed) != 1 || installed[0] != refsetID {
		t.Errorf("expected refset %d to be installed, got %v", refsetID, installed)
	}
}
