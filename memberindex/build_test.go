package memberindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/wardle/snomedq/snomed"
	"github.com/wardle/snomedq/store"
)

func TestBuildAndSearchLanguageRefset(t *testing.T) {
	backing, err := store.Open(filepath.Join(t.TempDir(), "core.db"), false, 0)
	if err != nil {
		t.Fatalf("opening component store: %v", err)
	}
	defer backing.Close()
	cs := store.NewComponentStore(backing)

	idx, err := Open(filepath.Join(t.TempDir(), "members.bleve"), false)
	if err != nil {
		t.Fatalf("opening member index: %v", err)
	}
	defer idx.Close()

	date, err := time.Parse("20060102", "20170701")
	if err != nil {
		t.Fatal(err)
	}
	id1, _ := snomed.ParseRefsetItemID("de01d9e5-54e3-500b-8273-022996f9d43b")
	id2, _ := snomed.ParseRefsetItemID("7fb4e68f-6a61-5f8e-8e74-1a9e8a5a7a31")
	refsetID := snomed.ConceptID(999001261000000100)
	items := []*snomed.RefsetItem{
		{ID: id1, EffectiveTime: date, Active: true, RefsetID: refsetID, ReferencedComponentID: 24700007, Kind: snomed.RefsetLanguage, AcceptabilityID: snomed.PreferredAcceptability},
		{ID: id2, EffectiveTime: date, Active: true, RefsetID: refsetID, ReferencedComponentID: 6118003, Kind: snomed.RefsetLanguage, AcceptabilityID: snomed.AcceptableAcceptability},
	}
	for _, item := range items {
		if err := cs.WriteRefsetItem(item, []string{"acceptabilityId"}); err != nil {
			t.Fatal(err)
		}
	}

	if err := Build(cs, idx); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	results, err := Search(idx, QRefsetID(refsetID))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 referenced components, got %d: %v", len(results), results)
	}

	preferred, err := Search(idx, QAnd(QRefsetID(refsetID), QNumeric("acceptability-id", OpEqual, float64(snomed.PreferredAcceptability))))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(preferred) != 1 || preferred[0] != 24700007 {
		t.Errorf("expected only concept 24700007 preferred, got %v", preferred)
	}
}
