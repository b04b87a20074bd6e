package snomed

import (
	"testing"
	"time"
)

func TestConceptRoundTrip(t *testing.T) {
	c := &Concept{
		ID:                 24700007,
		EffectiveTime:      time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
		Active:             true,
		ModuleID:           900000000000207008,
		DefinitionStatusID: 900000000000073002,
	}
	got, err := DecodeConcept(EncodeConcept(c))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *got != *c {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestRefsetItemRoundTripLanguage(t *testing.T) {
	id, err := ParseRefsetItemID("de01d9e5-54e3-500b-8273-022996f9d43b")
	if err != nil {
		t.Fatalf("unexpected error parsing uuid: %v", err)
	}
	item := &RefsetItem{
		ID:                    id,
		EffectiveTime:         time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
		Active:                true,
		ModuleID:              900000000000207008,
		RefsetID:              999001261000000100,
		ReferencedComponentID: 724699017,
		Kind:                  RefsetLanguage,
		AcceptabilityID:       PreferredAcceptability,
	}
	got, err := DecodeRefsetItem(EncodeRefsetItem(item))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != item.ID || got.ID.String() != id.String() {
		t.Errorf("uuid round trip mismatch: got %s, want %s", got.ID, id)
	}
	if !got.IsPreferred() {
		t.Errorf("expected decoded item to be preferred")
	}
}

func TestRefsetItemRoundTripComplexMap(t *testing.T) {
	item := &RefsetItem{
		ID:                    RefsetItemID{1, 2},
		EffectiveTime:         time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
		Active:                true,
		RefsetID:              447562003,
		ReferencedComponentID: 73211009,
		Kind:                  RefsetComplexMap,
		MapGroup:              1,
		MapPriority:           1,
		MapRule:               "TRUE",
		MapAdvice:             "ALWAYS G35.9",
		MapTarget:             "G35.9",
	}
	got, err := DecodeRefsetItem(EncodeRefsetItem(item))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MapTarget != "G35.9" || got.MapRule != "TRUE" {
		t.Errorf("complex map payload did not round trip: %+v", got)
	}
}

func TestParseConcreteValue(t *testing.T) {
	cases := []struct {
		raw      string
		wantKind ConcreteValueKind
		wantVal  string
	}{
		{"#35", ConcreteValueNumber, "35"},
		{`"G35"`, ConcreteValueString, "G35"},
		{"true", ConcreteValueBoolean, "true"},
	}
	for _, tc := range cases {
		kind, val := ParseConcreteValue(tc.raw)
		if kind != tc.wantKind || val != tc.wantVal {
			t.Errorf("ParseConcreteValue(%q) = (%v, %q), want (%v, %q)", tc.raw, kind, val, tc.wantKind, tc.wantVal)
		}
	}
}
