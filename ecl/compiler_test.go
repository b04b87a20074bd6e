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

package ecl

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/wardle/snomedq/memberindex"
	"github.com/wardle/snomedq/searchindex"
	"github.com/wardle/snomedq/snomed"
	"github.com/wardle/snomedq/store"
)

// Fixture concept ids, chosen from the real SNOMED CT identifiers the ECL
// end-to-end scenarios name, wired into a small self-consistent hierarchy so
// the compiler can be exercised against a real component store and search
// index rather than a mock.
const (
	fxRoot                   snomed.ConceptID = 138875005 // SNOMED CT Concept
	fxClinicalFinding        snomed.ConceptID = 404684003 // Clinical finding
	fxDisease                snomed.ConceptID = 64572001  // Disease
	fxDemyelinatingDisease   snomed.ConceptID = 6118003   // Demyelinating disease of CNS
	fxMultipleSclerosis      snomed.ConceptID = 24700007  // Multiple sclerosis
	fxAsthma                 snomed.ConceptID = 195967001 // Asthma
	fxCardiomyopathy         snomed.ConceptID = 85898001  // Cardiomyopathy

	fxAttributeRoot          snomed.ConceptID = 246061005 // Attribute
	fxFindingSite            snomed.ConceptID = 363698007 // Finding site
	fxAssociatedMorphology   snomed.ConceptID = 116676008 // Associated morphology

	fxBodyStructureRoot      snomed.ConceptID = 91723000  // Anatomical structure
	fxLungStructure          snomed.ConceptID = 39057004  // Lung structure
	fxNervousSystemStructure snomed.ConceptID = 21483005  // Structure of nervous system

	fxMorphologyRoot         snomed.ConceptID = 49755003  // Morphologically abnormal structure
	fxInflammation           snomed.ConceptID = 415582006 // Inflammation

	fxGBLanguageRefset snomed.ConceptID = 999001261000000100
	fxICD10MapRefset   snomed.ConceptID = 447562003 // SNOMED CT to ICD-10 map reference set
)

// ecl fixture wires together a component store, a description index and a
// member index, populated with the small hierarchy above, ready to drive a
// Compiler the way a real installation's three stores would.
type eclFixture struct {
	t       *testing.T
	store   *store.ComponentStore
	descs   *searchindex.Index
	members *memberindex.Index
	date    time.Time
}

func newEclFixture(t *testing.T) *eclFixture {
	t.Helper()
	backing, err := store.Open(filepath.Join(t.TempDir(), "core.db"), false, 0)
	if err != nil {
		t.Fatalf("opening component store: %v", err)
	}
	t.Cleanup(func() { backing.Close() })
	cs := store.NewComponentStore(backing)

	descIdx, err := searchindex.Open(filepath.Join(t.TempDir(), "search.bleve"), false)
	if err != nil {
		t.Fatalf("opening search index: %v", err)
	}
	t.Cleanup(func() { descIdx.Close() })

	memberIdx, err := memberindex.Open(filepath.Join(t.TempDir(), "members.bleve"), false)
	if err != nil {
		t.Fatalf("opening member index: %v", err)
	}
	t.Cleanup(func() { memberIdx.Close() })

	date, err := time.Parse("20060102", "20230701")
	if err != nil {
		t.Fatal(err)
	}
	return &eclFixture{t: t, store: cs, descs: descIdx, members: memberIdx, date: date}
}

func (f *eclFixture) writeConcept(id snomed.ConceptID) {
	f.t.Helper()
	if err := f.store.WriteConcept(&snomed.Concept{ID: id, EffectiveTime: f.date, Active: true, DefinitionStatusID: 900000000000073002}); err != nil {
		f.t.Fatalf("writing concept %d: %v", id, err)
	}
}

func (f *eclFixture) writeIsA(seq *int64, source, destination snomed.ConceptID) {
	f.writeRelationship(seq, source, destination, snomed.IsAConcept, 0)
}

func (f *eclFixture) writeRelationship(seq *int64, source, destination, typeID snomed.ConceptID, group int) {
	f.t.Helper()
	*seq++
	r := &snomed.Relationship{ID: snomed.RelationshipID(*seq), Active: true, EffectiveTime: f.date, SourceID: source, DestinationID: destination, TypeID: typeID, RelationshipGroup: group}
	if err := f.store.WriteRelationship(r); err != nil {
		f.t.Fatalf("writing relationship %d->%d: %v", source, destination, err)
	}
}

func (f *eclFixture) writeSynonym(seq *int64, conceptID snomed.ConceptID, term string) snomed.DescriptionID {
	f.t.Helper()
	*seq++
	id := snomed.DescriptionID(*seq)
	d := &snomed.Description{ID: id, ConceptID: conceptID, EffectiveTime: f.date, Active: true, Term: term, TypeID: snomed.SynonymType, LanguageCode: "en"}
	if err := f.store.WriteDescription(d); err != nil {
		f.t.Fatalf("writing description %q: %v", term, err)
	}
	return id
}

func (f *eclFixture) preferIn(descriptionID snomed.DescriptionID, refsetID snomed.ConceptID) {
	f.t.Helper()
	id := snomed.RefsetItemID{uint64(descriptionID), uint64(refsetID)}
	item := &snomed.RefsetItem{
		ID: id, EffectiveTime: f.date, Active: true, RefsetID: refsetID,
		ReferencedComponentID: snomed.ConceptID(descriptionID), Kind: snomed.RefsetLanguage,
		AcceptabilityID: snomed.PreferredAcceptability,
	}
	if err := f.store.WriteRefsetItem(item, []string{"acceptabilityId"}); err != nil {
		f.t.Fatalf("writing language refset item: %v", err)
	}
}

func (f *eclFixture) mapMember(seq *int64, conceptID, refsetID snomed.ConceptID, target string) {
	f.t.Helper()
	*seq++
	id := snomed.RefsetItemID{uint64(*seq), uint64(refsetID)}
	item := &snomed.RefsetItem{
		ID: id, EffectiveTime: f.date, Active: true, RefsetID: refsetID,
		ReferencedComponentID: conceptID, Kind: snomed.RefsetSimpleMap, MapTarget: target,
	}
	if err := f.store.WriteRefsetItem(item, []string{"mapTarget"}); err != nil {
		f.t.Fatalf("writing map refset item: %v", err)
	}
}

func (f *eclFixture) associate(seq *int64, refsetID, referencedComponentID, targetComponentID snomed.ConceptID) {
	f.t.Helper()
	*seq++
	id := snomed.RefsetItemID{uint64(*seq), uint64(refsetID)}
	item := &snomed.RefsetItem{
		ID: id, EffectiveTime: f.date, Active: true, RefsetID: refsetID,
		ReferencedComponentID: referencedComponentID, TargetComponentID: targetComponentID, Kind: snomed.RefsetAssociation,
	}
	if err := f.store.WriteRefsetItem(item, []string{"targetComponentId"}); err != nil {
		f.t.Fatalf("writing association refset item: %v", err)
	}
}

// buildAll indexes relationships/refsets/descriptions/members after every
// write, the same drop-and-rebuild-from-scratch sequence the component store
// and its two search indexes all use.
func (f *eclFixture) buildAll() *Compiler {
	f.t.Helper()
	if err := f.store.IndexRelationships(); err != nil {
		f.t.Fatalf("indexing relationships: %v", err)
	}
	if err := f.store.IndexRefsets(); err != nil {
		f.t.Fatalf("indexing refsets: %v", err)
	}
	if err := searchindex.Build(context.Background(), f.store, f.descs, []snomed.ConceptID{fxGBLanguageRefset}); err != nil {
		f.t.Fatalf("building search index: %v", err)
	}
	if err := memberindex.Build(f.store, f.members); err != nil {
		f.t.Fatalf("building member index: %v", err)
	}
	return &Compiler{Store: f.store, Descriptions: f.descs, Members: f.members}
}

// populate builds the shared disease/attribute/body-structure hierarchy
// every scenario test below compiles ECL against.
func populate(t *testing.T) *Compiler {
	t.Helper()
	f := newEclFixture(t)
	var seq int64

	for _, id := range []snomed.ConceptID{
		fxRoot, fxClinicalFinding, fxDisease, fxDemyelinatingDisease, fxMultipleSclerosis, fxAsthma, fxCardiomyopathy,
		fxAttributeRoot, fxFindingSite, fxAssociatedMorphology,
		fxBodyStructureRoot, fxLungStructure, fxNervousSystemStructure,
		fxMorphologyRoot, fxInflammation,
	} {
		f.writeConcept(id)
	}

	f.writeIsA(&seq, fxClinicalFinding, fxRoot)
	f.writeIsA(&seq, fxDisease, fxClinicalFinding)
	f.writeIsA(&seq, fxDemyelinatingDisease, fxDisease)
	f.writeIsA(&seq, fxMultipleSclerosis, fxDemyelinatingDisease)
	f.writeIsA(&seq, fxAsthma, fxDisease)
	f.writeIsA(&seq, fxCardiomyopathy, fxDisease)
	f.writeIsA(&seq, fxFindingSite, fxAttributeRoot)
	f.writeIsA(&seq, fxAssociatedMorphology, fxAttributeRoot)
	f.writeIsA(&seq, fxLungStructure, fxBodyStructureRoot)
	f.writeIsA(&seq, fxNervousSystemStructure, fxBodyStructureRoot)
	f.writeIsA(&seq, fxInflammation, fxMorphologyRoot)

	f.writeRelationship(&seq, fxAsthma, fxLungStructure, fxFindingSite, 1)
	f.writeRelationship(&seq, fxAsthma, fxInflammation, fxAssociatedMorphology, 1)
	f.writeRelationship(&seq, fxMultipleSclerosis, fxNervousSystemStructure, fxFindingSite, 1)
	f.writeRelationship(&seq, fxDemyelinatingDisease, fxNervousSystemStructure, fxFindingSite, 1)

	msTerm := f.writeSynonym(&seq, fxMultipleSclerosis, "Multiple sclerosis")
	f.writeSynonym(&seq, fxAsthma, "Asthma")
	f.writeSynonym(&seq, fxDisease, "Disease")
	cardioTerm := f.writeSynonym(&seq, fxCardiomyopathy, "Cardiomyopathy")
	// Only concepts with a description have a description-index document, so
	// every concept a test expects to see in a result gets a synonym too.
	f.writeSynonym(&seq, fxRoot, "SNOMED CT Concept")
	f.writeSynonym(&seq, fxClinicalFinding, "Clinical finding")
	f.writeSynonym(&seq, fxDemyelinatingDisease, "Demyelinating disease of central nervous system")
	f.writeSynonym(&seq, fxAttributeRoot, "Attribute")
	f.writeSynonym(&seq, fxFindingSite, "Finding site")
	f.writeSynonym(&seq, fxAssociatedMorphology, "Associated morphology")
	f.writeSynonym(&seq, fxBodyStructureRoot, "Anatomical structure")
	f.writeSynonym(&seq, fxLungStructure, "Lung structure")
	f.writeSynonym(&seq, fxNervousSystemStructure, "Structure of nervous system")
	f.writeSynonym(&seq, fxMorphologyRoot, "Morphologically abnormal structure")
	f.writeSynonym(&seq, fxInflammation, "Inflammation")
	f.preferIn(msTerm, fxGBLanguageRefset)
	f.preferIn(cardioTerm, fxGBLanguageRefset)

	f.mapMember(&seq, fxMultipleSclerosis, fxICD10MapRefset, "G35")
	f.mapMember(&seq, fxAsthma, fxICD10MapRefset, "J45")

	return f.buildAll()
}

func compile(t *testing.T, c *Compiler, src string) []snomed.ConceptID {
	t.Helper()
	q, err := c.Compile(src)
	if err != nil {
		t.Fatalf("compiling %q: %v", src, err)
	}
	ids, err := c.realizeConceptIDs(q)
	if err != nil {
		t.Fatalf("realising %q: %v", src, err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestCompileDescendantOrSelfOf(t *testing.T) {
	c := populate(t)
	got := compile(t, c, "<<64572001")
	want := []snomed.ConceptID{fxDemyelinatingDisease, fxMultipleSclerosis, fxAsthma, fxCardiomyopathy, fxDisease}
	assertSameIDs(t, got, want)
}

func TestCompileDescendantOfExcludesSelf(t *testing.T) {
	c := populate(t)
	got := compile(t, c, "<64572001")
	want := []snomed.ConceptID{fxDemyelinatingDisease, fxMultipleSclerosis, fxAsthma, fxCardiomyopathy}
	assertSameIDs(t, got, want)
}

func TestCompileAncestorOfMaterialisesFromStore(t *testing.T) {
	c := populate(t)
	got := compile(t, c, ">24700007")
	want := []snomed.ConceptID{fxDemyelinatingDisease, fxDisease, fxClinicalFinding, fxRoot}
	assertSameIDs(t, got, want)
}

func TestCompileAttributeRefinementSingleClause(t *testing.T) {
	c := populate(t)
	got := compile(t, c, "<64572001 : 363698007 = <<39057004")
	assertSameIDs(t, got, []snomed.ConceptID{fxAsthma})
}

func TestCompileAttributeRefinementConjunctionOfTwoClauses(t *testing.T) {
	c := populate(t)
	got := compile(t, c, "<64572001 : 363698007 = <<39057004, 116676008 = <<415582006")
	assertSameIDs(t, got, []snomed.ConceptID{fxAsthma})
}

func TestCompileAttributeCardinalityZeroZeroIsAbsence(t *testing.T) {
	c := populate(t)
	got := compile(t, c, "<64572001 : [0..0] 363698007 = *")
	// cardiomyopathy carries no finding site relationship at all.
	assertSameIDs(t, got, []snomed.ConceptID{fxCardiomyopathy})
}

func TestCompileDottedExpression(t *testing.T) {
	c := populate(t)
	got := compile(t, c, "<64572001 . 363698007")
	assertSameIDs(t, got, []snomed.ConceptID{fxLungStructure, fxNervousSystemStructure})
}

func TestCompileCompoundMinus(t *testing.T) {
	c := populate(t)
	got := compile(t, c, "<<64572001 MINUS <<6118003")
	assertSameIDs(t, got, []snomed.ConceptID{fxDisease, fxAsthma, fxCardiomyopathy})
}

func TestCompileCompoundOr(t *testing.T) {
	c := populate(t)
	got := compile(t, c, "24700007 OR 195967001")
	assertSameIDs(t, got, []snomed.ConceptID{fxMultipleSclerosis, fxAsthma})
}

func TestCompileMemberOfMapRefsetWithMapTargetFilter(t *testing.T) {
	c := populate(t)
	got := compile(t, c, `^ 447562003 {{ M mapTarget = "G35" }}`)
	assertSameIDs(t, got, []snomed.ConceptID{fxMultipleSclerosis})
}

func TestCompileUntaggedTermTypeDialectFilter(t *testing.T) {
	c := populate(t)
	got := compile(t, c, `<<64572001 |Disease| {{ term = "cardi*opathy", type = syn, dialect = (en-gb) }}`)
	assertSameIDs(t, got, []snomed.ConceptID{fxCardiomyopathy})
}

func TestCompileConceptFilterActive(t *testing.T) {
	c := populate(t)
	got := compile(t, c, "<<64572001 {{ c active = true }}")
	want := []snomed.ConceptID{fxDemyelinatingDisease, fxMultipleSclerosis, fxAsthma, fxCardiomyopathy, fxDisease}
	assertSameIDs(t, got, want)
}

func TestCompileAncestorOfWildcardIsUnsupported(t *testing.T) {
	c := populate(t)
	_, err := c.Compile(">*")
	if err == nil {
		t.Fatal("expected an UnsupportedError for '>*'")
	}
	if _, ok := err.(*UnsupportedError); !ok {
		t.Errorf("expected *UnsupportedError, got %T: %v", err, err)
	}
}

func assertSameIDs(t *testing.T, got, want []snomed.ConceptID) {
	t.Helper()
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
