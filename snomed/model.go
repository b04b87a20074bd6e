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

// Package snomed defines the core SNOMED CT component types used throughout
// the store, search index and ECL compiler, plus the well-known identifiers
// that the engine treats specially.
package snomed

import (
	"time"

	"github.com/google/uuid"
)

// Well-known concept identifiers referenced directly by the store, the
// search index and the ECL compiler.
const (
	IsAConcept              ConceptID = 116680003
	ReferenceSetConcept     ConceptID = 900000000000455006
	ConceptModelAttribute   ConceptID = 410662002
	AttributeConcept        ConceptID = 246061005
	DescriptionTypeConcept  ConceptID = 900000000000446008
	RefsetDescriptorRefset  ConceptID = 900000000000456007
	PreferredAcceptability  ConceptID = 900000000000548007
	AcceptableAcceptability ConceptID = 900000000000549004
	FullySpecifiedNameType  ConceptID = 900000000000003001
	SynonymType             ConceptID = 900000000000013009
	DefinitionType          ConceptID = 900000000000550004
	SNOMEDCTRootConcept     ConceptID = 138875005
)

// Concept is the fundamental clinical idea identified by a unique SCTID.
// See https://confluence.ihtsdotools.org/display/DOCRELFMT/3.2.1.+Concept+File+Specification
type Concept struct {
	ID                 ConceptID
	EffectiveTime      time.Time
	Active             bool
	ModuleID           ConceptID
	DefinitionStatusID ConceptID
}

// DescriptionTypeID enumerates the supported description types.
type DescriptionTypeID = ConceptID

// CaseSignificanceID enumerates the case-significance values a description
// may carry.
type CaseSignificanceID = ConceptID

// Case significance values.
const (
	EntireTermCaseInsensitive     CaseSignificanceID = 900000000000448009
	EntireTermCaseSensitive       CaseSignificanceID = 900000000000017005
	InitialCharacterCaseSensitive CaseSignificanceID = 900000000000020002
)

// Description gives a human-readable term to a concept.
// See https://confluence.ihtsdotools.org/display/DOCRELFMT/3.2.2.+Description+File+Specification
type Description struct {
	ID                 DescriptionID
	EffectiveTime      time.Time
	Active             bool
	ModuleID           ConceptID
	ConceptID          ConceptID
	LanguageCode       string
	TypeID             DescriptionTypeID
	Term               string
	CaseSignificanceID CaseSignificanceID
}

// IsFullySpecifiedName returns whether this is the concept's canonical name.
func (d *Description) IsFullySpecifiedName() bool { return d.TypeID == FullySpecifiedNameType }

// IsSynonym returns whether this is a synonym, the only type that may carry
// an acceptability in a language reference set.
func (d *Description) IsSynonym() bool { return d.TypeID == SynonymType }

// IsDefinition returns whether this is a free-text definition.
func (d *Description) IsDefinition() bool { return d.TypeID == DefinitionType }

// Relationship is a typed, grouped, directional link between two concepts.
// Only active relationships participate in the graph used for queries.
type Relationship struct {
	ID                   RelationshipID
	EffectiveTime        time.Time
	Active               bool
	ModuleID             ConceptID
	SourceID             ConceptID
	DestinationID        ConceptID
	RelationshipGroup    int
	TypeID               ConceptID
	CharacteristicTypeID ConceptID
	ModifierID           ConceptID
}

// IsIsA reports whether this relationship is of the IsA (subsumption) type.
func (r *Relationship) IsIsA() bool { return r.TypeID == IsAConcept }

// ConcreteValueKind distinguishes the literal encoding of a ConcreteValue.
type ConcreteValueKind byte

// Concrete value kinds, matching the RF2 concrete-value prefix convention:
// '#' numeric, '"' string, absent either is boolean.
const (
	ConcreteValueNumber ConcreteValueKind = iota
	ConcreteValueString
	ConcreteValueBoolean
)

// ConcreteValue attaches a literal payload to a concept through a typed,
// grouped relationship, rather than a link to another concept.
type ConcreteValue struct {
	ID                 RelationshipID
	EffectiveTime      time.Time
	Active             bool
	ModuleID           ConceptID
	SourceID           ConceptID
	Value              string
	Kind               ConcreteValueKind
	RelationshipGroup  int
	TypeID             ConceptID
	CharacteristicType ConceptID
}

// ParseConcreteValue decodes the RF2 literal-prefix convention for a
// concrete value field into its kind and unwrapped textual value.
func ParseConcreteValue(raw string) (kind ConcreteValueKind, value string) {
	if len(raw) == 0 {
		return ConcreteValueBoolean, raw
	}
	switch raw[0] {
	case '#':
		return ConcreteValueNumber, raw[1:]
	case '"':
		return ConcreteValueString, trimQuotes(raw)
	default:
		return ConcreteValueBoolean, raw
	}
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// RefsetItemID is the 128-bit UUID identifying a single reference set
// member. It is kept as a pair of 64-bit halves matching the store's
// uuidMsb/uuidLsb key encoding; google/uuid is used only at the API
// boundary to parse and format the textual form.
type RefsetItemID [2]uint64

// ParseRefsetItemID parses the canonical hyphenated UUID textual form.
func ParseRefsetItemID(s string) (RefsetItemID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RefsetItemID{}, err
	}
	return RefsetItemIDFromUUID(u), nil
}

// RefsetItemIDFromUUID converts a google/uuid value into its msb/lsb halves.
func RefsetItemIDFromUUID(u uuid.UUID) RefsetItemID {
	var id RefsetItemID
	id[0] = beUint64(u[0:8])
	id[1] = beUint64(u[8:16])
	return id
}

// UUID renders the identifier back into the canonical hyphenated form.
func (id RefsetItemID) UUID() uuid.UUID {
	var u uuid.UUID
	putBeUint64(u[0:8], id[0])
	putBeUint64(u[8:16], id[1])
	return u
}

// String returns the canonical hyphenated textual representation.
func (id RefsetItemID) String() string { return id.UUID().String() }

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func putBeUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// RefsetItemKind discriminates the tagged-union payload carried by a
// RefsetItem; it is the 1-byte wire discriminator described in spec §6.
type RefsetItemKind byte

// Supported refset item subtypes.
const (
	RefsetSimple RefsetItemKind = iota
	RefsetLanguage
	RefsetSimpleMap
	RefsetComplexMap
	RefsetExtendedMap
	RefsetAssociation
	RefsetAttributeValue
	RefsetOWLExpression
	RefsetDescriptor
	RefsetModuleDependency
	RefsetMRCMDomain
	RefsetMRCMAttributeDomain
	RefsetMRCMAttributeRange
	RefsetMRCMModuleScope
)

// RefsetItem is a single member of a reference set: a common header plus a
// subtype-specific payload selected by Kind. Every field outside of the
// active subtype's payload is left at its zero value.
type RefsetItem struct {
	ID                    RefsetItemID
	EffectiveTime         time.Time
	Active                bool
	ModuleID              ConceptID
	RefsetID              ConceptID
	ReferencedComponentID ConceptID
	Kind                  RefsetItemKind

	// Language
	AcceptabilityID ConceptID

	// SimpleMap / ComplexMap / ExtendedMap
	MapTarget     string
	MapGroup      int
	MapPriority   int
	MapRule       string
	MapAdvice     string
	CorrelationID ConceptID
	MapCategoryID ConceptID

	// Association / AttributeValue
	TargetComponentID ConceptID
	ValueID           ConceptID

	// OWLExpression
	OWLExpression string

	// RefsetDescriptor
	AttributeDescriptionID ConceptID
	AttributeTypeID        ConceptID
	AttributeOrder         uint

	// ModuleDependency
	SourceEffectiveTime time.Time
	TargetEffectiveTime time.Time

	// MRCM variants share enough fields with AttributeDomain/AttributeRange
	// that they are modelled with free-form text; the member index exposes
	// them through the column list the refset descriptor declares.
	Domain              ConceptID
	Grouped             bool
	AttributeCardinality string
	AttributeInGroupCardinality string
	RuleStrengthID      ConceptID
	ContentTypeID       ConceptID
	RangeConstraint     string
	AttributeRule       string
}

// IsPreferred reports whether a Language refset item marks its referenced
// description as preferred.
func (r *RefsetItem) IsPreferred() bool {
	return r.Kind == RefsetLanguage && r.AcceptabilityID == PreferredAcceptability
}

// IsAcceptable reports whether a Language refset item marks its referenced
// description as acceptable (but not preferred).
func (r *RefsetItem) IsAcceptable() bool {
	return r.Kind == RefsetLanguage && r.AcceptabilityID == AcceptableAcceptability
}
