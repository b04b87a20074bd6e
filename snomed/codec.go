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

package snomed

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Wire encoding for component records. There is no generated protobuf
// codec in this module: records are hand-coded fixed-width/length-prefixed
// binary fields, matching the on-disk layout the component store persists.
// Identifiers and dates (as epoch-days) are 64-bit longs, strings are
// UTF-8 with a 16-bit length prefix, and booleans are a single byte.
// Refset items additionally carry a leading 1-byte subtype discriminator.

func dayToTime(days int64) time.Time {
	return time.Unix(days*86400, 0).UTC()
}

func timeToDay(t time.Time) int64 {
	return t.Unix() / 86400
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(s)))
	buf.Write(lb[:])
	buf.WriteString(s)
}

func writeTime(buf *bytes.Buffer, t time.Time) {
	writeInt64(buf, timeToDay(t))
}

type byteReader struct {
	b []byte
	i int
}

func (r *byteReader) int64() (int64, error) {
	if r.i+8 > len(r.b) {
		return 0, fmt.Errorf("snomed: truncated record reading int64 at offset %d", r.i)
	}
	v := binary.BigEndian.Uint64(r.b[r.i : r.i+8])
	r.i += 8
	return int64(v), nil
}

func (r *byteReader) bool() (bool, error) {
	if r.i+1 > len(r.b) {
		return false, fmt.Errorf("snomed: truncated record reading bool at offset %d", r.i)
	}
	v := r.b[r.i] != 0
	r.i++
	return v, nil
}

func (r *byteReader) byteTag() (byte, error) {
	if r.i+1 > len(r.b) {
		return 0, fmt.Errorf("snomed: truncated record reading tag at offset %d", r.i)
	}
	v := r.b[r.i]
	r.i++
	return v, nil
}

func (r *byteReader) string() (string, error) {
	if r.i+2 > len(r.b) {
		return "", fmt.Errorf("snomed: truncated record reading string length at offset %d", r.i)
	}
	n := int(binary.BigEndian.Uint16(r.b[r.i : r.i+2]))
	r.i += 2
	if r.i+n > len(r.b) {
		return "", fmt.Errorf("snomed: truncated record reading string body at offset %d", r.i)
	}
	s := string(r.b[r.i : r.i+n])
	r.i += n
	return s, nil
}

func (r *byteReader) time() (time.Time, error) {
	d, err := r.int64()
	if err != nil {
		return time.Time{}, err
	}
	return dayToTime(d), nil
}

// EncodeConcept serialises a Concept to its wire form.
func EncodeConcept(c *Concept) []byte {
	var buf bytes.Buffer
	writeInt64(&buf, int64(c.ID))
	writeTime(&buf, c.EffectiveTime)
	writeBool(&buf, c.Active)
	writeInt64(&buf, int64(c.ModuleID))
	writeInt64(&buf, int64(c.DefinitionStatusID))
	return buf.Bytes()
}

// DecodeConcept deserialises a Concept from its wire form.
func DecodeConcept(b []byte) (*Concept, error) {
	r := &byteReader{b: b}
	var c Concept
	id, err := r.int64()
	if err != nil {
		return nil, err
	}
	c.ID = ConceptID(id)
	if c.EffectiveTime, err = r.time(); err != nil {
		return nil, err
	}
	if c.Active, err = r.bool(); err != nil {
		return nil, err
	}
	mid, err := r.int64()
	if err != nil {
		return nil, err
	}
	c.ModuleID = ConceptID(mid)
	dsid, err := r.int64()
	if err != nil {
		return nil, err
	}
	c.DefinitionStatusID = ConceptID(dsid)
	return &c, nil
}

// EncodeDescription serialises a Description to its wire form.
func EncodeDescription(d *Description) []byte {
	var buf bytes.Buffer
	writeInt64(&buf, int64(d.ID))
	writeTime(&buf, d.EffectiveTime)
	writeBool(&buf, d.Active)
	writeInt64(&buf, int64(d.ModuleID))
	writeInt64(&buf, int64(d.ConceptID))
	writeString(&buf, d.LanguageCode)
	writeInt64(&buf, int64(d.TypeID))
	writeString(&buf, d.Term)
	writeInt64(&buf, int64(d.CaseSignificanceID))
	return buf.Bytes()
}

// DecodeDescription deserialises a Description from its wire form.
func DecodeDescription(b []byte) (*Description, error) {
	r := &byteReader{b: b}
	var d Description
	id, err := r.int64()
	if err != nil {
		return nil, err
	}
	d.ID = DescriptionID(id)
	if d.EffectiveTime, err = r.time(); err != nil {
		return nil, err
	}
	if d.Active, err = r.bool(); err != nil {
		return nil, err
	}
	var v int64
	if v, err = r.int64(); err != nil {
		return nil, err
	}
	d.ModuleID = ConceptID(v)
	if v, err = r.int64(); err != nil {
		return nil, err
	}
	d.ConceptID = ConceptID(v)
	if d.LanguageCode, err = r.string(); err != nil {
		return nil, err
	}
	if v, err = r.int64(); err != nil {
		return nil, err
	}
	d.TypeID = DescriptionTypeID(v)
	if d.Term, err = r.string(); err != nil {
		return nil, err
	}
	if v, err = r.int64(); err != nil {
		return nil, err
	}
	d.CaseSignificanceID = CaseSignificanceID(v)
	return &d, nil
}

// EncodeRelationship serialises a Relationship to its wire form.
func EncodeRelationship(rel *Relationship) []byte {
	var buf bytes.Buffer
	writeInt64(&buf, int64(rel.ID))
	writeTime(&buf, rel.EffectiveTime)
	writeBool(&buf, rel.Active)
	writeInt64(&buf, int64(rel.ModuleID))
	writeInt64(&buf, int64(rel.SourceID))
	writeInt64(&buf, int64(rel.DestinationID))
	writeInt64(&buf, int64(rel.RelationshipGroup))
	writeInt64(&buf, int64(rel.TypeID))
	writeInt64(&buf, int64(rel.CharacteristicTypeID))
	writeInt64(&buf, int64(rel.ModifierID))
	return buf.Bytes()
}

// DecodeRelationship deserialises a Relationship from its wire form.
func DecodeRelationship(b []byte) (*Relationship, error) {
	r := &byteReader{b: b}
	var rel Relationship
	id, err := r.int64()
	if err != nil {
		return nil, err
	}
	rel.ID = RelationshipID(id)
	if rel.EffectiveTime, err = r.time(); err != nil {
		return nil, err
	}
	if rel.Active, err = r.bool(); err != nil {
		return nil, err
	}
	var v int64
	for _, dst := range []*ConceptID{&rel.ModuleID, &rel.SourceID, &rel.DestinationID} {
		if v, err = r.int64(); err != nil {
			return nil, err
		}
		*dst = ConceptID(v)
	}
	if v, err = r.int64(); err != nil {
		return nil, err
	}
	rel.RelationshipGroup = int(v)
	for _, dst := range []*ConceptID{&rel.TypeID, &rel.CharacteristicTypeID, &rel.ModifierID} {
		if v, err = r.int64(); err != nil {
			return nil, err
		}
		*dst = ConceptID(v)
	}
	return &rel, nil
}

// EncodeConcreteValue serialises a ConcreteValue to its wire form.
func EncodeConcreteValue(v *ConcreteValue) []byte {
	var buf bytes.Buffer
	writeInt64(&buf, int64(v.ID))
	writeTime(&buf, v.EffectiveTime)
	writeBool(&buf, v.Active)
	writeInt64(&buf, int64(v.ModuleID))
	writeInt64(&buf, int64(v.SourceID))
	buf.WriteByte(byte(v.Kind))
	writeString(&buf, v.Value)
	writeInt64(&buf, int64(v.RelationshipGroup))
	writeInt64(&buf, int64(v.TypeID))
	writeInt64(&buf, int64(v.CharacteristicType))
	return buf.Bytes()
}

// DecodeConcreteValue deserialises a ConcreteValue from its wire form.
func DecodeConcreteValue(b []byte) (*ConcreteValue, error) {
	r := &byteReader{b: b}
	var v ConcreteValue
	id, err := r.int64()
	if err != nil {
		return nil, err
	}
	v.ID = RelationshipID(id)
	if v.EffectiveTime, err = r.time(); err != nil {
		return nil, err
	}
	if v.Active, err = r.bool(); err != nil {
		return nil, err
	}
	var n int64
	if n, err = r.int64(); err != nil {
		return nil, err
	}
	v.ModuleID = ConceptID(n)
	if n, err = r.int64(); err != nil {
		return nil, err
	}
	v.SourceID = ConceptID(n)
	tag, err := r.byteTag()
	if err != nil {
		return nil, err
	}
	v.Kind = ConcreteValueKind(tag)
	if v.Value, err = r.string(); err != nil {
		return nil, err
	}
	if n, err = r.int64(); err != nil {
		return nil, err
	}
	v.RelationshipGroup = int(n)
	if n, err = r.int64(); err != nil {
		return nil, err
	}
	v.TypeID = ConceptID(n)
	if n, err = r.int64(); err != nil {
		return nil, err
	}
	v.CharacteristicType = ConceptID(n)
	return &v, nil
}

// EncodeRefsetItem serialises a RefsetItem to its wire form. The header is
// common to every subtype; the 1-byte Kind tag selects which payload
// fields follow. DecodeRefsetItem returns an error for a Kind tag it does
// not recognise.
func EncodeRefsetItem(item *RefsetItem) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(item.Kind))
	writeInt64(&buf, int64(item.ID[0]))
	writeInt64(&buf, int64(item.ID[1]))
	writeTime(&buf, item.EffectiveTime)
	writeBool(&buf, item.Active)
	writeInt64(&buf, int64(item.ModuleID))
	writeInt64(&buf, int64(item.RefsetID))
	writeInt64(&buf, int64(item.ReferencedComponentID))

	switch item.Kind {
	case RefsetSimple:
		// no further payload
	case RefsetLanguage:
		writeInt64(&buf, int64(item.AcceptabilityID))
	case RefsetSimpleMap:
		writeString(&buf, item.MapTarget)
	case RefsetComplexMap, RefsetExtendedMap:
		writeInt64(&buf, int64(item.MapGroup))
		writeInt64(&buf, int64(item.MapPriority))
		writeString(&buf, item.MapRule)
		writeString(&buf, item.MapAdvice)
		writeString(&buf, item.MapTarget)
		writeInt64(&buf, int64(item.CorrelationID))
		writeInt64(&buf, int64(item.MapCategoryID))
	case RefsetAssociation:
		writeInt64(&buf, int64(item.TargetComponentID))
	case RefsetAttributeValue:
		writeInt64(&buf, int64(item.ValueID))
	case RefsetOWLExpression:
		writeString(&buf, item.OWLExpression)
	case RefsetDescriptor:
		writeInt64(&buf, int64(item.AttributeDescriptionID))
		writeInt64(&buf, int64(item.AttributeTypeID))
		writeInt64(&buf, int64(item.AttributeOrder))
	case RefsetModuleDependency:
		writeTime(&buf, item.SourceEffectiveTime)
		writeTime(&buf, item.TargetEffectiveTime)
	case RefsetMRCMDomain:
		writeInt64(&buf, int64(item.Domain))
		writeBool(&buf, item.Grouped)
		writeString(&buf, item.AttributeCardinality)
		writeString(&buf, item.AttributeInGroupCardinality)
		writeInt64(&buf, int64(item.RuleStrengthID))
		writeInt64(&buf, int64(item.ContentTypeID))
	case RefsetMRCMAttributeDomain:
		writeInt64(&buf, int64(item.Domain))
		writeBool(&buf, item.Grouped)
		writeString(&buf, item.AttributeCardinality)
		writeString(&buf, item.AttributeInGroupCardinality)
		writeInt64(&buf, int64(item.RuleStrengthID))
		writeInt64(&buf, int64(item.ContentTypeID))
	case RefsetMRCMAttributeRange:
		writeString(&buf, item.RangeConstraint)
		writeString(&buf, item.AttributeRule)
		writeInt64(&buf, int64(item.RuleStrengthID))
		writeInt64(&buf, int64(item.ContentTypeID))
	case RefsetMRCMModuleScope:
		writeInt64(&buf, int64(item.ContentTypeID))
	}
	return buf.Bytes()
}

// DecodeRefsetItem deserialises a RefsetItem from its wire form.
func DecodeRefsetItem(b []byte) (*RefsetItem, error) {
	r := &byteReader{b: b}
	var item RefsetItem
	tag, err := r.byteTag()
	if err != nil {
		return nil, err
	}
	item.Kind = RefsetItemKind(tag)
	msb, err := r.int64()
	if err != nil {
		return nil, err
	}
	lsb, err := r.int64()
	if err != nil {
		return nil, err
	}
	item.ID = RefsetItemID{uint64(msb), uint64(lsb)}
	if item.EffectiveTime, err = r.time(); err != nil {
		return nil, err
	}
	if item.Active, err = r.bool(); err != nil {
		return nil, err
	}
	var n int64
	if n, err = r.int64(); err != nil {
		return nil, err
	}
	item.ModuleID = ConceptID(n)
	if n, err = r.int64(); err != nil {
		return nil, err
	}
	item.RefsetID = ConceptID(n)
	if n, err = r.int64(); err != nil {
		return nil, err
	}
	item.ReferencedComponentID = ConceptID(n)

	switch item.Kind {
	case RefsetSimple:
	case RefsetLanguage:
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.AcceptabilityID = ConceptID(n)
	case RefsetSimpleMap:
		if item.MapTarget, err = r.string(); err != nil {
			return nil, err
		}
	case RefsetComplexMap, RefsetExtendedMap:
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.MapGroup = int(n)
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.MapPriority = int(n)
		if item.MapRule, err = r.string(); err != nil {
			return nil, err
		}
		if item.MapAdvice, err = r.string(); err != nil {
			return nil, err
		}
		if item.MapTarget, err = r.string(); err != nil {
			return nil, err
		}
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.CorrelationID = ConceptID(n)
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.MapCategoryID = ConceptID(n)
	case RefsetAssociation:
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.TargetComponentID = ConceptID(n)
	case RefsetAttributeValue:
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.ValueID = ConceptID(n)
	case RefsetOWLExpression:
		if item.OWLExpression, err = r.string(); err != nil {
			return nil, err
		}
	case RefsetDescriptor:
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.AttributeDescriptionID = ConceptID(n)
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.AttributeTypeID = ConceptID(n)
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.AttributeOrder = uint(n)
	case RefsetModuleDependency:
		if item.SourceEffectiveTime, err = r.time(); err != nil {
			return nil, err
		}
		if item.TargetEffectiveTime, err = r.time(); err != nil {
			return nil, err
		}
	case RefsetMRCMDomain, RefsetMRCMAttributeDomain:
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.Domain = ConceptID(n)
		if item.Grouped, err = r.bool(); err != nil {
			return nil, err
		}
		if item.AttributeCardinality, err = r.string(); err != nil {
			return nil, err
		}
		if item.AttributeInGroupCardinality, err = r.string(); err != nil {
			return nil, err
		}
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.RuleStrengthID = ConceptID(n)
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.ContentTypeID = ConceptID(n)
	case RefsetMRCMAttributeRange:
		if item.RangeConstraint, err = r.string(); err != nil {
			return nil, err
		}
		if item.AttributeRule, err = r.string(); err != nil {
			return nil, err
		}
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.RuleStrengthID = ConceptID(n)
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.ContentTypeID = ConceptID(n)
	case RefsetMRCMModuleScope:
		if n, err = r.int64(); err != nil {
			return nil, err
		}
		item.ContentTypeID = ConceptID(n)
	default:
		return nil, fmt.Errorf("snomed: unknown refset item kind %d", item.Kind)
	}
	return &item, nil
}
