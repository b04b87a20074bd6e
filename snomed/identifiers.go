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
	"fmt"
	"strconv"

	"github.com/wardle/snomedq/verhoeff"
)

// Identifier (SCTID) is a checksummed (Verhoeff) globally unique persistent identifier.
// See https://confluence.ihtsdotools.org/display/DOCTIG/3.1.4.2.+Component+features+-+Identifiers
// The SCTID data type is a 64-bit integer allocated in accordance with a set of rules that
// support separate partitions for particular types of component and namespaces that
// distinguish between different issuing organizations.
//
// A valid identifier can be represented either as a uint64 or an int64. See
// https://confluence.ihtsdotools.org/display/DOCRELFMT/6.3+SCTID+Constraints
type Identifier int64

// ConceptID is the identifier of a concept component.
type ConceptID int64

// DescriptionID is the identifier of a description component.
type DescriptionID int64

// RelationshipID is the identifier of a relationship component.
type RelationshipID int64

// ParseIdentifier converts a string into an identifier.
func ParseIdentifier(s string) (Identifier, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Identifier(id), nil
}

// ParseAndValidate converts a string into an identifier and validates it.
func ParseAndValidate(s string) (Identifier, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	id2 := Identifier(id)
	if !id2.IsValid() {
		return 0, fmt.Errorf("invalid identifier '%s'", s)
	}
	return id2, nil
}

// ParseConceptID converts a string into a validated concept identifier.
func ParseConceptID(s string) (ConceptID, error) {
	id, err := ParseAndValidate(s)
	if err != nil {
		return 0, err
	}
	if !id.IsConcept() {
		return 0, fmt.Errorf("identifier '%s' is not a concept identifier", s)
	}
	return ConceptID(id), nil
}

// ParseDescriptionID converts a string into a validated description identifier.
func ParseDescriptionID(s string) (DescriptionID, error) {
	id, err := ParseAndValidate(s)
	if err != nil {
		return 0, err
	}
	if !id.IsDescription() {
		return 0, fmt.Errorf("identifier '%s' is not a description identifier", s)
	}
	return DescriptionID(id), nil
}

// ParseRelationshipID converts a string into a validated relationship identifier.
func ParseRelationshipID(s string) (RelationshipID, error) {
	id, err := ParseAndValidate(s)
	if err != nil {
		return 0, err
	}
	if !id.IsRelationship() {
		return 0, fmt.Errorf("identifier '%s' is not a relationship identifier", s)
	}
	return RelationshipID(id), nil
}

// Integer is a convenience method to convert to integer.
func (id Identifier) Integer() int64 { return int64(id) }

// String returns a string representation of this identifier.
func (id Identifier) String() string { return strconv.FormatInt(int64(id), 10) }

// IsConcept will return true if this identifier refers to a concept.
func (id Identifier) IsConcept() bool {
	pid := id.partitionIdentifier()
	return pid == "00" || pid == "10"
}

// IsDescription will return true if this identifier refers to a description.
func (id Identifier) IsDescription() bool {
	pid := id.partitionIdentifier()
	return pid == "01" || pid == "11"
}

// IsRelationship will return true if this identifier refers to a relationship.
func (id Identifier) IsRelationship() bool {
	pid := id.partitionIdentifier()
	return pid == "02" || pid == "12"
}

// IsValid will return true if this is a valid SNOMED CT identifier.
func (id Identifier) IsValid() bool {
	return verhoeff.Validate(int64(id))
}

// partitionIdentifier returns the penultimate two digits, which distinguish
// component type and namespace usage.
// 0123456789
// xxxxxxxppc
func (id Identifier) partitionIdentifier() string {
	s := strconv.FormatInt(int64(id), 10)
	l := len(s)
	if l < 3 {
		return s
	}
	return s[l-3 : l-1]
}

func (id ConceptID) String() string      { return Identifier(id).String() }
func (id ConceptID) IsValid() bool       { return Identifier(id).IsValid() && Identifier(id).IsConcept() }
func (id DescriptionID) String() string  { return Identifier(id).String() }
func (id DescriptionID) IsValid() bool   { return Identifier(id).IsValid() && Identifier(id).IsDescription() }
func (id RelationshipID) String() string { return Identifier(id).String() }
func (id RelationshipID) IsValid() bool {
	return Identifier(id).IsValid() && Identifier(id).IsRelationship()
}
