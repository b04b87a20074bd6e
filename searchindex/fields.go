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

// Package searchindex is the description index of spec §4.2: a bleve/scorch
// index with one document per (description, concept) pair, baking the
// transitive-closure graph into numeric point fields so that ECL attribute
// queries become set-membership lookups rather than run-time graph walks.
package searchindex

import (
	"strconv"

	"github.com/wardle/snomedq/snomed"
)

// Fixed field names, shared between build.go (writers) and query.go (readers).
const (
	fieldTerm               = "term"
	fieldLengthBoost        = "length-boost"
	fieldModuleID           = "module-id"
	fieldConceptActive      = "concept-active"
	fieldDescriptionActive  = "description-active"
	fieldTypeID             = "type-id"
	fieldDescriptionID      = "description-id"
	fieldConceptID          = "concept-id"
	fieldPreferredTerm      = "preferred-term"
	fieldPreferredIn        = "preferred-in"
	fieldAcceptableIn       = "acceptable-in"
	fieldConceptRefsets     = "concept-refsets"
	fieldDescriptionRefsets = "description-refsets"
)

// strField is the transitive-closure field for attribute type t: one point
// per value in allParents(destination), for every destination of t.
func strField(t snomed.ConceptID) string { return "str" + strconv.FormatInt(int64(t), 10) }

// dField is the direct-parent field for attribute type t.
func dField(t snomed.ConceptID) string { return "d" + strconv.FormatInt(int64(t), 10) }

// cField is the direct attribute-value count field for attribute type t.
func cField(t snomed.ConceptID) string { return "c" + strconv.FormatInt(int64(t), 10) }

// vField is the concrete-value field for attribute type t.
func vField(t snomed.ConceptID) string { return "v" + strconv.FormatInt(int64(t), 10) }

const (
	keywordTrue  = "true"
	keywordFalse = "false"
)

func activeKeyword(active bool) string {
	if active {
		return keywordTrue
	}
	return keywordFalse
}
