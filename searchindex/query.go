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

package searchindex

import (
	"math"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search/query"

	"github.com/wardle/snomedq/snomed"
)

// ConcreteOp enumerates the comparison operators supported by QConcrete.
type ConcreteOp int

// Supported concrete-value comparison operators (spec §4.2's q-concrete<op>).
const (
	OpEqual ConcreteOp = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
)

// Acceptability distinguishes which of the two per-language facet fields an
// acceptability query targets.
type Acceptability int

// The two acceptability facets a description may carry per language refset.
const (
	Preferred Acceptability = iota
	Acceptable
)

func f64(v float64) *float64 { return &v }
func bptr(v bool) *bool      { return &v }

// exact builds an inclusive [v, v] numeric range query on field.
func exact(field string, v float64) bleve.Query {
	q := bleve.NewNumericRangeInclusiveQuery(f64(v), f64(v), bptr(true), bptr(true))
	q.SetField(field)
	return q
}

func exactSet(field string, values []float64) bleve.Query {
	if len(values) == 0 {
		return QMatchNone()
	}
	if len(values) == 1 {
		return exact(field, values[0])
	}
	d := bleve.NewDisjunctionQuery()
	for _, v := range values {
		d.AddQuery(exact(field, v))
	}
	return d
}

func conceptIDsToFloats(ids []snomed.ConceptID) []float64 {
	out := make([]float64, len(ids))
	for i, id := range ids {
		out[i] = float64(id)
	}
	return out
}

// --- §4.2 query primitives --------------------------------------------------

// QSelf matches the document(s) belonging to concept c.
func QSelf(c snomed.ConceptID) bleve.Query { return exact(fieldConceptID, float64(c)) }

// QConceptIDs matches every document whose concept-id is in S; used both
// directly and as the realisation target for ancestorOf/parentOf/memberOf(*)
// primitives, which materialise S from the store before calling this.
func QConceptIDs(s []snomed.ConceptID) bleve.Query {
	return exactSet(fieldConceptID, conceptIDsToFloats(s))
}

// QDescendantOf matches concepts in the transitive closure below c (strict).
func QDescendantOf(c snomed.ConceptID) bleve.Query {
	return exact(strField(snomed.IsAConcept), float64(c))
}

// QDescendantOrSelfOf is QSelf(c) OR QDescendantOf(c).
func QDescendantOrSelfOf(c snomed.ConceptID) bleve.Query {
	return QOr(QSelf(c), QDescendantOf(c))
}

// QChildOf matches the direct children of c.
func QChildOf(c snomed.ConceptID) bleve.Query {
	return exact(dField(snomed.IsAConcept), float64(c))
}

// QChildOrSelfOf is QSelf(c) OR QChildOf(c).
func QChildOrSelfOf(c snomed.ConceptID) bleve.Query {
	return QOr(QSelf(c), QChildOf(c))
}

// QMemberOf matches concepts referenced by reference set r.
func QMemberOf(r snomed.ConceptID) bleve.Query { return exact(fieldConceptRefsets, float64(r)) }

// QDescriptionMemberOf matches descriptions referenced by reference set r.
func QDescriptionMemberOf(r snomed.ConceptID) bleve.Query {
	return exact(fieldDescriptionRefsets, float64(r))
}

// QAttributeDescendantOrSelfOf matches concepts having an attribute of type t
// whose value is v or a descendant of v (uses the expanded closure field).
func QAttributeDescendantOrSelfOf(t, v snomed.ConceptID) bleve.Query {
	return exact(strField(t), float64(v))
}

// QAttributeExactlyEqual matches concepts with a direct attribute of type t
// equal to exactly v.
func QAttributeExactlyEqual(t, v snomed.ConceptID) bleve.Query {
	return exact(dField(t), float64(v))
}

// QAttributeInSet matches concepts with a direct attribute of type t whose
// value is any member of S.
func QAttributeInSet(t snomed.ConceptID, s []snomed.ConceptID) bleve.Query {
	return exactSet(dField(t), conceptIDsToFloats(s))
}

// QAttributeCount matches concepts having between lo and hi (inclusive)
// direct attributes of type t. hi == math.Inf(1) encodes an unbounded upper
// end ([lo..∞]); lo == hi == 0 encodes "no attribute of this type present",
// which the count field itself cannot represent directly (docs without the
// attribute simply never carry a c<t> field) so it is compiled as the
// negation of "has at least one". lo > hi can never match.
func QAttributeCount(t snomed.ConceptID, lo, hi float64) bleve.Query {
	if lo > hi {
		return QMatchNone()
	}
	if lo <= 0 && math.IsInf(hi, 1) {
		return QMatchAll()
	}
	if lo == 0 && hi == 0 {
		return QNot(hasAttribute(t))
	}
	field := cField(t)
	if lo == 0 {
		// [0..hi], hi finite: absent OR present-with-count<=hi.
		return QOr(QNot(hasAttribute(t)), boundedCount(field, 1, hi))
	}
	if math.IsInf(hi, 1) {
		q := bleve.NewNumericRangeInclusiveQuery(f64(lo), nil, bptr(true), nil)
		q.SetField(field)
		return q
	}
	return boundedCount(field, lo, hi)
}

func boundedCount(field string, lo, hi float64) bleve.Query {
	q := bleve.NewNumericRangeInclusiveQuery(f64(lo), f64(hi), bptr(true), bptr(true))
	q.SetField(field)
	return q
}

func hasAttribute(t snomed.ConceptID) bleve.Query {
	field := cField(t)
	q := bleve.NewNumericRangeInclusiveQuery(f64(1), nil, bptr(true), nil)
	q.SetField(field)
	return q
}

// QConcrete compiles a numeric concrete-value comparison against field v<t>.
func QConcrete(t snomed.ConceptID, op ConcreteOp, n float64) bleve.Query {
	field := vField(t)
	switch op {
	case OpEqual:
		return exact(field, n)
	case OpNotEqual:
		return QNot(exact(field, n))
	case OpGreaterThan:
		q := bleve.NewNumericRangeInclusiveQuery(f64(n), nil, bptr(false), nil)
		q.SetField(field)
		return q
	case OpGreaterOrEqual:
		q := bleve.NewNumericRangeInclusiveQuery(f64(n), nil, bptr(true), nil)
		q.SetField(field)
		return q
	case OpLessThan:
		q := bleve.NewNumericRangeInclusiveQuery(nil, f64(n), nil, bptr(false))
		q.SetField(field)
		return q
	case OpLessOrEqual:
		q := bleve.NewNumericRangeInclusiveQuery(nil, f64(n), nil, bptr(true))
		q.SetField(field)
		return q
	default:
		return QMatchNone()
	}
}

// QTerm is a tokenised match query against the term field.
func QTerm(s string) bleve.Query {
	q := bleve.NewMatchQuery(s)
	q.SetField(fieldTerm)
	return q
}

// QWildcard is a wildcard query against the term field.
func QWildcard(s string) bleve.Query {
	q := bleve.NewWildcardQuery(s)
	q.SetField(fieldTerm)
	return q
}

// QPrefix is a prefix query against the term field.
func QPrefix(s string) bleve.Query {
	q := bleve.NewPrefixQuery(s)
	q.SetField(fieldTerm)
	return q
}

// QFuzzy is an edit-distance query against the term field.
func QFuzzy(s string, fuzziness int) bleve.Query {
	q := bleve.NewFuzzyQuery(s)
	q.SetField(fieldTerm)
	q.SetFuzziness(fuzziness)
	return q
}

// QType matches a single description type.
func QType(id snomed.ConceptID) bleve.Query { return exact(fieldTypeID, float64(id)) }

// QTypeAny matches any of a set of description types.
func QTypeAny(s []snomed.ConceptID) bleve.Query {
	return exactSet(fieldTypeID, conceptIDsToFloats(s))
}

// QAcceptability matches descriptions preferred or acceptable in refset r.
func QAcceptability(kind Acceptability, r snomed.ConceptID) bleve.Query {
	if kind == Preferred {
		return exact(fieldPreferredIn, float64(r))
	}
	return exact(fieldAcceptableIn, float64(r))
}

// QConceptActive / QDescriptionActive filter on the active keyword facets.
func QConceptActive(active bool) bleve.Query {
	q := bleve.NewTermQuery(activeKeyword(active))
	q.SetField(fieldConceptActive)
	return q
}

func QDescriptionActive(active bool) bleve.Query {
	q := bleve.NewTermQuery(activeKeyword(active))
	q.SetField(fieldDescriptionActive)
	return q
}

// QMatchAll matches every document.
func QMatchAll() bleve.Query { return bleve.NewMatchAllQuery() }

// QMatchNone matches no document.
func QMatchNone() bleve.Query { return bleve.NewMatchNoneQuery() }

// --- composition -----------------------------------------------------------

// isPureNegation reports whether q is a boolean query consisting solely of a
// MustNot clause (no Must, no Should) — such a query never matches anything
// standing alone, so QOr/QAnd treat it specially per spec §4.2's
// composition rules.
func isPureNegation(q bleve.Query) (bleve.Query, bool) {
	bq, ok := q.(*query.BooleanQuery)
	if !ok || bq.MustNot == nil {
		return nil, false
	}
	hasMust := bq.Must != nil && len(bq.Must.Queries) > 0
	hasShould := bq.Should != nil && len(bq.Should.Queries) > 0
	if hasMust || hasShould {
		return nil, false
	}
	return bq.MustNot, true
}

// QAnd builds a conjunction, flattening any operand that is a pure negation
// into the resulting boolean query's own MustNot clause.
func QAnd(qs ...bleve.Query) bleve.Query {
	var musts []bleve.Query
	var mustNots []bleve.Query
	for _, q := range qs {
		if neg, ok := isPureNegation(q); ok {
			mustNots = append(mustNots, neg)
			continue
		}
		musts = append(musts, q)
	}
	if len(musts) == 0 && len(mustNots) == 0 {
		return QMatchAll()
	}
	bq := bleve.NewBooleanQuery()
	if len(musts) > 0 {
		bq.AddMust(musts...)
	}
	if len(mustNots) > 0 {
		bq.AddMustNot(mustNots...)
	}
	return bq
}

// QOr builds a disjunction. A pure-negation operand is rewritten with an
// implicit match-all prefix so the negation is meaningful on its own.
func QOr(qs ...bleve.Query) bleve.Query {
	var clauses []bleve.Query
	for _, q := range qs {
		if neg, ok := isPureNegation(q); ok {
			wrapped := bleve.NewBooleanQuery()
			wrapped.AddMust(QMatchAll())
			wrapped.AddMustNot(neg)
			clauses = append(clauses, wrapped)
			continue
		}
		clauses = append(clauses, q)
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return bleve.NewDisjunctionQuery(clauses...)
}

// QNot negates q, returning a pure-negation boolean query (see isPureNegation).
func QNot(q bleve.Query) bleve.Query {
	bq := bleve.NewBooleanQuery()
	bq.AddMustNot(q)
	return bq
}

// RewriteQuery splits a boolean query into its inclusion and exclusion
// parts, converting the exclusion's MustNot clauses into a MUST query — the
// primitive ECL attribute-refinement compilation uses to realise inclusions
// and exclusions as separate concept-id sets (spec §4.2).
func RewriteQuery(q bleve.Query) (incl, excl bleve.Query) {
	bq, ok := q.(*query.BooleanQuery)
	if !ok {
		return q, QMatchNone()
	}
	var parts []bleve.Query
	if bq.Must != nil && len(bq.Must.Queries) > 0 {
		parts = append(parts, bq.Must)
	}
	if bq.Should != nil && len(bq.Should.Queries) > 0 {
		parts = append(parts, bq.Should)
	}
	switch len(parts) {
	case 0:
		incl = QMatchAll()
	case 1:
		incl = parts[0]
	default:
		incl = bleve.NewConjunctionQuery(parts...)
	}
	if bq.MustNot != nil && len(bq.MustNot.Queries) > 0 {
		excl = bq.MustNot
	} else {
		excl = QMatchNone()
	}
	return incl, excl
}
