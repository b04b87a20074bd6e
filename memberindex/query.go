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

package memberindex

import (
	"github.com/blevesearch/bleve"

	"github.com/wardle/snomedq/snomed"
)

// Op enumerates the six comparison operators spec §4.3 requires for both
// time and numeric column predicates.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpLessThan
	OpLessOrEqual
	OpGreaterThan
	OpGreaterOrEqual
)

func f64(v float64) *float64 { return &v }
func bptr(v bool) *bool      { return &v }

func exact(field string, v float64) bleve.Query {
	q := bleve.NewNumericRangeInclusiveQuery(f64(v), f64(v), bptr(true), bptr(true))
	q.SetField(field)
	return q
}

// compare builds the query for one of the six comparison operators against
// a numeric or epoch-millisecond field.
func compare(field string, op Op, v float64) bleve.Query {
	switch op {
	case OpEqual:
		return exact(field, v)
	case OpNotEqual:
		return QNot(exact(field, v))
	case OpLessThan:
		q := bleve.NewNumericRangeInclusiveQuery(nil, f64(v), nil, bptr(false))
		q.SetField(field)
		return q
	case OpLessOrEqual:
		q := bleve.NewNumericRangeInclusiveQuery(nil, f64(v), nil, bptr(true))
		q.SetField(field)
		return q
	case OpGreaterThan:
		q := bleve.NewNumericRangeInclusiveQuery(f64(v), nil, bptr(false), nil)
		q.SetField(field)
		return q
	case OpGreaterOrEqual:
		q := bleve.NewNumericRangeInclusiveQuery(f64(v), nil, bptr(true), nil)
		q.SetField(field)
		return q
	default:
		return bleve.NewMatchNoneQuery()
	}
}

// QRefsetID matches members of reference set r.
func QRefsetID(r snomed.ConceptID) bleve.Query { return exact(FieldRefsetID, float64(r)) }

// QModuleID matches members whose moduleId is m.
func QModuleID(m snomed.ConceptID) bleve.Query { return exact(FieldModuleID, float64(m)) }

// QReferencedComponent matches members referencing component c.
func QReferencedComponent(c snomed.ConceptID) bleve.Query {
	return exact(FieldReferencedComponentID, float64(c))
}

// QTime compares the named epoch-millisecond field against v.
func QTime(field string, op Op, v int64) bleve.Query { return compare(field, op, float64(v)) }

// QNumeric compares the named numeric column against v.
func QNumeric(field string, op Op, v float64) bleve.Query { return compare(field, op, v) }

// QFieldBoolean matches the named boolean column against b.
func QFieldBoolean(field string, b bool) bleve.Query {
	q := bleve.NewTermQuery(activeKeyword(b))
	q.SetField(field)
	return q
}

// QTerm, QWildcard and QPrefix are text predicates against the named
// string column.
func QTerm(field, s string) bleve.Query {
	q := bleve.NewMatchQuery(s)
	q.SetField(field)
	return q
}

func QWildcard(field, s string) bleve.Query {
	q := bleve.NewWildcardQuery(s)
	q.SetField(field)
	return q
}

func QPrefix(field, s string) bleve.Query {
	q := bleve.NewPrefixQuery(s)
	q.SetField(field)
	return q
}

// QAnd, QOr and QNot compose member-index queries directly; unlike
// searchindex's versions they do no pure-negation flattening or match-all
// wrapping.
func QAnd(qs ...bleve.Query) bleve.Query {
	bq := bleve.NewBooleanQuery()
	bq.AddMust(qs...)
	return bq
}

func QOr(qs ...bleve.Query) bleve.Query {
	if len(qs) == 1 {
		return qs[0]
	}
	return bleve.NewDisjunctionQuery(qs...)
}

func QNot(q bleve.Query) bleve.Query {
	bq := bleve.NewBooleanQuery()
	bq.AddMustNot(q)
	return bq
}

// QMatchAll matches every member document.
func QMatchAll() bleve.Query { return bleve.NewMatchAllQuery() }
