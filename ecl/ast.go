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

import "github.com/wardle/snomedq/snomed"

// expressionConstraint is the AST node for any production matching
// expressionConstraint in the grammar. Node type names below mirror the
// teacher's own visitor method names (VisitSubexpressionconstraint,
// VisitEclattributeset, VisitConstraintoperator, …), completing in a
// hand-rolled recursive-descent shape the grammar the teacher's own
// (never filled in) v2.0 attribute/cardinality visitors were stubbed for.
type expressionConstraint interface {
	eclNode()
}

// constraintOperator enumerates the eight ancestor/descendant/child/parent
// family operators of spec §4.4's construct table, including the `!`
// self-exclusive variants the teacher's v1-era grammar never had.
type constraintOperator int

const (
	noConstraintOperator constraintOperator = iota
	opDescendantOf                          // <
	opDescendantOrSelfOf                    // <<
	opChildOf                               // <!
	opChildOrSelfOf                         // <<!
	opAncestorOf                            // >
	opAncestorOrSelfOf                      // >>
	opParentOf                              // >!
	opParentOrSelfOf                        // >>!
)

// eclFocusConcept is a conceptId reference (with an optional ignored
// display term) or the wildcard `*`.
type eclFocusConcept struct {
	conceptID snomed.ConceptID
	wildcard  bool
}

// subExpressionConstraint = [constraintOperator] [memberOf] (eclFocusConcept | "(" expressionConstraint ")")
// plus the filter constraints and history supplement that attach to it
// per spec §4.4's stated application order.
type subExpressionConstraint struct {
	operator   constraintOperator
	memberOf   bool
	focus      *eclFocusConcept
	nested     expressionConstraint // set instead of focus when parenthesised
	filters    []filterConstraint
	history    *historySupplement
}

func (*subExpressionConstraint) eclNode() {}

// refinedExpressionConstraint = subExpressionConstraint ":" eclRefinement
type refinedExpressionConstraint struct {
	base       *subExpressionConstraint
	refinement eclRefinement
}

func (*refinedExpressionConstraint) eclNode() {}

// dottedExpressionConstraint = subExpressionConstraint 1*("." eclAttributeName)
type dottedExpressionConstraint struct {
	base  *subExpressionConstraint
	attrs []*eclFocusConcept
}

func (*dottedExpressionConstraint) eclNode() {}

type compoundKind int

const (
	compoundConjunction compoundKind = iota
	compoundDisjunction
	compoundExclusion
)

// compoundExpressionConstraint = subExpressionConstraint 1*(AND|OR|MINUS subExpressionConstraint)
// MINUS is binary (exactly two operands); AND/OR chain left-to-right.
type compoundExpressionConstraint struct {
	kind     compoundKind
	operands []expressionConstraint
}

func (*compoundExpressionConstraint) eclNode() {}

// --- refinements -------------------------------------------------------

type refinementKind int

const (
	refinementAttribute refinementKind = iota
	refinementConjunction
	refinementDisjunction
)

// eclRefinement collapses the grammar's two-tier eclRefinement/
// subRefinement/eclAttributeSet/subAttributeSet production nest (spelled
// out across VisitEclrefinement, VisitConjunctionrefinementset,
// VisitEclattributeset, VisitSubattributeset, …) into one recursive boolean
// tree: both tiers compose attributes with AND/OR in the same shape, so a
// single kind+children representation captures both without duplicating
// the same walk twice.
type eclRefinement struct {
	kind     refinementKind
	attr     *eclAttribute   // set when kind == refinementAttribute
	children []eclRefinement // set otherwise
}

// comparisonOperator covers both the plain expression operators (=, !=)
// and the six numeric operators; the parser picks the right subset based
// on what follows the attribute name.
type comparisonOperator int

const (
	cmpEquals comparisonOperator = iota
	cmpNotEquals
	cmpLessThan
	cmpLessOrEqual
	cmpGreaterThan
	cmpGreaterOrEqual
)

// cardinality is the `[min..max]` prefix of an attribute, max == -1
// encoding the unbounded `*` upper bound.
type cardinality struct {
	min int64
	max int64 // -1 means unbounded
}

var defaultCardinality = cardinality{min: 0, max: -1}

// valueKind distinguishes what follows the comparison operator on the
// right-hand side of an attribute.
type valueKind int

const (
	valueExpression valueKind = iota // a nested expressionConstraint
	valueNumeric
	valueString // unsupported per spec §4.4 step 8
)

// eclAttribute = [cardinality] [reverseFlag] eclAttributeName comparisonOperator value
//
// eclAttributeName has the same shape as a subExpressionConstraint (an
// optional constraint operator over a focus concept or parenthesised
// expression), so a single attribute clause can name a whole family of
// attribute types, e.g. ": <<47429007 = <<267038008".
type eclAttribute struct {
	cardinality cardinality
	reverse     bool
	name        *subExpressionConstraint
	op          comparisonOperator
	valueKind   valueKind
	valueExpr   expressionConstraint
	valueNum    float64
	valueStr    string
}

// --- filter constraints --------------------------------------------------

type filterConstraintKind int

const (
	filterDescription filterConstraintKind = iota
	filterConcept
	filterMember
)

// filterConstraint is a {{ d: ... }} / {{ c: ... }} / {{ m: ... }} clause.
type filterConstraint struct {
	kind        filterConstraintKind
	description []descriptionFilter
	concept     []conceptFilter
	member      []memberFilter
}

type descriptionFilterKind int

const (
	descFilterTerm descriptionFilterKind = iota
	descFilterType
	descFilterDialect
	descFilterActive
)

type termFilterMode int

const (
	termMatch termFilterMode = iota
	termWild
)

// descriptionFilter is a single clause of a {{ d: ... }} filter
// constraint; only the fields relevant to Kind are populated.
type descriptionFilter struct {
	Kind           descriptionFilterKind
	Negated        bool
	TermMode       termFilterMode
	TermValue      string
	TypeTokens     []string // "syn", "fsn", "def"
	DialectRefsets []snomed.ConceptID
	DialectAliases []string // parallel to DialectRefsets; an entry is "" when the corresponding refset was given numerically
	Acceptability  string   // "", "accept", "prefer"
	Active         bool
}

type conceptFilter struct {
	Active  bool
	Negated bool
}

type memberFilterKind int

const (
	memberFilterField memberFilterKind = iota
)

type memberFilter struct {
	Field string
	Op    comparisonOperator
	Value string
	IsNum bool
	Num   float64
}

// --- history supplement --------------------------------------------------

type historyProfile int

const (
	historyNone historyProfile = iota
	historyMin
	historyMod
	historyMax
	historyExplicit
)

type historySupplement struct {
	profile  historyProfile
	explicit expressionConstraint // set when profile == historyExplicit
}
