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
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/blevesearch/bleve"

	"github.com/wardle/snomedq/memberindex"
	"github.com/wardle/snomedq/searchindex"
	"github.com/wardle/snomedq/snomed"
	"github.com/wardle/snomedq/store"
)

// Compiler holds the compilation context spec §4.4 names: the store and
// the two searchers. Every compilation method takes this triple
// explicitly rather than reaching for ambient state (spec §9's "no global
// mutable state" design note).
type Compiler struct {
	Store        *store.ComponentStore
	Descriptions *searchindex.Index
	Members      *memberindex.Index
}

// compiledExpression is a query object that may or may not have been
// realised to a concrete concept-id set yet — realisation only happens
// when an enclosing construct requires it (dotted expressions, member
// filters, history supplements, the ancestor/parent operator family, or
// composing a constraint operator/memberOf over an already-realised base).
type compiledExpression struct {
	query    bleve.Query
	realized []snomed.ConceptID
}

// AsQuery returns a description-index query equivalent to this expression,
// materialising a QConceptIDs query from realized if the expression was
// already resolved to a concrete set.
func (e *compiledExpression) AsQuery() bleve.Query {
	if e.query != nil {
		return e.query
	}
	return searchindex.QConceptIDs(e.realized)
}

// Compile parses and compiles src, returning the description-index query
// equivalent to the whole expression constraint.
func (c *Compiler) Compile(src string) (bleve.Query, error) {
	ast, err := Parse(src)
	if err != nil {
		return nil, err
	}
	ce, err := c.compileExpressionConstraint(ast)
	if err != nil {
		return nil, err
	}
	return ce.AsQuery(), nil
}

func (c *Compiler) compileExpressionConstraint(node expressionConstraint) (*compiledExpression, error) {
	switch n := node.(type) {
	case *subExpressionConstraint:
		return c.compileSubExpressionConstraint(n)
	case *refinedExpressionConstraint:
		return c.compileRefined(n)
	case *dottedExpressionConstraint:
		return c.compileDotted(n)
	case *compoundExpressionConstraint:
		return c.compileCompound(n)
	default:
		return nil, fmt.Errorf("ecl: unreachable expression constraint type %T", node)
	}
}

// compileSubExpressionConstraint implements spec §4.4's stated composition
// order: the focus concept (or parenthesised expression, or wildcard) is
// resolved first, memberOf is applied to it, the constraint operator wraps
// that result, and filter constraints/history supplement apply last.
func (c *Compiler) compileSubExpressionConstraint(sec *subExpressionConstraint) (*compiledExpression, error) {
	base, err := c.compileBase(sec)
	if err != nil {
		return nil, err
	}
	if sec.memberOf {
		base, err = c.applyMemberOf(base, sec)
		if err != nil {
			return nil, err
		}
	}
	if sec.operator != noConstraintOperator {
		base, err = c.applyConstraintOperator(sec.operator, base, sec)
		if err != nil {
			return nil, err
		}
	}
	return c.applyFilters(sec, base)
}

func (c *Compiler) compileBase(sec *subExpressionConstraint) (*compiledExpression, error) {
	if sec.nested != nil {
		return c.compileExpressionConstraint(sec.nested)
	}
	if sec.focus.wildcard {
		return &compiledExpression{query: searchindex.QMatchAll()}, nil
	}
	return &compiledExpression{query: searchindex.QSelf(sec.focus.conceptID)}, nil
}

func (c *Compiler) applyMemberOf(base *compiledExpression, sec *subExpressionConstraint) (*compiledExpression, error) {
	if sec.nested == nil && sec.focus.wildcard {
		installed, err := c.Store.InstalledReferenceSets()
		if err != nil {
			return nil, err
		}
		var clauses []bleve.Query
		for _, r := range installed {
			clauses = append(clauses, searchindex.QMemberOf(r))
		}
		return &compiledExpression{query: searchindex.QOr(clauses...)}, nil
	}
	if sec.nested == nil && !sec.focus.wildcard {
		return &compiledExpression{query: searchindex.QMemberOf(sec.focus.conceptID)}, nil
	}
	ids, err := c.realizeConceptIDs(base.AsQuery())
	if err != nil {
		return nil, err
	}
	var clauses []bleve.Query
	for _, r := range ids {
		clauses = append(clauses, searchindex.QMemberOf(r))
	}
	return &compiledExpression{query: searchindex.QOr(clauses...)}, nil
}

// applyConstraintOperator handles the ancestor/descendant/child/parent
// family. A literal focus concept with no memberOf uses the fast lazy
// query primitives for the descendant/child family (spec §4.4's direct
// "compiled as" mapping); the ancestor/parent family always materialises
// from the store, as does any operator composed over a memberOf or
// parenthesised base (spec: "memberOf is applied before an enclosing
// constraint operator").
func (c *Compiler) applyConstraintOperator(op constraintOperator, base *compiledExpression, sec *subExpressionConstraint) (*compiledExpression, error) {
	isWildcardBase := !sec.memberOf && sec.nested == nil && sec.focus.wildcard
	isLiteralBase := !sec.memberOf && sec.nested == nil && !sec.focus.wildcard

	if isWildcardBase {
		switch op {
		case opDescendantOrSelfOf:
			return &compiledExpression{query: searchindex.QMatchAll()}, nil
		case opDescendantOf, opChildOf, opChildOrSelfOf:
			return &compiledExpression{query: searchindex.QDescendantOrSelfOf(snomed.SNOMEDCTRootConcept)}, nil
		case opAncestorOf, opAncestorOrSelfOf, opParentOf, opParentOrSelfOf:
			return nil, &UnsupportedError{Construct: "ancestor/parent of the wildcard ('>*' family)"}
		}
	}

	if isLiteralBase {
		c0 := sec.focus.conceptID
		switch op {
		case opDescendantOf:
			return &compiledExpression{query: searchindex.QDescendantOf(c0)}, nil
		case opDescendantOrSelfOf:
			return &compiledExpression{query: searchindex.QDescendantOrSelfOf(c0)}, nil
		case opChildOf:
			return &compiledExpression{query: searchindex.QChildOf(c0)}, nil
		case opChildOrSelfOf:
			return &compiledExpression{query: searchindex.QChildOrSelfOf(c0)}, nil
		default:
			bm, err := c.closureFor(op, c0)
			if err != nil {
				return nil, err
			}
			return &compiledExpression{realized: bitmapToIDs(bm)}, nil
		}
	}

	// General composed case (memberOf or a parenthesised sub-expression
	// feeds the operator): realise the base and union the operator's
	// per-member closure from the store.
	ids, err := c.realizeConceptIDs(base.AsQuery())
	if err != nil {
		return nil, err
	}
	result := roaring64.New()
	for _, id := range ids {
		bm, err := c.closureFor(op, id)
		if err != nil {
			return nil, err
		}
		result.Or(bm)
	}
	return &compiledExpression{realized: bitmapToIDs(result)}, nil
}

// closureFor materialises the ancestor/descendant/child/parent closure of
// id for the given operator, always going through the store (used both for
// the always-materialise ancestor/parent family and for the general
// composed case above).
func (c *Compiler) closureFor(op constraintOperator, id snomed.ConceptID) (*roaring64.Bitmap, error) {
	switch op {
	case opDescendantOf:
		bm, err := c.Store.AllChildren(id)
		if err != nil {
			return nil, err
		}
		bm.Remove(uint64(id))
		return bm, nil
	case opDescendantOrSelfOf:
		return c.Store.AllChildren(id)
	case opChildOf:
		return c.directChildren(id)
	case opChildOrSelfOf:
		bm, err := c.directChildren(id)
		if err != nil {
			return nil, err
		}
		bm.Add(uint64(id))
		return bm, nil
	case opAncestorOf:
		bm, err := c.Store.AllParents(id)
		if err != nil {
			return nil, err
		}
		bm.Remove(uint64(id))
		return bm, nil
	case opAncestorOrSelfOf:
		return c.Store.AllParents(id)
	case opParentOf:
		return c.directParents(id)
	case opParentOrSelfOf:
		bm, err := c.directParents(id)
		if err != nil {
			return nil, err
		}
		bm.Add(uint64(id))
		return bm, nil
	default:
		return nil, fmt.Errorf("ecl: unreachable constraint operator %d", op)
	}
}

func (c *Compiler) directChildren(id snomed.ConceptID) (*roaring64.Bitmap, error) {
	tuples, err := c.Store.RawChildRelationships(id, snomed.IsAConcept)
	if err != nil {
		return nil, err
	}
	bm := roaring64.New()
	for _, t := range tuples {
		bm.Add(uint64(t.Source))
	}
	return bm, nil
}

func (c *Compiler) directParents(id snomed.ConceptID) (*roaring64.Bitmap, error) {
	ids, err := c.Store.ProximalParentIds(id, snomed.IsAConcept)
	if err != nil {
		return nil, err
	}
	bm := roaring64.New()
	for _, p := range ids {
		bm.Add(uint64(p))
	}
	return bm, nil
}

func (c *Compiler) compileRefined(n *refinedExpressionConstraint) (*compiledExpression, error) {
	base, err := c.compileSubExpressionConstraint(n.base)
	if err != nil {
		return nil, err
	}
	ref, err := c.compileRefinement(n.refinement)
	if err != nil {
		return nil, err
	}
	return &compiledExpression{query: searchindex.QAnd(base.AsQuery(), ref)}, nil
}

func (c *Compiler) compileCompound(n *compoundExpressionConstraint) (*compiledExpression, error) {
	var operandQueries []bleve.Query
	for _, operand := range n.operands {
		ce, err := c.compileExpressionConstraint(operand)
		if err != nil {
			return nil, err
		}
		operandQueries = append(operandQueries, ce.AsQuery())
	}
	switch n.kind {
	case compoundConjunction:
		return &compiledExpression{query: searchindex.QAnd(operandQueries...)}, nil
	case compoundDisjunction:
		return &compiledExpression{query: searchindex.QOr(operandQueries...)}, nil
	case compoundExclusion:
		if len(operandQueries) != 2 {
			return nil, &SemanticError{Message: "MINUS requires exactly two operands"}
		}
		return &compiledExpression{query: searchindex.QAnd(operandQueries[0], searchindex.QNot(operandQueries[1]))}, nil
	default:
		return nil, fmt.Errorf("ecl: unreachable compound kind %d", n.kind)
	}
}

// compileDotted implements spec §4.4's dotted expression: compute
// concepts(A), then for each attribute in the chain gather the set of
// destinations reached via relationships whose type is any
// descendant-or-self of the dotted attribute, applied iteratively
// left-to-right for chained dots.
func (c *Compiler) compileDotted(n *dottedExpressionConstraint) (*compiledExpression, error) {
	base, err := c.compileSubExpressionConstraint(n.base)
	if err != nil {
		return nil, err
	}
	sources, err := c.realizeConceptIDs(base.AsQuery())
	if err != nil {
		return nil, err
	}
	for _, attr := range n.attrs {
		if attr.wildcard {
			return nil, &UnsupportedError{Construct: "wildcard dotted attribute"}
		}
		closure, err := c.Store.AllChildren(attr.conceptID)
		if err != nil {
			return nil, err
		}
		sources, err = c.dottedJoin(sources, bitmapToIDs(closure))
		if err != nil {
			return nil, err
		}
	}
	return &compiledExpression{realized: sources}, nil
}

// dottedJoin is the raw parent-relationship-index join spec §4.4 and the
// reverse-flag attribute refinement (refinement.go) both use: for each
// source concept, gather the destinations of every relationship whose
// type is in types.
func (c *Compiler) dottedJoin(sources []snomed.ConceptID, types []snomed.ConceptID) ([]snomed.ConceptID, error) {
	result := roaring64.New()
	for _, s := range sources {
		parents, err := c.Store.ParentRelationships(s)
		if err != nil {
			return nil, err
		}
		for _, t := range types {
			if bm, ok := parents[t]; ok {
				result.Or(bm)
			}
		}
	}
	return bitmapToIDs(result), nil
}

func (c *Compiler) realizeExpression(node expressionConstraint) ([]snomed.ConceptID, error) {
	ce, err := c.compileExpressionConstraint(node)
	if err != nil {
		return nil, err
	}
	return c.realizeConceptIDs(ce.AsQuery())
}

// realizeConceptIDs walks every match of q via the description index's
// stream-all discipline (spec §4.2/§5's collector discipline — no bounded
// top-K collector for ECL realisation) and returns the deduplicated set of
// concept ids.
func (c *Compiler) realizeConceptIDs(q bleve.Query) ([]snomed.ConceptID, error) {
	seen := make(map[snomed.ConceptID]bool)
	var result []snomed.ConceptID
	err := searchindex.StreamAll(c.Descriptions, q, func(h searchindex.Hit) error {
		if !seen[h.ConceptID] {
			seen[h.ConceptID] = true
			result = append(result, h.ConceptID)
		}
		return nil
	})
	return result, err
}

func bitmapToIDs(bm *roaring64.Bitmap) []snomed.ConceptID {
	ids := make([]snomed.ConceptID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, snomed.ConceptID(it.Next()))
	}
	return ids
}
