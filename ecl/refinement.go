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
	"math"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search/query"

	"github.com/wardle/snomedq/searchindex"
	"github.com/wardle/snomedq/snomed"
)

// --- parsing ---------------------------------------------------------------

// parseEclRefinement parses the collapsed eclRefinement/subRefinement/
// eclAttributeSet/subAttributeSet production nest (see ast.go) into a
// single AND/OR tree.
func (p *parser) parseEclRefinement() (eclRefinement, error) {
	left, err := p.parseRefinementTerm()
	if err != nil {
		return eclRefinement{}, err
	}
	kind := refinementAttribute
	haveKind := false
	children := []eclRefinement{left}
	for {
		switch {
		case p.peek().kind == tokComma || p.keyword() == "AND":
			if haveKind && kind != refinementConjunction {
				return eclRefinement{}, p.errorf("mixing AND/OR refinements requires parentheses")
			}
			kind, haveKind = refinementConjunction, true
			p.advance()
		case p.keyword() == "OR":
			if haveKind && kind != refinementDisjunction {
				return eclRefinement{}, p.errorf("mixing AND/OR refinements requires parentheses")
			}
			kind, haveKind = refinementDisjunction, true
			p.advance()
		default:
			if !haveKind {
				return left, nil
			}
			return eclRefinement{kind: kind, children: children}, nil
		}
		next, err := p.parseRefinementTerm()
		if err != nil {
			return eclRefinement{}, err
		}
		children = append(children, next)
	}
}

func (p *parser) parseRefinementTerm() (eclRefinement, error) {
	if p.peek().kind == tokLParen {
		p.advance()
		inner, err := p.parseEclRefinement()
		if err != nil {
			return eclRefinement{}, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return eclRefinement{}, err
		}
		return inner, nil
	}
	if p.peek().kind == tokLBrace {
		return eclRefinement{}, &UnsupportedError{Construct: "attribute groups"}
	}
	attr, err := p.parseEclAttribute()
	if err != nil {
		return eclRefinement{}, err
	}
	return eclRefinement{kind: refinementAttribute, attr: attr}, nil
}

func (p *parser) parseEclAttribute() (*eclAttribute, error) {
	attr := &eclAttribute{cardinality: defaultCardinality}
	if p.peek().kind == tokLBracket {
		card, err := p.parseCardinality()
		if err != nil {
			return nil, err
		}
		attr.cardinality = card
	}
	if p.keyword() == "R" {
		p.advance()
		attr.reverse = true
	}
	name, err := p.parseSubExpressionConstraint()
	if err != nil {
		return nil, err
	}
	attr.name = name
	switch p.peek().kind {
	case tokEquals:
		p.advance()
		attr.op = cmpEquals
	case tokNotEquals:
		p.advance()
		attr.op = cmpNotEquals
	case tokLess:
		p.advance()
		attr.op = cmpLessThan
	case tokLessOrEqual:
		p.advance()
		attr.op = cmpLessOrEqual
	case tokGreater:
		p.advance()
		attr.op = cmpGreaterThan
	case tokGreaterOrEqual:
		p.advance()
		attr.op = cmpGreaterOrEqual
	default:
		return nil, p.errorf("expected a comparison operator, got %q", p.peek().text)
	}
	if attr.op != cmpEquals && attr.op != cmpNotEquals {
		n, err := p.expect(tokNumber, "a numeric value")
		if err != nil {
			return nil, err
		}
		v, err := parseFloat(n.text)
		if err != nil {
			return nil, err
		}
		attr.valueKind = valueNumeric
		attr.valueNum = v
		return attr, nil
	}
	switch p.peek().kind {
	case tokNumber:
		t := p.advance()
		v, err := parseFloat(t.text)
		if err != nil {
			return nil, err
		}
		attr.valueKind = valueNumeric
		attr.valueNum = v
	case tokString:
		t := p.advance()
		attr.valueKind = valueString
		attr.valueStr = t.text
	case tokIdent:
		t := p.advance()
		attr.valueKind = valueString
		attr.valueStr = t.text
	default:
		expr, err := p.parseExpressionConstraint()
		if err != nil {
			return nil, err
		}
		attr.valueKind = valueExpression
		attr.valueExpr = expr
	}
	return attr, nil
}

func (p *parser) parseCardinality() (cardinality, error) {
	if _, err := p.expect(tokLBracket, "'['"); err != nil {
		return cardinality{}, err
	}
	minTok, err := p.expect(tokSctID, "a cardinality minimum")
	if err != nil {
		return cardinality{}, err
	}
	min, err := parseInt(minTok.text)
	if err != nil {
		return cardinality{}, err
	}
	if _, err := p.expect(tokDot, "'.'"); err != nil {
		return cardinality{}, err
	}
	if _, err := p.expect(tokDot, "'.'"); err != nil {
		return cardinality{}, err
	}
	max := int64(-1)
	if p.peek().kind == tokWildcard {
		p.advance()
	} else {
		maxTok, err := p.expect(tokSctID, "a cardinality maximum")
		if err != nil {
			return cardinality{}, err
		}
		max, err = parseInt(maxTok.text)
		if err != nil {
			return cardinality{}, err
		}
	}
	if _, err := p.expect(tokRBracket, "']'"); err != nil {
		return cardinality{}, err
	}
	return cardinality{min: min, max: max}, nil
}

// --- compilation -------------------------------------------------------

func (c *Compiler) compileRefinement(ref eclRefinement) (bleve.Query, error) {
	switch ref.kind {
	case refinementAttribute:
		return c.compileAttribute(ref.attr)
	case refinementConjunction:
		qs, err := c.compileRefinementChildren(ref.children)
		if err != nil {
			return nil, err
		}
		return searchindex.QAnd(qs...), nil
	case refinementDisjunction:
		qs, err := c.compileRefinementChildren(ref.children)
		if err != nil {
			return nil, err
		}
		return searchindex.QOr(qs...), nil
	default:
		return nil, fmt.Errorf("ecl: unreachable refinement kind %d", ref.kind)
	}
}

func (c *Compiler) compileRefinementChildren(children []eclRefinement) ([]bleve.Query, error) {
	qs := make([]bleve.Query, 0, len(children))
	for _, ch := range children {
		q, err := c.compileRefinement(ch)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// isBareWildcard reports whether sec is nothing more than the wildcard
// focus concept `*`, i.e. it carries no constraint operator, memberOf or
// parenthesised nesting that would narrow it to an actual attribute set.
func isBareWildcard(sec *subExpressionConstraint) bool {
	return sec.operator == noConstraintOperator && !sec.memberOf && sec.nested == nil &&
		sec.focus != nil && sec.focus.wildcard
}

// compileAttribute implements spec §4.4's 8-step attribute refinement
// compilation algorithm.
func (c *Compiler) compileAttribute(attr *eclAttribute) (bleve.Query, error) {
	if isBareWildcard(attr.name) {
		return nil, &UnsupportedError{Construct: "wildcard attribute name"}
	}
	if attr.reverse && attr.cardinality != defaultCardinality {
		return nil, &UnsupportedError{Construct: "cardinality combined with the reverse flag"}
	}
	if attr.cardinality.max >= 0 && attr.cardinality.min > attr.cardinality.max {
		return nil, &SemanticError{Message: fmt.Sprintf("invalid cardinality range [%d..%d]", attr.cardinality.min, attr.cardinality.max)}
	}
	types, err := c.realizeExpression(attr.name)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, &SemanticError{Message: "attribute expression resolves to no concepts"}
	}
	root := snomed.AttributeConcept
	if attr.valueKind == valueNumeric {
		root = snomed.ConceptModelAttribute
	}
	for _, t := range types {
		closure, err := c.Store.AllParents(t)
		if err != nil {
			return nil, err
		}
		if !closure.Contains(uint64(root)) {
			return nil, &SemanticError{Message: fmt.Sprintf("attribute type %d is not a descendant of %d", t, root)}
		}
	}

	if attr.reverse {
		sources, err := c.realizeExpression(attr.valueExpr)
		if err != nil {
			return nil, err
		}
		dests, err := c.dottedJoin(sources, types)
		if err != nil {
			return nil, err
		}
		return searchindex.QConceptIDs(dests), nil
	}

	if attr.valueKind == valueString {
		return nil, &UnsupportedError{Construct: "string/boolean concrete value refinement"}
	}

	var result bleve.Query
	if attr.valueKind == valueNumeric {
		op, err := concreteOpFor(attr.op)
		if err != nil {
			return nil, err
		}
		var clauses []bleve.Query
		for _, typ := range types {
			clauses = append(clauses, searchindex.QConcrete(typ, op, attr.valueNum))
		}
		result = searchindex.QOr(clauses...)
	} else {
		v, err := c.compileExpressionConstraint(attr.valueExpr)
		if err != nil {
			return nil, err
		}
		incl, excl := searchindex.RewriteQuery(v.AsQuery())
		inclIsAll := isMatchAll(incl)
		exclIsNone := isMatchNone(excl)
		switch {
		case inclIsAll && exclIsNone:
			if attr.cardinality != defaultCardinality {
				// Any value is allowed, so the cardinality's count predicate
				// alone decides the match, including [0..0] (no attribute).
				result = searchindex.QMatchAll()
				break
			}
			var clauses []bleve.Query
			for _, typ := range types {
				clauses = append(clauses, searchindex.QAttributeCount(typ, 1, math.Inf(1)))
			}
			result = searchindex.QOr(clauses...)
		case !inclIsAll && !exclIsNone:
			inclSet, err := c.realizeConceptIDs(incl)
			if err != nil {
				return nil, err
			}
			exclSet, err := c.realizeConceptIDs(excl)
			if err != nil {
				return nil, err
			}
			var inclClauses, exclClauses []bleve.Query
			for _, typ := range types {
				inclClauses = append(inclClauses, searchindex.QAttributeInSet(typ, inclSet))
				exclClauses = append(exclClauses, searchindex.QAttributeInSet(typ, exclSet))
			}
			result = searchindex.QAnd(searchindex.QOr(inclClauses...), searchindex.QNot(searchindex.QAnd(exclClauses...)))
		case !inclIsAll:
			inclSet, err := c.realizeConceptIDs(incl)
			if err != nil {
				return nil, err
			}
			var clauses []bleve.Query
			for _, typ := range types {
				clauses = append(clauses, searchindex.QAttributeInSet(typ, inclSet))
			}
			result = searchindex.QOr(clauses...)
		default:
			exclSet, err := c.realizeConceptIDs(excl)
			if err != nil {
				return nil, err
			}
			var clauses []bleve.Query
			for _, typ := range types {
				clauses = append(clauses, searchindex.QAttributeInSet(typ, exclSet))
			}
			result = searchindex.QAnd(searchindex.QMatchAll(), searchindex.QNot(searchindex.QAnd(clauses...)))
		}
	}

	if attr.op == cmpNotEquals {
		result = searchindex.QNot(result)
	}
	return applyCardinality(result, types, attr.cardinality), nil
}

func applyCardinality(q bleve.Query, types []snomed.ConceptID, card cardinality) bleve.Query {
	if card == defaultCardinality {
		return q
	}
	hi := math.Inf(1)
	if card.max >= 0 {
		hi = float64(card.max)
	}
	var clauses []bleve.Query
	for _, t := range types {
		clauses = append(clauses, searchindex.QAttributeCount(t, float64(card.min), hi))
	}
	return searchindex.QAnd(q, searchindex.QOr(clauses...))
}

func concreteOpFor(op comparisonOperator) (searchindex.ConcreteOp, error) {
	switch op {
	case cmpEquals:
		return searchindex.OpEqual, nil
	case cmpNotEquals:
		return searchindex.OpNotEqual, nil
	case cmpLessThan:
		return searchindex.OpLessThan, nil
	case cmpLessOrEqual:
		return searchindex.OpLessOrEqual, nil
	case cmpGreaterThan:
		return searchindex.OpGreaterThan, nil
	case cmpGreaterOrEqual:
		return searchindex.OpGreaterOrEqual, nil
	default:
		return 0, fmt.Errorf("ecl: unreachable comparison operator %d", op)
	}
}

func isMatchAll(q bleve.Query) bool {
	_, ok := q.(*query.MatchAllQuery)
	return ok
}

func isMatchNone(q bleve.Query) bool {
	_, ok := q.(*query.MatchNoneQuery)
	return ok
}
