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
	"strconv"
	"strings"

	"github.com/wardle/snomedq/snomed"
)

// parser holds an eagerly-tokenised input and a read cursor; ECL
// expressions are short enough that tokenising up front keeps lookahead
// trivial compared to a streaming lexer wrapper.
type parser struct {
	toks []token
	pos  int
}

// Parse tokenises and parses src, returning the root of the AST or a
// *ParseError naming the offending source position.
func Parse(src string) (expressionConstraint, error) {
	lx := newLexer(src)
	var toks []token
	for {
		t, err := lx.next()
		if err != nil {
			return nil, &ParseError{Line: lx.line, Column: lx.column, Text: src, Message: err.Error()}
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			break
		}
	}
	p := &parser{toks: toks}
	expr, err := p.parseExpressionConstraint()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected trailing input %q", p.peek().text)
	}
	return expr, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...interface{}) error {
	t := p.peek()
	return &ParseError{Line: t.line, Column: t.column, Text: t.text, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.peek().kind != kind {
		return token{}, p.errorf("expected %s, got %q", what, p.peek().text)
	}
	return p.advance(), nil
}

// keyword returns the uppercased text of the current token if it is an
// identifier, or "" otherwise — used to spot the bareword keywords AND,
// OR, MINUS and the reverse flag R without reserving them in the lexer.
func (p *parser) keyword() string {
	t := p.peek()
	if t.kind != tokIdent {
		return ""
	}
	return strings.ToUpper(t.text)
}

// --- expressionConstraint --------------------------------------------------

func (p *parser) parseExpressionConstraint() (expressionConstraint, error) {
	left, err := p.parseSubExpressionConstraint()
	if err != nil {
		return nil, err
	}
	switch {
	case p.peek().kind == tokColon:
		p.advance()
		ref, err := p.parseEclRefinement()
		if err != nil {
			return nil, err
		}
		return &refinedExpressionConstraint{base: left, refinement: ref}, nil
	case p.peek().kind == tokDot:
		dotted := &dottedExpressionConstraint{base: left}
		for p.peek().kind == tokDot {
			p.advance()
			attr, err := p.parseEclFocusConcept()
			if err != nil {
				return nil, err
			}
			dotted.attrs = append(dotted.attrs, attr)
		}
		return dotted, nil
	case p.keyword() == "AND" || p.keyword() == "OR" || p.keyword() == "MINUS":
		kw := p.keyword()
		var kind compoundKind
		switch kw {
		case "AND":
			kind = compoundConjunction
		case "OR":
			kind = compoundDisjunction
		case "MINUS":
			kind = compoundExclusion
		}
		operands := []expressionConstraint{left}
		for p.keyword() == kw {
			p.advance()
			next, err := p.parseSubExpressionConstraint()
			if err != nil {
				return nil, err
			}
			operands = append(operands, next)
			if kind == compoundExclusion {
				break // exclusionExpressionConstraint is strictly binary
			}
		}
		if p.keyword() == "AND" || p.keyword() == "OR" || p.keyword() == "MINUS" {
			return nil, p.errorf("mixing AND/OR/MINUS at the same level requires parentheses")
		}
		return &compoundExpressionConstraint{kind: kind, operands: operands}, nil
	default:
		return left, nil
	}
}

func (p *parser) parseConstraintOperator() constraintOperator {
	switch p.peek().kind {
	case tokLessDoubleBang:
		p.advance()
		return opChildOrSelfOf
	case tokLessDouble:
		p.advance()
		return opDescendantOrSelfOf
	case tokLessBang:
		p.advance()
		return opChildOf
	case tokLess:
		p.advance()
		return opDescendantOf
	case tokGreaterDoubleBang:
		p.advance()
		return opParentOrSelfOf
	case tokGreaterDouble:
		p.advance()
		return opAncestorOrSelfOf
	case tokGreaterBang:
		p.advance()
		return opParentOf
	case tokGreater:
		p.advance()
		return opAncestorOf
	default:
		return noConstraintOperator
	}
}

func (p *parser) parseSubExpressionConstraint() (*subExpressionConstraint, error) {
	op := p.parseConstraintOperator()
	memberOf := false
	if p.peek().kind == tokCaret {
		p.advance()
		memberOf = true
	}
	sec := &subExpressionConstraint{operator: op, memberOf: memberOf}
	if p.peek().kind == tokLParen {
		p.advance()
		inner, err := p.parseExpressionConstraint()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		sec.nested = inner
	} else {
		fc, err := p.parseEclFocusConcept()
		if err != nil {
			return nil, err
		}
		sec.focus = fc
	}
	for p.peek().kind == tokDoubleLBrace {
		if err := p.parseBraceClause(sec); err != nil {
			return nil, err
		}
	}
	return sec, nil
}

// parseBraceClause consumes one `{{ ... }}` clause, appending either a
// filter constraint or (for `{{+ history[...] }}`) a history supplement
// onto sec.
func (p *parser) parseBraceClause(sec *subExpressionConstraint) error {
	p.advance() // {{
	if p.peek().kind == tokPlus {
		p.advance()
		hs, err := p.parseHistorySupplement()
		if err != nil {
			return err
		}
		sec.history = hs
	} else {
		fc, err := p.parseFilterConstraint()
		if err != nil {
			return err
		}
		sec.filters = append(sec.filters, fc)
	}
	_, err := p.expect(tokDoubleRBrace, "'}}'")
	return err
}

func (p *parser) parseEclFocusConcept() (*eclFocusConcept, error) {
	if p.peek().kind == tokWildcard {
		p.advance()
		return &eclFocusConcept{wildcard: true}, nil
	}
	id, err := p.parseSctID()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokTerm {
		p.advance() // display term, not semantically meaningful to compilation
	}
	return &eclFocusConcept{conceptID: id}, nil
}

func (p *parser) parseSctID() (snomed.ConceptID, error) {
	t := p.peek()
	if t.kind != tokSctID {
		return 0, p.errorf("expected a SNOMED CT identifier, got %q", t.text)
	}
	p.advance()
	n, err := strconv.ParseInt(t.text, 10, 64)
	if err != nil {
		return 0, &ParseError{Line: t.line, Column: t.column, Text: t.text, Message: "invalid identifier"}
	}
	return snomed.ConceptID(n), nil
}
