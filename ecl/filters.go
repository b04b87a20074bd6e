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
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/wardle/snomedq/locale"
	"github.com/wardle/snomedq/memberindex"
	"github.com/wardle/snomedq/searchindex"
	"github.com/wardle/snomedq/snomed"
)

// --- parsing -----------------------------------------------------------

// parseFilterConstraint parses the body of a {{ ... }} clause that is not a
// history supplement. A leading "d"/"description", "c"/"concept" or
// "m"/"member" tag selects which of the three filter families follows, with
// an optional ':' after it; a clause with none of those tags is an untagged
// description filter (spec §8's end-to-end scenario 6 writes
// `{{ term = "...", type = syn, dialect = (en-gb) }}` with no tag at all).
func (p *parser) parseFilterConstraint() (filterConstraint, error) {
	switch strings.ToLower(p.keyword()) {
	case "d", "description":
		p.advance()
		p.skipOptionalColon()
		descs, err := p.parseDescriptionFilters()
		if err != nil {
			return filterConstraint{}, err
		}
		return filterConstraint{kind: filterDescription, description: descs}, nil
	case "c", "concept":
		p.advance()
		p.skipOptionalColon()
		cf, err := p.parseConceptFilter()
		if err != nil {
			return filterConstraint{}, err
		}
		return filterConstraint{kind: filterConcept, concept: []conceptFilter{cf}}, nil
	case "m", "member":
		p.advance()
		p.skipOptionalColon()
		mfs, err := p.parseMemberFilters()
		if err != nil {
			return filterConstraint{}, err
		}
		return filterConstraint{kind: filterMember, member: mfs}, nil
	default:
		descs, err := p.parseDescriptionFilters()
		if err != nil {
			return filterConstraint{}, err
		}
		return filterConstraint{kind: filterDescription, description: descs}, nil
	}
}

func (p *parser) skipOptionalColon() {
	if p.peek().kind == tokColon {
		p.advance()
	}
}

// parseDescriptionFilters parses the comma-separated clause list of term,
// type, dialect and active sub-filters (spec §4.4's description filter
// constraint); the leading tag, if any, has already been consumed.
func (p *parser) parseDescriptionFilters() ([]descriptionFilter, error) {
	var filters []descriptionFilter
	for {
		f, err := p.parseOneDescriptionFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
		if p.peek().kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	return filters, nil
}

// descriptionFilterOperator consumes the '=' or '!=' following a filter
// field name and reports whether it was the negated form.
func (p *parser) descriptionFilterOperator() (bool, error) {
	switch p.peek().kind {
	case tokEquals:
		p.advance()
		return false, nil
	case tokNotEquals:
		p.advance()
		return true, nil
	default:
		return false, p.errorf("expected '=' or '!=', got %q", p.peek().text)
	}
}

func (p *parser) parseOneDescriptionFilter() (descriptionFilter, error) {
	kw := strings.ToLower(p.keyword())
	switch kw {
	case "term":
		p.advance()
		negated, err := p.descriptionFilterOperator()
		if err != nil {
			return descriptionFilter{}, err
		}
		if negated {
			return descriptionFilter{}, &UnsupportedError{Construct: "'!=' on a term filter"}
		}
		mode := termMatch
		if lower := strings.ToLower(p.keyword()); lower == "match" || lower == "wild" {
			p.advance()
			if _, err := p.expect(tokColon, "':'"); err != nil {
				return descriptionFilter{}, err
			}
			if lower == "wild" {
				mode = termWild
			}
		}
		t, err := p.expect(tokString, "a quoted term")
		if err != nil {
			return descriptionFilter{}, err
		}
		if mode == termMatch && strings.ContainsRune(t.text, '*') {
			mode = termWild
		}
		return descriptionFilter{Kind: descFilterTerm, Negated: negated, TermMode: mode, TermValue: t.text}, nil
	case "type":
		p.advance()
		negated, err := p.descriptionFilterOperator()
		if err != nil {
			return descriptionFilter{}, err
		}
		var tokens []string
		if p.peek().kind == tokLParen {
			p.advance()
			for {
				tk, err := p.expect(tokIdent, "a description type token")
				if err != nil {
					return descriptionFilter{}, err
				}
				tokens = append(tokens, strings.ToLower(tk.text))
				if p.peek().kind == tokComma {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expect(tokRParen, "')'"); err != nil {
				return descriptionFilter{}, err
			}
		} else {
			tk, err := p.expect(tokIdent, "a description type token")
			if err != nil {
				return descriptionFilter{}, err
			}
			tokens = []string{strings.ToLower(tk.text)}
		}
		return descriptionFilter{Kind: descFilterType, Negated: negated, TypeTokens: tokens}, nil
	case "dialect":
		p.advance()
		negated, err := p.descriptionFilterOperator()
		if err != nil {
			return descriptionFilter{}, err
		}
		df := descriptionFilter{Kind: descFilterDialect, Negated: negated}
		if p.peek().kind == tokLParen {
			p.advance()
			for {
				refset, alias, err := p.parseOneDialect()
				if err != nil {
					return descriptionFilter{}, err
				}
				df.DialectRefsets = append(df.DialectRefsets, refset)
				df.DialectAliases = append(df.DialectAliases, alias)
				if p.peek().kind == tokComma {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expect(tokRParen, "')'"); err != nil {
				return descriptionFilter{}, err
			}
		} else {
			refset, alias, err := p.parseOneDialect()
			if err != nil {
				return descriptionFilter{}, err
			}
			df.DialectRefsets = append(df.DialectRefsets, refset)
			df.DialectAliases = append(df.DialectAliases, alias)
		}
		if p.peek().kind == tokLParen {
			p.advance()
			tk, err := p.expect(tokIdent, "'accept' or 'prefer'")
			if err != nil {
				return descriptionFilter{}, err
			}
			df.Acceptability = strings.ToLower(tk.text)
			if _, err := p.expect(tokRParen, "')'"); err != nil {
				return descriptionFilter{}, err
			}
		}
		return df, nil
	case "active":
		p.advance()
		negated, err := p.descriptionFilterOperator()
		if err != nil {
			return descriptionFilter{}, err
		}
		tk, err := p.expect(tokIdent, "true or false")
		if err != nil {
			return descriptionFilter{}, err
		}
		return descriptionFilter{Kind: descFilterActive, Negated: negated, Active: strings.EqualFold(tk.text, "true")}, nil
	default:
		return descriptionFilter{}, p.errorf("unrecognised description filter %q", p.peek().text)
	}
}

// parseOneDialect parses a single dialect value — a numeric refset id or an
// alias identifier such as en-GB — returning whichever of the two was given
// (the other is zero/"").
func (p *parser) parseOneDialect() (snomed.ConceptID, string, error) {
	if p.peek().kind == tokSctID {
		id, err := p.parseSctID()
		return id, "", err
	}
	tk, err := p.expect(tokIdent, "a dialect alias")
	if err != nil {
		return 0, "", err
	}
	return 0, tk.text, nil
}

func (p *parser) parseConceptFilter() (conceptFilter, error) {
	if strings.ToLower(p.keyword()) != "active" {
		return conceptFilter{}, &UnsupportedError{Construct: "concept filter other than 'active'"}
	}
	p.advance()
	negated, err := p.descriptionFilterOperator()
	if err != nil {
		return conceptFilter{}, err
	}
	tk, err := p.expect(tokIdent, "true or false")
	if err != nil {
		return conceptFilter{}, err
	}
	return conceptFilter{Active: strings.EqualFold(tk.text, "true"), Negated: negated}, nil
}

func (p *parser) parseMemberFilters() ([]memberFilter, error) {
	var filters []memberFilter
	for {
		field, err := p.expect(tokIdent, "a refset field name")
		if err != nil {
			return nil, err
		}
		op, err := p.parseComparisonOperator()
		if err != nil {
			return nil, err
		}
		mf := memberFilter{Field: field.text, Op: op}
		switch p.peek().kind {
		case tokNumber:
			t := p.advance()
			v, err := parseFloat(t.text)
			if err != nil {
				return nil, err
			}
			mf.IsNum, mf.Num = true, v
		case tokString, tokIdent:
			t := p.advance()
			mf.Value = t.text
		default:
			return nil, p.errorf("expected a refset field value, got %q", p.peek().text)
		}
		filters = append(filters, mf)
		if p.peek().kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	return filters, nil
}

func (p *parser) parseComparisonOperator() (comparisonOperator, error) {
	switch p.peek().kind {
	case tokEquals:
		p.advance()
		return cmpEquals, nil
	case tokNotEquals:
		p.advance()
		return cmpNotEquals, nil
	case tokLess:
		p.advance()
		return cmpLessThan, nil
	case tokLessOrEqual:
		p.advance()
		return cmpLessOrEqual, nil
	case tokGreater:
		p.advance()
		return cmpGreaterThan, nil
	case tokGreaterOrEqual:
		p.advance()
		return cmpGreaterOrEqual, nil
	default:
		return 0, p.errorf("expected a comparison operator, got %q", p.peek().text)
	}
}

// --- compilation ---------------------------------------------------------

// applyFilters implements spec §4.4's stated application order: the base
// query first, then concept filter constraints, then description filter
// constraints, then member filter constraints, each ANDed onto the running
// result in turn; a history supplement comes last and widens the realised
// result with associated concepts rather than narrowing it.
func (c *Compiler) applyFilters(sec *subExpressionConstraint, base *compiledExpression) (*compiledExpression, error) {
	var concepts, descs, members []filterConstraint
	for _, f := range sec.filters {
		switch f.kind {
		case filterConcept:
			concepts = append(concepts, f)
		case filterDescription:
			descs = append(descs, f)
		case filterMember:
			members = append(members, f)
		}
	}
	result := base
	for _, f := range concepts {
		q, err := c.compileConceptFilter(f)
		if err != nil {
			return nil, err
		}
		result = &compiledExpression{query: searchindex.QAnd(result.AsQuery(), q)}
	}
	for _, f := range descs {
		q, err := c.compileDescriptionFilter(f)
		if err != nil {
			return nil, err
		}
		result = &compiledExpression{query: searchindex.QAnd(result.AsQuery(), q)}
	}
	if len(members) > 0 {
		refsets, err := c.memberFilterRefsets(sec)
		if err != nil {
			return nil, err
		}
		for _, f := range members {
			ids, err := c.compileMemberFilter(f, refsets)
			if err != nil {
				return nil, err
			}
			result = &compiledExpression{query: searchindex.QAnd(result.AsQuery(), searchindex.QConceptIDs(ids))}
		}
	}
	if sec.history != nil {
		return c.applyHistory(sec.history, result)
	}
	return result, nil
}

func (c *Compiler) compileConceptFilter(f filterConstraint) (bleve.Query, error) {
	var clauses []bleve.Query
	for _, cf := range f.concept {
		q := searchindex.QConceptActive(cf.Active)
		if cf.Negated {
			q = searchindex.QNot(q)
		}
		clauses = append(clauses, q)
	}
	return searchindex.QAnd(clauses...), nil
}

func (c *Compiler) compileDescriptionFilter(f filterConstraint) (bleve.Query, error) {
	var clauses []bleve.Query
	for _, df := range f.description {
		q, err := c.compileOneDescriptionFilter(df)
		if err != nil {
			return nil, err
		}
		if df.Negated {
			q = searchindex.QNot(q)
		}
		clauses = append(clauses, q)
	}
	return searchindex.QAnd(clauses...), nil
}

func (c *Compiler) compileOneDescriptionFilter(df descriptionFilter) (bleve.Query, error) {
	switch df.Kind {
	case descFilterTerm:
		if df.TermMode == termWild {
			return searchindex.QWildcard(df.TermValue), nil
		}
		return searchindex.QTerm(df.TermValue), nil
	case descFilterType:
		var types []snomed.ConceptID
		for _, tok := range df.TypeTokens {
			t, err := descriptionTypeFor(tok)
			if err != nil {
				return nil, err
			}
			types = append(types, t)
		}
		return searchindex.QTypeAny(types), nil
	case descFilterDialect:
		var clauses []bleve.Query
		for i, refset := range df.DialectRefsets {
			if refset == 0 {
				id, ok := locale.ReferenceSetID(df.DialectAliases[i])
				if !ok {
					return nil, &SemanticError{Message: "unknown dialect alias: " + df.DialectAliases[i]}
				}
				refset = id
			}
			switch df.Acceptability {
			case "prefer":
				clauses = append(clauses, searchindex.QAcceptability(searchindex.Preferred, refset))
			case "accept":
				clauses = append(clauses, searchindex.QAcceptability(searchindex.Acceptable, refset))
			default:
				clauses = append(clauses, searchindex.QOr(
					searchindex.QAcceptability(searchindex.Preferred, refset),
					searchindex.QAcceptability(searchindex.Acceptable, refset),
				))
			}
		}
		return searchindex.QOr(clauses...), nil
	case descFilterActive:
		return searchindex.QDescriptionActive(df.Active), nil
	default:
		return nil, &SemanticError{Message: "unrecognised description filter"}
	}
}

func descriptionTypeFor(tok string) (snomed.ConceptID, error) {
	switch tok {
	case "fsn":
		return snomed.FullySpecifiedNameType, nil
	case "syn", "synonym":
		return snomed.SynonymType, nil
	case "def", "definition":
		return snomed.DefinitionType, nil
	default:
		return 0, &SemanticError{Message: "unrecognised description type token: " + tok}
	}
}

// memberFilterRefsets resolves spec §4.4's "enclosing expression's refset
// set": the literal focus concept alone, all installed refsets for the
// wildcard, or — for a parenthesised sub-expression — its realised
// concept-id set restricted to descendants of ReferenceSetConcept. This
// reads sec's focus/nested directly rather than the memberOf/operator-
// wrapped base, since memberOf(cId) already walks from refset to members
// and so no longer names the refset itself.
func (c *Compiler) memberFilterRefsets(sec *subExpressionConstraint) ([]snomed.ConceptID, error) {
	if sec.nested == nil {
		if sec.focus.wildcard {
			return c.Store.InstalledReferenceSets()
		}
		return []snomed.ConceptID{sec.focus.conceptID}, nil
	}
	ids, err := c.realizeExpression(sec.nested)
	if err != nil {
		return nil, err
	}
	var refsets []snomed.ConceptID
	for _, id := range ids {
		closure, err := c.Store.AllParents(id)
		if err != nil {
			return nil, err
		}
		if closure.Contains(uint64(snomed.ReferenceSetConcept)) {
			refsets = append(refsets, id)
		}
	}
	return refsets, nil
}

// compileMemberFilter resolves a {{ m: ... }} clause against the refset
// member index directly, since a member filter constrains which referenced
// components survive rather than contributing a description-index clause —
// it realises to a concept-id set immediately (spec §4.3's Search already
// walks the whole result set, not a top-K, so this never under-counts).
// Per spec §4.4, the field predicate is ANDed with q-refset-id(r) for each
// candidate refset r, then the per-refset queries are ORed.
func (c *Compiler) compileMemberFilter(f filterConstraint, refsets []snomed.ConceptID) ([]snomed.ConceptID, error) {
	var clauses []bleve.Query
	for _, mf := range f.member {
		field := memberIndexFieldName(mf.Field)
		var q bleve.Query
		if mf.IsNum {
			q = memberindex.QNumeric(field, memberindex.Op(mf.Op), mf.Num)
		} else {
			q = memberindex.QTerm(field, mf.Value)
		}
		clauses = append(clauses, q)
	}
	fieldQuery := memberindex.QAnd(clauses...)
	var perRefset []bleve.Query
	for _, r := range refsets {
		perRefset = append(perRefset, memberindex.QAnd(fieldQuery, memberindex.QRefsetID(r)))
	}
	if len(perRefset) == 0 {
		return nil, &SemanticError{Message: "member filter constraint has no candidate reference sets"}
	}
	return memberindex.Search(c.Members, memberindex.QOr(perRefset...))
}

// memberIndexFieldName converts an ECL refset column name, written the same
// camelCase way the RF2 refset descriptor names it (mapTarget,
// acceptabilityId, correlationId, …), to the kebab-case field name
// memberindex.documentFor actually indexes under (map-target,
// acceptability-id, correlation-id, …).
func memberIndexFieldName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
