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

import "testing"

func TestParseSimpleDescendantOrSelfOf(t *testing.T) {
	node, err := Parse("<< 73211009 |Diabetes mellitus|")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	sec, ok := node.(*subExpressionConstraint)
	if !ok {
		t.Fatalf("expected *subExpressionConstraint, got %T", node)
	}
	if sec.operator != opDescendantOrSelfOf {
		t.Errorf("expected opDescendantOrSelfOf, got %v", sec.operator)
	}
	if sec.focus == nil || sec.focus.conceptID != 73211009 {
		t.Errorf("expected focus concept 73211009, got %+v", sec.focus)
	}
}

func TestParseMemberOfWildcard(t *testing.T) {
	node, err := Parse("^ *")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	sec := node.(*subExpressionConstraint)
	if !sec.memberOf {
		t.Error("expected memberOf to be set")
	}
	if sec.focus == nil || !sec.focus.wildcard {
		t.Errorf("expected a wildcard focus, got %+v", sec.focus)
	}
}

func TestParseRefinementWithCardinality(t *testing.T) {
	node, err := Parse("<373873005 : [3..5] 127489000 = <105590001")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	ref, ok := node.(*refinedExpressionConstraint)
	if !ok {
		t.Fatalf("expected *refinedExpressionConstraint, got %T", node)
	}
	if ref.base.operator != opDescendantOf || ref.base.focus.conceptID != 373873005 {
		t.Errorf("unexpected base: %+v", ref.base)
	}
	if ref.refinement.kind != refinementAttribute {
		t.Fatalf("expected a single attribute refinement, got kind %v", ref.refinement.kind)
	}
	attr := ref.refinement.attr
	if attr.cardinality != (cardinality{min: 3, max: 5}) {
		t.Errorf("expected cardinality [3..5], got %+v", attr.cardinality)
	}
	if attr.name.operator != noConstraintOperator || attr.name.focus.conceptID != 127489000 {
		t.Errorf("expected attribute type 127489000, got %+v", attr.name)
	}
	if attr.op != cmpEquals {
		t.Errorf("expected cmpEquals, got %v", attr.op)
	}
	if attr.valueKind != valueExpression {
		t.Fatalf("expected a nested expression value, got kind %v", attr.valueKind)
	}
	nested, ok := attr.valueExpr.(*subExpressionConstraint)
	if !ok || nested.operator != opDescendantOf || nested.focus.conceptID != 105590001 {
		t.Errorf("unexpected refinement value expression: %+v", attr.valueExpr)
	}
}

func TestParseTwoAttributeConjunctionRefinement(t *testing.T) {
	node, err := Parse("<404684003 : 363698007 = <<39057004, 116676008 = <<415582006")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	ref := node.(*refinedExpressionConstraint)
	if ref.refinement.kind != refinementConjunction {
		t.Fatalf("expected a conjunction of two attributes, got kind %v", ref.refinement.kind)
	}
	if len(ref.refinement.children) != 2 {
		t.Fatalf("expected 2 attribute clauses, got %d", len(ref.refinement.children))
	}
	first := ref.refinement.children[0].attr
	if first.name.focus.conceptID != 363698007 {
		t.Errorf("expected first attribute type 363698007, got %+v", first.name)
	}
	second := ref.refinement.children[1].attr
	if second.name.focus.conceptID != 116676008 {
		t.Errorf("expected second attribute type 116676008, got %+v", second.name)
	}
}

func TestParseCompoundMinusIsBinary(t *testing.T) {
	node, err := Parse("<<404684003 MINUS <<64572001")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	comp, ok := node.(*compoundExpressionConstraint)
	if !ok {
		t.Fatalf("expected *compoundExpressionConstraint, got %T", node)
	}
	if comp.kind != compoundExclusion {
		t.Errorf("expected compoundExclusion, got %v", comp.kind)
	}
	if len(comp.operands) != 2 {
		t.Fatalf("expected exactly 2 operands, got %d", len(comp.operands))
	}
}

func TestParseMixingAndOrRequiresParentheses(t *testing.T) {
	_, err := Parse("<<404684003 AND <<64572001 OR <<24700007")
	if err == nil {
		t.Fatal("expected an error mixing AND/OR at the same nesting level")
	}
}

func TestParseDottedExpression(t *testing.T) {
	node, err := Parse("<404684003 . 363698007")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	dotted, ok := node.(*dottedExpressionConstraint)
	if !ok {
		t.Fatalf("expected *dottedExpressionConstraint, got %T", node)
	}
	if len(dotted.attrs) != 1 || dotted.attrs[0].conceptID != 363698007 {
		t.Errorf("unexpected dotted attribute chain: %+v", dotted.attrs)
	}
}

func TestParseMemberFilterWithColonlessTag(t *testing.T) {
	node, err := Parse(`^ 447562003 {{ M mapTarget = "G35" }}`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	sec := node.(*subExpressionConstraint)
	if !sec.memberOf || sec.focus.conceptID != 447562003 {
		t.Fatalf("unexpected base: %+v", sec)
	}
	if len(sec.filters) != 1 || sec.filters[0].kind != filterMember {
		t.Fatalf("expected one member filter constraint, got %+v", sec.filters)
	}
	mf := sec.filters[0].member
	if len(mf) != 1 || mf[0].Field != "mapTarget" || mf[0].Value != "G35" {
		t.Errorf("unexpected member filter: %+v", mf)
	}
}

func TestParseUntaggedDescriptionFilterWithWildcardAndDialectList(t *testing.T) {
	node, err := Parse(`<<64572001 |Disease| {{ term = "cardi*opathy", type = syn, dialect = (en-gb) }}`)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	sec := node.(*subExpressionConstraint)
	if sec.operator != opDescendantOrSelfOf || sec.focus.conceptID != 64572001 {
		t.Fatalf("unexpected base: %+v", sec)
	}
	if len(sec.filters) != 1 || sec.filters[0].kind != filterDescription {
		t.Fatalf("expected one description filter constraint, got %+v", sec.filters)
	}
	df := sec.filters[0].description
	if len(df) != 3 {
		t.Fatalf("expected 3 description filter clauses, got %d: %+v", len(df), df)
	}
	if df[0].Kind != descFilterTerm || df[0].TermMode != termWild || df[0].TermValue != "cardi*opathy" {
		t.Errorf("expected an auto-detected wildcard term filter, got %+v", df[0])
	}
	if df[1].Kind != descFilterType || len(df[1].TypeTokens) != 1 || df[1].TypeTokens[0] != "syn" {
		t.Errorf("expected a type=syn filter, got %+v", df[1])
	}
	if df[2].Kind != descFilterDialect || len(df[2].DialectAliases) != 1 || df[2].DialectAliases[0] != "en-gb" {
		t.Errorf("expected a parenthesised single-item dialect list, got %+v", df[2])
	}
}

func TestParseTermFilterNotEqualsIsRejected(t *testing.T) {
	_, err := Parse(`* {{ term != "x" }}`)
	if err == nil {
		t.Fatal("expected an UnsupportedError for '!=' on a term filter")
	}
	if _, ok := err.(*UnsupportedError); !ok {
		t.Errorf("expected *UnsupportedError, got %T: %v", err, err)
	}
}

func TestParseHistorySupplementProfiles(t *testing.T) {
	node, err := Parse("<<73211009 {{+ HISTORY-MOD }}")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	sec := node.(*subExpressionConstraint)
	if sec.history == nil || sec.history.profile != historyMod {
		t.Errorf("expected a historyMod supplement, got %+v", sec.history)
	}
}

func TestParseAttributeGroupIsUnsupported(t *testing.T) {
	_, err := Parse("<404684003 : { 363698007 = <<39057004 }")
	if err == nil {
		t.Fatal("expected an UnsupportedError for attribute groups")
	}
	if _, ok := err.(*UnsupportedError); !ok {
		t.Errorf("expected *UnsupportedError, got %T: %v", err, err)
	}
}

func TestParseInvalidSyntaxReportsPosition(t *testing.T) {
	_, err := Parse("<< AND")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if pe.Line == 0 {
		t.Errorf("expected a non-zero line number, got %+v", pe)
	}
}
