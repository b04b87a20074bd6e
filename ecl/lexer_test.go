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

func lexAll(t *testing.T, src string) []token {
	t.Helper()
	lx := newLexer(src)
	var toks []token
	for {
		tok, err := lx.next()
		if err != nil {
			t.Fatalf("lexing %q: %v", src, err)
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks
		}
	}
}

func TestLexerOperatorFamily(t *testing.T) {
	toks := lexAll(t, "<<! <<  <!  <  >>! >> >! >")
	wantKinds := []tokenKind{
		tokLessDoubleBang, tokLessDouble, tokLessBang, tokLess,
		tokGreaterDoubleBang, tokGreaterDouble, tokGreaterBang, tokGreater,
		tokEOF,
	}
	if len(toks) != len(wantKinds) {
		t.Fatalf("expected %d tokens, got %d: %+v", len(wantKinds), len(toks), toks)
	}
	for i, k := range wantKinds {
		if toks[i].kind != k {
			t.Errorf("token %d: expected kind %d, got %d (%q)", i, k, toks[i].kind, toks[i].text)
		}
	}
}

func TestLexerSctIDAndTerm(t *testing.T) {
	toks := lexAll(t, "73211009 |Diabetes mellitus|")
	if toks[0].kind != tokSctID || toks[0].text != "73211009" {
		t.Errorf("expected sctid 73211009, got %+v", toks[0])
	}
	if toks[1].kind != tokTerm || toks[1].text != "Diabetes mellitus" {
		t.Errorf("expected trimmed term literal, got %+v", toks[1])
	}
}

func TestLexerStringAndNumberLiterals(t *testing.T) {
	toks := lexAll(t, `"cardi*opathy" #5 #-1.5`)
	if toks[0].kind != tokString || toks[0].text != "cardi*opathy" {
		t.Errorf("expected string literal with embedded wildcard preserved, got %+v", toks[0])
	}
	if toks[1].kind != tokNumber || toks[1].text != "5" {
		t.Errorf("expected number 5, got %+v", toks[1])
	}
	if toks[2].kind != tokNumber || toks[2].text != "-1.5" {
		t.Errorf("expected number -1.5, got %+v", toks[2])
	}
}

func TestLexerHyphenatedIdentifiers(t *testing.T) {
	toks := lexAll(t, "HISTORY-MIN en-GB")
	if toks[0].kind != tokIdent || toks[0].text != "HISTORY-MIN" {
		t.Errorf("expected a single hyphenated identifier token, got %+v", toks[0])
	}
	if toks[1].kind != tokIdent || toks[1].text != "en-GB" {
		t.Errorf("expected a single hyphenated identifier token, got %+v", toks[1])
	}
}

func TestLexerDoubleBraces(t *testing.T) {
	toks := lexAll(t, "{{ term = \"x\" }}")
	if toks[0].kind != tokDoubleLBrace {
		t.Errorf("expected '{{' as one token, got %+v", toks[0])
	}
	last := toks[len(toks)-2] // before EOF
	if last.kind != tokDoubleRBrace {
		t.Errorf("expected '}}' as one token, got %+v", last)
	}
}

func TestLexerUnterminatedStringIsAnError(t *testing.T) {
	lx := newLexer(`"unterminated`)
	if _, err := lx.next(); err == nil {
		t.Error("expected an error for an unterminated string literal")
	}
}
