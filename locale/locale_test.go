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

package locale

import (
	"testing"

	"golang.org/x/text/language"
)

func TestReferenceSetIDKnownAliases(t *testing.T) {
	cases := []struct {
		alias string
		want  uint64
	}{
		{"en-GB", 999001261000000100},
		{"en-gb", 999001261000000100},
		{" en-US ", 900000000000508004},
		{"fr", 722131000},
	}
	for _, c := range cases {
		got, ok := ReferenceSetID(c.alias)
		if !ok {
			t.Errorf("ReferenceSetID(%q): expected a match", c.alias)
			continue
		}
		if uint64(got) != c.want {
			t.Errorf("ReferenceSetID(%q) = %d, want %d", c.alias, got, c.want)
		}
	}
}

func TestReferenceSetIDFallsBackToBaseLanguageViaMatcher(t *testing.T) {
	// en-AU is not in the alias table, but the matcher should fall back to
	// English.
	got, ok := ReferenceSetID("en-AU")
	if !ok {
		t.Fatal("expected en-AU to resolve via fallback matching")
	}
	if uint64(got) != 900000000000509007 {
		t.Errorf("ReferenceSetID(\"en-AU\") = %d, want the international English refset", got)
	}
}

func TestReferenceSetIDUnknownAlias(t *testing.T) {
	if _, ok := ReferenceSetID("xx-zz"); ok {
		t.Error("expected an unresolvable alias to fail")
	}
}

func TestPreferenceListPrefersRegionBeforeBase(t *testing.T) {
	got := PreferenceList(language.BritishEnglish)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %v", got)
	}
	if uint64(got[0]) != 999001261000000100 {
		t.Errorf("expected en-GB first, got %d", got[0])
	}
	if uint64(got[1]) != 900000000000509007 {
		t.Errorf("expected en second, got %d", got[1])
	}
}

func TestPreferenceListBareLanguageHasNoRegionCandidate(t *testing.T) {
	got := PreferenceList(language.French)
	if len(got) != 1 || uint64(got[0]) != 722131000 {
		t.Errorf("expected only the French refset, got %v", got)
	}
}

func TestMustPanicsOnUnknownAlias(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected Must to panic on an unknown alias")
		}
	}()
	Must("xx-zz")
}

func TestMustReturnsKnownAlias(t *testing.T) {
	if uint64(Must("en")) != 900000000000509007 {
		t.Error("expected Must(\"en\") to resolve the international English refset")
	}
}
