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

// Package locale maps BCP-47 language tags and their informal aliases onto
// SNOMED CT language reference set identifiers, generalising the teacher's
// fixed Language enum (terminology/language.go) from a closed set of five
// languages into an open alias table plus golang.org/x/text/language-driven
// fallback matching, so an ECL dialect filter such as `{{ dialect = en-GB }}`
// or a free-standing preference list can resolve against whatever language
// reference sets a given installation actually carries.
package locale

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/wardle/snomedq/snomed"
)

// aliases maps the informal dialect names ECL authors write — and the BCP-47
// tags golang.org/x/text/language normalises them to — onto the language
// reference set identifiers the teacher's own table already used.
var aliases = map[string]snomed.ConceptID{
	"en":    900000000000509007, // International (en) language refset
	"en-us": 900000000000508004,
	"en-gb": 999001261000000100,
	"fr":    722131000,
	"es":    450828004,
	"da":    554831000005107,
}

var tags = map[string]language.Tag{
	"en":    language.English,
	"en-us": language.AmericanEnglish,
	"en-gb": language.BritishEnglish,
	"fr":    language.French,
	"es":    language.Spanish,
	"da":    language.Danish,
}

// ReferenceSetID resolves a dialect alias (e.g. "en-GB", "en-US", a bare
// language code, or an explicit numeric refset id) to a language reference
// set identifier. Unknown aliases are a SemanticError-worthy failure at the
// call site, not here — this function only reports whether resolution
// succeeded.
func ReferenceSetID(alias string) (snomed.ConceptID, bool) {
	key := strings.ToLower(strings.TrimSpace(alias))
	if id, ok := aliases[key]; ok {
		return id, true
	}
	if n, err := strconv.ParseInt(key, 10, 64); err == nil && n > 0 {
		return snomed.ConceptID(n), true
	}
	if tag, err := language.Parse(alias); err == nil {
		if matched, ok := bestMatch(tag); ok {
			return matched, true
		}
	}
	return 0, false
}

// bestMatch finds the installed alias whose tag is the closest ancestor or
// exact match of tag, per golang.org/x/text/language's confidence-ranked
// matcher, falling back from a region-qualified tag (en-GB) to its base
// language (en) the way a browser's Accept-Language negotiation would.
func bestMatch(tag language.Tag) (snomed.ConceptID, bool) {
	var candidates []language.Tag
	var keys []string
	for k, t := range tags {
		candidates = append(candidates, t)
		keys = append(keys, k)
	}
	matcher := language.NewMatcher(candidates)
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return 0, false
	}
	return aliases[keys[idx]], true
}

// PreferenceList expands a BCP-47 tag into its ordered list of candidate
// language reference set identifiers, most-specific first, the way the
// teacher's Svc.Match resolved a caller's Accept-Language header against its
// installed language refsets (terminology/language.go's newMatcher).
func PreferenceList(tag language.Tag) []snomed.ConceptID {
	base, conf := tag.Base()
	var out []snomed.ConceptID
	if region, confR := tag.Region(); confR != language.No {
		key := strings.ToLower(base.String() + "-" + region.String())
		if id, ok := aliases[key]; ok {
			out = append(out, id)
		}
	}
	if conf != language.No {
		if id, ok := aliases[strings.ToLower(base.String())]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Must is ReferenceSetID for callers (tests, CLI flag defaults) that already
// know the alias is valid and would rather panic loudly than ignore an error.
func Must(alias string) snomed.ConceptID {
	id, ok := ReferenceSetID(alias)
	if !ok {
		panic(fmt.Sprintf("locale: unknown dialect alias %q", alias))
	}
	return id
}
