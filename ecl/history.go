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

	"github.com/wardle/snomedq/snomed"
)

// Standard SNOMED CT historical association reference set identifiers —
// fixed by the international edition, not something any installation
// configures, so they are named constants here rather than discovered from
// the store the way InstalledReferenceSets discovers ordinary refsets.
const (
	sameAsReferenceSet              snomed.ConceptID = 900000000000527005
	replacedByReferenceSet          snomed.ConceptID = 900000000000526001
	possiblyEquivalentToReferenceSet snomed.ConceptID = 900000000000523009
	wasAReferenceSet                snomed.ConceptID = 900000000000528000
	movedToReferenceSet             snomed.ConceptID = 900000000000524003
	movedFromReferenceSet           snomed.ConceptID = 900000000000525002
	alternativeReferenceSet         snomed.ConceptID = 900000000000530003
	possiblyReplacedByReferenceSet  snomed.ConceptID = 1186921001
	partiallyEquivalentToReferenceSet snomed.ConceptID = 1186924009
	refersToReferenceSet            snomed.ConceptID = 900000000000531004
)

// historyMinSet, historyModSet and historyMaxSet are the three fixed
// profiles spec §4.4 names: MIN covers same-as only, MOD adds replaced-by,
// was-a, partially-equivalent-to and possibly-equivalent-to, and MAX is
// every historical association the international edition defines.
var (
	historyMinSet = []snomed.ConceptID{sameAsReferenceSet}
	historyModSet = []snomed.ConceptID{
		sameAsReferenceSet, replacedByReferenceSet, wasAReferenceSet,
		partiallyEquivalentToReferenceSet, possiblyEquivalentToReferenceSet,
	}
	historyMaxSet = []snomed.ConceptID{
		sameAsReferenceSet, replacedByReferenceSet, possiblyEquivalentToReferenceSet,
		wasAReferenceSet, movedToReferenceSet, movedFromReferenceSet,
		alternativeReferenceSet, possiblyReplacedByReferenceSet,
		partiallyEquivalentToReferenceSet, refersToReferenceSet,
	}
)

// --- parsing -------------------------------------------------------------

// parseHistorySupplement parses the body of a `{{+ ... }}` clause: one of
// the three named profile keywords, or the bare "HISTORY" keyword qualified
// by an explicit parenthesised subset expression naming which association
// reference sets to traverse.
func (p *parser) parseHistorySupplement() (*historySupplement, error) {
	kw := strings.ToUpper(p.keyword())
	var profile historyProfile
	switch kw {
	case "HISTORY":
		profile = historyMax
	case "HISTORY-MIN":
		profile = historyMin
	case "HISTORY-MOD":
		profile = historyMod
	case "HISTORY-MAX":
		profile = historyMax
	default:
		return nil, p.errorf("expected a history supplement keyword, got %q", p.peek().text)
	}
	p.advance()
	hs := &historySupplement{profile: profile}
	if p.peek().kind == tokLParen {
		p.advance()
		inner, err := p.parseExpressionConstraint()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		hs.profile = historyExplicit
		hs.explicit = inner
	}
	return hs, nil
}

// --- compilation -----------------------------------------------------------

// applyHistory implements spec §4.4's history supplement: realise the base
// expression to a concrete concept-id set, then extend it with every
// component that historically associates to one of those concepts via any
// reference set the chosen profile names (ComponentStore.
// SourceAssociationReferencedComponents already indexes exactly this
// relationship, so no new store support is needed).
func (c *Compiler) applyHistory(hs *historySupplement, base *compiledExpression) (*compiledExpression, error) {
	refsets, err := c.historyRefsets(hs)
	if err != nil {
		return nil, err
	}
	ids, err := c.realizeConceptIDs(base.AsQuery())
	if err != nil {
		return nil, err
	}
	seen := make(map[snomed.ConceptID]bool, len(ids))
	result := make([]snomed.ConceptID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	for _, id := range ids {
		for _, refset := range refsets {
			extra, err := c.Store.SourceAssociationReferencedComponents(id, refset)
			if err != nil {
				return nil, err
			}
			for _, e := range extra {
				if !seen[e] {
					seen[e] = true
					result = append(result, e)
				}
			}
		}
	}
	return &compiledExpression{realized: result}, nil
}

func (c *Compiler) historyRefsets(hs *historySupplement) ([]snomed.ConceptID, error) {
	switch hs.profile {
	case historyMin:
		return historyMinSet, nil
	case historyMod:
		return historyModSet, nil
	case historyMax:
		return historyMaxSet, nil
	case historyExplicit:
		return c.realizeExpression(hs.explicit)
	default:
		return nil, &SemanticError{Message: "unrecognised history supplement profile"}
	}
}
