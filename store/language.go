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

package store

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"

	"github.com/wardle/snomedq/snomed"
)

// PreferredDescription returns the description of conceptID with the
// given type for which an active refset item with acceptabilityId
// PreferredAcceptability exists in refsetID.
func (cs *ComponentStore) PreferredDescription(conceptID snomed.ConceptID, typeID snomed.DescriptionTypeID, refsetID snomed.ConceptID) (*snomed.Description, error) {
	descs, err := cs.Descriptions(conceptID)
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		if d.TypeID != typeID {
			continue
		}
		items, err := cs.ComponentRefsetItems(snomed.ConceptID(d.ID), refsetID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.Active && item.IsPreferred() {
				return d, nil
			}
		}
	}
	return nil, ErrNotFound
}

// PreferredSynonym probes an ordered list of candidate language refsets
// and returns the first matching preferred synonym, falling back to the
// first fully specified name if no language refset match is found.
func (cs *ComponentStore) PreferredSynonym(conceptID snomed.ConceptID, refsetIDs []snomed.ConceptID) (*snomed.Description, error) {
	for _, refsetID := range refsetIDs {
		d, err := cs.PreferredDescription(conceptID, snomed.SynonymType, refsetID)
		if err == nil {
			return d, nil
		}
		if err != ErrNotFound {
			return nil, err
		}
	}
	descs, err := cs.Descriptions(conceptID)
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		if d.IsFullySpecifiedName() {
			return d, nil
		}
	}
	return nil, fmt.Errorf("store: no descriptions found for concept %d", conceptID)
}

// Language maps a standard BCP-47 tag onto the SNOMED-CT language
// reference set used to resolve preferred terms in that language.
// Supplements a fixed table with a few common locales; the full
// BCP-47 -> refset-id-list mapping used for server configuration lives
// in the locale package (spec §1's external collaborator contract).
type Language int

// Supported built-in languages.
const (
	AmericanEnglish Language = iota
	BritishEnglish
	French
	Spanish
	Danish
	numLanguages
)

var languageTags = map[Language]language.Tag{
	BritishEnglish:  language.BritishEnglish,
	AmericanEnglish: language.AmericanEnglish,
	French:          language.French,
	Spanish:         language.Spanish,
	Danish:          language.Danish,
}

var languageRefsetIDs = map[Language]snomed.ConceptID{
	BritishEnglish:  999001261000000100,
	AmericanEnglish: 900000000000508004,
	French:          722131000,
	Danish:          554831000005107,
}

// Tag returns the BCP-47 tag for this language.
func (l Language) Tag() language.Tag { return languageTags[l] }

// String returns the BCP-47 string representation of this language.
func (l Language) String() string { return l.Tag().String() }

// RefsetID returns the language reference set identifier used to resolve
// preferred terms for this language, or 0 if none is defined.
func (l Language) RefsetID() snomed.ConceptID { return languageRefsetIDs[l] }

// LanguageForTag returns the built-in language whose tag matches t, or
// AmericanEnglish if there is no exact entry.
func LanguageForTag(t language.Tag) Language {
	for l, v := range languageTags {
		if v == t {
			return l
		}
	}
	return AmericanEnglish
}

// MatchLanguage resolves the best available installed language, given a
// list of preferences in order, against whichever language refsets
// appear in InstalledReferenceSets.
func (cs *ComponentStore) MatchLanguage(preferred []language.Tag) (Language, error) {
	installed, err := cs.InstalledReferenceSets()
	if err != nil {
		return AmericanEnglish, err
	}
	installedSet := make(map[snomed.ConceptID]struct{}, len(installed))
	for _, id := range installed {
		installedSet[id] = struct{}{}
	}
	var tags []language.Tag
	var languages []Language
	for l, refset := range languageRefsetIDs {
		if _, ok := installedSet[refset]; ok {
			tags = append(tags, languageTags[l])
			languages = append(languages, l)
		}
	}
	if len(tags) == 0 {
		return AmericanEnglish, nil
	}
	matcher := language.NewMatcher(tags)
	_, idx, _ := matcher.Match(preferred...)
	return languages[idx], nil
}

// LanguageMatch finds the best description of typeID given an ordered
// list of requested language tags, first consulting the installed
// language reference sets (refsetLanguageMatch) and falling back to a
// simple language-code match against the description list itself
// (simpleLanguageMatch) when no refset-based match is found — useful
// when a concept isn't covered by any installed language refset.
func (cs *ComponentStore) LanguageMatch(descs []*snomed.Description, typeID snomed.DescriptionTypeID, tags []language.Tag) (*snomed.Description, error) {
	d, found, err := cs.refsetLanguageMatch(descs, typeID, tags)
	if err != nil {
		return nil, err
	}
	if found {
		return d, nil
	}
	return cs.simpleLanguageMatch(descs, typeID, tags)
}

func (cs *ComponentStore) simpleLanguageMatch(descs []*snomed.Description, typeID snomed.DescriptionTypeID, tags []language.Tag) (*snomed.Description, error) {
	var candidateTags []language.Tag
	var candidates []*snomed.Description
	sorted := append([]*snomed.Description(nil), descs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LanguageCode < sorted[j].LanguageCode })
	for _, d := range sorted {
		if d.TypeID == typeID {
			candidateTags = append(candidateTags, language.Make(d.LanguageCode))
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("store: no descriptions matched type %d", typeID)
	}
	matcher := language.NewMatcher(candidateTags)
	_, i, _ := matcher.Match(tags...)
	return candidates[i], nil
}

func (cs *ComponentStore) refsetLanguageMatch(descs []*snomed.Description, typeID snomed.DescriptionTypeID, tags []language.Tag) (*snomed.Description, bool, error) {
	installed, err := cs.InstalledReferenceSets()
	if err != nil {
		return nil, false, err
	}
	installedSet := make(map[snomed.ConceptID]struct{}, len(installed))
	for _, id := range installed {
		installedSet[id] = struct{}{}
	}
	var available []language.Tag
	var availableLangs []Language
	for l, refset := range languageRefsetIDs {
		if _, ok := installedSet[refset]; ok {
			available = append(available, languageTags[l])
			availableLangs = append(availableLangs, l)
		}
	}
	if len(available) == 0 {
		return nil, false, nil
	}
	matcher := language.NewMatcher(available)
	_, i, _ := matcher.Match(tags...)
	preferred := availableLangs[i]
	for _, d := range descs {
		if d.TypeID != typeID {
			continue
		}
		items, err := cs.ComponentRefsetItems(snomed.ConceptID(d.ID), preferred.RefsetID())
		if err != nil {
			return nil, false, err
		}
		for _, item := range items {
			if item.Active && item.IsPreferred() {
				return d, true, nil
			}
		}
	}
	return nil, false, nil
}
