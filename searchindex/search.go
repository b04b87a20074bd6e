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

package searchindex

import (
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/wardle/snomedq/snomed"
)

// streamPageSize bounds each page of the stream-all walk; distinct from a
// scored top-K cutoff, it just keeps one page's worth of hits in memory.
const streamPageSize = 10000

// SearchRequest describes a free-text search against the term field,
// grounded on the teacher's bleveService.Search (terminology/bleve.go),
// generalised from the teacher's single Keywords-conjunction facet to an
// arbitrary caller-supplied filter query (built from the q-* primitives).
type SearchRequest struct {
	Query                       string
	Filter                      bleve.Query // additional ANDed constraint, e.g. q-descendantOrSelfOf(root)
	MaxHits                     int         // 0 means unbounded: stream every match, unordered
	IncludeInactiveConcepts     bool
	IncludeInactiveDescriptions bool
	IncludeFullySpecifiedNames  bool
	FallbackFuzzy               bool
	Dedupe                      bool // collapse hits sharing (conceptId, term)

	fuzzyRetry bool // set internally when retrying a zero-hit search with fuzziness
}

// Hit is one description-index search result.
type Hit struct {
	ConceptID     snomed.ConceptID
	DescriptionID snomed.DescriptionID
	Term          string
	Score         float64
}

// Search tokenises sr.Query into a conjunction of per-token
// (match OR prefix [OR fuzzy]) clauses, ANDs the caller's filter and the
// active/FSN defaults, and returns hits bounded by MaxHits. A zero MaxHits
// instead walks every match via StreamAll with no ranking.
func Search(idx *Index, sr SearchRequest) ([]Hit, error) {
	full := buildTextQuery(sr)
	if sr.MaxHits == 0 {
		var hits []Hit
		seen := make(map[string]bool)
		err := StreamAll(idx, full, func(h Hit) error {
			if sr.Dedupe {
				key := strconv.FormatInt(int64(h.ConceptID), 10) + "|" + h.Term
				if seen[key] {
					return nil
				}
				seen[key] = true
			}
			hits = append(hits, h)
			return nil
		})
		return hits, err
	}
	req := bleve.NewSearchRequest(full)
	req.Size = sr.MaxHits
	req.Fields = []string{fieldTerm, fieldPreferredTerm}
	result, err := idx.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	hits, err := toHits(result)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && sr.FallbackFuzzy && !sr.fuzzyRetry {
		retry := sr
		retry.fuzzyRetry = true
		return Search(idx, retry)
	}
	if sr.Dedupe {
		hits = dedupeHits(hits)
	}
	return hits, nil
}

func buildTextQuery(sr SearchRequest) bleve.Query {
	conj := bleve.NewConjunctionQuery()
	for _, token := range strings.Fields(sr.Query) {
		term := QOr(QTerm(token), QPrefix(token))
		if sr.fuzzyRetry {
			term = QOr(term, QFuzzy(token, 2))
		}
		conj.AddQuery(term)
	}
	if !sr.IncludeInactiveConcepts {
		conj.AddQuery(QConceptActive(true))
	}
	if !sr.IncludeInactiveDescriptions {
		conj.AddQuery(QDescriptionActive(true))
	}
	if !sr.IncludeFullySpecifiedNames {
		conj.AddQuery(QNot(QType(snomed.FullySpecifiedNameType)))
	}
	if sr.Filter != nil {
		conj.AddQuery(sr.Filter)
	}
	return conj
}

func toHits(result *bleve.SearchResult) ([]Hit, error) {
	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hit, err := hitFromID(h.ID)
		if err != nil {
			return nil, err
		}
		hit.Score = h.Score
		if t, ok := h.Fields[fieldTerm].(string); ok {
			hit.Term = t
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func hitFromID(id string) (Hit, error) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 {
		return Hit{}, nil
	}
	d, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Hit{}, err
	}
	c, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Hit{}, err
	}
	return Hit{DescriptionID: snomed.DescriptionID(d), ConceptID: snomed.ConceptID(c)}, nil
}

func dedupeHits(hits []Hit) []Hit {
	seen := make(map[string]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		key := strconv.FormatInt(int64(h.ConceptID), 10) + "|" + h.Term
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

// StreamAll walks every document matching q, unordered and unbounded by any
// top-K cutoff, via repeated unscored pagination — the stream-all discipline
// spec §4.2 requires for bulk ECL retrieval. f may be called from a single
// goroutine only; returning an error from f aborts the walk.
func StreamAll(idx *Index, q bleve.Query, f func(Hit) error) error {
	from := 0
	for {
		req := bleve.NewSearchRequestOptions(q, streamPageSize, from, false)
		req.SortBy([]string{"_id"})
		result, err := idx.bleve.Search(req)
		if err != nil {
			return err
		}
		if len(result.Hits) == 0 {
			return nil
		}
		for _, h := range result.Hits {
			hit, err := hitFromID(h.ID)
			if err != nil {
				return err
			}
			if err := f(hit); err != nil {
				return err
			}
		}
		from += len(result.Hits)
		if len(result.Hits) < streamPageSize {
			return nil
		}
	}
}
