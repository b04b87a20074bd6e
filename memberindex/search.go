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

package memberindex

import (
	"github.com/blevesearch/bleve"

	"github.com/wardle/snomedq/snomed"
)

const streamPageSize = 10000

// Search returns the set of distinct referencedComponentId values of every
// refset item matching q, per spec §4.3 — an ECL member filter constraint
// needs every match, not a ranked top-K, so this walks the whole result set
// via unscored pagination exactly like searchindex.StreamAll.
func Search(idx *Index, q bleve.Query) ([]snomed.ConceptID, error) {
	seen := make(map[snomed.ConceptID]bool)
	var result []snomed.ConceptID
	from := 0
	for {
		req := bleve.NewSearchRequestOptions(q, streamPageSize, from, false)
		req.SortBy([]string{"_id"})
		req.Fields = []string{FieldReferencedComponentID}
		res, err := idx.bleve.Search(req)
		if err != nil {
			return nil, err
		}
		if len(res.Hits) == 0 {
			break
		}
		for _, h := range res.Hits {
			v, ok := h.Fields[FieldReferencedComponentID].(float64)
			if !ok {
				continue
			}
			c := snomed.ConceptID(v)
			if !seen[c] {
				seen[c] = true
				result = append(result, c)
			}
		}
		from += len(res.Hits)
		if len(res.Hits) < streamPageSize {
			break
		}
	}
	return result, nil
}
