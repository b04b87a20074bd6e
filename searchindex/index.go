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
	"fmt"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/index/scorch"
	"github.com/blevesearch/bleve/mapping"
)

const documentType = "description"

// Index wraps a single bleve/scorch instance holding the description-index
// documents of spec §4.2.
type Index struct {
	bleve bleve.Index
}

// Open opens an existing index, or creates one at path if it doesn't exist.
// readOnly mirrors the teacher's read_only config map, used for a
// query-only process handle distinct from the exclusive import writer.
func Open(path string, readOnly bool) (*Index, error) {
	config := map[string]interface{}{"read_only": readOnly}
	idx, err := bleve.OpenUsing(path, config)
	if err == nil {
		return &Index{bleve: idx}, nil
	}
	if err != bleve.ErrorIndexPathDoesNotExist {
		return nil, err
	}
	if readOnly {
		return nil, fmt.Errorf("searchindex: cannot open in read-only mode, index does not exist at %s", path)
	}
	idx, err = bleve.NewUsing(path, buildMapping(), scorch.Name, scorch.Name, nil)
	if err != nil {
		return nil, err
	}
	return &Index{bleve: idx}, nil
}

// buildMapping declares explicit mappings for the fixed fields of spec
// §4.2's table; the per-attribute-type `str<t>`/`d<t>`/`c<t>`/`v<t>` fields
// and the keyword facets are left to bleve's dynamic field detection, since
// their names aren't known until a concept's actual attribute set is seen.
func buildMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	doc.Dynamic = true
	indexMapping.AddDocumentMapping(documentType, doc)
	indexMapping.DefaultType = documentType
	indexMapping.DefaultAnalyzer = "en"

	term := bleve.NewTextFieldMapping()
	term.Analyzer = "standard"
	term.Store = true
	doc.AddFieldMappingsAt(fieldTerm, term)

	stored := bleve.NewTextFieldMapping()
	stored.Analyzer = keyword.Name
	stored.Store = true
	stored.IncludeInAll = false
	doc.AddFieldMappingsAt(fieldPreferredTerm, stored)

	activeFlag := bleve.NewTextFieldMapping()
	activeFlag.Analyzer = keyword.Name
	activeFlag.Store = false
	activeFlag.IncludeInAll = false
	doc.AddFieldMappingsAt(fieldConceptActive, activeFlag)
	doc.AddFieldMappingsAt(fieldDescriptionActive, activeFlag)

	numeric := bleve.NewNumericFieldMapping()
	numeric.Store = true
	doc.AddFieldMappingsAt(fieldLengthBoost, numeric)
	doc.AddFieldMappingsAt(fieldModuleID, numeric)
	doc.AddFieldMappingsAt(fieldTypeID, numeric)
	doc.AddFieldMappingsAt(fieldDescriptionID, numeric)
	doc.AddFieldMappingsAt(fieldConceptID, numeric)
	doc.AddFieldMappingsAt(fieldPreferredIn, numeric)
	doc.AddFieldMappingsAt(fieldAcceptableIn, numeric)
	doc.AddFieldMappingsAt(fieldConceptRefsets, numeric)
	doc.AddFieldMappingsAt(fieldDescriptionRefsets, numeric)
	return indexMapping
}

// Close releases the underlying bleve index.
func (ix *Index) Close() error { return ix.bleve.Close() }
