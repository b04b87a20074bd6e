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

// Package memberindex is the refset member index of spec §4.3: a second
// bleve/scorch index, one document per refset item, used to answer ECL
// member filter constraints that predicate on refset *columns* rather than
// on the component store's graph. Grounded on the same scorch-indexing
// idiom as the description index (searchindex), generalised here to the
// dynamic per-refset-descriptor column set instead of a fixed schema.
package memberindex

import (
	"fmt"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/index/scorch"
	"github.com/blevesearch/bleve/mapping"
)

const documentType = "member"

// Fixed field names common to every refset item regardless of subtype.
const (
	FieldID                    = "id"
	FieldRefsetID              = "refset-id"
	FieldModuleID              = "module-id"
	FieldReferencedComponentID = "referenced-component-id"
	FieldTargetComponentID     = "target-component-id"
	FieldActive                = "active"
	FieldEffectiveTime         = "effective-time"
)

// Index wraps the member-index bleve/scorch instance.
type Index struct {
	bleve bleve.Index
}

// Open opens or creates the member index at path.
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
		return nil, fmt.Errorf("memberindex: cannot open in read-only mode, index does not exist at %s", path)
	}
	idx, err = bleve.NewUsing(path, buildMapping(), scorch.Name, scorch.Name, nil)
	if err != nil {
		return nil, err
	}
	return &Index{bleve: idx}, nil
}

// buildMapping declares the common columns explicitly; every
// refset-descriptor-specific column, indexed under its kebab-case field name
// (map-target, acceptability-id, …), is left to bleve's dynamic field
// detection, since the
// actual column set is only known per refset, driven by the refset
// descriptor refset (900000000000456007).
func buildMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	doc.Dynamic = true
	indexMapping.AddDocumentMapping(documentType, doc)
	indexMapping.DefaultType = documentType

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	idField.IncludeInAll = false
	doc.AddFieldMappingsAt(FieldID, idField)

	boolField := bleve.NewTextFieldMapping()
	boolField.Analyzer = keyword.Name
	boolField.Store = false
	boolField.IncludeInAll = false
	doc.AddFieldMappingsAt(FieldActive, boolField)

	numeric := bleve.NewNumericFieldMapping()
	numeric.Store = true
	doc.AddFieldMappingsAt(FieldRefsetID, numeric)
	doc.AddFieldMappingsAt(FieldModuleID, numeric)
	doc.AddFieldMappingsAt(FieldReferencedComponentID, numeric)
	doc.AddFieldMappingsAt(FieldTargetComponentID, numeric)
	doc.AddFieldMappingsAt(FieldEffectiveTime, numeric)
	return indexMapping
}

// Close releases the underlying bleve index.
func (ix *Index) Close() error { return ix.bleve.Close() }
