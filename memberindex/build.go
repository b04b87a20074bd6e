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
	"github.com/wardle/snomedq/snomed"
	"github.com/wardle/snomedq/store"
)

const batchSize = 2000

// Build streams every refset item out of cs and indexes one document per
// item, the column set driven by the item's subtype (spec §4.3). Unlike the
// description index's per-concept fan-out, a refset item is already a
// single flat record, so the build is a single sequential streaming batch —
// grounded on the same `IndexRelationships`/`IndexRefsets`
// drop-and-rebuild-from-scratch shape the component store uses, applied
// here to the search index instead of the store's own buckets.
func Build(cs *store.ComponentStore, idx *Index) error {
	batch := idx.bleve.NewBatch()
	n := 0
	err := cs.IterateRefsetItems(func(item *snomed.RefsetItem) error {
		doc := documentFor(item)
		if err := batch.Index(item.ID.String(), doc); err != nil {
			return err
		}
		n++
		if n >= batchSize {
			if err := idx.bleve.Batch(batch); err != nil {
				return err
			}
			batch = idx.bleve.NewBatch()
			n = 0
		}
		return nil
	})
	if err != nil {
		return err
	}
	if n > 0 {
		return idx.bleve.Batch(batch)
	}
	return nil
}

func documentFor(item *snomed.RefsetItem) map[string]interface{} {
	doc := map[string]interface{}{
		FieldID:                    item.ID.String(),
		FieldRefsetID:              float64(item.RefsetID),
		FieldModuleID:              float64(item.ModuleID),
		FieldReferencedComponentID: float64(item.ReferencedComponentID),
		FieldActive:                activeKeyword(item.Active),
		FieldEffectiveTime:         float64(item.EffectiveTime.UnixMilli()),
	}
	switch item.Kind {
	case snomed.RefsetLanguage:
		doc["acceptability-id"] = float64(item.AcceptabilityID)
	case snomed.RefsetSimpleMap:
		doc["map-target"] = item.MapTarget
	case snomed.RefsetComplexMap, snomed.RefsetExtendedMap:
		doc["map-target"] = item.MapTarget
		doc["map-group"] = float64(item.MapGroup)
		doc["map-priority"] = float64(item.MapPriority)
		doc["map-rule"] = item.MapRule
		doc["map-advice"] = item.MapAdvice
		doc["correlation-id"] = float64(item.CorrelationID)
		doc["map-category-id"] = float64(item.MapCategoryID)
	case snomed.RefsetAssociation:
		doc[FieldTargetComponentID] = float64(item.TargetComponentID)
	case snomed.RefsetAttributeValue:
		doc["value-id"] = float64(item.ValueID)
	case snomed.RefsetOWLExpression:
		doc["owl-expression"] = item.OWLExpression
	case snomed.RefsetDescriptor:
		doc["attribute-description-id"] = float64(item.AttributeDescriptionID)
		doc["attribute-type-id"] = float64(item.AttributeTypeID)
		doc["attribute-order"] = float64(item.AttributeOrder)
	case snomed.RefsetModuleDependency:
		doc["source-effective-time"] = float64(item.SourceEffectiveTime.UnixMilli())
		doc["target-effective-time"] = float64(item.TargetEffectiveTime.UnixMilli())
	case snomed.RefsetMRCMDomain, snomed.RefsetMRCMAttributeDomain, snomed.RefsetMRCMAttributeRange, snomed.RefsetMRCMModuleScope:
		doc["domain-id"] = float64(item.Domain)
		doc["grouped"] = activeKeyword(item.Grouped)
		doc["attribute-cardinality"] = item.AttributeCardinality
		doc["attribute-in-group-cardinality"] = item.AttributeInGroupCardinality
		doc["rule-strength-id"] = float64(item.RuleStrengthID)
		doc["content-type-id"] = float64(item.ContentTypeID)
		doc["range-constraint"] = item.RangeConstraint
		doc["attribute-rule"] = item.AttributeRule
	}
	return doc
}

func activeKeyword(active bool) string {
	if active {
		return "true"
	}
	return "false"
}
