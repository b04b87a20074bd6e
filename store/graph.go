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
	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/wardle/snomedq/snomed"
)

// AllParents computes the reflexive-transitive closure of c over the
// IsA relationship (or the given typeID), via breadth-first traversal of
// conceptParentRelationships. The result always includes c itself.
// Results are accumulated in a compressed roaring64 bitmap: this closure
// can run to thousands of members for concepts near the root, and the
// description index build computes one of these per attribute type per
// concept, so keeping the set compact matters.
func (cs *ComponentStore) AllParents(c snomed.ConceptID, typeID ...snomed.ConceptID) (*roaring64.Bitmap, error) {
	t := snomed.IsAConcept
	if len(typeID) == 1 {
		t = typeID[0]
	}
	result := roaring64.New()
	result.Add(uint64(c))
	frontier := []snomed.ConceptID{c}
	for len(frontier) > 0 {
		var next []snomed.ConceptID
		for _, id := range frontier {
			parents, err := cs.ProximalParentIds(id, t)
			if err != nil {
				return nil, err
			}
			for _, p := range parents {
				if !result.Contains(uint64(p)) {
					result.Add(uint64(p))
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	return result, nil
}

// AllChildren computes the reflexive-transitive closure of c over the
// inverse IsA relationship (or the given typeID). The result always
// includes c itself.
func (cs *ComponentStore) AllChildren(c snomed.ConceptID, typeID ...snomed.ConceptID) (*roaring64.Bitmap, error) {
	t := snomed.IsAConcept
	if len(typeID) == 1 {
		t = typeID[0]
	}
	result := roaring64.New()
	result.Add(uint64(c))
	frontier := []snomed.ConceptID{c}
	for len(frontier) > 0 {
		var next []snomed.ConceptID
		for _, id := range frontier {
			tuples, err := cs.RawChildRelationships(id, t)
			if err != nil {
				return nil, err
			}
			for _, rt := range tuples {
				child := rt.Source
				if !result.Contains(uint64(child)) {
					result.Add(uint64(child))
					next = append(next, child)
				}
			}
		}
		frontier = next
	}
	return result, nil
}

// ProximalParentIds returns the immediate-destination set of the IsA (or
// given typeID) parent relationships of c.
func (cs *ComponentStore) ProximalParentIds(c snomed.ConceptID, typeID ...snomed.ConceptID) ([]snomed.ConceptID, error) {
	t := snomed.IsAConcept
	if len(typeID) == 1 {
		t = typeID[0]
	}
	tuples, err := cs.RawParentRelationships(c, t)
	if err != nil {
		return nil, err
	}
	var result []snomed.ConceptID
	for _, rt := range tuples {
		result = append(result, rt.Destination)
	}
	return result, nil
}

// ParentRelationships returns every parent relationship of c, grouped by
// attribute type, as typeId -> set of destination concept ids.
func (cs *ComponentStore) ParentRelationships(c snomed.ConceptID) (map[snomed.ConceptID]*roaring64.Bitmap, error) {
	tuples, err := cs.RawParentRelationships(c)
	if err != nil {
		return nil, err
	}
	result := make(map[snomed.ConceptID]*roaring64.Bitmap)
	for _, rt := range tuples {
		bm, ok := result[rt.TypeID]
		if !ok {
			bm = roaring64.New()
			result[rt.TypeID] = bm
		}
		bm.Add(uint64(rt.Destination))
	}
	return result, nil
}

// ParentRelationshipsExpanded is ParentRelationships with every
// destination replaced by its own AllParents closure: this is the
// precomputed field the description index materialises per concept at
// build time (the `str(typeId)` fields of spec §4.2), so that an ECL
// attribute query becomes a single exact-match lookup instead of a
// run-time closure walk.
func (cs *ComponentStore) ParentRelationshipsExpanded(c snomed.ConceptID) (map[snomed.ConceptID]*roaring64.Bitmap, error) {
	direct, err := cs.ParentRelationships(c)
	if err != nil {
		return nil, err
	}
	result := make(map[snomed.ConceptID]*roaring64.Bitmap, len(direct))
	for typeID, destinations := range direct {
		expanded := roaring64.New()
		it := destinations.Iterator()
		for it.HasNext() {
			dest := snomed.ConceptID(it.Next())
			closure, err := cs.AllParents(dest)
			if err != nil {
				return nil, err
			}
			expanded.Or(closure)
		}
		result[typeID] = expanded
	}
	return result, nil
}

// GroupedProperties partitions the parent relationships of c (optionally
// restricted to typeID) by relationshipGroup.
func (cs *ComponentStore) GroupedProperties(c snomed.ConceptID, typeID ...snomed.ConceptID) (map[int]map[snomed.ConceptID]*roaring64.Bitmap, error) {
	var tuples []RelationshipTuple
	var err error
	if len(typeID) == 1 {
		tuples, err = cs.RawParentRelationships(c, typeID[0])
	} else {
		tuples, err = cs.RawParentRelationships(c)
	}
	if err != nil {
		return nil, err
	}
	result := make(map[int]map[snomed.ConceptID]*roaring64.Bitmap)
	for _, rt := range tuples {
		byType, ok := result[rt.Group]
		if !ok {
			byType = make(map[snomed.ConceptID]*roaring64.Bitmap)
			result[rt.Group] = byType
		}
		bm, ok := byType[rt.TypeID]
		if !ok {
			bm = roaring64.New()
			byType[rt.TypeID] = bm
		}
		bm.Add(uint64(rt.Destination))
	}
	return result, nil
}

// Leaves returns set minus the union of AllParents(x) \ {x} for each x in
// set: the members of set that are not an ancestor of any other member.
func (cs *ComponentStore) Leaves(set []snomed.ConceptID) ([]snomed.ConceptID, error) {
	members := roaring64.New()
	for _, id := range set {
		members.Add(uint64(id))
	}
	ancestors := roaring64.New()
	for _, id := range set {
		closure, err := cs.AllParents(id)
		if err != nil {
			return nil, err
		}
		it := closure.Iterator()
		for it.HasNext() {
			p := it.Next()
			if p != uint64(id) {
				ancestors.Add(p)
			}
		}
	}
	members.AndNot(ancestors)
	result := make([]snomed.ConceptID, 0, members.GetCardinality())
	it := members.Iterator()
	for it.HasNext() {
		result = append(result, snomed.ConceptID(it.Next()))
	}
	return result, nil
}
