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
	"bytes"
	"encoding/binary"

	"github.com/wardle/snomedq/snomed"
)

// ComponentStore is the authoritative persistent store for SNOMED-CT
// components, exposing the write and read contracts of spec §4.1 on top
// of the raw Batch/Store abstraction.
type ComponentStore struct {
	backing Store
}

// NewComponentStore wraps an opened Store with the component read/write
// contract.
func NewComponentStore(backing Store) *ComponentStore {
	return &ComponentStore{backing: backing}
}

// Close releases the underlying store.
func (cs *ComponentStore) Close() error { return cs.backing.Close() }

// RelationshipTuple is one row of a raw parent or child relationship scan:
// (source, type, group, destination).
type RelationshipTuple struct {
	Source      snomed.ConceptID
	TypeID      snomed.ConceptID
	Group       int
	Destination snomed.ConceptID
}

// --- write contract -------------------------------------------------------

// upsertIfNewer generalises the repeated "only write a strictly newer
// effectiveTime" pattern duplicated across the teacher's putConcepts/
// putDescriptions/putRelationships/putReferenceSets. It reads the currently
// stored record with batch.Get (ErrNotFound means none is stored);
// decodeEffective extracts a comparable instant from a stored record.
func upsertIfNewer(batch Batch, b bucket, key []byte, newRecord []byte, newEffective int64, decodeEffective func([]byte) (int64, error)) error {
	existing, err := batch.Get(b, key)
	if err == ErrNotFound {
		batch.Put(b, key, newRecord)
		return nil
	}
	if err != nil {
		return err
	}
	oldEffective, err := decodeEffective(existing)
	if err != nil {
		return err
	}
	if newEffective > oldEffective {
		batch.Put(b, key, newRecord)
	}
	return nil
}

func effectiveTimeOfConcept(b []byte) (int64, error) {
	c, err := snomed.DecodeConcept(b)
	if err != nil {
		return 0, err
	}
	return c.EffectiveTime.Unix(), nil
}

func effectiveTimeOfDescription(b []byte) (int64, error) {
	d, err := snomed.DecodeDescription(b)
	if err != nil {
		return 0, err
	}
	return d.EffectiveTime.Unix(), nil
}

func effectiveTimeOfRelationship(b []byte) (int64, error) {
	r, err := snomed.DecodeRelationship(b)
	if err != nil {
		return 0, err
	}
	return r.EffectiveTime.Unix(), nil
}

func effectiveTimeOfConcreteValue(b []byte) (int64, error) {
	v, err := snomed.DecodeConcreteValue(b)
	if err != nil {
		return 0, err
	}
	return v.EffectiveTime.Unix(), nil
}

func effectiveTimeOfRefsetItem(b []byte) (int64, error) {
	item, err := snomed.DecodeRefsetItem(b)
	if err != nil {
		return 0, err
	}
	return item.EffectiveTime.Unix(), nil
}

// WriteConcept upserts a concept if its effectiveTime is strictly newer
// than the stored version.
func (cs *ComponentStore) WriteConcept(c *snomed.Concept) error {
	key := int64Key(int64(c.ID))
	rec := snomed.EncodeConcept(c)
	return cs.backing.Update(func(batch Batch) error {
		return upsertIfNewer(batch, bkConcepts, key, rec, c.EffectiveTime.Unix(), effectiveTimeOfConcept)
	})
}

// WriteDescription upserts a description and records its descriptionConcept
// index entry.
func (cs *ComponentStore) WriteDescription(d *snomed.Description) error {
	cdKey := compound2(int64(d.ConceptID), int64(d.ID))
	rec := snomed.EncodeDescription(d)
	return cs.backing.Update(func(batch Batch) error {
		if err := upsertIfNewer(batch, bkConceptDescriptions, cdKey, rec, d.EffectiveTime.Unix(), effectiveTimeOfDescription); err != nil {
			return err
		}
		batch.AddIndexEntry(ixDescriptionConcept, int64Key(int64(d.ID)), int64Key(int64(d.ConceptID)))
		return nil
	})
}

// WriteRelationship upserts a relationship keyed by its own id. Index
// population (parent/child traversal buckets) happens separately in
// IndexRelationships, a full rebuild batched after bulk writes per spec
// §4.1's write contract.
func (cs *ComponentStore) WriteRelationship(r *snomed.Relationship) error {
	key := int64Key(int64(r.ID))
	rec := snomed.EncodeRelationship(r)
	return cs.backing.Update(func(batch Batch) error {
		return upsertIfNewer(batch, bkRelationships, key, rec, r.EffectiveTime.Unix(), effectiveTimeOfRelationship)
	})
}

// WriteConcreteValue upserts a concrete value keyed by sourceConceptId ∥
// relationshipId.
func (cs *ComponentStore) WriteConcreteValue(v *snomed.ConcreteValue) error {
	key := compound2(int64(v.SourceID), int64(v.ID))
	rec := snomed.EncodeConcreteValue(v)
	return cs.backing.Update(func(batch Batch) error {
		return upsertIfNewer(batch, bkConcreteValues, key, rec, v.EffectiveTime.Unix(), effectiveTimeOfConcreteValue)
	})
}

// WriteRefsetItem upserts a refset item and records the column-name list
// for its refsetId, first writer wins.
func (cs *ComponentStore) WriteRefsetItem(item *snomed.RefsetItem, fieldNames []string) error {
	key := uuidKey(item.ID[0], item.ID[1])
	rec := snomed.EncodeRefsetItem(item)
	refsetKey := int64Key(int64(item.RefsetID))
	return cs.backing.Update(func(batch Batch) error {
		if err := upsertIfNewer(batch, bkRefsetItems, key, rec, item.EffectiveTime.Unix(), effectiveTimeOfRefsetItem); err != nil {
			return err
		}
		if _, err := batch.Get(bkRefsetFieldNames, refsetKey); err == ErrNotFound {
			batch.Put(bkRefsetFieldNames, refsetKey, encodeFieldNames(fieldNames))
		} else if err != nil {
			return err
		}
		return nil
	})
}

func encodeFieldNames(names []string) []byte {
	var buf bytes.Buffer
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(names)))
	buf.Write(lb[:])
	for _, n := range names {
		binary.BigEndian.PutUint16(lb[:], uint16(len(n)))
		buf.Write(lb[:])
		buf.WriteString(n)
	}
	return buf.Bytes()
}

func decodeFieldNames(b []byte) []string {
	if len(b) < 2 {
		return nil
	}
	count := binary.BigEndian.Uint16(b[0:2])
	i := 2
	names := make([]string, 0, count)
	for n := uint16(0); n < count; n++ {
		l := int(binary.BigEndian.Uint16(b[i : i+2]))
		i += 2
		names = append(names, string(b[i:i+l]))
		i += l
	}
	return names
}

// --- read contract ---------------------------------------------------------

// Concept returns the concept with the given identifier.
func (cs *ComponentStore) Concept(id snomed.ConceptID) (*snomed.Concept, error) {
	var rec []byte
	err := cs.backing.View(func(batch Batch) error {
		v, err := batch.Get(bkConcepts, int64Key(int64(id)))
		if err != nil {
			return err
		}
		rec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snomed.DecodeConcept(rec)
}

// Description returns the description with the given id within the given
// concept.
func (cs *ComponentStore) Description(conceptID snomed.ConceptID, descriptionID snomed.DescriptionID) (*snomed.Description, error) {
	var rec []byte
	err := cs.backing.View(func(batch Batch) error {
		v, err := batch.Get(bkConceptDescriptions, compound2(int64(conceptID), int64(descriptionID)))
		if err != nil {
			return err
		}
		rec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snomed.DecodeDescription(rec)
}

// DescriptionByID resolves a description by its identifier alone, via the
// descriptionConcept index.
func (cs *ComponentStore) DescriptionByID(id snomed.DescriptionID) (*snomed.Description, error) {
	var conceptID snomed.ConceptID
	err := cs.backing.View(func(batch Batch) error {
		entries, err := batch.GetIndexEntries(ixDescriptionConcept, int64Key(int64(id)))
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return ErrNotFound
		}
		conceptID = snomed.ConceptID(int64Of(entries[0]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs.Description(conceptID, id)
}

// Descriptions returns every description belonging to conceptID.
func (cs *ComponentStore) Descriptions(conceptID snomed.ConceptID) ([]*snomed.Description, error) {
	var result []*snomed.Description
	err := cs.backing.View(func(batch Batch) error {
		return batch.Iterate(bkConceptDescriptions, int64Key(int64(conceptID)), func(_, v []byte) error {
			d, err := snomed.DecodeDescription(v)
			if err != nil {
				return err
			}
			result = append(result, d)
			return nil
		})
	})
	return result, err
}

// ConcreteValues returns the concrete values attached to conceptID.
func (cs *ComponentStore) ConcreteValues(conceptID snomed.ConceptID) ([]*snomed.ConcreteValue, error) {
	var result []*snomed.ConcreteValue
	err := cs.backing.View(func(batch Batch) error {
		return batch.Iterate(bkConcreteValues, int64Key(int64(conceptID)), func(_, v []byte) error {
			cv, err := snomed.DecodeConcreteValue(v)
			if err != nil {
				return err
			}
			result = append(result, cv)
			return nil
		})
	})
	return result, err
}

// RefsetItem returns a single refset item by its uuid.
func (cs *ComponentStore) RefsetItem(id snomed.RefsetItemID) (*snomed.RefsetItem, error) {
	var rec []byte
	err := cs.backing.View(func(batch Batch) error {
		v, err := batch.Get(bkRefsetItems, uuidKey(id[0], id[1]))
		if err != nil {
			return err
		}
		rec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snomed.DecodeRefsetItem(rec)
}

// RefsetFieldNames returns the column-name list recorded for a refset id.
func (cs *ComponentStore) RefsetFieldNames(refsetID snomed.ConceptID) ([]string, error) {
	var names []string
	err := cs.backing.View(func(batch Batch) error {
		v, err := batch.Get(bkRefsetFieldNames, int64Key(int64(refsetID)))
		if err == ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		names = decodeFieldNames(v)
		return nil
	})
	return names, err
}

// RawParentRelationships returns the (source, type, group, destination)
// tuples in which conceptID is the source, optionally restricted to a
// single relationship type.
func (cs *ComponentStore) RawParentRelationships(conceptID snomed.ConceptID, typeID ...snomed.ConceptID) ([]RelationshipTuple, error) {
	return cs.rawRelationships(ixConceptParentRelationships, conceptID, true, typeID...)
}

// RawChildRelationships returns the (source, type, group, destination)
// tuples in which conceptID is the destination, optionally restricted to
// a single relationship type.
func (cs *ComponentStore) RawChildRelationships(conceptID snomed.ConceptID, typeID ...snomed.ConceptID) ([]RelationshipTuple, error) {
	return cs.rawRelationships(ixConceptChildRelationships, conceptID, false, typeID...)
}

func (cs *ComponentStore) rawRelationships(idx bucket, conceptID snomed.ConceptID, byParent bool, typeID ...snomed.ConceptID) ([]RelationshipTuple, error) {
	prefix := int64Key(int64(conceptID))
	var result []RelationshipTuple
	err := cs.backing.View(func(batch Batch) error {
		entries, err := batch.GetIndexEntries(idx, prefix)
		if err != nil {
			return err
		}
		for _, e := range entries {
			// the index key is always sourceId ∥ typeId ∥ group ∥ destinationId
			// (or the symmetric destinationId ∥ typeId ∥ group ∥ sourceId for
			// the child index); with the 8-byte conceptID prefix stripped the
			// remainder is typeId(8) ∥ group(8) ∥ other(8), and an optional
			// typeID filters on typ after decoding rather than narrowing the
			// scan prefix.
			if len(e) != 24 {
				continue
			}
			typ := snomed.ConceptID(int64Of(e[0:8]))
			group := int(int64Of(e[8:16]))
			other := snomed.ConceptID(int64Of(e[16:24]))
			if len(typeID) == 1 && typ != typeID[0] {
				continue
			}
			t := RelationshipTuple{TypeID: typ, Group: group, Destination: other}
			if byParent {
				t.Source = conceptID
			} else {
				t.Source = other
				t.Destination = conceptID
			}
			result = append(result, t)
		}
		return nil
	})
	return result, err
}

// ComponentRefsetItems returns the refset items referencing componentID,
// optionally restricted to a single refsetID.
func (cs *ComponentStore) ComponentRefsetItems(componentID snomed.ConceptID, refsetID ...snomed.ConceptID) ([]*snomed.RefsetItem, error) {
	prefix := int64Key(int64(componentID))
	if len(refsetID) == 1 {
		prefix = compound2(int64(componentID), int64(refsetID[0]))
	}
	var result []*snomed.RefsetItem
	err := cs.backing.View(func(batch Batch) error {
		entries, err := batch.GetIndexEntries(ixComponentRefsets, prefix)
		if err != nil {
			return err
		}
		for _, e := range entries {
			// remainder after the matched prefix is [refsetId?] ∥ uuidMsb ∥ uuidLsb
			if len(e) != 16 && len(e) != 24 {
				continue
			}
			msb := uint64(int64Of(e[len(e)-16 : len(e)-8]))
			lsb := uint64(int64Of(e[len(e)-8:]))
			rec, err := batch.Get(bkRefsetItems, uuidKey(msb, lsb))
			if err != nil {
				continue
			}
			item, err := snomed.DecodeRefsetItem(rec)
			if err != nil {
				return err
			}
			result = append(result, item)
		}
		return nil
	})
	return result, err
}

// ComponentRefsetIDs returns the set of refset identifiers of which
// componentID is a member.
func (cs *ComponentStore) ComponentRefsetIDs(componentID snomed.ConceptID) ([]snomed.ConceptID, error) {
	items, err := cs.ComponentRefsetItems(componentID)
	if err != nil {
		return nil, err
	}
	seen := make(map[snomed.ConceptID]struct{})
	var ids []snomed.ConceptID
	for _, item := range items {
		if _, ok := seen[item.RefsetID]; !ok {
			seen[item.RefsetID] = struct{}{}
			ids = append(ids, item.RefsetID)
		}
	}
	return ids, nil
}

// ComponentInRefset reports whether componentID is an active member of
// refsetID.
func (cs *ComponentStore) ComponentInRefset(componentID, refsetID snomed.ConceptID) (bool, error) {
	items, err := cs.ComponentRefsetItems(componentID, refsetID)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.Active {
			return true, nil
		}
	}
	return false, nil
}

// SourceAssociations returns the association refset items whose target is
// componentID, optionally restricted to a single refsetID.
func (cs *ComponentStore) SourceAssociations(componentID snomed.ConceptID, refsetID ...snomed.ConceptID) ([]*snomed.RefsetItem, error) {
	prefix := int64Key(int64(componentID))
	if len(refsetID) == 1 {
		prefix = compound2(int64(componentID), int64(refsetID[0]))
	}
	var result []*snomed.RefsetItem
	err := cs.backing.View(func(batch Batch) error {
		entries, err := batch.GetIndexEntries(ixAssociations, prefix)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if len(e) < 16 {
				continue
			}
			msb := uint64(int64Of(e[len(e)-16 : len(e)-8]))
			lsb := uint64(int64Of(e[len(e)-8:]))
			rec, err := batch.Get(bkRefsetItems, uuidKey(msb, lsb))
			if err != nil {
				continue
			}
			item, err := snomed.DecodeRefsetItem(rec)
			if err != nil {
				return err
			}
			result = append(result, item)
		}
		return nil
	})
	return result, err
}

// SourceAssociationReferencedComponents returns the referencedComponentId
// of every active association in refsetID that targets componentID.
func (cs *ComponentStore) SourceAssociationReferencedComponents(componentID, refsetID snomed.ConceptID) ([]snomed.ConceptID, error) {
	items, err := cs.SourceAssociations(componentID, refsetID)
	if err != nil {
		return nil, err
	}
	var result []snomed.ConceptID
	for _, item := range items {
		if item.Active {
			result = append(result, item.ReferencedComponentID)
		}
	}
	return result, nil
}

// IterateConcepts streams every concept in the store to f, in key (ascending
// identifier) order. Used by the description index build (spec §4.2, "stream
// every active concept") rather than materialising the whole component list.
func (cs *ComponentStore) IterateConcepts(f func(*snomed.Concept) error) error {
	return cs.backing.View(func(batch Batch) error {
		return batch.Iterate(bkConcepts, nil, func(_, v []byte) error {
			c, err := snomed.DecodeConcept(v)
			if err != nil {
				return err
			}
			return f(c)
		})
	})
}

// IterateRefsetItems streams every refset item in the store to f. Used by
// the refset member index build (spec §4.3).
func (cs *ComponentStore) IterateRefsetItems(f func(*snomed.RefsetItem) error) error {
	return cs.backing.View(func(batch Batch) error {
		return batch.Iterate(bkRefsetItems, nil, func(_, v []byte) error {
			item, err := snomed.DecodeRefsetItem(v)
			if err != nil {
				return err
			}
			return f(item)
		})
	})
}

// InstalledReferenceSets returns exactly the refsetIds that have at least
// one imported member, i.e. the keys of the refsetFieldNames bucket.
func (cs *ComponentStore) InstalledReferenceSets() ([]snomed.ConceptID, error) {
	var result []snomed.ConceptID
	err := cs.backing.View(func(batch Batch) error {
		return batch.Iterate(bkRefsetFieldNames, nil, func(k, _ []byte) error {
			result = append(result, snomed.ConceptID(int64Of(k)))
			return nil
		})
	})
	return result, err
}

// IndexRelationships drops and rebuilds the parent/child traversal
// indices by scanning every relationship in the store, emitting entries
// only for rows that are currently active. This is the batched index
// population step of spec §4.1's write contract: callers invoke it after
// any bulk write of relationships.
func (cs *ComponentStore) IndexRelationships() error {
	return cs.backing.Update(func(batch Batch) error {
		if err := batch.ClearIndexEntries(ixConceptParentRelationships); err != nil {
			return err
		}
		if err := batch.ClearIndexEntries(ixConceptChildRelationships); err != nil {
			return err
		}
		return batch.Iterate(bkRelationships, nil, func(_, v []byte) error {
			r, err := snomed.DecodeRelationship(v)
			if err != nil {
				return err
			}
			if !r.Active {
				return nil
			}
			group := int64Key(int64(r.RelationshipGroup))
			typ := int64Key(int64(r.TypeID))
			src := int64Key(int64(r.SourceID))
			dst := int64Key(int64(r.DestinationID))
			batch.AddIndexEntry(ixConceptParentRelationships, src, compoundKey(typ, group, dst))
			batch.AddIndexEntry(ixConceptChildRelationships, dst, compoundKey(typ, group, src))
			return nil
		})
	})
}

// IndexRefsets drops and rebuilds the component-membership and
// association indices by scanning every refset item in the store,
// emitting entries only for rows that are currently active.
func (cs *ComponentStore) IndexRefsets() error {
	return cs.backing.Update(func(batch Batch) error {
		if err := batch.ClearIndexEntries(ixComponentRefsets); err != nil {
			return err
		}
		if err := batch.ClearIndexEntries(ixAssociations); err != nil {
			return err
		}
		return batch.Iterate(bkRefsetItems, nil, func(_, v []byte) error {
			item, err := snomed.DecodeRefsetItem(v)
			if err != nil {
				return err
			}
			if !item.Active {
				return nil
			}
			refset := int64Key(int64(item.RefsetID))
			uid := uuidKey(item.ID[0], item.ID[1])
			batch.AddIndexEntry(ixComponentRefsets, int64Key(int64(item.ReferencedComponentID)), compoundKey(refset, uid))
			if item.Kind == snomed.RefsetAssociation {
				target := int64Key(int64(item.TargetComponentID))
				batch.AddIndexEntry(ixAssociations, target, compoundKey(refset, int64Key(int64(item.ReferencedComponentID)), uid))
			}
			return nil
		})
	})
}
