// Package catalog maps index slots to reference accessions and their taxonomic labels.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// NA marks an absent identifier or label.
const NA = "NA"

var (
	// ErrLengthMismatch is returned when slots, ids and labels cannot be aligned.
	ErrLengthMismatch = errors.New("catalog length mismatch")
	// ErrUnknownSlot is returned when the index reports a slot the catalog does not hold.
	// It signals index/catalog corruption and is never retried.
	ErrUnknownSlot = errors.New("unknown catalog slot")
)

// Labels are the taxonomy fields attached to a reference accession.
type Labels struct {
	Phylum         string `json:"phylum,omitempty"`
	Class          string `json:"class,omitempty"`
	TaxID          string `json:"taxid,omitempty"`
	ScientificName string `json:"scientific_name,omitempty"`
}

// ReferenceEntry is the catalog row for one index slot.
type ReferenceEntry struct {
	Slot           int64  `json:"slot"`
	ExternalID     string `json:"ref_id"`
	Phylum         string `json:"phylum"`
	Class          string `json:"class"`
	TaxID          string `json:"taxid,omitempty"`
	ScientificName string `json:"scientific_name,omitempty"`
}

// HasLabel reports whether phylum or class is known.
func (e ReferenceEntry) HasLabel() bool {
	return e.Phylum != NA || e.Class != NA
}

// Sentinel is the placeholder top hit for a query with no candidates.
func Sentinel() ReferenceEntry {
	return ReferenceEntry{Slot: -1, ExternalID: NA, Phylum: NA, Class: NA}
}

func orNA(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return NA
	}
	return s
}

// Catalog is an immutable slot-ordered list of reference entries.
type Catalog struct {
	entries []ReferenceEntry
	byID    map[string]int64
}

// Attach builds a catalog from the slots returned by the index, the accession of each
// added vector and a label table keyed by accession. Slots must be 0..n-1 in order.
// Accessions without labels get NA phylum and class.
func Attach(slots []int64, externalIDs []string, labels map[string]Labels) (*Catalog, error) {
	if len(slots) != len(externalIDs) {
		return nil, fmt.Errorf("%w: %d slots, %d ids", ErrLengthMismatch, len(slots), len(externalIDs))
	}
	c := &Catalog{
		entries: make([]ReferenceEntry, len(slots)),
		byID:    make(map[string]int64, len(slots)),
	}
	for i, slot := range slots {
		if slot != int64(i) {
			return nil, fmt.Errorf("%w: slot %d at position %d, slots must be contiguous from 0", ErrLengthMismatch, slot, i)
		}
		id := orNA(externalIDs[i])
		l := labels[id]
		c.entries[i] = ReferenceEntry{
			Slot:           slot,
			ExternalID:     id,
			Phylum:         orNA(l.Phylum),
			Class:          orNA(l.Class),
			TaxID:          strings.TrimSpace(l.TaxID),
			ScientificName: strings.TrimSpace(l.ScientificName),
		}
		if _, dup := c.byID[id]; !dup {
			c.byID[id] = slot
		}
	}
	return c, nil
}

// Lookup returns the entry stored at slot.
func (c *Catalog) Lookup(slot int64) (ReferenceEntry, error) {
	if slot < 0 || slot >= int64(len(c.entries)) {
		return ReferenceEntry{}, fmt.Errorf("%w: %d (catalog holds %d)", ErrUnknownSlot, slot, len(c.entries))
	}
	return c.entries[slot], nil
}

// ByExternalID returns the first entry with the given accession.
func (c *Catalog) ByExternalID(id string) (ReferenceEntry, bool) {
	slot, ok := c.byID[id]
	if !ok {
		return ReferenceEntry{}, false
	}
	return c.entries[slot], true
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns a copy of all entries in slot order.
func (c *Catalog) Entries() []ReferenceEntry {
	out := make([]ReferenceEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
