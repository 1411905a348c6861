package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// metaFile is the persisted form: accessions in slot order plus labels by accession.
type metaFile struct {
	IDs    []string          `json:"ids"`
	Labels map[string]Labels `json:"labels"`
}

// Save writes the catalog as {"ids": [...], "labels": {id: {...}}}.
func (c *Catalog) Save(w io.Writer) error {
	m := metaFile{
		IDs:    make([]string, len(c.entries)),
		Labels: make(map[string]Labels, len(c.entries)),
	}
	for i, e := range c.entries {
		m.IDs[i] = e.ExternalID
		m.Labels[e.ExternalID] = Labels{
			Phylum:         e.Phylum,
			Class:          e.Class,
			TaxID:          e.TaxID,
			ScientificName: e.ScientificName,
		}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return nil
}

// Load reads a catalog written by Save. Slots are the positions in "ids".
func Load(r io.Reader) (*Catalog, error) {
	var m metaFile
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	slots := make([]int64, len(m.IDs))
	for i := range slots {
		slots[i] = int64(i)
	}
	return Attach(slots, m.IDs, m.Labels)
}

// ReadLabelsTSV reads an "accession taxid scientific_name phylum class" table with a
// header row. Blank lines are skipped; rows with fewer than five columns are rejected.
func ReadLabelsTSV(r io.Reader) (map[string]Labels, error) {
	out := make(map[string]Labels)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if line == 1 {
			continue
		}
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		cols := strings.Split(text, "\t")
		if len(cols) < 5 {
			return nil, fmt.Errorf("labels line %d: expected 5 columns, got %d", line, len(cols))
		}
		out[strings.TrimSpace(cols[0])] = Labels{
			TaxID:          cols[1],
			ScientificName: cols[2],
			Phylum:         cols[3],
			Class:          cols[4],
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return out, nil
}
