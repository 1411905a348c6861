// Package fasta reads and writes FASTA sequence files.
package fasta

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed is returned for sequence data before the first header.
var ErrMalformed = errors.New("malformed FASTA")

// Record is one FASTA entry. ID is the first whitespace-separated token of the header.
type Record struct {
	ID          string
	Description string
	Sequence    string
}

// Reader yields records from a FASTA stream.
type Reader struct {
	sc      *bufio.Scanner
	line    int
	pending string
	hasNext bool
}

// NewReader wraps r. Lines up to 16 MiB are accepted.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	return &Reader{sc: sc}
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	header := r.pending
	found := r.hasNext
	r.hasNext = false
	for !found && r.sc.Scan() {
		r.line++
		line := strings.TrimSpace(r.sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if !strings.HasPrefix(line, ">") {
			return Record{}, fmt.Errorf("%w: line %d: sequence data before header", ErrMalformed, r.line)
		}
		header, found = line, true
	}
	if !found {
		if err := r.sc.Err(); err != nil {
			return Record{}, err
		}
		return Record{}, io.EOF
	}

	rec := parseHeader(header)
	var seq strings.Builder
	for r.sc.Scan() {
		r.line++
		line := strings.TrimSpace(r.sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, ">") {
			r.pending, r.hasNext = line, true
			break
		}
		seq.WriteString(line)
	}
	if err := r.sc.Err(); err != nil {
		return Record{}, err
	}
	rec.Sequence = seq.String()
	return rec, nil
}

func parseHeader(line string) Record {
	h := strings.TrimSpace(strings.TrimPrefix(line, ">"))
	id, desc, _ := strings.Cut(h, " ")
	if i := strings.IndexByte(id, '\t'); i >= 0 {
		id, desc = id[:i], id[i+1:]+" "+desc
	}
	return Record{ID: id, Description: strings.TrimSpace(desc)}
}

// ReadAll reads every record from r.
func ReadAll(r io.Reader) ([]Record, error) {
	fr := NewReader(r)
	var out []Record
	for {
		rec, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// Write emits records with sequence lines wrapped at width (0 for no wrapping).
func Write(w io.Writer, records []Record, width int) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		header := rec.ID
		if rec.Description != "" {
			header += " " + rec.Description
		}
		if _, err := fmt.Fprintf(bw, ">%s\n", header); err != nil {
			return err
		}
		seq := rec.Sequence
		for width > 0 && len(seq) > width {
			if _, err := fmt.Fprintln(bw, seq[:width]); err != nil {
				return err
			}
			seq = seq[width:]
		}
		if _, err := fmt.Fprintln(bw, seq); err != nil {
			return err
		}
	}
	return bw.Flush()
}
