// Package dataset loads the static movie catalog used to ground
// responder prompts. The catalog is read once at startup and never
// mutated afterward.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Record is one movie row from the catalog.
type Record struct {
	Name        string
	Genre       string
	Description string
	Director    string
	Video       string
}

// Catalog is the loaded movie dataset. Read-only after Load; safe for
// concurrent use.
type Catalog struct {
	records []Record
}

// Load reads a CSV catalog from path. Header cells are matched after
// trimming and lowercasing, because the source spreadsheets carry
// stray spaces in column names ("Name ", "Description short ").
// Unknown columns are ignored; missing columns leave fields empty.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}

	cols := make(map[string]int)
	for i, cell := range rows[0] {
		cols[normalizeHeader(cell)] = i
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := Record{
			Name:        field(row, "name"),
			Genre:       field(row, "genre"),
			Description: field(row, "description short"),
			Director:    field(row, "director"),
			Video:       field(row, "video"),
		}
		if rec.Description == "" {
			rec.Description = field(row, "description")
		}
		if rec.Name == "" {
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s has no usable rows", path)
	}

	return &Catalog{records: records}, nil
}

// New creates a Catalog directly from records. Intended for tests.
func New(records []Record) *Catalog {
	return &Catalog{records: records}
}

// Len returns the number of records in the catalog.
func (c *Catalog) Len() int {
	return len(c.records)
}

// Records renders every row as a key/value dump, one block per film.
// This is the verbose form the recommendation prompt embeds.
func (c *Catalog) Records() string {
	var sb strings.Builder
	for i, rec := range c.records {
		fmt.Fprintf(&sb, "%d. Name: %s | Genre: %s | Director: %s | Description: %s | Trailer: %s\n",
			i+1, rec.Name, rec.Genre, rec.Director, rec.Description, rec.Video)
	}
	return sb.String()
}

// Head renders the first n rows in the same form as Records. A
// non-positive n or n beyond the catalog size renders everything.
func (c *Catalog) Head(n int) string {
	if n <= 0 || n > len(c.records) {
		n = len(c.records)
	}
	sub := Catalog{records: c.records[:n]}
	return sub.Records()
}

// Compact renders one terse line per film, the form the trailer
// prompt embeds: "Name - Genre - Video - Director - Description".
func (c *Catalog) Compact() string {
	var sb strings.Builder
	for _, rec := range c.records {
		fmt.Fprintf(&sb, "%s - %s - %s - %s - %s\n",
			rec.Name, rec.Genre, rec.Video, rec.Director, rec.Description)
	}
	return sb.String()
}

// VideoIndex renders the row-index → trailer-link table the trailer
// prompt includes alongside the compact listing.
func (c *Catalog) VideoIndex() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, rec := range c.records {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d: %q", i, rec.Video)
	}
	sb.WriteString("}")
	return sb.String()
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
