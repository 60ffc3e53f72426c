package csr

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// MaxLabels is the capacity of each label table. Label ids are a single
// byte; a table holds at most 255 distinct strings, with ids 0 to 254.
const MaxLabels = 255

// ErrLabelOverflow indicates an attempt to intern more than MaxLabels
// distinct label strings into one table.
var ErrLabelOverflow = fmt.Errorf("csr: label table overflow (max %d distinct labels)", MaxLabels)

// LabelTable interns label strings to single-byte ids. The integer id
// is the position in the table; tables are persisted as text with one
// label per line.
type LabelTable struct {
	toID    map[string]uint8
	strings []string
}

// NewLabelTable creates an empty label table.
func NewLabelTable() *LabelTable {
	return &LabelTable{toID: make(map[string]uint8)}
}

// Intern returns the id for a label string, assigning a fresh id on
// first sight. Returns ErrLabelOverflow when the table is full.
func (t *LabelTable) Intern(label string) (uint8, error) {
	if id, ok := t.toID[label]; ok {
		return id, nil
	}
	if len(t.strings) >= MaxLabels {
		return 0, fmt.Errorf("%w: interning %q", ErrLabelOverflow, label)
	}
	id := uint8(len(t.strings))
	t.toID[label] = id
	t.strings = append(t.strings, label)
	return id, nil
}

// ID resolves a label string without interning.
func (t *LabelTable) ID(label string) (uint8, bool) {
	id, ok := t.toID[label]
	return id, ok
}

// String returns the label string for an id.
func (t *LabelTable) String(id uint8) (string, bool) {
	if int(id) >= len(t.strings) {
		return "", false
	}
	return t.strings[id], true
}

// Len returns the number of interned labels.
func (t *LabelTable) Len() int {
	return len(t.strings)
}

// WriteTo persists the table as one label per line.
func (t *LabelTable) WriteTo(path string) error {
	var sb strings.Builder
	for _, s := range t.strings {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing label table: %w", err)
	}
	return nil
}

// LoadLabelTable reads a one-label-per-line table; position = label id.
func LoadLabelTable(path string) (*LabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening label table: %w", err)
	}
	defer f.Close()

	t := NewLabelTable()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if _, err := t.Intern(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading label table: %w", err)
	}
	return t, nil
}
