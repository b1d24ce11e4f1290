// Package wgconf synchronizes the WireGuard-style peer configuration file
// with the resolved IP table and the environment config. Edits are surgical:
// only the owned fields change, every other line survives verbatim. Output
// is normalized to Unix line endings with a trailing newline.
package wgconf

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// lineKind classifies a single config line for the in-place editor.
type lineKind int

const (
	lineOther lineKind = iota // blank, comment, or anything unrecognized
	lineSection
	lineField
)

type line struct {
	raw  string
	kind lineKind
	// section the line belongs to (lowercased, "" before the first header).
	section string
	// key of a field line (lowercased).
	key string
}

// Document is a peer configuration file parsed into lines. Unknown fields,
// comments, and blank lines are preserved verbatim on write.
type Document struct {
	lines []line
}

// ParseDocument reads a .conf file into an editable document. A UTF-8 BOM on
// the first line is stripped (common in Windows-exported configs).
func ParseDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	doc := &Document{}
	section := ""
	firstLine := true
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw := scanner.Text()
		if firstLine {
			raw = strings.TrimPrefix(raw, "\xEF\xBB\xBF")
			firstLine = false
		}
		doc.lines = append(doc.lines, classify(raw, &section))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return doc, nil
}

// ParseDocumentString parses config text already in memory.
func ParseDocumentString(text string) *Document {
	doc := &Document{}
	section := ""
	for _, raw := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		doc.lines = append(doc.lines, classify(raw, &section))
	}
	return doc
}

func classify(raw string, section *string) line {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";"):
		return line{raw: raw, kind: lineOther, section: *section}
	case strings.HasPrefix(trimmed, "["):
		*section = strings.ToLower(strings.Trim(trimmed, "[] "))
		return line{raw: raw, kind: lineSection, section: *section}
	}
	key, _, ok := strings.Cut(trimmed, "=")
	if !ok {
		return line{raw: raw, kind: lineOther, section: *section}
	}
	return line{
		raw:     raw,
		kind:    lineField,
		section: *section,
		key:     strings.ToLower(strings.TrimSpace(key)),
	}
}

// SetField replaces the value of the first key line in the given section, or
// inserts the field at the end of that section when absent. The section itself
// must exist.
func (d *Document) SetField(section, key, value string) error {
	section = strings.ToLower(section)
	keyLower := strings.ToLower(key)
	newRaw := fmt.Sprintf("%s = %s", key, value)

	for i, l := range d.lines {
		if l.kind == lineField && l.section == section && l.key == keyLower {
			d.lines[i].raw = newRaw
			return nil
		}
	}

	// Insert after the last field line of the section (skipping trailing
	// blanks keeps the section's spacing intact).
	insertAt := -1
	for i, l := range d.lines {
		if l.section != section {
			continue
		}
		if l.kind == lineSection || l.kind == lineField {
			insertAt = i + 1
		}
	}
	if insertAt < 0 {
		return fmt.Errorf("no [%s] section in config", section)
	}
	inserted := line{raw: newRaw, kind: lineField, section: section, key: keyLower}
	d.lines = append(d.lines[:insertAt], append([]line{inserted}, d.lines[insertAt:]...)...)
	return nil
}

// Field returns the value of the first key line in the section.
func (d *Document) Field(section, key string) (string, bool) {
	section = strings.ToLower(section)
	key = strings.ToLower(key)
	for _, l := range d.lines {
		if l.kind == lineField && l.section == section && l.key == key {
			_, value, _ := strings.Cut(l.raw, "=")
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

// HasSection reports whether the document contains the section header.
func (d *Document) HasSection(section string) bool {
	section = strings.ToLower(section)
	for _, l := range d.lines {
		if l.kind == lineSection && l.section == section {
			return true
		}
	}
	return false
}

// Bytes reassembles the document, one trailing newline per line.
func (d *Document) Bytes() []byte {
	var b strings.Builder
	for _, l := range d.lines {
		b.WriteString(l.raw)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
