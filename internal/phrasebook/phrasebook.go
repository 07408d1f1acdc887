// Package phrasebook reads and writes whole sets of mappings as TOML, JSON
// or YAML documents, and imports them into a store.
//
// A phrasebook looks like:
//
//	version = 1
//
//	[[phrases]]
//	trigger = ".sig"
//	expansion = "Best regards,\nAda"
//
// Every document is checked against an embedded JSON Schema before any
// mapping is touched, so a malformed file imports nothing.
package phrasebook

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"dotphrase/internal/security"
	"dotphrase/internal/store"
)

// Version is the phrasebook document version.
const Version = 1

// maxFileSize bounds what ReadFile will load.
const maxFileSize = 16 << 20

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://dotphrase.local/schema/phrasebook-v1.schema.json"

var schema = jsonschema.MustCompileString(schemaURL, string(schemaJSON))

// ErrInvalidDocument is returned when a document fails schema validation.
var ErrInvalidDocument = errors.New("phrasebook: invalid document")

// Entry is one mapping in a phrasebook.
type Entry struct {
	Trigger   string `toml:"trigger" json:"trigger" yaml:"trigger"`
	Expansion string `toml:"expansion" json:"expansion" yaml:"expansion"`
}

// Document is a complete phrasebook.
type Document struct {
	Version int     `toml:"version" json:"version" yaml:"version"`
	Phrases []Entry `toml:"phrases" json:"phrases" yaml:"phrases"`
}

// Format is a phrasebook encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("phrasebook: unsupported file extension %q (use .toml, .json or .yaml)", filepath.Ext(path))
}

// Decode parses and validates a document.
func Decode(data []byte, format Format) (*Document, error) {
	var raw interface{}

	switch format {
	case FormatTOML:
		var m map[string]interface{}
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
		raw = m
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("phrasebook: unknown format %q", format)
	}

	// Round-trip through JSON so every format reaches the validator with
	// the same value types.
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	var instance interface{}
	if err := json.Unmarshal(normalized, &instance); err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var doc Document
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Version == 0 {
		doc.Version = Version
	}
	return &doc, nil
}

// Encode writes doc in the given format.
func Encode(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(doc)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("phrasebook: unknown format %q", format)
}

// ReadFile loads and validates a phrasebook file.
func ReadFile(path string) (*Document, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: %s", security.ErrFileTooLarge, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phrasebook: %w", err)
	}
	doc, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// WriteFile writes doc owner-readable only, since expansions often hold
// personal text.
func WriteFile(path string, doc *Document) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, doc, format); err != nil {
		return fmt.Errorf("encode phrasebook: %w", err)
	}
	return security.WriteSecretFile(path, buf.Bytes())
}

// Result counts what an import did.
type Result struct {
	Added    int
	Replaced int
	Skipped  int
}

func (r Result) String() string {
	return fmt.Sprintf("%d added, %d replaced, %d skipped", r.Added, r.Replaced, r.Skipped)
}

// Import inserts every entry of doc. Triggers that already exist are
// skipped, or overwritten in place when replace is set. Within one document
// the first occurrence of a trigger wins unless replace is set. Every
// trigger is checked before the first write, so a bad entry imports nothing.
func Import(ctx context.Context, s store.Store, doc *Document, replace bool) (Result, error) {
	for _, e := range doc.Phrases {
		if err := store.ValidateTrigger(e.Trigger); err != nil {
			return Result{}, err
		}
	}

	var res Result
	for _, e := range doc.Phrases {
		err := s.Insert(ctx, e.Trigger, e.Expansion)
		switch {
		case err == nil:
			res.Added++
		case errors.Is(err, store.ErrExists) && !replace:
			res.Skipped++
		case errors.Is(err, store.ErrExists):
			if err := s.Put(ctx, e.Trigger, e.Expansion); err != nil {
				return res, fmt.Errorf("replace %s: %w", e.Trigger, err)
			}
			res.Replaced++
		default:
			return res, fmt.Errorf("import %s: %w", e.Trigger, err)
		}
	}
	return res, nil
}

// ImportFile reads path and imports it into s.
func ImportFile(ctx context.Context, s store.Store, path string, replace bool) (Result, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	return Import(ctx, s, doc, replace)
}

// Snapshot builds a document from every mapping in s.
func Snapshot(ctx context.Context, s store.Store) (*Document, error) {
	phrases, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	doc := &Document{Version: Version, Phrases: make([]Entry, 0, len(phrases))}
	for _, p := range phrases {
		doc.Phrases = append(doc.Phrases, Entry{Trigger: p.Trigger, Expansion: p.Expansion})
	}
	return doc, nil
}

// ExportFile writes every mapping in s to path and returns how many were written.
func ExportFile(ctx context.Context, s store.Store, path string) (int, error) {
	doc, err := Snapshot(ctx, s)
	if err != nil {
		return 0, err
	}
	if err := WriteFile(path, doc); err != nil {
		return 0, err
	}
	return len(doc.Phrases), nil
}
