package config

// sources.go loads the declarative source catalog: a YAML document that
// declares entity kinds and the import sources feeding them. Parsing
// validates document structure (names, references, enums, intervals);
// mapping semantics against the target handler registry are checked at
// operation setup, where the registry is populated.

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seaward/sluice/internal/core"
)

// Catalog is a parsed source catalog: the entity kinds and the sources
// that feed them, in document order.
type Catalog struct {
	Kinds   []*core.KindSpec
	Sources []*core.SourceSpec
}

type catalogDoc struct {
	Kinds   []kindDoc   `yaml:"kinds"`
	Sources []sourceDoc `yaml:"sources"`
}

type kindDoc struct {
	Name   string     `yaml:"name"`
	Fields []fieldDoc `yaml:"fields"`
}

type fieldDoc struct {
	Name     string `yaml:"name"`
	Handler  string `yaml:"handler"`
	Required bool   `yaml:"required"`
}

type fetchDoc struct {
	Type   string `yaml:"type"`
	URL    string `yaml:"url"`
	Path   string `yaml:"path"`
	Glob   string `yaml:"glob"`
	Inline string `yaml:"inline"`
}

type mappingDoc struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Unique bool   `yaml:"unique"`
}

type sourceDoc struct {
	Name        string            `yaml:"name"`
	Kind        string            `yaml:"kind"`
	Fetch       fetchDoc          `yaml:"fetch"`
	Format      string            `yaml:"format"`
	Options     map[string]string `yaml:"options"`
	Mappings    []mappingDoc      `yaml:"mappings"`
	Defaults    map[string]string `yaml:"defaults"`
	Policy      string            `yaml:"policy"`
	Fingerprint string            `yaml:"fingerprint"`
	ExpireAfter string            `yaml:"expireAfter"`
	ChunkLimit  int               `yaml:"chunkLimit"`
	Schedule    string            `yaml:"schedule"`
	Watch       bool              `yaml:"watch"`
}

// LoadCatalog reads and parses the YAML source catalog at path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source catalog: %w", err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog parses a YAML source catalog document and validates its
// structure: non-empty names, no duplicates, known enum values, parseable
// intervals, and source-to-kind references that resolve.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse source catalog: %w", err)
	}

	cat := &Catalog{}
	kindNames := make(map[string]bool, len(doc.Kinds))
	for i, kd := range doc.Kinds {
		kind, err := buildKind(kd)
		if err != nil {
			return nil, fmt.Errorf("kinds[%d]: %w", i, err)
		}
		if kindNames[kind.Name] {
			return nil, fmt.Errorf("duplicate kind %q", kind.Name)
		}
		kindNames[kind.Name] = true
		cat.Kinds = append(cat.Kinds, kind)
	}

	sourceNames := make(map[string]bool, len(doc.Sources))
	for i, sd := range doc.Sources {
		spec, err := buildSource(sd, kindNames)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if sourceNames[spec.Name] {
			return nil, fmt.Errorf("duplicate source %q", spec.Name)
		}
		sourceNames[spec.Name] = true
		cat.Sources = append(cat.Sources, spec)
	}

	return cat, nil
}

func buildKind(doc kindDoc) (*core.KindSpec, error) {
	if doc.Name == "" {
		return nil, errors.New("kind name is required")
	}
	if len(doc.Fields) == 0 {
		return nil, fmt.Errorf("kind %q declares no fields", doc.Name)
	}

	kind := &core.KindSpec{Name: doc.Name}
	seen := make(map[string]bool, len(doc.Fields))
	for _, fd := range doc.Fields {
		if fd.Name == "" {
			return nil, fmt.Errorf("kind %q: field name is required", doc.Name)
		}
		if seen[fd.Name] {
			return nil, fmt.Errorf("kind %q: duplicate field %q", doc.Name, fd.Name)
		}
		seen[fd.Name] = true

		handler := fd.Handler
		if handler == "" {
			handler = "text"
		}
		kind.Fields = append(kind.Fields, core.FieldSpec{
			Name:     fd.Name,
			Handler:  handler,
			Required: fd.Required,
		})
	}
	return kind, nil
}

func buildSource(doc sourceDoc, kinds map[string]bool) (*core.SourceSpec, error) {
	if doc.Name == "" {
		return nil, errors.New("source name is required")
	}
	fail := func(format string, args ...any) error {
		return fmt.Errorf("source %q: %s", doc.Name, fmt.Sprintf(format, args...))
	}

	if doc.Kind == "" {
		return nil, fail("kind is required")
	}
	if !kinds[doc.Kind] {
		return nil, fail("unknown kind %q", doc.Kind)
	}
	if doc.Fetch.Type == "" {
		return nil, fail("fetch type is required")
	}
	if doc.Format == "" {
		return nil, fail("format is required")
	}
	if len(doc.Mappings) == 0 {
		return nil, fail("no mappings")
	}

	mappings := make([]core.Mapping, 0, len(doc.Mappings))
	for i, md := range doc.Mappings {
		if md.Source == "" {
			return nil, fail("mappings[%d]: source field is required", i)
		}
		if md.Target == "" {
			return nil, fail("mappings[%d]: target is required", i)
		}
		mappings = append(mappings, core.Mapping{
			Source: md.Source,
			Target: md.Target,
			Unique: md.Unique,
		})
	}

	policy := core.UpdatePolicy(doc.Policy)
	switch policy {
	case "", core.PolicyCreateOnly, core.PolicyUpdateChanged, core.PolicyForceUpdate:
	default:
		return nil, fail("invalid policy %q (use create-only, update-changed, or force-update)", doc.Policy)
	}

	fingerprint := core.FingerprintPolicy(doc.Fingerprint)
	switch fingerprint {
	case "", core.FingerprintMappings, core.FingerprintContent:
	default:
		return nil, fail("invalid fingerprint policy %q (use mappings or content)", doc.Fingerprint)
	}

	expireAfter, err := parseInterval(doc.ExpireAfter)
	if err != nil {
		return nil, fail("expireAfter: %v", err)
	}
	schedule, err := parseInterval(doc.Schedule)
	if err != nil {
		return nil, fail("schedule: %v", err)
	}
	if doc.ChunkLimit < 0 {
		return nil, fail("chunkLimit must be non-negative")
	}
	if doc.Watch && doc.Fetch.Type != "directory" {
		return nil, fail("watch requires a directory source")
	}

	return &core.SourceSpec{
		Name: doc.Name,
		Kind: doc.Kind,
		Fetch: core.FetchSpec{
			Type:   doc.Fetch.Type,
			URL:    doc.Fetch.URL,
			Path:   doc.Fetch.Path,
			Glob:   doc.Fetch.Glob,
			Inline: doc.Fetch.Inline,
		},
		Format:        doc.Format,
		ParserOptions: doc.Options,
		Mappings:      mappings,
		Defaults:      doc.Defaults,
		Policy:        policy,
		Fingerprint:   fingerprint,
		ExpireAfter:   expireAfter,
		ChunkLimit:    doc.ChunkLimit,
		Schedule:      schedule,
		Watch:         doc.Watch,
	}, nil
}

// parseInterval parses a duration, accepting day and week suffixes on top
// of the standard Go forms so retention windows read naturally ("30d",
// "2w"). An empty string is zero: never expire, never schedule.
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		low := strings.ToLower(s)
		var unit time.Duration
		switch {
		case strings.HasSuffix(low, "d"):
			unit = 24 * time.Hour
		case strings.HasSuffix(low, "w"):
			unit = 7 * 24 * time.Hour
		default:
			return 0, fmt.Errorf("invalid interval %q (use Go durations or day/week suffixes like 30d, 2w)", s)
		}
		n, convErr := strconv.Atoi(low[:len(low)-1])
		if convErr != nil {
			return 0, fmt.Errorf("invalid interval %q (use Go durations or day/week suffixes like 30d, 2w)", s)
		}
		d = time.Duration(n) * unit
	}

	if d < 0 {
		return 0, fmt.Errorf("interval %q is negative", s)
	}
	return d, nil
}
