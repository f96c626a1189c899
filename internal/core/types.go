package core

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UpdatePolicy controls what happens when an incoming record matches an
// entity that already exists.
type UpdatePolicy string

const (
	// PolicyCreateOnly skips matched records without loading the entity.
	PolicyCreateOnly UpdatePolicy = "create-only"
	// PolicyUpdateChanged updates matched entities whose fingerprint
	// differs from the stored one. The default.
	PolicyUpdateChanged UpdatePolicy = "update-changed"
	// PolicyForceUpdate updates matched entities even when unchanged.
	PolicyForceUpdate UpdatePolicy = "force-update"
)

// FingerprintPolicy controls what a record's fingerprint covers.
type FingerprintPolicy string

const (
	// FingerprintMappings mixes the mapping configuration into the
	// fingerprint, so any mapping edit invalidates every stored
	// fingerprint for the source. The default.
	FingerprintMappings FingerprintPolicy = "mappings"
	// FingerprintContent covers record content only; mapping edits do
	// not force a re-import of unchanged records.
	FingerprintContent FingerprintPolicy = "content"
)

// Mapping routes one record field to one entity target. Target is a path:
// a bare field name addresses the target's main value column, and
// "field.column" addresses a named column of a composite target. Mapping
// order is significant: unique mappings are consulted in configured order
// during resolution, first match wins.
type Mapping struct {
	Source string
	Target string
	Unique bool
}

// TargetPath splits the target into field and column. A bare field path
// yields an empty column, which resolves to the handler's main column.
func (m Mapping) TargetPath() (field, column string) {
	if i := strings.IndexByte(m.Target, '.'); i >= 0 {
		return m.Target[:i], m.Target[i+1:]
	}
	return m.Target, ""
}

// FetchSpec tells a fetcher where a source's payload lives. Type selects
// the fetcher; the remaining fields are interpreted per type.
type FetchSpec struct {
	Type   string // "http", "file", "directory", "inline"
	URL    string
	Path   string
	Glob   string // directory sources: doublestar pattern
	Inline string // inline sources: the payload itself
}

// SourceSpec is the full declarative configuration of one import source.
// Specs are read-only during a run; edits take effect on the next run.
type SourceSpec struct {
	Name          string
	Kind          string
	Fetch         FetchSpec
	Format        string // parser name: "csv", "feed", "htmllist", "jsonl", "opml"
	ParserOptions map[string]string
	Mappings      []Mapping
	Defaults      map[string]string // field -> main value for new entities
	Policy        UpdatePolicy
	Fingerprint   FingerprintPolicy
	ExpireAfter   time.Duration // zero = never
	ChunkLimit    int
	Schedule      time.Duration // zero = manual only
	Watch         bool // directory sources: import on file change
}

// DefaultChunkLimit bounds how many records one invocation processes when
// the source does not set its own limit.
const DefaultChunkLimit = 50

// EffectiveChunkLimit returns the source's chunk limit or the default.
func (s *SourceSpec) EffectiveChunkLimit() int {
	if s.ChunkLimit > 0 {
		return s.ChunkLimit
	}
	return DefaultChunkLimit
}

// EffectivePolicy returns the source's update policy or the default.
func (s *SourceSpec) EffectivePolicy() UpdatePolicy {
	if s.Policy == "" {
		return PolicyUpdateChanged
	}
	return s.Policy
}

// MappingDigest returns a stable digest of the source's mapping
// configuration. Under FingerprintMappings it salts record fingerprints,
// so editing a mapping changes every fingerprint; under FingerprintContent
// it returns "".
func (s *SourceSpec) MappingDigest() string {
	if s.Fingerprint == FingerprintContent {
		return ""
	}
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(len(s.Mappings))))
	h.Write([]byte{0})
	for _, m := range s.Mappings {
		h.Write([]byte(m.Source))
		h.Write([]byte{0})
		h.Write([]byte(m.Target))
		h.Write([]byte{0})
		if m.Unique {
			h.Write([]byte("unique"))
		}
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// FieldSpec declares one field of an entity kind: which target handler
// interprets it and whether entities must carry a value for it.
type FieldSpec struct {
	Name     string
	Handler  string
	Required bool
}

// KindSpec declares an entity kind and its typed fields. Stores use it for
// schema, the mapping engine for handler dispatch, and validation for
// required-field checks.
type KindSpec struct {
	Name   string
	Fields []FieldSpec
}

// Field returns the spec of a named field.
func (k *KindSpec) Field(name string) (FieldSpec, bool) {
	for _, f := range k.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}
