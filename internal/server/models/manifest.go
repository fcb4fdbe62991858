// Package models defines the manifest document and the persisted job record.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
)

// Manifest lists the content instructions of one build.
type Manifest struct {
	Contents []ContentInstruction `json:"contents"`
}

// ContentInstruction materializes one source into one target.
type ContentInstruction struct {
	From SourceSpec `json:"from"`
	To   TargetSpec `json:"to"`
}

// SourceKind identifies the variant of a SourceSpec.
type SourceKind string

const (
	SourceURL    SourceKind = "url"
	SourceString SourceKind = "string"
	SourceFile   SourceKind = "file"
)

// SourceSpec is a closed sum: exactly one of url, string or file.
type SourceSpec struct {
	Kind   SourceKind
	Value  string
	Decode string
}

// TargetKind identifies the variant of a TargetSpec.
type TargetKind string

const (
	TargetUnzip TargetKind = "unzip"
	TargetFile  TargetKind = "file"
)

// TargetSpec is a closed sum: exactly one of unzip or file.
type TargetSpec struct {
	Kind   TargetKind
	Path   string
	Encode string
}

type sourceDoc struct {
	URL    *string `json:"url"`
	String *string `json:"string"`
	File   *string `json:"file"`
	Decode string  `json:"decode"`
}

type targetDoc struct {
	Unzip  *string `json:"unzip"`
	File   *string `json:"file"`
	Encode string  `json:"encode"`
}

// UnmarshalJSON accepts documents carrying exactly one variant key.
func (s *SourceSpec) UnmarshalJSON(b []byte) error {
	var doc sourceDoc
	if err := strictDecode(b, &doc); err != nil {
		return fmt.Errorf("%w: source: %v", common.ErrConfiguration, err)
	}

	var found []SourceSpec
	if doc.URL != nil {
		found = append(found, SourceSpec{Kind: SourceURL, Value: *doc.URL})
	}
	if doc.String != nil {
		found = append(found, SourceSpec{Kind: SourceString, Value: *doc.String})
	}
	if doc.File != nil {
		found = append(found, SourceSpec{Kind: SourceFile, Value: *doc.File})
	}
	if len(found) != 1 {
		return fmt.Errorf("%w: source must have exactly one of url, string, file (got %d)", common.ErrConfiguration, len(found))
	}

	*s = found[0]
	s.Decode = doc.Decode
	return s.Validate()
}

// MarshalJSON writes the variant back under its key.
func (s SourceSpec) MarshalJSON() ([]byte, error) {
	m := map[string]string{string(s.Kind): s.Value}
	if s.Decode != "" {
		m["decode"] = s.Decode
	}
	return json.Marshal(m)
}

// Validate reports configuration errors that JSON decoding cannot catch.
func (s SourceSpec) Validate() error {
	switch s.Kind {
	case SourceURL, SourceString, SourceFile:
	default:
		return fmt.Errorf("%w: unknown source kind %q", common.ErrConfiguration, s.Kind)
	}
	if s.Decode != "" && s.Decode != common.Base64 {
		return fmt.Errorf("%w: unsupported decode %q", common.ErrConfiguration, s.Decode)
	}
	return nil
}

// UnmarshalJSON accepts documents carrying exactly one variant key.
func (t *TargetSpec) UnmarshalJSON(b []byte) error {
	var doc targetDoc
	if err := strictDecode(b, &doc); err != nil {
		return fmt.Errorf("%w: target: %v", common.ErrConfiguration, err)
	}

	var found []TargetSpec
	if doc.Unzip != nil {
		found = append(found, TargetSpec{Kind: TargetUnzip, Path: *doc.Unzip})
	}
	if doc.File != nil {
		found = append(found, TargetSpec{Kind: TargetFile, Path: *doc.File})
	}
	if len(found) != 1 {
		return fmt.Errorf("%w: target must have exactly one of unzip, file (got %d)", common.ErrConfiguration, len(found))
	}

	*t = found[0]
	t.Encode = doc.Encode
	return t.Validate()
}

// MarshalJSON writes the variant back under its key.
func (t TargetSpec) MarshalJSON() ([]byte, error) {
	m := map[string]string{string(t.Kind): t.Path}
	if t.Encode != "" {
		m["encode"] = t.Encode
	}
	return json.Marshal(m)
}

// Validate reports configuration errors that JSON decoding cannot catch.
func (t TargetSpec) Validate() error {
	switch t.Kind {
	case TargetUnzip, TargetFile:
	default:
		return fmt.Errorf("%w: unknown target kind %q", common.ErrConfiguration, t.Kind)
	}
	if t.Encode != "" && t.Encode != common.Base64 {
		return fmt.Errorf("%w: unsupported encode %q", common.ErrConfiguration, t.Encode)
	}
	if t.Kind == TargetUnzip && t.Encode != "" {
		return fmt.Errorf("%w: encode is not supported with unzip", common.ErrConfiguration)
	}
	return nil
}

// unknown keys inside from/to are rejected so typos such as "fiel" do not
// silently turn into "no variant"
func strictDecode(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
