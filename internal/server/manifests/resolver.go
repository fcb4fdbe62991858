// Package manifests fetches and parses build manifests.
package manifests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
)

// MaxManifestSize bounds the manifest document.
const MaxManifestSize = 10 << 20

// Getter downloads a whole document. *netx.Fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string, limit int64) ([]byte, error)
}

type Resolver struct {
	getter Getter
}

func NewResolver(g Getter) *Resolver {
	return &Resolver{getter: g}
}

// Resolve fetches the manifest at manifestURL. Transport failures are
// returned as is; a document that does not parse or validate is wrapped in
// common.ErrConfiguration.
func (r *Resolver) Resolve(ctx context.Context, manifestURL string) (*models.Manifest, error) {
	body, err := r.getter.Get(ctx, manifestURL, MaxManifestSize)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return Parse(body)
}

// Parse decodes a manifest document.
func Parse(body []byte) (*models.Manifest, error) {
	var doc struct {
		Contents *[]models.ContentInstruction `json:"contents"`
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", common.ErrConfiguration, err)
	}
	if doc.Contents == nil {
		return nil, fmt.Errorf("%w: manifest has no contents", common.ErrConfiguration)
	}

	for i, insn := range *doc.Contents {
		if err := insn.From.Validate(); err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		if err := insn.To.Validate(); err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
	}

	return &models.Manifest{Contents: *doc.Contents}, nil
}
