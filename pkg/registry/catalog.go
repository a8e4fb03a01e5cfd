package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Notifications []Descriptor `yaml:"notifications"`
}

// Load reads a YAML catalog and builds a Registry from it.
//
//	notifications:
//	  - type: crm.lead.confirmation
//	    template: lead_confirmation
//	    channels: [email, sms]
//	    priority: high
//	    payload:
//	      - {name: lead_name, kind: string, required: true}
func Load(ctx context.Context, r io.Reader) (*Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrFailedToParseCatalog, err)
	}

	return New(file.Notifications...)
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(ctx context.Context, path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open notification catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Load(ctx, f)
}
