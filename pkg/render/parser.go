package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template is one locale's version of a notification template.
type Template struct {
	Subject string `yaml:"subject" json:"subject"`
	Text    string `yaml:"text" json:"text"`
	HTML    string `yaml:"html" json:"html"`
}

// Templates maps locale -> template code -> Template.
type Templates map[string]map[string]Template

// Parser decodes a template catalog file.
type Parser interface {
	Parse(ctx context.Context, content []byte) (Templates, error)
	SupportsFileExtension(ext string) bool
}

// NewParserForFile picks a parser from the file extension, nil if unsupported.
func NewParserForFile(filename string) Parser {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "json":
		return JSONParser{}
	case "yaml", "yml":
		return YAMLParser{}
	default:
		return nil
	}
}

// YAMLParser reads catalogs of the form:
//
//	en:
//	  welcome:
//	    subject: "Welcome, %{name}"
//	    text: "Hi %{name}"
//	    html: "<p>Hi %{name}</p>"
type YAMLParser struct{}

func (YAMLParser) Parse(ctx context.Context, content []byte) (Templates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var t Templates
	if err := dec.Decode(&t); err != nil {
		return nil, errors.Join(ErrFailedToParse, err)
	}
	return t, validateTemplates(t)
}

func (YAMLParser) SupportsFileExtension(ext string) bool {
	ext = strings.TrimPrefix(ext, ".")
	return strings.EqualFold(ext, "yaml") || strings.EqualFold(ext, "yml")
}

// JSONParser reads the same layout as YAMLParser, encoded as JSON.
type JSONParser struct{}

func (JSONParser) Parse(ctx context.Context, content []byte) (Templates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()

	var t Templates
	if err := dec.Decode(&t); err != nil {
		return nil, errors.Join(ErrFailedToParse, err)
	}
	return t, validateTemplates(t)
}

func (JSONParser) SupportsFileExtension(ext string) bool {
	return strings.EqualFold(strings.TrimPrefix(ext, "."), "json")
}

func validateTemplates(t Templates) error {
	if len(t) == 0 {
		return ErrNoTemplates
	}

	var errs []error
	for loc, codes := range t {
		if strings.TrimSpace(loc) == "" {
			errs = append(errs, fmt.Errorf("%w: empty locale", ErrInvalidCatalogEntry))
			continue
		}
		for code, tpl := range codes {
			if tpl == (Template{}) {
				errs = append(errs, fmt.Errorf("%w: %s/%s has no content", ErrInvalidCatalogEntry, loc, code))
			}
		}
	}
	return errors.Join(errs...)
}
