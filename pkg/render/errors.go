package render

import "errors"

var (
	ErrRender              = errors.New("render failed")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrMissingParam        = errors.New("missing template parameter")
	ErrInvalidPayload      = errors.New("payload is not a JSON object")
	ErrEmptyTemplate       = errors.New("template renders no content")
	ErrFailedToParse       = errors.New("failed to parse template catalog")
	ErrUnsupportedFormat   = errors.New("unsupported template catalog format")
	ErrNoTemplates         = errors.New("template catalog is empty")
	ErrInvalidCatalogEntry = errors.New("invalid template catalog entry")
)
