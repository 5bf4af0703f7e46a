package ingest

import "errors"

var (
	// ErrDuplicateContent is returned when a document with the same
	// extracted-text fingerprint is already stored. The result carries the
	// existing document id.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrNoExtractableText is returned when a file parses but yields no
	// usable text.
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrNotFound is returned for lookups of unknown ids.
	ErrNotFound = errors.New("not found")
)
