package domain

// RawDocument represents opaque bytes read from the corpus before text extraction.
type RawDocument struct {
	// URI is the file path.
	URI string

	// RelPath is the path relative to the corpus root.
	RelPath string

	// MIMEType is the content type (e.g., "application/pdf").
	MIMEType string

	// Content is the raw bytes.
	Content []byte
}
