// Package normalisers turns knowledge base files into plain-text documents.
// Each sub-package handles one format; Registry picks the normaliser for a
// file by MIME type and priority.
package normalisers
