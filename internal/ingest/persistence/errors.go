package persistence

import "errors"

var (
	errEmptyDocumentID     = errors.New("persistence: new document requires a non-empty ID")
	errDuplicateChunkIndex = errors.New("persistence: chunk_index already taken for this document")
	errUnknownDocument     = errors.New("persistence: unknown document id")
	errUnsupportedQuery    = errors.New("persistence: memory store only supports the chunks-by-document query")
	errStaleDocumentUpdate = errors.New("persistence: document was updated more recently by another writer")
)
