package vector

import "errors"

// ErrNotIndexed reports an operation against a document with no points in
// the index.
var ErrNotIndexed = errors.New("document is not indexed")
