package ivfindex

import "errors"

// ErrEmptyInput reports training called with zero rows.
var ErrEmptyInput = errors.New("ivfindex: empty input")
