package model

import "errors"

// ErrMissingField reports a required field left empty.
var ErrMissingField = errors.New("missing field")
