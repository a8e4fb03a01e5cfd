package memstore

import "errors"

var ErrNilRecord = errors.New("memstore: record is nil")
