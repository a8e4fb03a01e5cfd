package pgstore

import "errors"

var ErrNilRecord = errors.New("pgstore: record is nil")
