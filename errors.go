package cyql

import (
	"errors"

	"github.com/rlch/cyql/cyerr"
	"github.com/rlch/cyql/cypher"
)

// ErrConfigNotFound is returned when FindConfig walks up from dir to the
// filesystem root without finding any of DefaultConfigNames.
var ErrConfigNotFound = errors.New("cyql: no config file found")

// Error-kind aliases: the concrete types live in leaf packages (cyerr,
// cypher) so translate/exec/store can return them without importing
// this package, which itself imports all of them through engine.go.
type (
	NameError                = cyerr.NameError
	TypeError                = cyerr.TypeError
	UnsupportedFeatureError  = cyerr.UnsupportedFeatureError
	ConstraintViolationError = cyerr.ConstraintViolationError
	StorageError             = cyerr.StorageError

	LexError   = cypher.LexError
	ParseError = cypher.ParseError
)
