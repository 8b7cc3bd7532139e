package cyerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rlch/cyql/cyerr"
)

func TestStorageError_UnwrapAndErrorsIs(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("connection closed")
	err := &cyerr.StorageError{Msg: "store: exec failed", Err: sentinel}

	assert.True(t, errors.Is(err, sentinel))
	assert.Contains(t, err.Error(), "connection closed")
}

func TestErrorKinds_SatisfyErrorInterface(t *testing.T) {
	t.Parallel()

	kinds := []error{
		&cyerr.NameError{Msg: "unknown variable x"},
		&cyerr.TypeError{Msg: "labels() requires a node"},
		&cyerr.UnsupportedFeatureError{Msg: "unsupported procedure"},
		&cyerr.ConstraintViolationError{Msg: "node has incident edges"},
		&cyerr.StorageError{Msg: "store: exec failed"},
	}
	for _, err := range kinds {
		assert.NotEmpty(t, err.Error())
	}
}

func TestStorageError_WrapsWithFmtErrorf(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("disk full")
	wrapped := fmt.Errorf("during commit: %w", &cyerr.StorageError{Msg: "store: commit failed", Err: sentinel})

	assert.True(t, errors.Is(wrapped, sentinel))
}
