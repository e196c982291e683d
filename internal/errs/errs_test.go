package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsClassifiesWrappedError(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindProvider, cause, "fetch failed")

	assert.True(t, Is(err, KindProvider))
	assert.False(t, Is(err, KindValidation))
	assert.ErrorIs(t, err, cause)
}

func TestNewWithoutCause(t *testing.T) {
	err := New(KindNotFound, "account missing")
	assert.Equal(t, KindNotFound, err.Kind())
	assert.Equal(t, "not_found: account missing", err.Error())
}
