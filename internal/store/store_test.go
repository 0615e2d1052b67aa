package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("load tables", "", nil))

	err := Wrap("clear guest", "s1", ErrSeatNotFound)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "clear guest", fe.Op)
	assert.Equal(t, "s1", fe.SeatID)
	assert.ErrorIs(t, err, ErrSeatNotFound)
	assert.Equal(t, "clear guest seat s1: seat not found", err.Error())
}

func TestWrap_KeepsExistingFetchError(t *testing.T) {
	inner := &FetchError{Op: "load tables", Err: errors.New("http 500")}
	err := Wrap("reload", "", inner)
	assert.Same(t, inner, err)
	assert.Equal(t, "load tables: http 500", err.Error())
}
