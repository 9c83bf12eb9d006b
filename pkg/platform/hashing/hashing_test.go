package hashing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlake2b(t *testing.T) {
	h := Blake2b{}
	a := h.Hash([]byte("voice sample"))

	assert.Len(t, a, 64)
	assert.Equal(t, a, h.Hash([]byte("voice sample")))
	assert.NotEqual(t, a, h.Hash([]byte("voice sample!")))
}

func TestKeyed(t *testing.T) {
	k1, err := NewKeyed([]byte("deployment-a"))
	require.NoError(t, err)
	k2, err := NewKeyed([]byte("deployment-b"))
	require.NoError(t, err)

	payload := []byte("voice sample")
	assert.NotEqual(t, k1.Hash(payload), k2.Hash(payload))
	assert.NotEqual(t, Blake2b{}.Hash(payload), k1.Hash(payload))

	_, err = NewKeyed(bytes.Repeat([]byte("k"), 65))
	assert.Error(t, err)
}
