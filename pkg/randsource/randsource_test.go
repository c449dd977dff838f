package randsource_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tml/pkg/randsource"
)

func TestCryptoIntn_Bounds(t *testing.T) {
	src := randsource.NewCrypto()
	for range 200 {
		v, err := src.Intn(7)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 7)
	}
}

func TestCryptoIntn_RejectsNonPositive(t *testing.T) {
	src := randsource.NewCrypto()
	_, err := src.Intn(0)
	assert.Error(t, err)
	_, err = src.Intn(-3)
	assert.Error(t, err)
}

func TestShuffle_IsPermutation(t *testing.T) {
	idx, err := randsource.Shuffle(randsource.NewCrypto(), 10)
	require.NoError(t, err)
	require.Len(t, idx, 10)

	seen := make(map[int]bool, 10)
	for _, v := range idx {
		assert.False(t, seen[v])
		seen[v] = true
	}
}
