package shamir

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSecret(t *testing.T, size int) []byte {
	t.Helper()
	secret := make([]byte, size)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	return secret
}

func TestFieldTables(t *testing.T) {
	// spot-check the table-driven arithmetic against known GF(2^8) products
	assert.Equal(t, byte(0), mul(0, 0x53))
	assert.Equal(t, byte(0x53), mul(1, 0x53))
	assert.Equal(t, byte(1), mul(0x53, div(1, 0x53)))

	for _, a := range []byte{1, 2, 0x53, 0xca, 0xff} {
		for _, b := range []byte{1, 3, 0x10, 0xfe} {
			assert.Equal(t, a, div(mul(a, b), b))
		}
	}
}

func TestSplit_InvalidParameters(t *testing.T) {
	secret := []byte("secret")

	tests := []struct {
		name string
		n, k int
	}{
		{"ThresholdZero", 5, 0},
		{"SharesBelowThreshold", 2, 3},
		{"TooManyShares", 256, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(secret, tt.n, tt.k)
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}

	t.Run("EmptySecret", func(t *testing.T) {
		_, err := Split(nil, 5, 3)
		assert.ErrorIs(t, err, ErrInvalidParameters)
	})
}

func TestSplitCombine_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size int
		n, k int
	}{
		{"Minimal", 16, 1, 1},
		{"ThreeOfFive", 32, 5, 3},
		{"AllShares", 32, 7, 7},
		{"MaxShares", 16, 255, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret := randomSecret(t, tt.size)

			shares, err := Split(secret, tt.n, tt.k)
			require.NoError(t, err)
			require.Len(t, shares, tt.n)

			// exactly k shares, taken from the tail to avoid ordering bias
			combined, err := Combine(shares[tt.n-tt.k:])
			require.NoError(t, err)
			assert.Equal(t, secret, combined)

			// every share carries one y-byte per secret byte
			for _, s := range shares {
				assert.NotZero(t, s.X)
				assert.Len(t, s.Y, tt.size)
			}
		})
	}
}

func TestCombine_BelowThresholdYieldsWrongSecret(t *testing.T) {
	// Combine does not enforce the threshold: k-1 shares must still produce
	// output, and for a 32-byte secret that output is wrong with overwhelming
	// probability.
	secret := randomSecret(t, 32)

	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)

	combined, err := Combine(shares[:2])
	require.NoError(t, err)
	assert.NotEqual(t, secret, combined)
}

func TestCombine_InvalidShares(t *testing.T) {
	t.Run("NoShares", func(t *testing.T) {
		_, err := Combine(nil)
		assert.ErrorIs(t, err, ErrInvalidShares)
	})

	t.Run("DuplicateX", func(t *testing.T) {
		shares, err := Split(randomSecret(t, 16), 3, 2)
		require.NoError(t, err)

		_, err = Combine([]Share{shares[0], shares[0]})
		assert.ErrorIs(t, err, ErrInvalidShares)
	})

	t.Run("MismatchedLengths", func(t *testing.T) {
		shares := []Share{
			{X: 1, Y: []byte{1, 2}},
			{X: 2, Y: []byte{1}},
		}
		_, err := Combine(shares)
		assert.ErrorIs(t, err, ErrInvalidShares)
	})

	t.Run("ZeroX", func(t *testing.T) {
		_, err := Combine([]Share{{X: 0, Y: []byte{1}}})
		assert.ErrorIs(t, err, ErrInvalidShares)
	})
}

func TestCombine_AnySubsetOfThreshold(t *testing.T) {
	secret := randomSecret(t, 32)

	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)

	// every 3-combination of 5 shares reconstructs the secret
	for i := 0; i < 5; i++ {
		for j := i + 1; j < 5; j++ {
			for k := j + 1; k < 5; k++ {
				combined, err := Combine([]Share{shares[i], shares[j], shares[k]})
				require.NoError(t, err)
				assert.Equal(t, secret, combined)
			}
		}
	}
}
