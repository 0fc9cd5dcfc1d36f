package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLamportsToSOL(t *testing.T) {
	assert.Equal(t, "0.000000000", LamportsToSOL(0))
	assert.Equal(t, "0.024981836", LamportsToSOL(24981836))
	assert.Equal(t, "1.000000000", LamportsToSOL(1_000_000_000))
	assert.Equal(t, "12.500000001", LamportsToSOL(12_500_000_001))
}

func TestSOLToLamports(t *testing.T) {
	cases := map[string]uint64{
		"0":           0,
		"1":           1_000_000_000,
		"0.024981836": 24981836,
		"1.5":         1_500_000_000,
		".5":          500_000_000,
		" 2.0 ":       2_000_000_000,
	}
	for in, want := range cases {
		got, err := SOLToLamports(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestSOLToLamportsRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "-1", "0.0000000001", "99999999999999999999"} {
		_, err := SOLToLamports(in)
		assert.Error(t, err, in)
	}
}

func TestSOLRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 999, 1_000_000_000, 18_446_744_073_709_551_615} {
		got, err := SOLToLamports(LamportsToSOL(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}
