package version_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eHtmlu/peak-publisher/internal/version"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"Empty", "", ""},
		{"Whitespace only", "   ", ""},
		{"Plain dotted", "1.2.3", "1.2.3"},
		{"Pre-release suffix", "1.0.0-beta1", "1.0.0.beta.1"},
		{"Upper case and build", "2.0_RC+build", "2.0.rc.build"},
		{"Surrounding space", "  1.4 ", "1.4"},
		{"Repeated separators", "1..2--3", "1.2.3"},
		{"Leading letters", "v1.2", "v.1.2"},
		{"Trailing separator", "1.0 +", "1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, version.Normalize(tt.raw))
		})
	}
}

func TestNormalize_IdempotentForPrintableASCII(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 5000; i++ {
		b := make([]byte, rng.IntN(14))
		for j := range b {
			b[j] = byte(32 + rng.IntN(95))
		}
		raw := string(b)
		once := version.Normalize(raw)
		assert.Equal(t, once, version.Normalize(once), "input %q", raw)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{"Equal", "1.0.0", "1.0.0", 0},
		{"Equal after normalization", "1.0.0-Beta1", "1.0.0.beta.1", 0},
		{"Patch lower", "1.0.0", "1.0.1", -1},
		{"Numeric not lexical", "1.10", "1.9", 1},
		{"Missing segment is lower", "1.0", "1.0.0", -1},
		{"Pre-release below release", "1.0.0-beta", "1.0.0", -1},
		{"Extra number above release", "1.0.0.1", "1.0.0", 1},
		{"Beta below rc", "1.0.0-beta2", "1.0.0-rc1", -1},
		{"Dev below alpha", "1.0-dev", "1.0-alpha", -1},
		{"Patch level above number", "1.0-pl1", "1.0.1", 1},
		{"Leading zeros differ", "1.01", "1.1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, version.Compare(tt.a, tt.b))
			assert.Equal(t, -tt.expected, version.Compare(tt.b, tt.a))
		})
	}
}

func TestCompare_ZeroOnlyForEqualNormalizedForms(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	alphabet := "0123456789.-abrcdevpl"
	gen := func() string {
		b := make([]byte, rng.IntN(8))
		for i := range b {
			b[i] = alphabet[rng.IntN(len(alphabet))]
		}
		return string(b)
	}
	for i := 0; i < 3000; i++ {
		a, b := gen(), gen()
		c := version.Compare(a, b)
		assert.Equal(t, version.Normalize(a) == version.Normalize(b), c == 0, "%q vs %q", a, b)
		assert.Equal(t, -c, version.Compare(b, a), "%q vs %q", a, b)
	}
}
