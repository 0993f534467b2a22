package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eHtmlu/peak-publisher/internal/version"
)

func TestExpectedSuccessors(t *testing.T) {
	assert.Equal(t, []string{"2.0.0", "1.3.0", "1.2.1"}, version.ExpectedSuccessors("1.2.0", "1.3.0"))
	assert.Equal(t, []string{"2.0.0.0", "1.3.0.0", "1.2.1.0", "1.2.0.1"}, version.ExpectedSuccessors("1.2", "1.2.0.1"))
	assert.Equal(t, []string{"2.0", "1.1"}, version.ExpectedSuccessors("1.0", "1"))
	assert.Nil(t, version.ExpectedSuccessors("", "1.0.0"))
}

func TestClassifyAgainstPrevious(t *testing.T) {
	tests := []struct {
		candidate string
		kind      version.ReleaseKind
		natural   bool
	}{
		{"1.3.0", version.KindMinor, true},
		{"2.0.0", version.KindMajor, true},
		{"1.2.1", version.KindPatch, true},
		{"1.3", version.KindMinor, true},
		{"1.5.7", version.KindMinor, false},
		{"3.1.0", version.KindMajor, false},
		{"1.1.0", version.KindUnknown, false},
		{"1.2.0", version.KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			assert.Equal(t, tt.kind, version.Classify("1.2.0", tt.candidate))
			assert.Equal(t, tt.natural, version.IsNaturalSuccessor("1.2.0", tt.candidate))
		})
	}
}

func TestClassifyFirstRelease(t *testing.T) {
	assert.Equal(t, version.KindMajor, version.Classify("", "1.0.0"))
	assert.Equal(t, version.KindMinor, version.Classify("", "0.3"))
	assert.Equal(t, version.KindPatch, version.Classify("", "0.1.4"))
	assert.Equal(t, version.KindUnknown, version.Classify("", "1.beta"))
}

func TestIsSemver(t *testing.T) {
	assert.True(t, version.IsSemver("1.2.3"))
	assert.True(t, version.IsSemver("1.2.3-beta.1"))
	assert.False(t, version.IsSemver("1.2"))
	assert.False(t, version.IsSemver("v1.2.3"))
}
