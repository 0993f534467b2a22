package version_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eHtmlu/peak-publisher/internal/models"
	"github.com/eHtmlu/peak-publisher/internal/version"
)

func refs(versions ...string) []models.ReleaseRef {
	out := make([]models.ReleaseRef, len(versions))
	for i, v := range versions {
		out[i] = models.ReleaseRef{ReleaseID: int64(i + 1), Version: v, Basename: "myplugin/myplugin.php"}
	}
	return out
}

func TestResolve(t *testing.T) {
	t.Run("No releases", func(t *testing.T) {
		rel := version.Resolve(nil, "1.0.0")
		assert.Nil(t, rel.Existing)
		assert.Nil(t, rel.Previous)
		assert.Nil(t, rel.Next)
		assert.Nil(t, rel.Latest)
	})

	t.Run("Candidate between releases", func(t *testing.T) {
		rel := version.Resolve(refs("1.0.0", "2.0.0", "1.5.0", "0.9"), "1.2.0")
		assert.Nil(t, rel.Existing)
		require.NotNil(t, rel.Previous)
		assert.Equal(t, "1.0.0", rel.Previous.Version)
		require.NotNil(t, rel.Next)
		assert.Equal(t, "1.5.0", rel.Next.Version)
		require.NotNil(t, rel.Latest)
		assert.Equal(t, "2.0.0", rel.Latest.Version)
	})

	t.Run("Candidate equals an existing release", func(t *testing.T) {
		rel := version.Resolve(refs("1.0.0", "1.1.0"), "1.1.0")
		require.NotNil(t, rel.Existing)
		assert.Equal(t, int64(2), rel.Existing.ReleaseID)
		assert.Equal(t, "1.0.0", rel.Previous.Version)
		assert.Nil(t, rel.Next)
		assert.Equal(t, int64(2), rel.Latest.ReleaseID)
	})

	t.Run("Existing matched on normalized form", func(t *testing.T) {
		rel := version.Resolve(refs("1.0.0-Beta1"), "1.0.0.beta.1")
		require.NotNil(t, rel.Existing)
		assert.Equal(t, "1.0.0.beta.1", rel.Existing.NormalizedVersion)
	})

	t.Run("Duplicate versions keep first seen", func(t *testing.T) {
		rel := version.Resolve(refs("1.0.0", "1.0.0"), "2.0.0")
		assert.Equal(t, int64(1), rel.Previous.ReleaseID)
		assert.Equal(t, int64(1), rel.Latest.ReleaseID)
	})
}

func TestResolve_RelationsHoldForRandomReleaseSets(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	gen := func() string {
		parts := []string{"0", "1", "2", "3", "10"}
		v := parts[rng.IntN(len(parts))]
		for i := rng.IntN(3); i >= 0; i-- {
			v += "." + parts[rng.IntN(len(parts))]
		}
		if rng.IntN(5) == 0 {
			v += "-beta"
		}
		return v
	}

	for i := 0; i < 500; i++ {
		versions := make([]string, rng.IntN(6))
		for j := range versions {
			versions[j] = gen()
		}
		candidate := gen()
		rel := version.Resolve(refs(versions...), candidate)

		if rel.Previous != nil {
			assert.Equal(t, -1, version.Compare(rel.Previous.Version, candidate))
		}
		if rel.Next != nil {
			assert.Equal(t, 1, version.Compare(rel.Next.Version, candidate))
		}
		if rel.Existing != nil {
			assert.Equal(t, 0, version.Compare(rel.Existing.Version, candidate))
		}
		if len(versions) == 0 {
			assert.Nil(t, rel.Latest)
			continue
		}
		require.NotNil(t, rel.Latest)
		for _, v := range versions {
			assert.LessOrEqual(t, version.Compare(v, rel.Latest.Version), 0)
		}
	}
}

func TestHighest(t *testing.T) {
	assert.Equal(t, -1, version.Highest(nil))
	assert.Equal(t, 2, version.Highest([]string{"1.0", "1.0-beta", "1.10", "1.9"}))
}
