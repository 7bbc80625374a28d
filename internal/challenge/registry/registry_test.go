package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saferide/internal/challenge/models"
)

func TestListCandidates(t *testing.T) {
	t.Run("primary phrases carry no cultural context", func(t *testing.T) {
		qs := ListCandidates(models.CategoryPrimary)
		require.NotEmpty(t, qs)
		for _, q := range qs {
			assert.Equal(t, models.CategoryPrimary, q.Category)
			assert.False(t, q.CulturalContext)
		}
	})

	t.Run("secondary phrases are cultural", func(t *testing.T) {
		qs := ListCandidates(models.CategorySecondary)
		require.NotEmpty(t, qs)
		for _, q := range qs {
			assert.Equal(t, models.CategorySecondary, q.Category)
			assert.True(t, q.CulturalContext)
		}
		assert.Contains(t, qs, models.NewChallengeQuestion("Pura vida mae", models.CategorySecondary))
	})

	t.Run("callers cannot mutate the catalog", func(t *testing.T) {
		qs := ListCandidates(models.CategoryPrimary)
		qs[0].Text = "tampered"
		assert.NotEqual(t, "tampered", ListCandidates(models.CategoryPrimary)[0].Text)
	})

	t.Run("unknown category is empty", func(t *testing.T) {
		assert.Empty(t, ListCandidates(models.Category("tertiary")))
	})
}
