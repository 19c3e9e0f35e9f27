package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeConstraints_DedupesCaseInsensitively(t *testing.T) {
	c := TaskContract{
		OutOfScopeDimensions: []string{"Revenue", "revenue", " REVENUE ", "region"},
	}

	got := c.ScopeConstraints()

	require.Len(t, got, 2)
	assert.Equal(t, "Revenue", got[0].Dimension)
	assert.Equal(t, "region", got[1].Dimension)
}

func TestScopeConstraints_DetailedConstraintWins(t *testing.T) {
	c := TaskContract{
		Constraints:          []ScopeConstraint{{Dimension: "Revenue", Title: "Revenue forecasting", Detail: "No finance data"}},
		OutOfScopeDimensions: []string{"revenue", ""},
	}

	got := c.ScopeConstraints()

	require.Len(t, got, 1)
	assert.Equal(t, "Revenue forecasting", got[0].Title)
	assert.Equal(t, "No finance data", got[0].Detail)
}
