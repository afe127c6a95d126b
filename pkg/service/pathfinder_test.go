package service

import (
	stderrors "errors"
	"testing"

	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/duynguyendang/vultester/pkg/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainService(t *testing.T) *AnalysisService {
	t.Helper()
	base, err := kb.New([]kb.Rule{
		{ID: "A-01", Conditions: []string{"a"}, Consequence: "b", Severity: kb.SeverityWarning},
		{ID: "B-01", Conditions: []string{"b", "c"}, Consequence: "d", Severity: kb.SeverityCritical},
		{ID: "C-01", Conditions: []string{"a", "c"}, Consequence: "e", Severity: kb.SeverityInfo},
		{ID: "D-01", Conditions: []string{"e"}, Consequence: "d", Severity: kb.SeverityInfo},
	}, nil)
	require.NoError(t, err)
	return NewAnalysisService(base, nil, nil, nil)
}

func TestShortestDerivation(t *testing.T) {
	s := chainService(t)

	d, err := s.ShortestDerivation([]string{"a"}, "d")
	require.NoError(t, err)
	require.True(t, d.Found)
	// A-01 is declared before C-01, so b is explored first.
	assert.Equal(t, []string{"a", "b", "d"}, d.Path)
	assert.Equal(t, []string{"A-01", "B-01"}, d.Rules)

	d, err = s.ShortestDerivation([]string{"c", "a"}, "a")
	require.NoError(t, err)
	assert.True(t, d.Found)
	assert.Equal(t, []string{"a"}, d.Path)
	assert.Empty(t, d.Rules)

	d, err = s.ShortestDerivation([]string{"d"}, "a")
	require.NoError(t, err)
	assert.False(t, d.Found)
}

func TestShortestDerivationErrors(t *testing.T) {
	s := chainService(t)

	_, err := s.ShortestDerivation([]string{"a"}, " ")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidInput))

	_, err = s.ShortestDerivation([]string{"a"}, "zzz")
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestDerivationPath(t *testing.T) {
	s := chainService(t)

	g, err := s.DerivationPath([]string{"c"}, "d")
	require.NoError(t, err)
	// c reaches d through B-01 directly.
	require.Len(t, g.Links, 1)
	assert.Equal(t, "B-01", g.Links[0].Relation)

	g, err = s.DerivationPath([]string{"d"}, "b")
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
	assert.NotNil(t, g.Nodes)
}
