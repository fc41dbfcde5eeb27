package topology

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus/pkg/config"
)

func randomMatrix(r *rand.Rand, rows, cols int) [][]bool {
	m := make([][]bool, rows)
	for i := range m {
		m[i] = make([]bool, cols)
		for j := range m[i] {
			m[i][j] = r.IntN(2) == 1
		}
	}
	return m
}

func requireConfigError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %T: %v", err, err)
}

func TestNewAcceptsMatchingSquareMatrices(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for n := 1; n <= 12; n++ {
		g, err := New(randomMatrix(r, n, n), n)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, n, g.Size())
	}
}

func TestNewRejectsSizeMismatch(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	for n := 1; n <= 8; n++ {
		_, err := New(randomMatrix(r, n, n), n+1)
		requireConfigError(t, err)
	}
}

func TestNewRejectsNonSquare(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for n := 2; n <= 8; n++ {
		_, err := New(randomMatrix(r, n, n-1), n)
		requireConfigError(t, err)

		ragged := randomMatrix(r, n, n)
		ragged[n-1] = ragged[n-1][:n-1]
		_, err = New(ragged, n)
		requireConfigError(t, err)
	}
}

func TestVisiblePeers(t *testing.T) {
	g, err := New([][]bool{
		{false, true, true},
		{true, false, false},
		{true, false, false},
	}, 3)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, g.VisiblePeers(0))
	assert.Equal(t, []int{0}, g.VisiblePeers(1))
	assert.Equal(t, []int{0}, g.VisiblePeers(2))
	assert.True(t, g.Observes(1, 0))
	assert.False(t, g.Observes(1, 2))
}

func TestGraphIsImmutable(t *testing.T) {
	m := FullMeshMinusSelf(3)
	g, err := New(m, 3)
	require.NoError(t, err)

	m[0][1] = false
	assert.True(t, g.Observes(0, 1), "mutating the input must not change the graph")

	peers := g.VisiblePeers(0)
	peers[0] = 99
	assert.Equal(t, []int{1, 2}, g.VisiblePeers(0))

	copied := g.Matrix()
	copied[2][0] = false
	assert.True(t, g.Observes(2, 0))
}

func TestFullMeshMinusSelf(t *testing.T) {
	g, err := New(FullMeshMinusSelf(4), 4)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.False(t, g.Observes(i, i))
		assert.Len(t, g.VisiblePeers(i), 3)
	}
	assert.Equal(t, "0 1 1 1\n1 0 1 1\n1 1 0 1\n1 1 1 0\n", g.String())
}

func TestStar(t *testing.T) {
	g, err := New(Star(3, 0), 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, g.VisiblePeers(0))
	assert.Equal(t, []int{0}, g.VisiblePeers(2))
}

func TestFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yml")
	require.NoError(t, os.WriteFile(path, []byte(`connectivity:
  - [false, true, false]
  - [false, false, true]
  - [true, false, false]
`), 0o600))

	g, err := FromConfig(config.TopologyConfig{Kind: config.TopologyFile, File: path}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, g.VisiblePeers(1))

	_, err = FromConfig(config.TopologyConfig{Kind: config.TopologyFile, File: path}, 4)
	requireConfigError(t, err)
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yml")
	require.NoError(t, os.WriteFile(path, []byte("other: 1\n"), 0o600))

	_, err := Load(path)
	requireConfigError(t, err)
}
