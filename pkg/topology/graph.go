// Package topology defines the connectivity graph that decides which peers an agent can observe.
package topology

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"consensus/pkg/config"
)

// Graph is an immutable square visibility relation over agent indices.
// Observes(i, j) means agent i is shown agent j's position.
type Graph struct {
	adj   [][]bool
	peers [][]int
}

// New validates matrix against the configured agent count and copies it.
func New(matrix [][]bool, agents int) (*Graph, error) {
	n := len(matrix)
	for i, row := range matrix {
		if len(row) != n {
			return nil, config.Errorf("topology", "connectivity matrix is not square: row %d has %d columns, want %d", i, len(row), n)
		}
	}
	if n != agents {
		return nil, config.Errorf("topology", "connectivity matrix size %dx%d doesn't match the number of agents: %d", n, n, agents)
	}

	g := &Graph{
		adj:   make([][]bool, n),
		peers: make([][]int, n),
	}
	for i, row := range matrix {
		g.adj[i] = append([]bool(nil), row...)
		for j, ok := range row {
			if ok {
				g.peers[i] = append(g.peers[i], j)
			}
		}
	}
	return g, nil
}

// Size returns the agent count the graph was built for.
func (g *Graph) Size() int { return len(g.adj) }

// Observes reports whether agent i sees agent j.
func (g *Graph) Observes(i, j int) bool { return g.adj[i][j] }

// VisiblePeers returns the indices agent i observes, ascending.
func (g *Graph) VisiblePeers(i int) []int {
	return append([]int(nil), g.peers[i]...)
}

// Matrix returns a copy of the adjacency matrix.
func (g *Graph) Matrix() [][]bool {
	out := make([][]bool, len(g.adj))
	for i, row := range g.adj {
		out[i] = append([]bool(nil), row...)
	}
	return out
}

// String renders the matrix with 1/0 cells, one row per line.
func (g *Graph) String() string {
	var b strings.Builder
	for _, row := range g.adj {
		for j, ok := range row {
			if j > 0 {
				b.WriteByte(' ')
			}
			if ok {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// FullMeshMinusSelf returns the n×n matrix where everyone sees everyone else.
func FullMeshMinusSelf(n int) [][]bool {
	m := make([][]bool, n)
	for i := range m {
		m[i] = make([]bool, n)
		for j := range m[i] {
			m[i][j] = i != j
		}
	}
	return m
}

// Star returns the matrix where center sees every other agent and each
// other agent sees only center.
func Star(n, center int) [][]bool {
	m := make([][]bool, n)
	for i := range m {
		m[i] = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		if i == center {
			continue
		}
		m[center][i] = true
		m[i][center] = true
	}
	return m
}

type matrixFile struct {
	Connectivity [][]bool `yaml:"connectivity"`
}

// Load reads a custom matrix from a YAML file of the form
//
//	connectivity:
//	  - [false, true, true]
//	  - [true, false, false]
//	  - [true, false, false]
func Load(path string) ([][]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file: %w", err)
	}
	var f matrixFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, config.Errorf("topology.file", "parse %s: %v", path, err)
	}
	if len(f.Connectivity) == 0 {
		return nil, config.Errorf("topology.file", "%s has no connectivity matrix", path)
	}
	return f.Connectivity, nil
}

// FromConfig builds the graph selected by cfg.
func FromConfig(cfg config.TopologyConfig, agents int) (*Graph, error) {
	switch cfg.Kind {
	case config.TopologyFull, "":
		return New(FullMeshMinusSelf(agents), agents)
	case config.TopologyStar:
		return New(Star(agents, cfg.Center), agents)
	case config.TopologyFile:
		m, err := Load(cfg.File)
		if err != nil {
			return nil, err
		}
		return New(m, agents)
	default:
		return nil, config.Errorf("topology.kind", "unknown topology %q", cfg.Kind)
	}
}
