package persistence

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus/pkg/geom"
	"consensus/pkg/logx"
	"consensus/pkg/record"
)

func sampleData() map[string][][]record.Turn {
	return map[string][][]record.Turn{
		"(12, 40)": {
			{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}, {Role: "assistant", Content: "Position: 26"}},
			{{Role: "system", Content: "s"}},
		},
	}
}

func TestFileStoreSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	store := NewFileStore(dir)

	res := store.Save(sampleData(), nil)
	require.True(t, res.Saved)
	assert.Equal(t, filepath.Join(dir, DataFile), res.DataPath)
	assert.Empty(t, res.TrajectoryPath)

	data, err := LoadData(res.DataPath)
	require.NoError(t, err)
	assert.Equal(t, sampleData(), data)
}

func TestFileStoreTrajectory(t *testing.T) {
	store := NewFileStore(t.TempDir())
	traj := &record.Trajectory[geom.Vec2]{
		Positions: map[int][][]geom.Vec2{0: {{geom.V(20, 20), geom.V(20.5, 21.25)}}},
		Targets:   map[int][][]geom.Vec2{0: {{geom.V(50, 50)}}},
	}

	res := store.Save(sampleData(), traj)
	require.True(t, res.Saved)
	require.NotEmpty(t, res.TrajectoryPath)

	loaded, err := LoadTrajectory[geom.Vec2](res.TrajectoryPath)
	require.NoError(t, err)
	assert.Equal(t, traj, loaded)
}

func TestFileStoreFallsBack(t *testing.T) {
	var logs bytes.Buffer
	prev := logx.SetOutput(&logs)
	t.Cleanup(func() { logx.SetOutput(prev) })

	// A regular file where the output directory should be makes MkdirAll fail.
	base := t.TempDir()
	blocked := filepath.Join(base, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o600))
	fallback := t.TempDir()

	store := NewFileStore(filepath.Join(blocked, "out")).WithFallbackDir(fallback)
	res := store.Save(sampleData(), &record.Trajectory[float64]{})

	assert.False(t, res.Saved)
	assert.Equal(t, filepath.Join(fallback, BackupDataFile), res.DataPath)
	assert.Equal(t, filepath.Join(fallback, TrajectoryFile), res.TrajectoryPath)
	assert.FileExists(t, res.DataPath)
	assert.Contains(t, logs.String(), "failed to save record")

	data, err := LoadData(res.DataPath)
	require.NoError(t, err)
	assert.Len(t, data, 1)
}
