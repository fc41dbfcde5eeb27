package persistence

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"consensus/pkg/logx"
	"consensus/pkg/record"
)

// Record file names.
const (
	DataFile       = "data.gob"
	TrajectoryFile = "trajectory.gob"
	BackupDataFile = "backup_output_file.gob"
)

// SaveResult reports where a record ended up.
type SaveResult struct {
	// Saved is false when the data file had to fall back to the backup location.
	Saved          bool
	DataPath       string
	TrajectoryPath string
}

// FileStore writes gob encoded records into an output directory.
type FileStore struct {
	dir         string
	fallbackDir string
	logger      *logx.Logger
}

// NewFileStore creates a store writing into dir, falling back to the working directory.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, fallbackDir: ".", logger: logx.NewLogger("persistence")}
}

// WithFallbackDir changes where files go when dir cannot be written.
func (s *FileStore) WithFallbackDir(dir string) *FileStore {
	s.fallbackDir = dir
	return s
}

// Dir returns the output directory.
func (s *FileStore) Dir() string { return s.dir }

// Save writes data to data.gob and, when trajectory is non-nil, trajectory.gob.
// A file that cannot be written to the output directory is written to the
// fallback directory instead. Save never panics; failures are logged and
// reflected in the result.
func (s *FileStore) Save(data map[string][][]record.Turn, trajectory any) SaveResult {
	var res SaveResult

	path, err := s.write(DataFile, data)
	if err == nil {
		res.Saved = true
		res.DataPath = path
	} else {
		s.logger.Error("failed to save record: %v, saving to %s instead", err, s.fallbackDir)
		backup := filepath.Join(s.fallbackDir, BackupDataFile)
		if err := writeGob(backup, data); err != nil {
			s.logger.Error("failed to save backup record: %v", err)
		} else {
			res.DataPath = backup
		}
	}

	if trajectory == nil {
		return res
	}
	path, err = s.write(TrajectoryFile, trajectory)
	if err == nil {
		res.TrajectoryPath = path
		return res
	}
	s.logger.Error("failed to save trajectory: %v, saving to %s instead", err, s.fallbackDir)
	backup := filepath.Join(s.fallbackDir, TrajectoryFile)
	if err := writeGob(backup, trajectory); err != nil {
		s.logger.Error("failed to save backup trajectory: %v", err)
	} else {
		res.TrajectoryPath = backup
	}
	return res
}

func (s *FileStore) write(name string, v any) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := writeGob(path, v); err != nil {
		return "", err
	}
	return path, nil
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// LoadData reads a data.gob file.
func LoadData(path string) (map[string][][]record.Turn, error) {
	var data map[string][][]record.Turn
	if err := readGob(path, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// LoadTrajectory reads a trajectory.gob file written for positions of type P.
func LoadTrajectory[P any](path string) (*record.Trajectory[P], error) {
	var t record.Trajectory[P]
	if err := readGob(path, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
