package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/ports"
)

// FileStore keeps one JSON document per source and day under dir/<source>/<source>_<YYYYMMDD>.json.
type FileStore struct {
	dir string
}

var _ ports.ArtifactStore = (*FileStore)(nil)

// NewFileStore roots the store at dir; directories are created on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the artifact location for sourceID and periodKey.
func (s *FileStore) Path(sourceID, periodKey string) (string, error) {
	if err := checkSourceID(sourceID); err != nil {
		return "", err
	}
	day, err := time.Parse("2006-01-02", periodKey)
	if err != nil {
		return "", fmt.Errorf("invalid period key %q: %w", periodKey, err)
	}
	name := fmt.Sprintf("%s_%s.json", sourceID, day.Format("20060102"))
	return filepath.Join(s.dir, sourceID, name), nil
}

// Write replaces the artifact atomically; readers see either the old or the new document.
func (s *FileStore) Write(ctx context.Context, sourceID, periodKey string, run domain.AggregationRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Path(sourceID, periodKey)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Read loads an artifact or returns domain.ErrNotFound.
func (s *FileStore) Read(ctx context.Context, sourceID, periodKey string) (domain.AggregationRun, error) {
	if err := ctx.Err(); err != nil {
		return domain.AggregationRun{}, err
	}
	path, err := s.Path(sourceID, periodKey)
	if err != nil {
		return domain.AggregationRun{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.AggregationRun{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, sourceID, periodKey)
		}
		return domain.AggregationRun{}, fmt.Errorf("read %s: %w", path, err)
	}

	var run domain.AggregationRun
	if err := json.Unmarshal(data, &run); err != nil {
		return domain.AggregationRun{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return run, nil
}

func checkSourceID(sourceID string) error {
	if sourceID == "" || sourceID == "." || sourceID == ".." || strings.ContainsAny(sourceID, `/\`) {
		return fmt.Errorf("invalid source id %q", sourceID)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
