package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cellprobehq/agent/pkg/types"
)

// FileSink writes one JSON document per result into a directory that a
// separate exporter ships off the node. Files appear atomically.
type FileSink struct {
	dir   string
	newID func() string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir, newID: uuid.NewString}
}

func (s *FileSink) Name() string { return "file" }

// FileName returns the name a result is stored under.
func (s *FileSink) FileName(result types.ProbeResult) string {
	return fmt.Sprintf("%s_%s_%s.json", result.DataID, result.NodeID, s.newID())
}

func (s *FileSink) Save(ctx context.Context, result types.ProbeResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create result dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".result-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp result: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp result: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp result: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp result: %w", err)
	}
	final := filepath.Join(s.dir, s.FileName(result))
	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("move result into place: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error { return nil }
