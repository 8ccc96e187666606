// Package store persists date-indexed tables as CSV or Parquet artifacts and
// records backtest runs in SQLite.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/seenimoa/trendbench/pkg/models"
)

// Supported artifact extensions.
const (
	ExtCSV     = ".csv"
	ExtParquet = ".parquet"
)

// WriteFrame writes f to path in the format implied by its extension,
// creating parent directories as needed.
func WriteFrame(path string, f *models.Frame) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ExtCSV:
		return WriteFrameCSV(path, f)
	case ExtParquet:
		return WriteFrameParquet(path, f)
	default:
		return fmt.Errorf("%w: unsupported artifact extension %q", models.ErrConfig, ext)
	}
}

// ReadFrame reads a table written by WriteFrame.
func ReadFrame(path string) (*models.Frame, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ExtCSV:
		return ReadFrameCSV(path)
	case ExtParquet:
		return ReadFrameParquet(path)
	default:
		return nil, fmt.Errorf("%w: unsupported artifact extension %q", models.ErrConfig, ext)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
