// File: internal/runlog/filestore.go
package runlog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore keeps the run history as JSON lines in a single append-only
// file under the data directory. It is the default backend.
type FileStore struct {
	path string
	log  *zap.Logger
}

// DefaultPath resolves the run history location under the user's home
// directory.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ovation", "runs.jsonl"), nil
}

// NewFileStore builds a store writing to path, creating the parent
// directory when needed.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	return &FileStore{path: path, log: logger.Named("runlog_file")}, nil
}

// Append computes the same-day prefix total from the records already on
// disk, then writes rec as one JSON line. Existing lines are never
// rewritten.
func (s *FileStore) Append(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return rec, err
	}

	history, err := s.readAll()
	if err != nil {
		return rec, err
	}
	rec.DayTotal = DayTotalFor(history, rec)

	line, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("failed to encode run record: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return rec, fmt.Errorf("failed to open run log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return rec, fmt.Errorf("failed to append run record: %w", err)
	}
	s.log.Debug("Run record appended",
		zap.String("id", rec.ID), zap.Int("day_total", rec.DayTotal))
	return rec, nil
}

// Recent returns the last n records in chronological order.
func (s *FileStore) Recent(ctx context.Context, n int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	history, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	return history, nil
}

func (s *FileStore) readAll() ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// A torn trailing line must not take down the history.
			s.log.Warn("Skipping unreadable run record", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan run log: %w", err)
	}
	return records, nil
}
