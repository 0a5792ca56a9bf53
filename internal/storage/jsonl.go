package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"orderScope/internal/model"
)

const tailChunk = 4096

// JSONLFile appends log records to a JSON-lines file. The file is opened on
// the first batch and stays open until Close; every batch is flushed and
// synced before PutLogBatch returns, so a checkpoint saved afterwards never
// points past data on disk.
type JSONLFile struct {
	path string

	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

func NewJSONLFile(path string) *JSONLFile {
	return &JSONLFile{path: path}
}

// PutLogBatch appends logs, one JSON object per line.
func (s *JSONLFile) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return err
	}

	enc := json.NewEncoder(s.w)
	for _, record := range logs {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("write log record %s:%d: %w", record.TxHash, record.LogIndex, err)
		}
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	return nil
}

// Close flushes and closes the file. A later batch reopens it.
func (s *JSONLFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	s.file, s.w = nil, nil
	if flushErr != nil {
		return fmt.Errorf("flush output: %w", flushErr)
	}
	return closeErr
}

func (s *JSONLFile) openLocked() error {
	if s.file != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	end, err := trimTornLine(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("repair output file: %w", err)
	}
	if _, err := file.Seek(end, io.SeekStart); err != nil {
		file.Close()
		return fmt.Errorf("seek output file: %w", err)
	}
	s.file = file
	s.w = bufio.NewWriter(file)
	return nil
}

// trimTornLine drops a trailing partial line left by an interrupted write and
// returns the resulting file size.
func trimTornLine(file *os.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	buf := make([]byte, tailChunk)
	end := size
	for end > 0 {
		start := end - tailChunk
		if start < 0 {
			start = 0
		}
		chunk := buf[:end-start]
		if _, err := file.ReadAt(chunk, start); err != nil {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			keep := start + int64(i) + 1
			if keep == size {
				return size, nil
			}
			return keep, file.Truncate(keep)
		}
		end = start
	}
	return 0, file.Truncate(0)
}
