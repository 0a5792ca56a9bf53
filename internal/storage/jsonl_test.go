package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"orderScope/internal/model"
)

func readRecords(t *testing.T, path string) []model.LogRecord {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []model.LogRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.LogRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode %q: %v", scanner.Text(), err)
		}
		got = append(got, record)
	}
	return got
}

func TestJSONLFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "logs.jsonl")
	sink := NewJSONLFile(path)
	defer sink.Close()

	first := []model.LogRecord{{TxHash: "0x01", LogIndex: 1}}
	second := []model.LogRecord{{TxHash: "0x02", LogIndex: 0}, {TxHash: "0x02", LogIndex: 3}}
	if err := sink.PutLogBatch(context.Background(), first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := sink.PutLogBatch(context.Background(), second); err != nil {
		t.Fatalf("put second: %v", err)
	}

	got := readRecords(t, path)
	if len(got) != 3 || got[2].LogIndex != 3 {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestJSONLFileTrimsTornLineOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	sink := NewJSONLFile(path)
	if err := sink.PutLogBatch(context.Background(), []model.LogRecord{{TxHash: "0x01"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Simulate a crash halfway through the next record.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(`{"chain_id":1,"tx_ha`); err != nil {
		t.Fatalf("write torn line: %v", err)
	}
	f.Close()

	reopened := NewJSONLFile(path)
	defer reopened.Close()
	if err := reopened.PutLogBatch(context.Background(), []model.LogRecord{{TxHash: "0x02"}}); err != nil {
		t.Fatalf("put after reopen: %v", err)
	}
	got := readRecords(t, path)
	if len(got) != 2 || got[0].TxHash != "0x01" || got[1].TxHash != "0x02" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestJSONLFileRejectsCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	sink := NewJSONLFile(path)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.PutLogBatch(ctx, []model.LogRecord{{TxHash: "0x01"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("no file expected after cancelled write, stat err %v", err)
	}
}

type failingSink struct{ err error }

func (f failingSink) PutLogBatch(context.Context, []model.LogRecord) error { return f.err }

type countingSink struct{ batches int }

func (c *countingSink) PutLogBatch(context.Context, []model.LogRecord) error {
	c.batches++
	return nil
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	boom := errors.New("disk full")
	counter := &countingSink{}
	multi := Multi{failingSink{err: boom}, nil, counter}

	err := multi.PutLogBatch(context.Background(), []model.LogRecord{{TxHash: "0x01"}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if counter.batches != 1 {
		t.Fatalf("second sink not called")
	}
}
