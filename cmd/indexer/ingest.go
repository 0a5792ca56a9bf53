package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderScope/internal/model"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Validate and store raw signed orders from JSONL",
		RunE:  runIngest,
	}
	addCommonFlags(cmd.Flags())
	cmd.Flags().String("in", "-", "input raw orders JSONL, - reads stdin")
	cmd.Flags().String("results", "./data/order_results.jsonl", "per-order result JSONL")
	cmd.Flags().Int("orders-per-batch", 500, "orders processed per batch")
	return cmd
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, logger, ctx, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()
	defer logger.Sync()

	in, _ := cmd.Flags().GetString("in")
	resultsPath, _ := cmd.Flags().GetString("results")
	perBatch, _ := cmd.Flags().GetInt("orders-per-batch")
	if perBatch <= 0 {
		return fmt.Errorf("orders-per-batch must be greater than zero")
	}
	if resultsPath == "" {
		return fmt.Errorf("results path is required")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var input io.Reader = os.Stdin
	if in != "-" {
		file, err := os.Open(in)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer file.Close()
		input = file
	}

	results, err := newJSONLWriter(resultsPath)
	if err != nil {
		return err
	}
	defer results.Close()

	logger.Info("ingest start", zap.String("in", in), zap.String("results", resultsPath), zap.Int("orders_per_batch", perBatch))

	counts := make(map[model.Code]int)
	flush := func(batch []model.RawOrder) error {
		if len(batch) == 0 {
			return nil
		}
		out, err := a.processor.Process(ctx, batch)
		if err != nil {
			return err
		}
		for _, res := range out {
			counts[res.Code]++
			if err := results.Write(res); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(input)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var batch []model.RawOrder
	var lineNo, malformed int
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var raw model.RawOrder
		if err := json.Unmarshal(line, &raw); err != nil {
			malformed++
			logger.Warn("malformed raw order", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		batch = append(batch, raw)
		if len(batch) == perBatch {
			if err := flush(batch); err != nil {
				return err
			}
			batch = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	if err := flush(batch); err != nil {
		return err
	}

	fields := []zap.Field{zap.Int("malformed", malformed)}
	for code, n := range counts {
		fields = append(fields, zap.Int(string(code), n))
	}
	logger.Info("ingest complete", fields...)
	return nil
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

// newJSONLWriter truncates path and writes one JSON value per line.
func newJSONLWriter(path string) (*jsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &jsonlWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
