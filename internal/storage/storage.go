package storage

import (
	"context"
	"errors"

	"orderScope/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}

// Multi fans a batch out to every sink in order and joins their errors.
type Multi []Storage

func (m Multi) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutLogBatch(ctx, logs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
