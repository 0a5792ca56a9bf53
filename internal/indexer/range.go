package indexer

import (
	"errors"
	"fmt"
	"strings"
)

// errRangeTooLarge marks a getLogs call the provider refused because the
// block span or result count exceeded its limit.
var errRangeTooLarge = errors.New("log range too large")

// providerRangeErrors are the messages common RPC providers return when a
// getLogs span is over their limit.
var providerRangeErrors = []string{
	"query returned more than",
	"block range is too large",
	"exceed maximum block range",
	"log response size exceeded",
	"limit exceeded",
}

// classifyFilterError wraps provider range-limit errors in errRangeTooLarge.
func classifyFilterError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, s := range providerRangeErrors {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %v", errRangeTooLarge, err)
		}
	}
	return err
}

// BlockRange is an inclusive span of blocks fetched with one getLogs call.
type BlockRange struct {
	From uint64
	To   uint64
}

func (r BlockRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.From, r.To)
}

// Split halves the range. ok is false for a single block, which cannot be
// split further.
func (r BlockRange) Split() (lo, hi BlockRange, ok bool) {
	if r.From >= r.To {
		return r, BlockRange{}, false
	}
	mid := r.From + (r.To-r.From)/2
	return BlockRange{From: r.From, To: mid}, BlockRange{From: mid + 1, To: r.To}, true
}

// SplitRange cuts [from, to] into consecutive batches of at most batchSize
// blocks; checkpoints advance once per batch.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d is before from block %d", to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; start += batchSize {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}
