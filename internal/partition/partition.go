// Package partition splits value lists into bounded, order-preserving batches.
package partition

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is the root cause of every argument failure.
var ErrInvalidArgument = errors.New("invalid argument")

// InvalidArgumentError names the offending argument.
type InvalidArgumentError struct {
	Name  string
	Value int
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s must be > 0, got %d", e.Name, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidArgument.
func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// Partition splits values into at least min(minBatches, len(values))
// batches of at most maxBatchSize elements each. Concatenating the batches
// reproduces values exactly.
//
//   - empty values: one empty batch
//   - len(values) <= minBatches: one-element batches
//   - otherwise: max(minBatches, ceil(len/maxBatchSize)) sequential batches
//     whose sizes differ by at most one, larger batches first
//
// Sizes are spread evenly rather than cut greedily into
// ceil(len/minBatches)-sized chunks with a short tail: 10 values over 3
// batches yield 4+3+3, not 4+4+2, and 5 values over 4 batches yield
// 2+1+1+1. Returned batches never share memory with values.
func Partition[T any](values []T, minBatches, maxBatchSize int) ([][]T, error) {
	if minBatches <= 0 {
		return nil, &InvalidArgumentError{Name: "minBatches", Value: minBatches}
	}
	if maxBatchSize <= 0 {
		return nil, &InvalidArgumentError{Name: "maxBatchSize", Value: maxBatchSize}
	}

	if len(values) == 0 {
		return [][]T{{}}, nil
	}

	if len(values) <= minBatches {
		out := make([][]T, len(values))
		for i, v := range values {
			out[i] = []T{v}
		}
		return out, nil
	}

	n := max(minBatches, CeilDiv(len(values), maxBatchSize))
	base, extra := len(values)/n, len(values)%n
	out := make([][]T, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		batch := make([]T, size)
		copy(batch, values[start:start+size])
		out = append(out, batch)
		start += size
	}
	return out, nil
}

// CeilDiv returns ceil(n/d) for n >= 0 and d > 0.
func CeilDiv(n, d int) int {
	return (n + d - 1) / d
}
