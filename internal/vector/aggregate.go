package vector

import (
	"errors"
	"fmt"
)

// ErrInsufficientFrames is returned when fewer frame vectors are supplied
// than the configured minimum.
var ErrInsufficientFrames = errors.New("insufficient frames for aggregation")

// Aggregate reduces the per-frame embeddings of one enrollment session into a
// single canonical identity vector: element-wise mean, re-normalized to unit
// length. The mean makes the result independent of frame order.
//
// The session manager gates frame counts before calling this, but the
// precondition is validated again here.
func Aggregate(frames [][]float32, minFrames int) ([]float32, error) {
	if minFrames < 1 {
		minFrames = 1
	}
	if len(frames) < minFrames {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientFrames, len(frames), minFrames)
	}

	dim := len(frames[0])
	for i, f := range frames {
		if len(f) != dim || dim == 0 {
			return nil, fmt.Errorf("frame %d has dimension %d, expected %d", i, len(f), dim)
		}
	}

	sum := make([]float64, dim)
	for _, f := range frames {
		for i, x := range f {
			sum[i] += float64(x)
		}
	}

	mean := make([]float32, dim)
	n := float64(len(frames))
	for i, s := range sum {
		mean[i] = float32(s / n)
	}

	return Normalize(mean), nil
}
