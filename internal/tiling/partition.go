// Package tiling splits source rasters into overlapping square windows and
// writes each window as a per-sample tile file.
//
// Windows are enumerated row-major: y ascending, then x ascending. Sample
// indices downstream are the enumeration position, so the order is part of
// the contract. A trailing strip narrower than one step on the right and
// bottom edges is dropped.
package tiling

import (
	"fmt"
	"iter"
	"math"

	"wildfire-rf/internal/common"
)

// Window is a square tile origin in source pixel coordinates.
type Window struct {
	X    int
	Y    int
	Size int
}

// Step returns the stride between consecutive window origins.
func Step(size int, overlap float64) int {
	return int(math.Floor(float64(size) * (1 - overlap)))
}

func validate(width, height, size int, overlap float64) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: window size must be positive, got %d", common.ErrInvalidConfiguration, size)
	}
	if overlap < 0 || overlap >= 1 || math.IsNaN(overlap) {
		return 0, fmt.Errorf("%w: overlap must be in [0, 1), got %g", common.ErrInvalidConfiguration, overlap)
	}
	step := Step(size, overlap)
	if step <= 0 {
		return 0, fmt.Errorf("%w: window size %d with overlap %g gives step %d",
			common.ErrInvalidConfiguration, size, overlap, step)
	}
	if size > min(width, height) {
		return 0, fmt.Errorf("%w: window size %d exceeds %dx%d image",
			common.ErrInvalidConfiguration, size, width, height)
	}
	return step, nil
}

// Partition validates the parameters and returns a restartable sequence of
// (sample index, window) pairs. Each range over the sequence starts again
// from index 0.
func Partition(width, height, size int, overlap float64) (iter.Seq2[int, Window], error) {
	step, err := validate(width, height, size, overlap)
	if err != nil {
		return nil, err
	}

	return func(yield func(int, Window) bool) {
		i := 0
		for y := 0; y <= height-size; y += step {
			for x := 0; x <= width-size; x += step {
				if !yield(i, Window{X: x, Y: y, Size: size}) {
					return
				}
				i++
			}
		}
	}, nil
}

// Count returns how many windows Partition yields.
func Count(width, height, size int, overlap float64) (int, error) {
	step, err := validate(width, height, size, overlap)
	if err != nil {
		return 0, err
	}
	cols := (width-size)/step + 1
	rows := (height-size)/step + 1
	return cols * rows, nil
}
