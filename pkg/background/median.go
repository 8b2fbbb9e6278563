package background

import (
	"fmt"
	"slices"

	"gocv.io/x/gocv"
)

// Median reduces frames to their per-pixel, per-channel median.
//
// For an even number of frames the two middle samples are averaged and
// truncated. All frames must be 8-bit and share size and type. The
// returned Mat is owned by the caller.
func Median(frames []gocv.Mat) (gocv.Mat, error) {
	if len(frames) == 0 {
		return gocv.NewMat(), ErrNoFrames
	}

	first := frames[0]
	rows, cols, typ := first.Rows(), first.Cols(), first.Type()
	for i, f := range frames {
		if f.Rows() != rows || f.Cols() != cols || f.Type() != typ {
			return gocv.NewMat(), fmt.Errorf("%w: frame %d is %dx%d type %v, want %dx%d type %v",
				ErrFrameMismatch, i, f.Cols(), f.Rows(), f.Type(), cols, rows, typ)
		}
	}

	if len(frames) == 1 {
		return first.Clone(), nil
	}

	planes := make([][]byte, len(frames))
	for i := range frames {
		planes[i] = frames[i].ToBytes()
	}

	out := make([]byte, len(planes[0]))
	samples := make([]byte, len(planes))
	mid := len(samples) / 2
	even := len(samples)%2 == 0

	for px := range out {
		for i, p := range planes {
			samples[i] = p[px]
		}
		slices.Sort(samples)
		if even {
			out[px] = byte((uint16(samples[mid-1]) + uint16(samples[mid])) / 2)
		} else {
			out[px] = samples[mid]
		}
	}

	return gocv.NewMatFromBytes(rows, cols, typ, out)
}
