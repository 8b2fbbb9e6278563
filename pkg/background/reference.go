package background

import (
	"fmt"
	"time"

	"github.com/corona10/goimagehash"
	"gocv.io/x/gocv"
)

// Reference is an estimated empty-scene background.
// It is never mutated after construction; recapture builds a new one.
type Reference struct {
	mat        gocv.Mat
	hash       *goimagehash.ImageHash
	capturedAt time.Time
	frames     int
}

// NewReference takes ownership of mat. frames is the number of frames
// the image was reduced from.
func NewReference(mat gocv.Mat, frames int) *Reference {
	r := &Reference{
		mat:        mat,
		capturedAt: time.Now(),
		frames:     frames,
	}
	// Drift comparison is best effort; a reference without a hash is still usable.
	if img, err := mat.ToImage(); err == nil {
		if h, err := goimagehash.PerceptionHash(img); err == nil {
			r.hash = h
		}
	}
	return r
}

// Mat returns the background image. The caller must not modify or close it.
func (r *Reference) Mat() gocv.Mat {
	return r.mat
}

// Size returns the image dimensions.
func (r *Reference) Size() (rows, cols int) {
	return r.mat.Rows(), r.mat.Cols()
}

// CapturedAt returns when the reference was built.
func (r *Reference) CapturedAt() time.Time {
	return r.capturedAt
}

// Frames returns how many frames the median was taken over.
func (r *Reference) Frames() int {
	return r.frames
}

// Drift returns the perceptual-hash Hamming distance to other.
// 0 means the scenes look the same; larger values mean lighting or
// layout changed between captures.
func (r *Reference) Drift(other *Reference) (int, error) {
	if r == nil || other == nil || r.hash == nil || other.hash == nil {
		return 0, fmt.Errorf("background: drift needs two hashed references")
	}
	return r.hash.Distance(other.hash)
}

// Close releases the image.
func (r *Reference) Close() error {
	return r.mat.Close()
}
