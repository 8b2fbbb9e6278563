// Package snapshot exports output frames as JPEG files and byte slices.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
	"github.com/segmentio/ksuid"
	"gocv.io/x/gocv"
)

// DefaultPrefix is the file name prefix for screenshots.
const DefaultPrefix = "invisibility_cloak"

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

var (
	// ErrEmptyImage is returned when asked to export an empty Mat.
	ErrEmptyImage = errors.New("snapshot: empty image")

	// ErrWriteFailed is returned when OpenCV could not write the file.
	ErrWriteFailed = errors.New("snapshot: write failed")
)

// Name returns a unique, time-sortable file path in dir.
func Name(dir, prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.jpg", prefix, ksuid.New().String()))
}

// Save writes img to a new JPEG file in dir and returns its path.
func Save(dir string, img gocv.Mat, quality int) (string, error) {
	if img.Empty() {
		return "", ErrEmptyImage
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("snapshot: create dir: %w", err)
		}
	}

	path := Name(dir, DefaultPrefix)
	if ok := gocv.IMWriteWithParams(path, img, []int{int(gocv.IMWriteJpegQuality), clampQuality(quality)}); !ok {
		return "", fmt.Errorf("%w: %s", ErrWriteFailed, path)
	}
	return path, nil
}

// EncodeJPEG encodes img in memory.
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), clampQuality(quality)})
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory; copy before the buffer is freed.
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Thumbnail scales a JPEG down to width pixels, keeping the aspect ratio.
// Images already narrower than width are returned unchanged.
func Thumbnail(data []byte, width uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	if width == 0 || uint(img.Bounds().Dx()) <= width {
		return data, nil
	}

	small := resize.Resize(width, 0, img, resize.Bilinear)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, small, &jpeg.Options{Quality: DefaultQuality}); err != nil {
		return nil, fmt.Errorf("snapshot: encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return DefaultQuality
	case q > 100:
		return 100
	default:
		return q
	}
}
