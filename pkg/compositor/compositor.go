// Package compositor replaces cloak-coloured pixels with the background.
//
// Each frame goes through the same pipeline: BGR to HSV, interval
// threshold, morphological refinement of the mask, then a masked
// composition of reference and live frame.
package compositor

import (
	"fmt"
	"image"
	"sync"

	"github.com/teslashibe/go-cloak/pkg/cloak"
	"gocv.io/x/gocv"
)

// Compositor runs the per-frame masking pipeline.
// Kernels and intermediate buffers are allocated once and reused.
type Compositor struct {
	cfg Config

	openKernel   gocv.Mat
	closeKernel  gocv.Mat
	dilateKernel gocv.Mat

	hsv     gocv.Mat
	raw     gocv.Mat // thresholded mask
	scratch gocv.Mat // second interval / morphology ping-pong
	soft    gocv.Mat // refined, blurred mask
	sel     gocv.Mat // binarised selection
	inv     gocv.Mat

	coverage float64
	mu       sync.Mutex
}

// New creates a compositor.
func New(cfg Config) (*Compositor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Compositor{
		cfg:          cfg,
		openKernel:   rectKernel(cfg.OpenKernel),
		closeKernel:  rectKernel(cfg.CloseKernel),
		dilateKernel: rectKernel(cfg.DilateKernel),
		hsv:          gocv.NewMat(),
		raw:          gocv.NewMat(),
		scratch:      gocv.NewMat(),
		soft:         gocv.NewMat(),
		sel:          gocv.NewMat(),
		inv:          gocv.NewMat(),
	}, nil
}

func rectKernel(size int) gocv.Mat {
	return gocv.GetStructuringElement(gocv.MorphRect, image.Pt(size, size))
}

// Config returns the compositor configuration.
func (c *Compositor) Config() Config {
	return c.cfg
}

// Threshold marks pixels of hsv that fall inside any interval of spec.
// dst receives a single-channel 0/255 mask.
func (c *Compositor) Threshold(hsv gocv.Mat, spec cloak.ColorSpec, dst *gocv.Mat) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold(hsv, spec, dst)
}

func (c *Compositor) threshold(hsv gocv.Mat, spec cloak.ColorSpec, dst *gocv.Mat) error {
	ranges := spec.Ranges()
	if len(ranges) == 0 {
		return ErrNoRanges
	}

	lo, hi := scalars(ranges[0])
	gocv.InRangeWithScalar(hsv, lo, hi, dst)

	// Wrapped hues: union of the per-interval masks.
	for _, r := range ranges[1:] {
		lo, hi := scalars(r)
		gocv.InRangeWithScalar(hsv, lo, hi, &c.scratch)
		gocv.BitwiseOr(*dst, c.scratch, dst)
	}
	return nil
}

func scalars(r cloak.Range) (lo, hi gocv.Scalar) {
	lo = gocv.NewScalar(float64(r.Lower.H), float64(r.Lower.S), float64(r.Lower.V), 0)
	hi = gocv.NewScalar(float64(r.Upper.H), float64(r.Upper.S), float64(r.Upper.V), 0)
	return lo, hi
}

// Refine cleans a raw mask: open, close, dilate, then blur.
// dst receives the soft mask; values between 0 and 255 only appear in a
// narrow band along the cloak boundary.
func (c *Compositor) Refine(mask gocv.Mat, dst *gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refine(mask, dst)
}

func (c *Compositor) refine(mask gocv.Mat, dst *gocv.Mat) {
	opened := gocv.NewMat()
	defer opened.Close()

	// BorderConstant keeps OpenCV's neutral morphology border, so a mask
	// touching the image edge is not eroded from outside.
	gocv.MorphologyExWithParams(mask, &opened, gocv.MorphOpen, c.openKernel, c.cfg.OpenIterations, gocv.BorderConstant)
	gocv.MorphologyExWithParams(opened, &c.scratch, gocv.MorphClose, c.closeKernel, c.cfg.CloseIterations, gocv.BorderConstant)
	gocv.MorphologyExWithParams(c.scratch, &opened, gocv.MorphDilate, c.dilateKernel, c.cfg.DilateIterations, gocv.BorderConstant)

	k := c.cfg.BlurKernel
	gocv.GaussianBlur(opened, dst, image.Pt(k, k), 0, 0, gocv.BorderDefault)
}

// Composite writes live with every cloak pixel replaced by the
// corresponding reference pixel into dst. Each output pixel is taken from
// exactly one of the two inputs.
func (c *Compositor) Composite(live, ref gocv.Mat, spec cloak.ColorSpec, dst *gocv.Mat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if live.Empty() || ref.Empty() {
		return ErrEmptyFrame
	}
	if live.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("%w: got type %v", ErrFrameType, live.Type())
	}
	if live.Rows() != ref.Rows() || live.Cols() != ref.Cols() || live.Type() != ref.Type() {
		return fmt.Errorf("%w: live %dx%d (%v), reference %dx%d (%v)",
			ErrDimensionMismatch,
			live.Cols(), live.Rows(), live.Type(),
			ref.Cols(), ref.Rows(), ref.Type())
	}

	gocv.CvtColor(live, &c.hsv, gocv.ColorBGRToHSV)
	if err := c.threshold(c.hsv, spec, &c.raw); err != nil {
		return err
	}
	c.refine(c.raw, &c.soft)

	gocv.Threshold(c.soft, &c.sel, c.cfg.SelectThreshold, 255, gocv.ThresholdBinary)
	gocv.BitwiseNot(c.sel, &c.inv)

	compose(live, ref, c.sel, c.inv, dst)

	c.coverage = float64(gocv.CountNonZero(c.sel)) / float64(c.sel.Rows()*c.sel.Cols())
	return nil
}

// compose computes (ref AND sel) + (live AND inv). The two masks are
// complementary, so the saturating add never overflows and acts as a
// per-pixel select.
func compose(live, ref, sel, inv gocv.Mat, dst *gocv.Mat) {
	fromRef := gocv.NewMat()
	defer fromRef.Close()
	fromLive := gocv.NewMat()
	defer fromLive.Close()

	// Fresh destinations are zero-filled where the mask is 0.
	gocv.BitwiseAndWithMask(ref, ref, &fromRef, sel)
	gocv.BitwiseAndWithMask(live, live, &fromLive, inv)
	gocv.Add(fromRef, fromLive, dst)
}

// Mask returns the soft mask from the last Composite call. It is only
// valid until the next call and must not be closed.
func (c *Compositor) Mask() gocv.Mat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.soft
}

// Coverage returns the fraction of the last frame that was replaced.
func (c *Compositor) Coverage() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coverage
}

// Close releases kernels and buffers.
func (c *Compositor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range []*gocv.Mat{
		&c.openKernel, &c.closeKernel, &c.dilateKernel,
		&c.hsv, &c.raw, &c.scratch, &c.soft, &c.sel, &c.inv,
	} {
		m.Close()
	}
	return nil
}
