// Package testdata builds synthetic camera frames and card images for tests.
package testdata

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/cardcapture/internal/capture"
)

// UniformFrame builds a tightly packed I420 frame of constant luma and
// chroma.
func UniformFrame(w, h int, luma, u, v byte) *capture.Frame {
	ySize := w * h
	cSize := (w / 2) * (h / 2)
	buf := make([]byte, ySize+2*cSize)
	fill(buf[:ySize], luma)
	fill(buf[ySize:ySize+cSize], u)
	fill(buf[ySize+cSize:], v)
	return capture.NewI420Frame(buf, w, h, time.Now())
}

// SemiPlanarFrame builds a frame in the layout many sensors deliver: luma
// rows padded to rowStride and both chroma planes aliasing one interleaved
// VU buffer with a pixel stride of 2. The last chroma row is unpadded.
func SemiPlanarFrame(w, h, rowStride int, luma, u, v byte) *capture.Frame {
	if rowStride < w {
		rowStride = w
	}
	cw, ch := w/2, h/2

	y := make([]byte, rowStride*(h-1)+w)
	fill(y, luma)

	vu := make([]byte, rowStride*(ch-1)+2*cw)
	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			vu[row*rowStride+2*col] = v
			vu[row*rowStride+2*col+1] = u
		}
	}

	f := &capture.Frame{Timestamp: time.Now(), Width: w, Height: h}
	f.Planes[capture.PlaneY] = capture.Plane{Data: y, RowStride: rowStride, PixelStride: 1}
	f.Planes[capture.PlaneV] = capture.Plane{Data: vu, RowStride: rowStride, PixelStride: 2}
	f.Planes[capture.PlaneU] = capture.Plane{Data: vu[1:], RowStride: rowStride, PixelStride: 2}
	return f
}

// Sequence returns n uniform frames whose luma rises from base by step.
func Sequence(n, w, h int, base, step byte) []*capture.Frame {
	frames := make([]*capture.Frame, n)
	for i := range frames {
		frames[i] = UniformFrame(w, h, base+byte(i)*step, 128, 128)
		frames[i].Seq = uint64(i)
	}
	return frames
}

// CardImage renders a light card-sized rectangle centered on a dark
// background.
func CardImage(w, h int) (image.Image, error) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 30, 30, 0), h, w, gocv.MatTypeCV8UC3)
	defer mat.Close()

	cw := w * 8 / 10
	chh := cw * 540 / 856
	x0, y0 := (w-cw)/2, (h-chh)/2
	gocv.Rectangle(&mat, image.Rect(x0, y0, x0+cw, y0+chh), color.RGBA{R: 220, G: 215, B: 200, A: 255}, -1)

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("render card: %w", err)
	}
	return img, nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
