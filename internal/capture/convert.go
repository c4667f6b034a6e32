package capture

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// DefaultJPEGQuality is the quality of the lossy round trip in ToStillImage.
const DefaultJPEGQuality = 90

// ErrConversion is returned when a plane's layout does not cover the region
// implied by the frame geometry.
var ErrConversion = errors.New("capture: plane layout inconsistent with frame geometry")

// ToCanonicalChroma converts a planar frame into an NV21 buffer: the luma
// plane followed by interleaved V/U samples. Row and pixel strides are
// honored; the function never reads past a plane's declared length and stops
// with ErrConversion as soon as an index would fall outside it.
func ToCanonicalChroma(f *Frame) ([]byte, error) {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrConversion)
	}

	for i, p := range f.Planes {
		if p.RowStride < 0 || p.PixelStride < 0 {
			return nil, fmt.Errorf("%w: plane %d has negative stride", ErrConversion, i)
		}
	}

	w, h := f.Width, f.Height
	cw, ch := w/2, h/2
	out := make([]byte, w*h+2*cw*ch)

	y := f.Planes[PlaneY]
	yStride := y.RowStride
	if yStride == 0 {
		yStride = w
	}
	yPix := y.PixelStride
	if yPix == 0 {
		yPix = 1
	}

	pos := 0
	for row := 0; row < h; row++ {
		if yPix == 1 {
			base := offset(row, yStride, 0, 1)
			if base < 0 || base > len(y.Data)-w {
				return nil, fmt.Errorf("%w: luma row %d", ErrConversion, row)
			}
			pos += copy(out[pos:], y.Data[base:base+w])
			continue
		}
		for col := 0; col < w; col++ {
			idx := offset(row, yStride, col, yPix)
			if idx < 0 || idx >= len(y.Data) {
				return nil, fmt.Errorf("%w: luma row %d", ErrConversion, row)
			}
			out[pos] = y.Data[idx]
			pos++
		}
	}

	u, v := f.Planes[PlaneU], f.Planes[PlaneV]
	if u.PixelStride == 0 || v.PixelStride == 0 {
		return nil, fmt.Errorf("%w: chroma pixel stride", ErrConversion)
	}
	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			ui := offset(row, u.RowStride, col, u.PixelStride)
			vi := offset(row, v.RowStride, col, v.PixelStride)
			if ui < 0 || vi < 0 || ui >= len(u.Data) || vi >= len(v.Data) {
				return nil, fmt.Errorf("%w: chroma row %d col %d", ErrConversion, row, col)
			}
			out[pos] = v.Data[vi]
			out[pos+1] = u.Data[ui]
			pos += 2
		}
	}

	return out, nil
}

// offset returns row*rowStride + col*pixelStride for non-negative inputs,
// or -1 when the result does not fit in an int.
func offset(row, rowStride, col, pixelStride int) int {
	if rowStride > 0 && row > math.MaxInt/rowStride {
		return -1
	}
	if pixelStride > 0 && col > math.MaxInt/pixelStride {
		return -1
	}
	a, b := row*rowStride, col*pixelStride
	if a > math.MaxInt-b {
		return -1
	}
	return a + b
}

// ToStillImage decodes an NV21 buffer into a raster image by way of a JPEG
// round trip at the given quality. The inspector only accepts images that
// went through this codec path, so the round trip is not an optimization
// target.
func ToStillImage(nv21 []byte, width, height, quality int) (image.Image, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("%w: unsupported size %dx%d", ErrConversion, width, height)
	}
	if len(nv21) != width*height*3/2 {
		return nil, fmt.Errorf("%w: nv21 length %d for %dx%d", ErrConversion, len(nv21), width, height)
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	yuv, err := gocv.NewMatFromBytes(height*3/2, width, gocv.MatTypeCV8UC1, nv21)
	if err != nil {
		return nil, fmt.Errorf("wrap nv21: %w", err)
	}
	defer yuv.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(yuv, &bgr, gocv.ColorYUVToBGRNV21)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, bgr, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	decoded, err := gocv.IMDecode(buf.GetBytes(), gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	defer decoded.Close()

	if decoded.Empty() {
		return nil, fmt.Errorf("decode jpeg: empty image")
	}

	return decoded.ToImage()
}
