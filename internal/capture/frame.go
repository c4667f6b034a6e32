package capture

import "time"

// Plane indices of a planar YUV 4:2:0 frame.
const (
	PlaneY = 0
	PlaneU = 1
	PlaneV = 2
)

// Plane is one byte region of a sensor frame. Strides are in bytes and may
// exceed the visible width when the sensor pads rows.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// Frame is a raw planar sensor buffer as delivered by the camera. The
// pipeline owns it for one processing step only and never retains it.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Planes    [3]Plane
}

// NewI420Frame builds a tightly packed Frame from an I420 buffer
// (Y plane followed by U then V, chroma subsampled 2x2).
func NewI420Frame(buf []byte, width, height int, ts time.Time) *Frame {
	ySize := width * height
	cw, ch := width/2, height/2
	cSize := cw * ch

	f := &Frame{Timestamp: ts, Width: width, Height: height}
	if len(buf) < ySize+2*cSize {
		f.Planes[PlaneY] = Plane{Data: buf, RowStride: width, PixelStride: 1}
		return f
	}

	f.Planes[PlaneY] = Plane{Data: buf[:ySize], RowStride: width, PixelStride: 1}
	f.Planes[PlaneU] = Plane{Data: buf[ySize : ySize+cSize], RowStride: cw, PixelStride: 1}
	f.Planes[PlaneV] = Plane{Data: buf[ySize+cSize : ySize+2*cSize], RowStride: cw, PixelStride: 1}
	return f
}
