package decoder

import (
	"image"
	"sync/atomic"
)

// liveHandles counts open frame handles across the package; tests assert
// on it to prove every exit path releases its frames.
var liveHandles atomic.Int64

// Frame is a handle to one decoded video frame. Handles may share an
// underlying pixel buffer (Clone); each handle must be closed
// independently, and the buffer is released when the last handle closes.
type Frame struct {
	res    *frameResource
	closed bool
}

type frameResource struct {
	img  *image.RGBA
	pts  int64
	dur  int64
	refs atomic.Int32
}

// NewFrame wraps a decoded image into a frame handle
func NewFrame(img *image.RGBA, ptsTicks, durationTicks int64) *Frame {
	res := &frameResource{img: img, pts: ptsTicks, dur: durationTicks}
	res.refs.Store(1)
	liveHandles.Add(1)
	return &Frame{res: res}
}

// Image returns the decoded pixels. Invalid after Close.
func (f *Frame) Image() *image.RGBA {
	return f.res.img
}

// PTS returns the presentation time in track ticks
func (f *Frame) PTS() int64 {
	return f.res.pts
}

// Duration returns the frame duration in track ticks
func (f *Frame) Duration() int64 {
	return f.res.dur
}

// Clone returns a new independent handle to the same pixel buffer
func (f *Frame) Clone() *Frame {
	f.res.refs.Add(1)
	liveHandles.Add(1)
	return &Frame{res: f.res}
}

// Close releases this handle. Closing the last handle drops the pixel
// buffer. Closing twice is a no-op.
func (f *Frame) Close() {
	if f == nil || f.closed {
		return
	}
	f.closed = true
	liveHandles.Add(-1)
	if f.res.refs.Add(-1) == 0 {
		f.res.img = nil
	}
}

// LiveHandles reports the number of open frame handles package-wide
func LiveHandles() int64 {
	return liveHandles.Load()
}
