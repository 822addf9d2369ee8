package decoder

import "errors"

var (
	// ErrNoVideoTrack means the container has no decodable video track.
	// Fatal to the decoder instance.
	ErrNoVideoTrack = errors.New("decoder: container has no video track")

	// ErrDecodeTimeout means no matching frame arrived within the timeout
	// window. The instance may still serve later calls, but repeated
	// timeouts indicate a stuck pipeline.
	ErrDecodeTimeout = errors.New("decoder: timed out waiting for decoded frame")

	// ErrDecoderBusy means a frame request was issued while another was
	// still in flight. Callers must serialize calls per decoder instance.
	ErrDecoderBusy = errors.New("decoder: frame request already in flight")

	// ErrDecoderClosed means the decoder was disposed.
	ErrDecoderClosed = errors.New("decoder: closed")
)
