// Package compositor rasterizes one output frame of the timeline at a
// given simulation time: video tracks with their incoming transitions,
// then overlay tracks, then text tracks, in that fixed order. It holds no
// state of its own; all media access goes through the open entries the
// caller prepared for the session.
package compositor

import (
	"context"
	"image"
)

// FrameSource yields the raster of one opened media source at a
// source-local time in seconds.
type FrameSource interface {
	FrameAt(ctx context.Context, seconds float64) (image.Image, error)
}

// Entries maps clip IDs to the media sources opened for one export or
// preview session. The caller owns the sources and their teardown.
type Entries map[string]FrameSource

// StillSource serves a single static image regardless of the requested
// time; image media and generated b-roll stills are opened as one.
type StillSource struct {
	Img image.Image
}

func (s StillSource) FrameAt(ctx context.Context, seconds float64) (image.Image, error) {
	return s.Img, nil
}
