package export

import "strings"

// mimePreferences is the fixed container/codec negotiation order: MP4
// variants first so native-MP4 recording skips the remux step, then the
// WebM fallbacks.
var mimePreferences = []string{
	"video/mp4;codecs=avc1.42E01E,mp4a.40.2",
	"video/mp4;codecs=h264,aac",
	"video/mp4",
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
}

// fallbackMime is used when the recorder supports nothing on the list
const fallbackMime = "video/webm"

// negotiateMime returns the first recorder-supported entry of the
// preference list, or the generic WebM fallback.
func negotiateMime(rec Recorder) string {
	for _, mime := range mimePreferences {
		if rec.Supports(mime) {
			return mime
		}
	}
	return fallbackMime
}

// isMP4 reports whether the negotiated container is already the target
// deliverable format.
func isMP4(mime string) bool {
	return strings.HasPrefix(mime, "video/mp4")
}
