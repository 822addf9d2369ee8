package export

import "errors"

var (
	// ErrAborted means the export was cancelled externally. It is always
	// accompanied by full resource teardown and is distinguished from
	// failure.
	ErrAborted = errors.New("export: aborted")

	// ErrRecorder means the stream-recording backend failed; fatal to the
	// capture-stream session.
	ErrRecorder = errors.New("export: stream recorder failure")
)
