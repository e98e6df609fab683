package pipeline

import "errors"

// ErrEmptyInput marks a buffer too short to yield a single frame. It is
// logged, never returned: the run still produces a blank image.
var ErrEmptyInput = errors.New("pipeline: input shorter than one frame")
