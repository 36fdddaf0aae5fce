package types

import "time"

// VideoInfo describes the primary video stream of a source file.
type VideoInfo struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Duration  float64 `json:"duration"` // seconds
	FrameRate float64 `json:"fps"`
}

// ExtractRequest controls how frames are sampled from a video.
// Zero values mean "not set": no seek, read to the end, no frame cap.
type ExtractRequest struct {
	Rate      float64 // frames per second to sample
	Start     time.Duration
	End       time.Duration
	MaxFrames int
}

// Window returns the -t duration handed to the decoder, or 0 when the
// extraction runs to the end of the stream.
func (r ExtractRequest) Window() time.Duration {
	if r.End <= 0 {
		return 0
	}
	return r.End - r.Start
}
