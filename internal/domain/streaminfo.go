package domain

import "fmt"

// TrackState mirrors a media track's ready state.
type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

// StreamInfo describes the sender's current track enablement. It is carried
// only inside handshake messages and never persisted.
type StreamInfo struct {
	Video TrackState `json:"video"`
	Audio bool       `json:"audio"`
}

func (si StreamInfo) Validate() error {
	switch si.Video {
	case TrackLive, TrackEnded:
		return nil
	default:
		return fmt.Errorf("stream info: unknown video state %q", si.Video)
	}
}
