// Package handlers provides the HTTP API handlers for ambientd.
package handlers

import (
	"github.com/softglow/ambientd/internal/jobs"
)

// JobResponse is the polling-facing view of a job.
type JobResponse struct {
	ID            string       `json:"id" doc:"Opaque job identifier"`
	Progress      int          `json:"progress" minimum:"0" maximum:"100" doc:"Percent complete; 100 only when ready"`
	Ready         bool         `json:"ready" doc:"Whether the derivative (or the job itself) is finished"`
	SourceURL     string       `json:"sourceUrl" doc:"Serving path of the original file"`
	DerivativeURL *string      `json:"derivativeUrl" doc:"Serving path of the ambient derivative; null until ready"`
	Media         *MediaTracks `json:"media,omitempty" doc:"Best-effort probed metadata"`
}

// MediaTracks is probed stream metadata attached to a job response.
type MediaTracks struct {
	DurationSeconds float64         `json:"durationSeconds"`
	AudioTracks     []AudioTrack    `json:"audioTracks"`
	SubtitleTracks  []SubtitleTrack `json:"subtitleTracks"`
}

// AudioTrack describes one audio stream of the original file.
type AudioTrack struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language"`
	Channels int    `json:"channels"`
}

// SubtitleTrack describes one subtitle stream of the original file.
type SubtitleTrack struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language"`
}

// JobResponseFromState converts a job snapshot to a response.
func JobResponseFromState(s jobs.State) JobResponse {
	resp := JobResponse{
		ID:            s.ID,
		Progress:      s.Progress,
		Ready:         s.Ready,
		SourceURL:     s.SourceURL,
		DerivativeURL: s.DerivativeURL,
	}

	if s.Media != nil {
		media := &MediaTracks{
			DurationSeconds: s.Media.DurationSeconds,
			AudioTracks:     make([]AudioTrack, 0, len(s.Media.AudioTracks)),
			SubtitleTracks:  make([]SubtitleTrack, 0, len(s.Media.SubtitleTracks)),
		}
		for _, tr := range s.Media.AudioTracks {
			media.AudioTracks = append(media.AudioTracks, AudioTrack{
				Index:    tr.Index,
				Codec:    tr.Codec,
				Language: tr.Language,
				Channels: tr.Channels,
			})
		}
		for _, tr := range s.Media.SubtitleTracks {
			media.SubtitleTracks = append(media.SubtitleTracks, SubtitleTrack{
				Index:    tr.Index,
				Codec:    tr.Codec,
				Language: tr.Language,
			})
		}
		resp.Media = media
	}

	return resp
}
