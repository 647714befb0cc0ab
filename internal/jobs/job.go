// Package jobs tracks in-flight transcode jobs. State is memory-resident
// only; a restart orphans every job and polling clients see not-found.
package jobs

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/softglow/ambientd/internal/ffmpeg"
)

// maxInFlightProgress is the ceiling for progress while a job is running.
// 100 is reserved for completion so a polling client never reads "done"
// during the final mux flush.
const maxInFlightProgress = 99

// ProgressObserver receives transcode lifecycle notifications. The polling
// Job is the default implementation; a push channel could substitute without
// touching the cascade.
type ProgressObserver interface {
	// OnProgress reports the current attempt's percent complete.
	OnProgress(percent int)
	// OnAttemptStart signals that a (re)attempt began; progress resets.
	OnAttemptStart(encoder string)
	// OnComplete marks the transcode finished with its output reference.
	OnComplete(derivativeURL string)
}

// State is an immutable snapshot of a job, shaped for the polling response.
type State struct {
	ID            string  `json:"id"`
	Progress      int     `json:"progress"`
	Ready         bool    `json:"ready"`
	SourceURL     string  `json:"sourceUrl"`
	DerivativeURL *string `json:"derivativeUrl"`

	Media *ffmpeg.MediaInfo `json:"media,omitempty"`
}

// Job is one tracked asynchronous transcode attempt sequence. All methods
// are safe for concurrent use; the cascade writes, poll handlers read.
type Job struct {
	id string

	mu            sync.RWMutex
	progress      int
	ready         bool
	sourceURL     string
	derivativeURL *string
	media         *ffmpeg.MediaInfo
}

// NewID generates a fresh opaque job identifier.
func NewID() string {
	return ulid.Make().String()
}

// New creates a job for the given source reference.
func New(id, sourceURL string) *Job {
	return &Job{id: id, sourceURL: sourceURL}
}

// ID returns the job identifier.
func (j *Job) ID() string {
	return j.id
}

// SetMedia attaches the probed metadata.
func (j *Job) SetMedia(media *ffmpeg.MediaInfo) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.media = media
}

// OnProgress implements ProgressObserver. Values are clamped to [0, 99]
// while the job is in flight; completion alone sets 100.
func (j *Job) OnProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > maxInFlightProgress {
		percent = maxInFlightProgress
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.ready {
		return
	}
	j.progress = percent
}

// OnAttemptStart implements ProgressObserver. A new attempt starts from
// zero, which a client may observe as progress going backward.
func (j *Job) OnAttemptStart(encoder string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.ready {
		return
	}
	j.progress = 0
}

// OnComplete implements ProgressObserver.
func (j *Job) OnComplete(derivativeURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ready = true
	j.progress = 100
	j.derivativeURL = &derivativeURL
}

// MarkReady completes the job with no derivative, used when transcoding was
// not requested.
func (j *Job) MarkReady() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ready = true
	j.progress = 100
}

// Snapshot returns the current job state.
func (j *Job) Snapshot() State {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var derivative *string
	if j.derivativeURL != nil {
		d := *j.derivativeURL
		derivative = &d
	}

	return State{
		ID:            j.id,
		Progress:      j.progress,
		Ready:         j.ready,
		SourceURL:     j.sourceURL,
		DerivativeURL: derivative,
		Media:         j.media,
	}
}
