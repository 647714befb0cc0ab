package transcode

import "math"

// ProgressEvent is one progress report from a running attempt. Percent is
// negative when the encoder did not report a direct figure, in which case
// the elapsed media time is used instead.
type ProgressEvent struct {
	Percent        float64
	ElapsedSeconds float64
}

// computePercent converts a progress event into a whole percent. Preference
// order: the directly reported percent when valid, then elapsed time against
// the probed duration, then zero.
func computePercent(ev ProgressEvent, durationSeconds float64) int {
	if ev.Percent >= 0 && !math.IsNaN(ev.Percent) && !math.IsInf(ev.Percent, 0) {
		return int(ev.Percent)
	}
	if durationSeconds > 0 && ev.ElapsedSeconds > 0 {
		return int(ev.ElapsedSeconds / durationSeconds * 100)
	}
	return 0
}
