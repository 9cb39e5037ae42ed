package cantucciaux

import "time"

// FPSReportInterval is how often [FPSTimer] reports. Longer intervals lead to more delay and more smoothing.
const FPSReportInterval = 250 * time.Millisecond

// FPSTimer measures frame rate over fixed report intervals.
type FPSTimer struct {
	lastReport time.Time
	frames     int
}

// NewFPSTimer returns a timer whose first interval starts at now.
func NewFPSTimer(now time.Time) *FPSTimer {
	return &FPSTimer{lastReport: now}
}

// RegisterFrame counts a drawn frame.
func (t *FPSTimer) RegisterFrame() { t.frames++ }

// ReportFPS returns the frame rate since the last report if at least
// [FPSReportInterval] has elapsed since then. ok is false otherwise.
func (t *FPSTimer) ReportFPS(now time.Time) (fps float64, ok bool) {
	elapsed := now.Sub(t.lastReport)
	if elapsed < FPSReportInterval {
		return 0, false
	}
	fps = float64(t.frames) / elapsed.Seconds()
	t.lastReport = now
	t.frames = 0
	return fps, true
}
