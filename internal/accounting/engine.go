// Package accounting turns cumulative CPU-time readings into utilization
// samples by differencing them against the previous sample of a scope.
package accounting

import (
	"log/slog"
	"math"

	"github.com/Dicklesworthstone/procmon/internal/model"
)

const microsPerSecond = 1_000_000

// Reading is one raw observation from a platform counter source.
type Reading struct {
	Times    model.CPUTimes
	Memory   uint64
	PolledAt int64 // epoch ms
}

// Duration returns |now - reference| in milliseconds. Wall clocks can step
// backwards, so the sign is dropped instead of trusted.
func Duration(now, reference int64) uint64 {
	d := now - reference
	if d < 0 {
		return uint64(-d)
	}
	return uint64(d)
}

// Combine sums user and kernel time into one normalized CPUTime. The sum is
// taken in microseconds and its absolute value kept, so per-field overflow
// (usec >= 1e6) is absorbed. anomalous is set when any raw component or the
// sum was negative, which points at counter wraparound or an OS bug.
func Combine(t model.CPUTimes) (cpu model.CPUTime, anomalous bool) {
	anomalous = t.User.Sec < 0 || t.User.Usec < 0 || t.System.Sec < 0 || t.System.Usec < 0

	total := (t.User.Sec+t.System.Sec)*microsPerSecond + t.User.Usec + t.System.Usec
	if total < 0 {
		total = -total
		anomalous = true
	}
	return model.CPUTime{
		Seconds:      uint64(total / microsPerSecond),
		Microseconds: uint64(total % microsPerSecond),
	}, anomalous
}

// Percent computes utilization over durationMs relative to cores fully
// saturated cores. A negative CPU delta is clamped to zero. A zero duration
// yields 0 rather than dividing by zero.
func Percent(cpuNow, cpuPrev float64, durationMs uint64, cores int) float64 {
	if durationMs == 0 {
		return 0
	}
	if cores < 1 {
		cores = 1
	}
	delta := cpuNow - cpuPrev
	if delta < 0 || math.IsNaN(delta) {
		delta = 0
	}
	pct := delta / (float64(durationMs) / 1000) * 100 / float64(cores)
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return pct
}

// Engine builds samples for a monitor started at StartedAt.
type Engine struct {
	StartedAt int64 // epoch ms
	Logger    *slog.Logger
}

// Build packages a sample for key from reading r. prev is the last sample
// stored for key when hasPrev is true; otherwise the duration is measured
// from StartedAt and the previous CPU time is taken as zero.
//
// Two polls in the same millisecond produce a zero duration; the new sample
// then repeats the previous sample's percentage (0 without one).
func (e *Engine) Build(key model.ScopeKey, r Reading, prev model.Sample, hasPrev bool, cores int) model.Sample {
	log := e.logger().With("scope", key.String())

	reference := e.StartedAt
	cpuPrev := 0.0
	if hasPrev {
		reference = prev.PolledAt
		cpuPrev = prev.CPUTime
	}
	duration := Duration(r.PolledAt, reference)

	cpuTime, anomalous := Combine(r.Times)
	if anomalous {
		log.Warn("negative raw cpu time clamped",
			"user_sec", r.Times.User.Sec, "user_usec", r.Times.User.Usec,
			"system_sec", r.Times.System.Sec, "system_usec", r.Times.System.Usec)
	}
	cpuNow := cpuTime.Float()
	if cpuNow < cpuPrev {
		log.Warn("cpu time went backwards", "prev", cpuPrev, "now", cpuNow)
	}

	var pct float64
	if duration == 0 {
		if hasPrev {
			pct = prev.CPUPercent
		}
		log.Debug("zero duration poll", "percent", pct)
	} else {
		pct = Percent(cpuNow, cpuPrev, duration, cores)
	}

	return model.Sample{
		PolledAt:    r.PolledAt,
		DurationMs:  duration,
		CPUTime:     cpuNow,
		CPUPercent:  pct,
		MemoryBytes: r.Memory,
		UptimeMs:    Duration(r.PolledAt, e.StartedAt),
		Scope:       key.Kind,
		Thread:      key.Thread,
		Cores:       cores,
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
