// Package procmon samples CPU and memory usage of the current process, the
// calling OS thread, or its children, and turns cumulative CPU-time counters
// into utilization percentages.
//
// A Monitor remembers the last sample of every scope, so each poll reports
// utilization since the previous poll of the same scope (or since the
// Monitor was created). The Monitor owns no goroutines or timers; callers
// decide when to poll.
//
// Thread and Children scopes are keyed by the calling OS thread. Goroutines
// migrate between threads, so callers that want a stable Thread stream must
// call runtime.LockOSThread before polling. The Process scope has a single
// key shared by all callers: concurrent Process pollers measure duration from
// whichever of them polled last. Use Thread scope for isolation.
package procmon

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/Dicklesworthstone/procmon/internal/accounting"
	"github.com/Dicklesworthstone/procmon/internal/history"
	"github.com/Dicklesworthstone/procmon/internal/model"
	"github.com/Dicklesworthstone/procmon/internal/platform"
)

type (
	Sample       = model.Sample
	ScopeKind    = model.ScopeKind
	ScopeKey     = model.ScopeKey
	CPUTime      = model.CPUTime
	CPUTimes     = model.CPUTimes
	RawTime      = model.RawTime
	PlatformKind = model.PlatformKind
	Error        = model.Error
	ErrorKind    = model.Kind

	// CounterSource reads raw per-scope counters from the OS.
	CounterSource = platform.Source
	// TopologyDetector reports clock speed, core count and platform kind.
	TopologyDetector = platform.Detector
)

const (
	ScopeProcess  = model.ScopeProcess
	ScopeThread   = model.ScopeThread
	ScopeChildren = model.ScopeChildren

	PlatformUnknown = model.PlatformUnknown
	PlatformLinux   = model.PlatformLinux
	PlatformMacOS   = model.PlatformMacOS
	PlatformWindows = model.PlatformWindows

	KindInvalidArgument     = model.KindInvalidArgument
	KindPlatformUnavailable = model.KindPlatformUnavailable
	KindPlatformFailure     = model.KindPlatformFailure
)

var (
	ErrInvalidArgument     = model.ErrInvalidArgument
	ErrPlatformUnavailable = model.ErrPlatformUnavailable
	ErrPlatformFailure     = model.ErrPlatformFailure
)

// AllCores asks PollWithCores to measure against every detected core.
const AllCores = 0

// ParseScope maps "process", "thread" or "children" to a ScopeKind.
func ParseScope(s string) (ScopeKind, error) {
	return model.ParseScope(s)
}

// Config customizes a Monitor. Zero fields select the platform defaults.
type Config struct {
	Source   CounterSource
	Detector TopologyDetector
	Logger   *slog.Logger
	Now      func() time.Time
}

// Monitor polls counters and tracks the last sample of every scope.
// It is safe for concurrent use.
type Monitor struct {
	source  CounterSource
	engine  accounting.Engine
	history *history.Store
	logger  *slog.Logger
	now     func() time.Time

	clockHz   uint64
	cores     int
	platform  PlatformKind
	startedAt int64
}

// New returns a Monitor backed by the running platform.
func New() (*Monitor, error) {
	return NewWithConfig(Config{})
}

// NewWithConfig returns a Monitor using cfg. Core count detection failures
// abort construction. Clock speed is informational: when it cannot be
// detected the Monitor logs a warning and reports 0.
func NewWithConfig(cfg Config) (*Monitor, error) {
	if cfg.Source == nil {
		cfg.Source = platform.NewSource()
	}
	if cfg.Detector == nil {
		cfg.Detector = platform.NewDetector()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cores, err := cfg.Detector.CoreCount()
	if err != nil {
		return nil, fmt.Errorf("detect core count: %w", err)
	}
	if cores < 1 {
		return nil, model.Unavailable("detect core count", fmt.Sprintf("detector reported %d cores", cores))
	}

	clockHz, err := cfg.Detector.ClockHz()
	if err != nil {
		cfg.Logger.Warn("clock speed unavailable", "error", err)
		clockHz = 0
	}

	startedAt := cfg.Now().UnixMilli()
	m := &Monitor{
		source:    cfg.Source,
		engine:    accounting.Engine{StartedAt: startedAt, Logger: cfg.Logger},
		history:   history.New(),
		logger:    cfg.Logger,
		now:       cfg.Now,
		clockHz:   clockHz,
		cores:     cores,
		platform:  cfg.Detector.Kind(),
		startedAt: startedAt,
	}
	cfg.Logger.Debug("monitor started",
		"platform", m.platform.String(), "cores", cores, "clock_hz", clockHz)
	return m, nil
}

// Poll samples scope measured against a single core: 100% means one core
// fully busy for the whole interval.
func (m *Monitor) Poll(scope ScopeKind) (Sample, error) {
	if !scope.Valid() {
		return Sample{}, model.InvalidArgument("poll", "unknown scope "+scope.String())
	}
	return m.poll(scope, 1)
}

// PollWithCores samples scope measured against cores cores. AllCores uses
// the detected core count. Negative counts and counts above CoreCount fail
// with ErrInvalidArgument before the OS is queried.
func (m *Monitor) PollWithCores(scope ScopeKind, cores int) (Sample, error) {
	if !scope.Valid() {
		return Sample{}, model.InvalidArgument("poll", "unknown scope "+scope.String())
	}
	switch {
	case cores < 0:
		return Sample{}, model.InvalidArgument("poll", fmt.Sprintf("negative core count %d", cores))
	case cores > m.cores:
		return Sample{}, model.InvalidArgument("poll", fmt.Sprintf("requested %d cores, %d detected", cores, m.cores))
	case cores == AllCores:
		cores = m.cores
	}
	return m.poll(scope, cores)
}

func (m *Monitor) poll(scope ScopeKind, cores int) (Sample, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	key := model.NewScopeKey(scope, m.source.ThreadID())
	times, err := m.source.ReadCPUTime(scope)
	if err != nil {
		return Sample{}, err
	}
	mem, err := m.source.ReadMemory(scope)
	if err != nil {
		return Sample{}, err
	}
	reading := accounting.Reading{Times: times, Memory: mem, PolledAt: m.now().UnixMilli()}

	prev, ok := m.history.GetLast(key)
	sample := m.engine.Build(key, reading, prev, ok, cores)
	m.history.SetLast(key, sample)

	m.logger.Debug("poll",
		"scope", key.String(), "cpu_percent", sample.CPUPercent,
		"duration_ms", sample.DurationMs, "cores", cores)
	return sample, nil
}

// ReadHistory returns the last sample of scope as seen from the calling
// thread, without touching the OS.
func (m *Monitor) ReadHistory(scope ScopeKind) (Sample, bool) {
	return m.history.GetLast(m.Key(scope))
}

// ClearHistory forgets the last sample of scope as seen from the calling
// thread and returns it. The next poll measures from the Monitor's start.
// Clear Thread history before a thread exits if its id may be reused.
func (m *Monitor) ClearHistory(scope ScopeKind) (Sample, bool) {
	return m.history.ClearLast(m.Key(scope))
}

// History returns the last sample of every scope, ordered by scope and
// thread id.
func (m *Monitor) History() []Sample {
	return m.history.Snapshot()
}

// Key resolves the history key of scope for the calling thread.
func (m *Monitor) Key(scope ScopeKind) ScopeKey {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return model.NewScopeKey(scope, m.source.ThreadID())
}

// ClockHz returns the nominal clock rate captured at construction, or 0.
func (m *Monitor) ClockHz() uint64 { return m.clockHz }

// CoreCount returns the logical core count captured at construction.
func (m *Monitor) CoreCount() int { return m.cores }

// Platform returns the operating system family.
func (m *Monitor) Platform() PlatformKind { return m.platform }

// StartedAt returns the construction time.
func (m *Monitor) StartedAt() time.Time { return time.UnixMilli(m.startedAt) }

// IsInvalidArgument reports whether err is a caller mistake.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsUnavailable reports whether err means the query is unsupported here.
func IsUnavailable(err error) bool { return errors.Is(err, ErrPlatformUnavailable) }
