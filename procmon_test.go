package procmon

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dicklesworthstone/procmon/internal/assert"
)

// fakeSource serves synthetic counters. The calling thread identity is
// whatever the test last set, so isolation tests need no real OS threads.
type fakeSource struct {
	mu     sync.Mutex
	thread uint64
	usec   map[ScopeKey]int64
	mem    uint64
	err    error
	calls  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{usec: make(map[ScopeKey]int64), mem: 1 << 20}
}

func (f *fakeSource) setThread(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thread = id
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// burn adds cpu time to scope as seen from the current synthetic thread.
func (f *fakeSource) burn(scope ScopeKind, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ScopeKey{Kind: scope}
	if scope != ScopeProcess {
		key.Thread = f.thread
	}
	f.usec[key] += d.Microseconds()
}

func (f *fakeSource) ThreadID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.thread
}

func (f *fakeSource) ReadCPUTime(scope ScopeKind) (CPUTimes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return CPUTimes{}, f.err
	}
	key := ScopeKey{Kind: scope}
	if scope != ScopeProcess {
		key.Thread = f.thread
	}
	total := f.usec[key]
	// split between user and kernel time to exercise Combine
	user := total / 2
	sys := total - user
	return CPUTimes{
		User:   RawTime{Sec: user / 1e6, Usec: user % 1e6},
		System: RawTime{Sec: sys / 1e6, Usec: sys % 1e6},
	}, nil
}

func (f *fakeSource) ReadMemory(scope ScopeKind) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.mem, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDetector struct {
	hz       uint64
	hzErr    error
	cores    int
	coresErr error
}

func (d fakeDetector) ClockHz() (uint64, error) { return d.hz, d.hzErr }
func (d fakeDetector) CoreCount() (int, error) { return d.cores, d.coresErr }
func (d fakeDetector) Kind() PlatformKind { return PlatformLinux }

type fakeClock struct{ ms atomic.Int64 }

func (c *fakeClock) now() time.Time   { return time.UnixMilli(c.ms.Load()) }
func (c *fakeClock) set(ms int64)     { c.ms.Store(ms) }
func (c *fakeClock) advance(ms int64) { c.ms.Add(ms) }

func newTestMonitor(t *testing.T, cores int) (*Monitor, *fakeSource, *fakeClock) {
	t.Helper()
	src := newFakeSource()
	clock := &fakeClock{}
	clock.set(1_000_000)
	m, err := NewWithConfig(Config{
		Source:   src,
		Detector: fakeDetector{hz: 3_000_000_000, cores: cores},
		Now:      clock.now,
	})
	assert.NoError(t, err)
	return m, src, clock
}

func TestNewWithConfig_CapturesTopology(t *testing.T) {
	m, _, clock := newTestMonitor(t, 8)
	assert.Equal(t, uint64(3_000_000_000), m.ClockHz())
	assert.Equal(t, 8, m.CoreCount())
	assert.Equal(t, PlatformLinux, m.Platform())
	assert.Equal(t, clock.now(), m.StartedAt())
}

func TestNewWithConfig_ClockUnavailable(t *testing.T) {
	var buf bytes.Buffer
	m, err := NewWithConfig(Config{
		Source:   newFakeSource(),
		Detector: fakeDetector{hzErr: &Error{Kind: KindPlatformUnavailable, Op: "clock speed"}, cores: 2},
		Logger:   slog.New(slog.NewJSONHandler(&buf, nil)),
	})
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), m.ClockHz())
	assert.True(t, strings.Contains(buf.String(), "clock speed unavailable"), "no warning logged: %s", buf.String())
}

func TestNewWithConfig_CoreCountFailure(t *testing.T) {
	osErr := errors.New("sysconf failed")
	_, err := NewWithConfig(Config{
		Source:   newFakeSource(),
		Detector: fakeDetector{coresErr: &Error{Kind: KindPlatformFailure, Op: "cpu counts", Err: osErr}},
	})
	assert.ErrorIs(t, err, ErrPlatformFailure)
	assert.ErrorIs(t, err, osErr)

	_, err = NewWithConfig(Config{Source: newFakeSource(), Detector: fakeDetector{cores: 0}})
	assert.ErrorIs(t, err, ErrPlatformUnavailable)
}

func TestPoll_ConcreteScenarios(t *testing.T) {
	tests := []struct {
		name     string
		burn     time.Duration
		cores    int
		expected float64
	}{
		{"one second on one core", time.Second, 1, 100.0},
		{"half second on one core", 500 * time.Millisecond, 1, 50.0},
		{"one second on eight cores", time.Second, 8, 12.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, src, clock := newTestMonitor(t, 8)
			src.setThread(1)
			_, err := m.PollWithCores(ScopeThread, tt.cores)
			assert.NoError(t, err)

			src.burn(ScopeThread, tt.burn)
			clock.advance(1000)
			s, err := m.PollWithCores(ScopeThread, tt.cores)
			assert.NoError(t, err)
			assert.Equal(t, uint64(1000), s.DurationMs)
			assert.InDelta(t, tt.expected, s.CPUPercent, 1e-9)
			assert.Equal(t, tt.cores, s.Cores)
		})
	}
}

func TestPoll_FirstPollMeasuresFromStart(t *testing.T) {
	m, src, clock := newTestMonitor(t, 4)
	src.burn(ScopeProcess, 250*time.Millisecond)
	clock.advance(500)

	s, err := m.Poll(ScopeProcess)
	assert.NoError(t, err)
	assert.Equal(t, uint64(500), s.DurationMs)
	assert.Equal(t, uint64(500), s.UptimeMs)
	assert.InDelta(t, 50.0, s.CPUPercent, 1e-9)
	assert.InDelta(t, 0.25, s.CPUTime, 1e-9)
	assert.Equal(t, uint64(1<<20), s.MemoryBytes)
	assert.Equal(t, 1, s.Cores)
	assert.Equal(t, ScopeProcess, s.Scope)
}

func TestPoll_IdleScopeReportsNoUsage(t *testing.T) {
	m, src, clock := newTestMonitor(t, 1)
	src.setThread(3)
	_, err := m.Poll(ScopeThread)
	assert.NoError(t, err)

	clock.advance(1000)
	s, err := m.Poll(ScopeThread)
	assert.NoError(t, err)
	assert.True(t, s.CPUPercent < 2, "idle thread reported %.2f%%", s.CPUPercent)
}

func TestPoll_ZeroDuration(t *testing.T) {
	m, src, clock := newTestMonitor(t, 1)
	src.setThread(1)
	src.burn(ScopeThread, 300*time.Millisecond)
	clock.advance(1000)
	first, err := m.Poll(ScopeThread)
	assert.NoError(t, err)
	assert.InDelta(t, 30.0, first.CPUPercent, 1e-9)

	src.burn(ScopeThread, time.Second)
	second, err := m.Poll(ScopeThread)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), second.DurationMs)
	assert.True(t, !math.IsNaN(second.CPUPercent) && !math.IsInf(second.CPUPercent, 0), "non-finite percent")
	assert.Equal(t, first.CPUPercent, second.CPUPercent)
}

func TestPoll_NonMonotonicCPUTime(t *testing.T) {
	m, src, clock := newTestMonitor(t, 1)
	src.burn(ScopeProcess, 2*time.Second)
	clock.advance(1000)
	_, err := m.Poll(ScopeProcess)
	assert.NoError(t, err)

	src.burn(ScopeProcess, -time.Second)
	clock.advance(1000)
	s, err := m.Poll(ScopeProcess)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, s.CPUPercent)
}

func TestPollWithCores_Validation(t *testing.T) {
	m, src, _ := newTestMonitor(t, 8)

	for _, cores := range []int{9, 100, -1} {
		_, err := m.PollWithCores(ScopeProcess, cores)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.True(t, IsInvalidArgument(err), "IsInvalidArgument(%v) false", err)
	}
	assert.Equal(t, 0, src.callCount())

	s, err := m.PollWithCores(ScopeProcess, AllCores)
	assert.NoError(t, err)
	assert.Equal(t, 8, s.Cores)

	s, err = m.PollWithCores(ScopeProcess, 8)
	assert.NoError(t, err)
	assert.Equal(t, 8, s.Cores)
}

func TestPoll_UnknownScope(t *testing.T) {
	m, src, _ := newTestMonitor(t, 2)
	_, err := m.Poll(ScopeKind(9))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.PollWithCores(ScopeKind(-1), 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, src.callCount())
}

func TestPoll_CoreScalingLaw(t *testing.T) {
	for n := 1; n <= 8; n++ {
		single, srcA, clockA := newTestMonitor(t, 8)
		scaled, srcB, clockB := newTestMonitor(t, 8)

		for _, src := range []*fakeSource{srcA, srcB} {
			src.burn(ScopeProcess, 1700*time.Millisecond)
		}
		clockA.advance(2300)
		clockB.advance(2300)

		a, err := single.Poll(ScopeProcess)
		assert.NoError(t, err)
		b, err := scaled.PollWithCores(ScopeProcess, n)
		assert.NoError(t, err)
		assert.InDelta(t, a.CPUPercent/float64(n), b.CPUPercent, 1e-9)
	}
}

func TestPoll_ThreadScopeIsolation(t *testing.T) {
	m, src, clock := newTestMonitor(t, 1)
	start := clock.ms.Load()

	src.setThread(1)
	clock.set(start + 1000)
	_, err := m.Poll(ScopeThread)
	assert.NoError(t, err)

	src.setThread(2)
	clock.set(start + 1500)
	b1, err := m.Poll(ScopeThread)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1500), b1.DurationMs)

	src.setThread(1)
	src.burn(ScopeThread, 500*time.Millisecond)
	clock.set(start + 2000)
	a2, err := m.Poll(ScopeThread)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1000), a2.DurationMs)
	assert.InDelta(t, 50.0, a2.CPUPercent, 1e-9)

	src.setThread(2)
	clock.set(start + 3500)
	b2, err := m.Poll(ScopeThread)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2000), b2.DurationMs)
	assert.Equal(t, 0.0, b2.CPUPercent)
	assert.Equal(t, uint64(2), b2.Thread)
}

func TestPoll_ProcessScopeIsShared(t *testing.T) {
	m, src, clock := newTestMonitor(t, 1)
	start := clock.ms.Load()

	src.setThread(1)
	clock.set(start + 1000)
	_, err := m.Poll(ScopeProcess)
	assert.NoError(t, err)

	src.setThread(2)
	clock.set(start + 1500)
	_, err = m.Poll(ScopeProcess)
	assert.NoError(t, err)

	// thread 1 sees the duration since thread 2's poll
	src.setThread(1)
	clock.set(start + 2000)
	s, err := m.Poll(ScopeProcess)
	assert.NoError(t, err)
	assert.Equal(t, uint64(500), s.DurationMs)
	assert.Equal(t, uint64(0), s.Thread)
}

func TestHistory_Lifecycle(t *testing.T) {
	m, src, clock := newTestMonitor(t, 1)
	src.setThread(5)

	_, ok := m.ReadHistory(ScopeThread)
	assert.True(t, !ok, "history present before first poll")

	clock.advance(10)
	s, err := m.Poll(ScopeThread)
	assert.NoError(t, err)

	got, ok := m.ReadHistory(ScopeThread)
	assert.True(t, ok, "history missing after poll")
	assert.Equal(t, s, got)

	// another thread sees nothing
	src.setThread(6)
	_, ok = m.ReadHistory(ScopeThread)
	assert.True(t, !ok, "thread 6 saw thread 5 history")

	src.setThread(5)
	cleared, ok := m.ClearHistory(ScopeThread)
	assert.True(t, ok, "ClearHistory found nothing")
	assert.Equal(t, s, cleared)

	_, ok = m.ReadHistory(ScopeThread)
	assert.True(t, !ok, "history present after clear")

	// next poll measures from start again
	clock.advance(90)
	s, err = m.Poll(ScopeThread)
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), s.DurationMs)
}

func TestPoll_FailureLeavesHistoryUntouched(t *testing.T) {
	m, src, clock := newTestMonitor(t, 1)
	clock.advance(100)
	first, err := m.Poll(ScopeChildren)
	assert.NoError(t, err)

	osErr := &Error{Kind: KindPlatformFailure, Op: "getrusage children", Err: errors.New("EFAULT")}
	src.setErr(osErr)
	clock.advance(100)
	_, err = m.Poll(ScopeChildren)
	assert.True(t, err == error(osErr), "platform error was not propagated unchanged: %v", err)
	assert.ErrorIs(t, err, ErrPlatformFailure)

	got, ok := m.ReadHistory(ScopeChildren)
	assert.True(t, ok, "history lost after failed poll")
	assert.Equal(t, first, got)

	src.setErr(&Error{Kind: KindPlatformUnavailable, Op: "read cpu time"})
	_, err = m.Poll(ScopeChildren)
	assert.True(t, IsUnavailable(err), "expected unavailable, got %v", err)
}

func TestHistory_Snapshot(t *testing.T) {
	m, src, clock := newTestMonitor(t, 1)
	clock.advance(10)
	src.setThread(20)
	_, _ = m.Poll(ScopeThread)
	src.setThread(10)
	_, _ = m.Poll(ScopeThread)
	_, _ = m.Poll(ScopeProcess)
	_, _ = m.Poll(ScopeChildren)

	var keys []string
	for _, s := range m.History() {
		keys = append(keys, s.Key().String())
	}
	assert.Equal(t, []string{"process", "thread/10", "thread/20", "children/10"}, keys)
	assert.Equal(t, ScopeKey{Kind: ScopeThread, Thread: 10}, m.Key(ScopeThread))
}

func TestPoll_ConcurrentProcessPollers(t *testing.T) {
	m, _, clock := newTestMonitor(t, 4)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				clock.advance(1)
				s, err := m.PollWithCores(ScopeProcess, AllCores)
				if err != nil {
					errs <- err
					return
				}
				if math.IsNaN(s.CPUPercent) || math.IsInf(s.CPUPercent, 0) {
					errs <- errors.New("non-finite percent")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(m.History()))
}

func TestParseScope(t *testing.T) {
	k, err := ParseScope("children")
	assert.NoError(t, err)
	assert.Equal(t, ScopeChildren, k)
	_, err = ParseScope("gpu")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
