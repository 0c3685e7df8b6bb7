// Package platform reads OS resource counters for the current process,
// the calling OS thread, and its children, and detects CPU topology.
//
// Implementations are selected per OS by build tags:
//   - Linux: getrusage(SELF/THREAD/CHILDREN), gettid
//   - Darwin: getrusage(SELF/CHILDREN), Mach thread_info (cgo)
//   - Windows: GetProcessTimes, GetThreadTimes
//   - Other platforms: every read is unavailable
package platform

import (
	"os"
	"sync"

	"github.com/Dicklesworthstone/procmon/internal/model"
	"github.com/shirou/gopsutil/v3/process"
)

// Source reads cumulative counters as seen from the calling OS thread.
// Callers that need ThreadID and the counters to describe the same thread
// must lock the goroutine to its OS thread around the calls.
type Source interface {
	// ThreadID returns the OS identity of the calling thread, or 0 when the
	// platform cannot provide one.
	ThreadID() uint64
	// ReadCPUTime returns raw cumulative user and kernel time for scope.
	ReadCPUTime(scope model.ScopeKind) (model.CPUTimes, error)
	// ReadMemory returns the memory figure for scope in bytes.
	ReadMemory(scope model.ScopeKind) (uint64, error)
}

// Detector reports static machine facts.
type Detector interface {
	ClockHz() (uint64, error)
	CoreCount() (int, error)
	Kind() model.PlatformKind
}

// NewSource returns the counter source for the running OS.
func NewSource() Source {
	return newSource()
}

// rssReader resolves the resident set of the current process through
// gopsutil. The process handle is opened once and reused.
type rssReader struct {
	once sync.Once
	proc *process.Process
	err  error
}

func (r *rssReader) read() (uint64, error) {
	r.once.Do(func() {
		r.proc, r.err = process.NewProcess(int32(os.Getpid()))
	})
	if r.err != nil {
		return 0, model.Failure("open process", r.err)
	}
	info, err := r.proc.MemoryInfo()
	if err != nil {
		return 0, model.Failure("process memory", err)
	}
	return info.RSS, nil
}

func unknownScope(op string, scope model.ScopeKind) error {
	return model.InvalidArgument(op, "unknown scope "+scope.String())
}
