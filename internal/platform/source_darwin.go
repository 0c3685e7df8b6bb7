//go:build darwin

package platform

import (
	"github.com/Dicklesworthstone/procmon/internal/model"
	"golang.org/x/sys/unix"
)

type darwinSource struct {
	rss rssReader
}

func newSource() Source {
	return &darwinSource{}
}

func (s *darwinSource) ThreadID() uint64 {
	return threadID()
}

func (s *darwinSource) ReadCPUTime(scope model.ScopeKind) (model.CPUTimes, error) {
	switch scope {
	case model.ScopeProcess:
		return getrusage(unix.RUSAGE_SELF, scope)
	case model.ScopeChildren:
		return getrusage(unix.RUSAGE_CHILDREN, scope)
	case model.ScopeThread:
		return threadTimes()
	default:
		return model.CPUTimes{}, unknownScope("read cpu time", scope)
	}
}

// ReadMemory reports RSS for the process and the children peak resident
// size (bytes on Darwin). Darwin exposes no per-thread memory figure, so the
// thread scope reports 0.
func (s *darwinSource) ReadMemory(scope model.ScopeKind) (uint64, error) {
	switch scope {
	case model.ScopeProcess:
		return s.rss.read()
	case model.ScopeThread:
		return 0, nil
	case model.ScopeChildren:
		var ru unix.Rusage
		if err := unix.Getrusage(unix.RUSAGE_CHILDREN, &ru); err != nil {
			return 0, model.Failure("getrusage children", err)
		}
		if ru.Maxrss < 0 {
			return 0, nil
		}
		return uint64(ru.Maxrss), nil
	default:
		return 0, unknownScope("read memory", scope)
	}
}

func getrusage(who int, scope model.ScopeKind) (model.CPUTimes, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(who, &ru); err != nil {
		return model.CPUTimes{}, model.Failure("getrusage "+scope.String(), err)
	}
	return model.CPUTimes{
		User:   model.RawTime{Sec: int64(ru.Utime.Sec), Usec: int64(ru.Utime.Usec)},
		System: model.RawTime{Sec: int64(ru.Stime.Sec), Usec: int64(ru.Stime.Usec)},
	}, nil
}
