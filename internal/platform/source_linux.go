//go:build linux

package platform

import (
	"github.com/Dicklesworthstone/procmon/internal/model"
	"golang.org/x/sys/unix"
)

type linuxSource struct {
	rss rssReader
}

func newSource() Source {
	return &linuxSource{}
}

func (s *linuxSource) ThreadID() uint64 {
	return uint64(unix.Gettid())
}

func (s *linuxSource) ReadCPUTime(scope model.ScopeKind) (model.CPUTimes, error) {
	who, err := rusageWho(scope)
	if err != nil {
		return model.CPUTimes{}, err
	}
	var ru unix.Rusage
	if err := unix.Getrusage(who, &ru); err != nil {
		return model.CPUTimes{}, model.Failure("getrusage "+scope.String(), err)
	}
	return model.CPUTimes{
		User:   model.RawTime{Sec: int64(ru.Utime.Sec), Usec: int64(ru.Utime.Usec)},
		System: model.RawTime{Sec: int64(ru.Stime.Sec), Usec: int64(ru.Stime.Usec)},
	}, nil
}

// ReadMemory reports RSS for the process. Threads share the address space,
// so thread and children scopes fall back to the getrusage peak resident
// size, which Linux reports in KiB.
func (s *linuxSource) ReadMemory(scope model.ScopeKind) (uint64, error) {
	if scope == model.ScopeProcess {
		return s.rss.read()
	}
	who, err := rusageWho(scope)
	if err != nil {
		return 0, err
	}
	var ru unix.Rusage
	if err := unix.Getrusage(who, &ru); err != nil {
		return 0, model.Failure("getrusage "+scope.String(), err)
	}
	if ru.Maxrss < 0 {
		return 0, nil
	}
	return uint64(ru.Maxrss) * 1024, nil
}

func rusageWho(scope model.ScopeKind) (int, error) {
	switch scope {
	case model.ScopeProcess:
		return unix.RUSAGE_SELF, nil
	case model.ScopeThread:
		return unix.RUSAGE_THREAD, nil
	case model.ScopeChildren:
		return unix.RUSAGE_CHILDREN, nil
	default:
		return 0, unknownScope("getrusage", scope)
	}
}
