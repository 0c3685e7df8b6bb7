//go:build windows

package platform

import (
	"unsafe"

	"github.com/Dicklesworthstone/procmon/internal/model"
	"golang.org/x/sys/windows"
)

var procGetThreadTimes = windows.NewLazySystemDLL("kernel32.dll").NewProc("GetThreadTimes")

type windowsSource struct {
	rss rssReader
}

func newSource() Source {
	return &windowsSource{}
}

func (s *windowsSource) ThreadID() uint64 {
	return uint64(windows.GetCurrentThreadId())
}

func (s *windowsSource) ReadCPUTime(scope model.ScopeKind) (model.CPUTimes, error) {
	var creation, exit, kernel, user windows.Filetime
	switch scope {
	case model.ScopeProcess:
		if err := windows.GetProcessTimes(windows.CurrentProcess(), &creation, &exit, &kernel, &user); err != nil {
			return model.CPUTimes{}, model.Failure("GetProcessTimes", err)
		}
	case model.ScopeThread:
		r1, _, e1 := procGetThreadTimes.Call(
			uintptr(windows.CurrentThread()),
			uintptr(unsafe.Pointer(&creation)),
			uintptr(unsafe.Pointer(&exit)),
			uintptr(unsafe.Pointer(&kernel)),
			uintptr(unsafe.Pointer(&user)),
		)
		if r1 == 0 {
			return model.CPUTimes{}, model.Failure("GetThreadTimes", e1)
		}
	case model.ScopeChildren:
		return model.CPUTimes{}, model.Unavailable("read cpu time", "children scope not supported on windows")
	default:
		return model.CPUTimes{}, unknownScope("read cpu time", scope)
	}
	return model.CPUTimes{User: filetimeToRaw(user), System: filetimeToRaw(kernel)}, nil
}

// ReadMemory reports the process working set. Windows has no per-thread
// memory figure, so the thread scope reports 0.
func (s *windowsSource) ReadMemory(scope model.ScopeKind) (uint64, error) {
	switch scope {
	case model.ScopeProcess:
		return s.rss.read()
	case model.ScopeThread:
		return 0, nil
	case model.ScopeChildren:
		return 0, model.Unavailable("read memory", "children scope not supported on windows")
	default:
		return 0, unknownScope("read memory", scope)
	}
}

// filetimeToRaw converts a duration in 100ns ticks.
func filetimeToRaw(ft windows.Filetime) model.RawTime {
	ticks := int64(ft.HighDateTime)<<32 | int64(ft.LowDateTime)
	return model.RawTime{Sec: ticks / 10_000_000, Usec: (ticks % 10_000_000) / 10}
}
