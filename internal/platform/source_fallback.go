//go:build !linux && !darwin && !windows

package platform

import "github.com/Dicklesworthstone/procmon/internal/model"

// fallbackSource is used on platforms without a counter implementation.
type fallbackSource struct{}

func newSource() Source {
	return fallbackSource{}
}

func (fallbackSource) ThreadID() uint64 { return 0 }

func (fallbackSource) ReadCPUTime(scope model.ScopeKind) (model.CPUTimes, error) {
	return model.CPUTimes{}, model.Unavailable("read cpu time", "not supported on this platform")
}

func (fallbackSource) ReadMemory(scope model.ScopeKind) (uint64, error) {
	return 0, model.Unavailable("read memory", "not supported on this platform")
}
