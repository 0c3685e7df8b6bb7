package platform

import (
	"runtime"

	"github.com/Dicklesworthstone/procmon/internal/model"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Topology detects clock speed and logical core count via gopsutil.
type Topology struct {
	info   func() ([]cpu.InfoStat, error)
	counts func(logical bool) (int, error)
	goos   string
}

// NewDetector returns a Topology backed by the running machine.
func NewDetector() *Topology {
	return &Topology{info: cpu.Info, counts: cpu.Counts, goos: runtime.GOOS}
}

// ClockHz returns the highest advertised frequency across CPUs.
func (t *Topology) ClockHz() (uint64, error) {
	infos, err := t.info()
	if err != nil {
		return 0, model.Failure("cpu info", err)
	}
	var mhz float64
	for _, info := range infos {
		if info.Mhz > mhz {
			mhz = info.Mhz
		}
	}
	if mhz <= 0 {
		return 0, model.Unavailable("clock speed", "cpu frequency not reported")
	}
	return uint64(mhz * 1e6), nil
}

// CoreCount returns the number of logical CPUs. A zero count from gopsutil
// falls back to the Go runtime's view.
func (t *Topology) CoreCount() (int, error) {
	n, err := t.counts(true)
	if err != nil {
		return 0, model.Failure("cpu counts", err)
	}
	if n < 1 {
		n = runtime.NumCPU()
	}
	return n, nil
}

// Kind maps GOOS to a PlatformKind.
func (t *Topology) Kind() model.PlatformKind {
	switch t.goos {
	case "linux":
		return model.PlatformLinux
	case "darwin":
		return model.PlatformMacOS
	case "windows":
		return model.PlatformWindows
	default:
		return model.PlatformUnknown
	}
}
