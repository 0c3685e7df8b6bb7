//go:build darwin && !cgo

package platform

import "github.com/Dicklesworthstone/procmon/internal/model"

func threadID() uint64 { return 0 }

func threadTimes() (model.CPUTimes, error) {
	return model.CPUTimes{}, model.Unavailable("thread cpu time", "built without cgo")
}
