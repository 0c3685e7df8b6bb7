package sampler

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/Dicklesworthstone/procmon/internal/config"
	"github.com/Dicklesworthstone/procmon/internal/model"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Poller is the part of the monitor the sampler drives.
type Poller interface {
	Poll(scope model.ScopeKind) (model.Sample, error)
	PollWithCores(scope model.ScopeKind, cores int) (model.Sample, error)
}

// Sampler periodically polls the configured scopes and emits Frames with
// host memory and load context.
type Sampler struct {
	Interval time.Duration
	Scopes   []model.ScopeKind
	Cores    int

	poller Poller
	runID  string
	logger *slog.Logger

	virtualMemory func() (*mem.VirtualMemoryStat, error)
	loadAvg       func() (*load.AvgStat, error)
}

func New(p Poller, cfg config.Config, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	return &Sampler{
		Interval:      cfg.Interval,
		Scopes:        cfg.Scopes,
		Cores:         cfg.Cores,
		poller:        p,
		runID:         runID,
		logger:        logger.With("run_id", runID),
		virtualMemory: mem.VirtualMemory,
		loadAvg:       load.Avg,
	}
}

// RunID identifies this sampler in every frame it emits.
func (s *Sampler) RunID() string { return s.runID }

// Stream returns a channel that will receive frames until ctx is done.
// Polling happens on one goroutine locked to its OS thread, so the thread
// and children scopes describe the same thread on every tick.
func (s *Sampler) Stream(ctx context.Context) <-chan model.Frame {
	ch := make(chan model.Frame)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(ch)

		// baseline so the first frame covers one interval
		s.pollScopes()

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case t := <-ticker.C:
				select {
				case ch <- s.Sample(t):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Sample polls every configured scope once and assembles a frame. Scope
// failures are recorded in Frame.Errors; the remaining scopes still report.
func (s *Sampler) Sample(now time.Time) model.Frame {
	samples, errs := s.pollScopes()
	return model.Frame{
		RunID:     s.runID,
		Timestamp: now,
		Interval:  s.Interval,
		Samples:   samples,
		Errors:    errs,
		Host:      s.host(),
	}
}

func (s *Sampler) pollScopes() ([]model.Sample, map[string]string) {
	samples := make([]model.Sample, 0, len(s.Scopes))
	var errs map[string]string
	for _, scope := range s.Scopes {
		sample, err := s.poll(scope)
		if err != nil {
			if errs == nil {
				errs = make(map[string]string)
			}
			errs[scope.String()] = err.Error()
			s.logger.Debug("poll failed", "scope", scope.String(), "error", err)
			continue
		}
		samples = append(samples, sample)
	}
	return samples, errs
}

func (s *Sampler) poll(scope model.ScopeKind) (model.Sample, error) {
	if s.Cores == config.SingleCore {
		return s.poller.Poll(scope)
	}
	return s.poller.PollWithCores(scope, s.Cores)
}

func (s *Sampler) host() model.Host {
	var h model.Host
	if vm, err := s.virtualMemory(); err == nil && vm != nil {
		h.MemUsedBytes = vm.Used
		h.MemTotalBytes = vm.Total
	} else if err != nil {
		s.logger.Debug("host memory unavailable", "error", err)
	}
	if avg, err := s.loadAvg(); err == nil && avg != nil {
		h.Load1, h.Load5, h.Load15 = avg.Load1, avg.Load5, avg.Load15
	} else if err != nil {
		s.logger.Debug("load average unavailable", "error", err)
	}
	return h
}
