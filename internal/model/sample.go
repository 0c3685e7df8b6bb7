package model

import (
	"fmt"
	"strings"
	"time"
)

const microsPerSecond = 1_000_000

// RawTime is a platform timeval before normalization. Fields are signed
// because some counter sources have been seen to report negative values.
type RawTime struct {
	Sec  int64
	Usec int64
}

// CPUTimes carries the raw user- and kernel-mode cumulative times of a scope.
type CPUTimes struct {
	User   RawTime
	System RawTime
}

// CPUTime is cumulative CPU time since a scope-relevant reference point.
// Microseconds may exceed one second's worth until Normalize is called.
type CPUTime struct {
	Seconds      uint64
	Microseconds uint64
}

// Float returns the time in seconds.
func (t CPUTime) Float() float64 {
	return float64(t.Seconds) + float64(t.Microseconds)/microsPerSecond
}

// Normalize folds whole seconds held in Microseconds into Seconds.
func (t CPUTime) Normalize() CPUTime {
	return CPUTime{
		Seconds:      t.Seconds + t.Microseconds/microsPerSecond,
		Microseconds: t.Microseconds % microsPerSecond,
	}
}

// ScopeKind selects the accounting domain of a poll.
type ScopeKind int

const (
	// ScopeProcess aggregates every thread of the process.
	ScopeProcess ScopeKind = iota
	// ScopeThread covers the OS thread that polls.
	ScopeThread
	// ScopeChildren covers child time attributable to the calling thread's
	// lineage. Its meaning differs per platform; treat it as best-effort.
	ScopeChildren
)

var scopeNames = [...]string{"process", "thread", "children"}

func (k ScopeKind) String() string {
	if k.Valid() {
		return scopeNames[k]
	}
	return fmt.Sprintf("scope(%d)", int(k))
}

// Valid reports whether k is one of the known scopes.
func (k ScopeKind) Valid() bool {
	return k >= ScopeProcess && k <= ScopeChildren
}

// MarshalText encodes the scope by name.
func (k ScopeKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, InvalidArgument("marshal scope", k.String())
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a scope name.
func (k *ScopeKind) UnmarshalText(b []byte) error {
	parsed, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseScope maps a scope name (case-insensitive) to its ScopeKind.
func ParseScope(s string) (ScopeKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range scopeNames {
		if n == name {
			return ScopeKind(i), nil
		}
	}
	return 0, InvalidArgument("parse scope", fmt.Sprintf("unknown scope %q", s))
}

// ScopeKey identifies one accounting stream. Process scope has a single key
// shared by every caller; thread and children scopes are split per thread.
type ScopeKey struct {
	Kind   ScopeKind
	Thread uint64
}

// NewScopeKey resolves the key for kind as observed from thread.
func NewScopeKey(kind ScopeKind, thread uint64) ScopeKey {
	if kind == ScopeProcess {
		return ScopeKey{Kind: kind}
	}
	return ScopeKey{Kind: kind, Thread: thread}
}

func (k ScopeKey) String() string {
	if k.Kind == ScopeProcess {
		return k.Kind.String()
	}
	return fmt.Sprintf("%s/%d", k.Kind, k.Thread)
}

// Sample is the result of one poll. It is never modified after creation.
type Sample struct {
	PolledAt    int64     `json:"polled_at"`   // epoch ms
	DurationMs  uint64    `json:"duration_ms"` // since previous sample of the scope
	CPUTime     float64   `json:"cpu_time"`    // cumulative seconds
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryBytes uint64    `json:"memory_bytes"`
	UptimeMs    uint64    `json:"uptime_ms"` // since monitor construction
	Scope       ScopeKind `json:"scope"`
	Thread      uint64    `json:"thread_id,omitempty"`
	Cores       int       `json:"cores"`
}

// Key returns the scope key the sample was stored under.
func (s Sample) Key() ScopeKey { return NewScopeKey(s.Scope, s.Thread) }

// Time returns PolledAt as a time.Time.
func (s Sample) Time() time.Time { return time.UnixMilli(s.PolledAt) }

// PlatformKind names the operating system family.
type PlatformKind int

const (
	PlatformUnknown PlatformKind = iota
	PlatformLinux
	PlatformMacOS
	PlatformWindows
)

func (p PlatformKind) String() string {
	switch p {
	case PlatformLinux:
		return "linux"
	case PlatformMacOS:
		return "macos"
	case PlatformWindows:
		return "windows"
	default:
		return "unknown"
	}
}

// Host is system-wide context shown next to samples by the CLI.
type Host struct {
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	Load1         float64 `json:"load1"`
	Load5         float64 `json:"load5"`
	Load15        float64 `json:"load15"`
}

// Frame is the snapshot exchanged between sampler, UI, and JSON exporter.
type Frame struct {
	RunID     string            `json:"run_id"`
	Timestamp time.Time         `json:"timestamp"`
	Interval  time.Duration     `json:"interval"`
	Samples   []Sample          `json:"samples"`
	Errors    map[string]string `json:"errors,omitempty"`
	Host      Host              `json:"host"`
}

// Zero returns an empty frame for initialization.
func Zero() Frame { return Frame{Timestamp: time.Now()} }
