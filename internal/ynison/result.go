package ynison

import "fmt"

// ErrorKind classifies why a resolution attempt failed.
type ErrorKind int

const (
	// ErrTimeout: a dial or receive exceeded its configured bound.
	ErrTimeout ErrorKind = iota
	// ErrProtocolViolation: the remote payload was malformed or incomplete.
	ErrProtocolViolation
	// ErrNoPlayableVariant: the track exists but has no usable download encoding.
	ErrNoPlayableVariant
	// ErrUpstream: transport failure or a non-protocol error from the catalog.
	ErrUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrProtocolViolation:
		return "protocol_violation"
	case ErrNoPlayableVariant:
		return "no_playable_variant"
	case ErrUpstream:
		return "upstream_error"
	}
	return "unknown"
}

// Status discriminates the three possible outcomes of a resolution.
type Status int

const (
	StatusPlaying Status = iota
	StatusNotPlaying
	StatusFailed
)

// ResolvedTrack is the catalog-enriched description of the current track.
type ResolvedTrack struct {
	ID         string
	Title      string
	Artists    []string
	DurationMs int64

	// Direct audio URL of the chosen download variant.
	URL         string
	Codec       string
	BitrateKbps int
}

// OperationResult is the terminal value of one resolution attempt. It is
// never mutated after being returned.
type OperationResult struct {
	Status Status

	// Populated only when Status == StatusPlaying.
	Track      *ResolvedTrack
	Paused     bool
	ProgressMs int64
	DurationMs int64
	EntityID   string
	EntityType string
	RepeatMode string

	// Populated only when Status == StatusFailed.
	Err    ErrorKind
	Detail string
}

// failure is the internal typed outcome each protocol step returns instead of
// raising past its boundary. The assembler turns it into an OperationResult.
type failure struct {
	kind   ErrorKind
	detail string
}

func (f *failure) Error() string { return fmt.Sprintf("%s: %s", f.kind, f.detail) }

func failf(kind ErrorKind, format string, args ...any) *failure {
	return &failure{kind: kind, detail: fmt.Sprintf(format, args...)}
}

func (f *failure) result() OperationResult {
	return OperationResult{Status: StatusFailed, Err: f.kind, Detail: f.detail}
}

func notPlaying() OperationResult {
	return OperationResult{Status: StatusNotPlaying}
}
