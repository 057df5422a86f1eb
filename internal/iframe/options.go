package iframe

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grez-lucas/iframe-bridge/internal/poll"
)

// DefaultIframeID is the content frame id used when callers do not name one.
const DefaultIframeID = "ptifrmtgtframe"

// TieBreak selects which iframe WaitForDynamicIframe returns when several
// match the partial identifier in the same scan.
type TieBreak int

const (
	// LastMatch returns the last matching iframe in document order.
	LastMatch TieBreak = iota
	// FirstMatch returns the first matching iframe in document order.
	FirstMatch
)

func (t TieBreak) String() string {
	switch t {
	case LastMatch:
		return "last"
	case FirstMatch:
		return "first"
	default:
		return "unknown"
	}
}

// ParseTieBreak parses "last" or "first". An empty string means LastMatch.
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last":
		return LastMatch, nil
	case "first":
		return FirstMatch, nil
	default:
		return LastMatch, fmt.Errorf("invalid tie-break %q: want \"first\" or \"last\"", s)
	}
}

type settings struct {
	poll     poll.Options
	tieBreak TieBreak
	logger   *zap.Logger
}

func newSettings(opts []Option) settings {
	s := settings{
		poll:     poll.Options{Interval: poll.DefaultInterval},
		tieBreak: LastMatch,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Option configures a Locator or Bridge.
type Option func(*settings)

// WithInterval sets the delay between scans.
func WithInterval(d time.Duration) Option {
	return func(s *settings) {
		s.poll.Interval = d
	}
}

// WithTimeout bounds every wait. Zero waits until the context is cancelled.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.poll.Timeout = d
	}
}

// WithImmediateScan scans once before the first interval elapses.
func WithImmediateScan(enabled bool) Option {
	return func(s *settings) {
		s.poll.Immediate = enabled
	}
}

// WithTieBreak selects the partial-match policy.
func WithTieBreak(t TieBreak) Option {
	return func(s *settings) {
		s.tieBreak = t
	}
}

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}
