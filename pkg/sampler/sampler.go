// Package sampler turns noisy sensor reads into an all-or-nothing SampleSet.
//
// Each channel gets a bounded number of consecutive read attempts. The first
// finite reading wins; a channel that never produces one is exhausted and
// the whole cycle fails with a *SampleError naming the failed channels.
package sampler

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ericogr/ina219-exporter/pkg/errors"
	"github.com/rs/zerolog"
)

// Reading is an accepted channel value.
type Reading struct {
	Name   string
	Metric string
	Help   string
	Unit   string
	Value  float64
}

// SampleSet holds one finite value per channel, in channel order.
type SampleSet struct {
	Readings  []Reading
	Timestamp time.Time
}

// Outcome is the result of the retry loop for one channel.
type Outcome struct {
	Channel  string
	Value    float64
	Attempts int
	Err      error
}

func (o Outcome) OK() bool { return o.Err == nil }

// ChannelError reports a channel whose retry budget ran out.
type ChannelError struct {
	Channel  string
	Attempts int
	Last     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: no valid reading after %d attempts: %v", e.Channel, e.Attempts, e.Last)
}

func (e *ChannelError) Unwrap() []error {
	return []error{errors.New(errors.ErrChannelExhausted), e.Last}
}

// SampleError is the failure of a whole sampling cycle.
type SampleError struct {
	Outcomes  []Outcome
	Timestamp time.Time
}

func (e *SampleError) Error() string {
	failed := e.Failed()
	names := make([]string, len(failed))
	for i, f := range failed {
		names[i] = f.Channel
	}
	return fmt.Sprintf("%s: failed channels: %s", errors.Message(errors.ErrSensor), strings.Join(names, ", "))
}

func (e *SampleError) Unwrap() []error {
	errs := []error{errors.New(errors.ErrSensor)}
	for _, o := range e.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}

// Failed returns the outcomes of the channels that were exhausted.
func (e *SampleError) Failed() []Outcome {
	var out []Outcome
	for _, o := range e.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Observer is notified of every channel outcome.
type Observer interface {
	ObserveChannel(o Outcome)
}

// State is the engine's observable state: the last published SampleSet and
// the time of the most recent attempt, successful or not.
type State struct {
	Last        SampleSet
	HasSample   bool
	AttemptedAt time.Time
	Err         error
}

type Option func(*Sampler)

// WithLogger sets the logger used for per-attempt diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sampler) { s.log = l }
}

// WithObserver registers an observer of channel outcomes.
func WithObserver(o Observer) Option {
	return func(s *Sampler) { s.observer = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// Sampler is the sampling engine. Refresh calls are serialized, so the
// hardware sees one cycle at a time and the published state is never read
// half written.
type Sampler struct {
	channels []Channel
	tries    int
	log      zerolog.Logger
	observer Observer
	now      func() time.Time

	mu    sync.Mutex
	state State
}

func New(channels []Channel, tries int, opts ...Option) (*Sampler, error) {
	if tries < 1 {
		return nil, errors.WithData(errors.ErrInvalidConfig, fmt.Sprintf("read try count must be >= 1, got %d", tries))
	}
	if len(channels) == 0 {
		return nil, errors.WithData(errors.ErrInvalidConfig, "no channels configured")
	}
	s := &Sampler{
		channels: channels,
		tries:    tries,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Refresh samples every channel and publishes a new SampleSet when all of
// them produced a finite value. Otherwise it returns a *SampleError and the
// previously published set stays untouched.
//
// A hung hardware read blocks Refresh; ctx is only checked between
// channels. A cancelled ctx aborts the cycle with ctx.Err(), not a
// *SampleError, and leaves the published state untouched.
func (s *Sampler) Refresh(ctx context.Context) (SampleSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	s.state.AttemptedAt = at

	outcomes := make([]Outcome, len(s.channels))
	failed := false
	for i, ch := range s.channels {
		if err := ctx.Err(); err != nil {
			return SampleSet{}, err
		}
		outcomes[i] = s.readChannel(ch)
		if s.observer != nil {
			s.observer.ObserveChannel(outcomes[i])
		}
		if !outcomes[i].OK() {
			failed = true
		}
	}

	if failed {
		err := &SampleError{Outcomes: outcomes, Timestamp: at}
		s.state.Err = err
		return SampleSet{}, err
	}

	set := SampleSet{Readings: make([]Reading, len(s.channels)), Timestamp: at}
	for i, ch := range s.channels {
		set.Readings[i] = Reading{
			Name:   ch.Name,
			Metric: ch.Metric,
			Help:   ch.Help,
			Unit:   ch.Unit,
			Value:  outcomes[i].Value,
		}
	}
	s.state.Last = set
	s.state.HasSample = true
	s.state.Err = nil
	return set, nil
}

func (s *Sampler) readChannel(ch Channel) Outcome {
	s.log.Debug().Str("channel", ch.Name).Msg("Reading sensor")

	var last error
	for attempt := 1; attempt <= s.tries; attempt++ {
		v, err := ch.Read()
		if err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return Outcome{Channel: ch.Name, Value: v, Attempts: attempt}
		}
		if err == nil {
			err = fmt.Errorf("non-finite value %v", v)
		}
		last = errors.Wrap(errors.ErrTransientRead, err)
		s.log.Debug().Str("channel", ch.Name).Int("attempt", attempt).Err(err).Msg("Failed to read sensor")
	}

	return Outcome{
		Channel:  ch.Name,
		Value:    math.NaN(),
		Attempts: s.tries,
		Err:      &ChannelError{Channel: ch.Name, Attempts: s.tries, Last: last},
	}
}

// State returns a copy of the engine's observable state.
func (s *Sampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Last.Readings = append([]Reading(nil), s.state.Last.Readings...)
	return st
}
