// Package scheduler fires daily notification emails at each recipient's chosen minute.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smith3v/climatewatch-notifier/pkg/claims"
	"github.com/smith3v/climatewatch-notifier/pkg/dispatch"
	"github.com/smith3v/climatewatch-notifier/pkg/emaillog"
	"github.com/smith3v/climatewatch-notifier/pkg/logger"
	"github.com/smith3v/climatewatch-notifier/pkg/preferences"
)

const (
	DefaultInterval  = time.Minute
	DefaultSendDelay = 2 * time.Second

	clockLayout = "15:04"
	dayLayout   = "2006-01-02"
)

var ErrTickInFlight = errors.New("previous tick is still running")

type PreferenceSource interface {
	List() ([]preferences.Preference, error)
	Get(email string) (preferences.Preference, bool, error)
}

type SentChecker interface {
	HasSentToday(email string) (bool, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Outcome
}

// Sleeper waits between consecutive sends.
type Sleeper func(ctx context.Context, d time.Duration) error

type Options struct {
	Interval  time.Duration
	SendDelay time.Duration
	Location  *time.Location
	Now       func() time.Time
	Sleep     Sleeper
	// Claims is optional; nil disables cross-process claims.
	Claims claims.Store
}

type Service struct {
	prefs      PreferenceSource
	sent       SentChecker
	dispatcher Dispatcher
	claims     claims.Store

	interval  time.Duration
	sendDelay time.Duration
	loc       *time.Location
	now       func() time.Time
	sleep     Sleeper

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	inFlight atomic.Bool
}

func New(prefs PreferenceSource, sent SentChecker, dispatcher Dispatcher, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SendDelay < 0 {
		opts.SendDelay = 0
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Service{
		prefs:      prefs,
		sent:       sent,
		dispatcher: dispatcher,
		claims:     opts.Claims,
		interval:   opts.Interval,
		sendDelay:  opts.SendDelay,
		loc:        opts.Location,
		now:        opts.Now,
		sleep:      opts.Sleep,
	}
}

// Start launches the tick loop. Calling Start on a running service does nothing.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		logger.Info("scheduler already running")
		return
	}

	count := 0
	if prefs, err := s.prefs.List(); err != nil {
		logger.Error("failed to load preferences at scheduler start", "error", err)
	} else {
		count = len(prefs)
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)
	logger.Info("scheduler started", "interval", s.interval, "preferences", count, "location", s.loc.String())
}

// Stop ends the loop and waits for it to exit. A tick that is already sending
// finishes first.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	logger.Info("scheduler stopped")
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); errors.Is(err, ErrTickInFlight) {
				logger.Warn("skipping tick, previous tick still running")
			}
		}
	}
}

// Tick evaluates every preference against the current minute and sends the
// due emails one after another. Sends run on a context that ignores
// cancellation so an interrupted tick still records its outcomes.
func (s *Service) Tick(ctx context.Context) ([]dispatch.Outcome, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTickInFlight
	}
	defer s.inFlight.Store(false)

	now := s.now().In(s.loc)
	due, err := s.due(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, nil
	}

	logger.Info("sending scheduled emails", "count", len(due), "time", now.Format(clockLayout))
	sendCtx := context.WithoutCancel(ctx)
	outcomes := s.sendAll(sendCtx, due, emaillog.TypeDaily)
	day := now.Format(dayLayout)
	for i, out := range outcomes {
		if !out.Success {
			s.release(sendCtx, due[i].Email, day)
		}
	}
	return outcomes, nil
}

func (s *Service) due(ctx context.Context, now time.Time) ([]preferences.Preference, error) {
	prefs, err := s.prefs.List()
	if err != nil {
		logger.Error("failed to list preferences", "error", err)
		return nil, err
	}

	current := now.Format(clockLayout)
	day := now.Format(dayLayout)
	var due []preferences.Preference
	for _, p := range prefs {
		if !p.Enabled {
			continue
		}
		if p.Time != current {
			continue
		}
		sent, err := s.sent.HasSentToday(p.Email)
		if err != nil {
			logger.Error("failed to check delivery log", "email", p.Email, "error", err)
			continue
		}
		if sent {
			logger.Debug("already sent today, skipping", "email", p.Email)
			continue
		}
		if !p.Frequency.Matches(now.Weekday()) {
			logger.Debug("frequency does not match today, skipping", "email", p.Email, "frequency", p.Frequency, "weekday", now.Weekday())
			continue
		}
		if !s.claim(ctx, p.Email, day) {
			continue
		}
		due = append(due, p)
	}
	return due, nil
}

func (s *Service) claim(ctx context.Context, email, day string) bool {
	if s.claims == nil {
		return true
	}
	ok, err := s.claims.Claim(ctx, email, day)
	if err != nil {
		logger.Warn("send claim failed, relying on delivery log", "email", email, "error", err)
		return true
	}
	if !ok {
		logger.Debug("send claimed elsewhere, skipping", "email", email)
	}
	return ok
}

// release hands back the claim of a failed send so a later tick in the same
// day can retry it.
func (s *Service) release(ctx context.Context, email, day string) {
	if s.claims == nil {
		return
	}
	if err := s.claims.Release(ctx, email, day); err != nil {
		logger.Warn("failed to release send claim", "email", email, "error", err)
	}
}

func (s *Service) sendAll(ctx context.Context, prefs []preferences.Preference, typ emaillog.Type) []dispatch.Outcome {
	outcomes := make([]dispatch.Outcome, 0, len(prefs))
	for i, p := range prefs {
		if i > 0 && s.sendDelay > 0 {
			if err := s.sleep(ctx, s.sendDelay); err != nil {
				logger.Warn("send delay interrupted", "error", err)
			}
		}
		out := s.dispatcher.Dispatch(ctx, dispatch.Request{
			Email:  p.Email,
			Name:   p.Name,
			Cities: p.Cities,
			Type:   typ,
		})
		if !out.Success {
			logger.Error("scheduled email failed", "email", p.Email, "type", typ, "error", out.Error)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// SendTestEmails sends a test email to every enabled recipient regardless of
// their schedule.
func (s *Service) SendTestEmails(ctx context.Context) ([]dispatch.Outcome, error) {
	prefs, err := s.prefs.List()
	if err != nil {
		return nil, err
	}
	enabled := prefs[:0]
	for _, p := range prefs {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	logger.Info("sending test emails", "count", len(enabled))
	return s.sendAll(ctx, enabled, emaillog.TypeTest), nil
}

// NextSendTime reports when email is next due, in the scheduler's location.
func (s *Service) NextSendTime(email string) (time.Time, bool, error) {
	p, ok, err := s.prefs.Get(email)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	next, ok := p.NextSendAfter(s.now().In(s.loc))
	return next, ok, nil
}

type NextEmail struct {
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	NextTime time.Time `json:"nextTime"`
}

type Status struct {
	Running      bool        `json:"running"`
	UserCount    int         `json:"userCount"`
	EnabledUsers int         `json:"enabledUsers"`
	NextEmails   []NextEmail `json:"nextEmails"`
}

func (s *Service) Status() (Status, error) {
	prefs, err := s.prefs.List()
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Running:    s.Running(),
		UserCount:  len(prefs),
		NextEmails: []NextEmail{},
	}
	now := s.now().In(s.loc)
	for _, p := range prefs {
		if !p.Enabled {
			continue
		}
		st.EnabledUsers++
		if next, ok := p.NextSendAfter(now); ok {
			st.NextEmails = append(st.NextEmails, NextEmail{Email: p.Email, Name: p.Name, NextTime: next})
		}
	}
	sort.Slice(st.NextEmails, func(i, j int) bool {
		return st.NextEmails[i].NextTime.Before(st.NextEmails[j].NextTime)
	})
	return st, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
