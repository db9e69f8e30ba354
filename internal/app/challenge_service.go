package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"vexcel-xp-service/internal/domain"
	"vexcel-xp-service/internal/metrics"
)

// Ticker is the subset of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ChallengeService runs timed knowledge challenges, one live session per user.
type ChallengeService struct {
	deps      Deps
	sessions  ChallengeRepository
	settings  ChallengeSettings
	newTicker func(time.Duration) Ticker
}

func NewChallengeService(deps Deps, sessions ChallengeRepository, settings ChallengeSettings) *ChallengeService {
	return &ChallengeService{
		deps:      deps.withDefaults(),
		sessions:  sessions,
		settings:  settings.withDefaults(),
		newTicker: NewRealTicker,
	}
}

// WithTicker replaces the countdown ticker factory (tests drive time by hand).
func (s *ChallengeService) WithTicker(fn func(time.Duration) Ticker) *ChallengeService {
	s.newTicker = fn
	return s
}

// Start begins a session for the user and launches its countdown. The
// countdown stops when the session leaves the active state or ctx ends.
func (s *ChallengeService) Start(ctx context.Context, userID string, cfg ChallengeConfig) (ChallengeSnapshot, error) {
	if _, err := s.deps.Store.GetUser(ctx, userID); err != nil {
		return ChallengeSnapshot{}, err
	}
	bank, err := s.deps.Content.ChallengeBank(ctx)
	if err != nil {
		return ChallengeSnapshot{}, err
	}

	session, ok := s.sessions.Get(userID)
	if !ok {
		session = NewChallengeSession(uuid.NewString(), userID, s.settings)
		session.OnChange(func(snap ChallengeSnapshot) {
			s.deps.Events.Publish(userID, Event{Type: EventChallenge, Payload: snap})
		})
		s.sessions.Put(userID, session)
	}

	snap, err := session.Start(bank, cfg)
	if err != nil {
		return ChallengeSnapshot{}, err
	}
	if snap.Warning != "" {
		log.WithFields(log.Fields{"user_id": userID, "requested": cfg.Count, "available": snap.Total}).Warn("challenge question count clamped")
	}
	s.runTimer(ctx, session)
	return snap, nil
}

// runTimer ticks the session once per interval on its own goroutine.
func (s *ChallengeService) runTimer(ctx context.Context, session *ChallengeSession) {
	ticker := s.newTicker(time.Second)
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	session.setTimer(stop)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C():
				session.Tick()
				if session.State() != ChallengeActive {
					return
				}
			}
		}
	}()
}

// Answer submits the player's choice for the current question.
func (s *ChallengeService) Answer(_ context.Context, userID string, option int) (ChallengeSnapshot, error) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return ChallengeSnapshot{}, domain.ErrChallengeState
	}
	return session.Answer(option)
}

// Next advances to the following question. After the last one the session
// moves to results and its XP award is persisted to the user and mirrored to
// the user's team in one batch. If the write fails the session stays on the
// last question so the player can retry.
func (s *ChallengeService) Next(ctx context.Context, userID string) (ChallengeSnapshot, error) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return ChallengeSnapshot{}, domain.ErrChallengeState
	}

	percentage, award, last := session.Pending()
	if !last {
		snap, _, err := session.Advance()
		return snap, err
	}

	release, err := s.deps.Gate.Acquire(userID)
	if err != nil {
		return ChallengeSnapshot{}, err
	}
	defer release()

	user, err := s.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return ChallengeSnapshot{}, err
	}
	if award > 0 {
		ops := []domain.Op{domain.IncrementUserXP{UserID: userID, Delta: award}}
		mirror := domain.MirrorTeamXP(user, award)
		if mirror != nil {
			ops = append(ops, mirror)
		}
		if err := applyTimed(ctx, s.deps.Store, ops...); err != nil {
			return ChallengeSnapshot{}, err
		}
		metrics.XPAwarded.WithLabelValues("challenge").Add(float64(award))
		if mirror != nil {
			metrics.TeamXPMirrored.Add(float64(award))
		}
	}

	snap, finished, err := session.Advance()
	if err != nil {
		return ChallengeSnapshot{}, err
	}
	if finished {
		metrics.ChallengesFinished.Observe(float64(percentage))
	}
	if award > 0 {
		after, err := s.deps.Store.GetUser(ctx, userID)
		if err != nil {
			return snap, err
		}
		publishXP(s.deps, user, after, "challenge", award)
	}
	return snap, nil
}

// Reset discards the session and returns it to idle.
func (s *ChallengeService) Reset(_ context.Context, userID string) (ChallengeSnapshot, error) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return ChallengeSnapshot{State: ChallengeIdle}, nil
	}
	return session.Reset(), nil
}

// Snapshot returns the user's current session state.
func (s *ChallengeService) Snapshot(userID string) ChallengeSnapshot {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return ChallengeSnapshot{State: ChallengeIdle}
	}
	return session.Snapshot()
}

// Discard drops the user's session without persisting anything, e.g. when the
// player navigates away mid-challenge.
func (s *ChallengeService) Discard(userID string) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return
	}
	session.OnChange(nil)
	session.Reset()
	s.sessions.Delete(userID)
}
