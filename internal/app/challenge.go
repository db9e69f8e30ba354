package app

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"vexcel-xp-service/internal/domain"
)

// ChallengeState is the phase of a timed challenge session.
type ChallengeState string

const (
	ChallengeIdle    ChallengeState = "idle"
	ChallengeActive  ChallengeState = "active"
	ChallengeResults ChallengeState = "results"
)

const (
	DefaultQuestionSeconds = 20
	DefaultChallengeMaxXP  = 100
)

// ChallengeSettings are fixed per deployment.
type ChallengeSettings struct {
	QuestionSeconds int
	MaxXP           int
}

func (c ChallengeSettings) withDefaults() ChallengeSettings {
	if c.QuestionSeconds <= 0 {
		c.QuestionSeconds = DefaultQuestionSeconds
	}
	if c.MaxXP <= 0 {
		c.MaxXP = DefaultChallengeMaxXP
	}
	return c
}

// ChallengeConfig is what the user picks before starting.
type ChallengeConfig struct {
	Categories []string `json:"categories"`
	Count      int      `json:"count"`
}

// ChallengeAnswer records the outcome of one question. Selected is nil on timeout.
type ChallengeAnswer struct {
	QuestionID string `json:"questionId"`
	Selected   *int   `json:"selected"`
	Correct    bool   `json:"correct"`
	TimedOut   bool   `json:"timedOut"`
}

// QuestionView is a question as shown to the player; the correct index is only
// present once the answer is revealed.
type QuestionView struct {
	ID       string   `json:"id"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
	Category string   `json:"category,omitempty"`
	Correct  *int     `json:"correct,omitempty"`
}

// ChallengeSnapshot is the observable state of a session.
type ChallengeSnapshot struct {
	SessionID  string            `json:"sessionId"`
	State      ChallengeState    `json:"state"`
	Index      int               `json:"index"`
	Total      int               `json:"total"`
	Remaining  int               `json:"remaining"`
	Question   *QuestionView     `json:"question,omitempty"`
	Answered   bool              `json:"answered"`
	Score      int               `json:"score"`
	Answers    []ChallengeAnswer `json:"answers,omitempty"`
	Percentage int               `json:"percentage"`
	XPAward    int               `json:"xpAward"`
	Warning    string            `json:"warning,omitempty"`
}

// ChallengeSession is an in-memory timed quiz. It is never persisted; only its
// final XP award is. The once-per-second timer and the player race on the same
// question: whichever reveals the answer first wins and the other is a no-op.
type ChallengeSession struct {
	id       string
	userID   string
	settings ChallengeSettings
	rnd      *rand.Rand

	mu         sync.Mutex
	state      ChallengeState
	questions  []domain.Question
	index      int
	remaining  int
	answered   bool
	score      int
	answers    []ChallengeAnswer
	percentage int
	xpAward    int
	warning    string
	stopTimer  func()
	onChange   func(ChallengeSnapshot)
}

// NewChallengeSession returns an idle session.
func NewChallengeSession(id, userID string, settings ChallengeSettings) *ChallengeSession {
	return NewChallengeSessionWithRand(id, userID, settings, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewChallengeSessionWithRand is used by tests for deterministic sampling.
func NewChallengeSessionWithRand(id, userID string, settings ChallengeSettings, rnd *rand.Rand) *ChallengeSession {
	return &ChallengeSession{
		id:       id,
		userID:   userID,
		settings: settings.withDefaults(),
		rnd:      rnd,
		state:    ChallengeIdle,
	}
}

// ID returns the session identifier.
func (s *ChallengeSession) ID() string { return s.id }

// State returns the current phase.
func (s *ChallengeSession) State() ChallengeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves idle -> active with a random sample of the bank filtered by category.
// The requested count is clamped to the available questions with a warning.
func (s *ChallengeSession) Start(bank []domain.Question, cfg ChallengeConfig) (ChallengeSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ChallengeIdle {
		return ChallengeSnapshot{}, domain.ErrChallengeState
	}
	if len(cfg.Categories) == 0 {
		return ChallengeSnapshot{}, domain.ErrNoCategories
	}
	pool := filterByCategory(bank, cfg.Categories)
	count := cfg.Count
	if count <= 0 || len(pool) == 0 {
		return ChallengeSnapshot{}, domain.ErrNoQuestions
	}
	warning := ""
	if count > len(pool) {
		warning = fmt.Sprintf("only %d questions available, the challenge uses all of them", len(pool))
		count = len(pool)
	}

	picked := make([]domain.Question, 0, count)
	for _, i := range s.rnd.Perm(len(pool))[:count] {
		picked = append(picked, pool[i])
	}

	s.state = ChallengeActive
	s.questions = picked
	s.index = 0
	s.remaining = s.settings.QuestionSeconds
	s.answered = false
	s.score = 0
	s.answers = make([]ChallengeAnswer, 0, count)
	s.percentage = 0
	s.xpAward = 0
	s.warning = warning
	return s.changedLocked(), nil
}

// Tick advances the countdown by one second. At zero an unanswered question is
// auto-submitted as wrong with no selection. It reports whether state changed.
func (s *ChallengeSession) Tick() (ChallengeSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ChallengeActive || s.answered {
		return s.snapshotLocked(), false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining == 0 {
		s.revealLocked(nil)
	}
	return s.changedLocked(), true
}

// Answer locks in option for the current question and reveals correctness.
func (s *ChallengeSession) Answer(option int) (ChallengeSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ChallengeActive {
		return ChallengeSnapshot{}, domain.ErrChallengeState
	}
	if s.answered {
		return ChallengeSnapshot{}, domain.ErrAlreadyAnswered
	}
	q := s.questions[s.index]
	if _, err := domain.ScoreChallengeAnswer(q, &option); err != nil {
		return ChallengeSnapshot{}, err
	}
	s.revealLocked(&option)
	return s.changedLocked(), nil
}

func (s *ChallengeSession) revealLocked(selected *int) {
	q := s.questions[s.index]
	correct, _ := domain.ScoreChallengeAnswer(q, selected)
	if correct {
		s.score++
	}
	s.answered = true
	s.answers = append(s.answers, ChallengeAnswer{
		QuestionID: q.ID,
		Selected:   selected,
		Correct:    correct,
		TimedOut:   selected == nil,
	})
}

// Pending reports the final figures when the current question is the last one
// and has been answered, i.e. when the next Advance finishes the session.
func (s *ChallengeSession) Pending() (percentage, xpAward int, last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ChallengeActive || !s.answered || s.index < len(s.questions)-1 {
		return 0, 0, false
	}
	p, xp := s.finalLocked()
	return p, xp, true
}

// Advance moves to the next question, or to results after the last one.
// The current question must be answered (or timed out) first.
func (s *ChallengeSession) Advance() (ChallengeSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ChallengeActive || !s.answered {
		return ChallengeSnapshot{}, false, domain.ErrChallengeState
	}
	if s.index < len(s.questions)-1 {
		s.index++
		s.remaining = s.settings.QuestionSeconds
		s.answered = false
		return s.changedLocked(), false, nil
	}

	s.percentage, s.xpAward = s.finalLocked()
	s.state = ChallengeResults
	s.stopTimerLocked()
	return s.changedLocked(), true, nil
}

// finalLocked computes round(100*score/total) and round(MaxXP*score/total).
// The award is proportional to accuracy with no pass threshold.
func (s *ChallengeSession) finalLocked() (int, int) {
	total := len(s.questions)
	return domain.RoundRatio(100*s.score, total), domain.RoundRatio(s.settings.MaxXP*s.score, total)
}

// Reset discards all state and returns to idle.
func (s *ChallengeSession) Reset() ChallengeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.state = ChallengeIdle
	s.questions = nil
	s.index = 0
	s.remaining = 0
	s.answered = false
	s.score = 0
	s.answers = nil
	s.percentage = 0
	s.xpAward = 0
	s.warning = ""
	return s.changedLocked()
}

// Snapshot returns the current observable state.
func (s *ChallengeSession) Snapshot() ChallengeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// setTimer installs the stop function of the running countdown.
func (s *ChallengeSession) setTimer(stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.stopTimer = stop
}

// OnChange registers a callback invoked (under the session lock) after every transition.
func (s *ChallengeSession) OnChange(fn func(ChallengeSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *ChallengeSession) stopTimerLocked() {
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
}

func (s *ChallengeSession) changedLocked() ChallengeSnapshot {
	snap := s.snapshotLocked()
	if s.onChange != nil {
		s.onChange(snap)
	}
	return snap
}

func (s *ChallengeSession) snapshotLocked() ChallengeSnapshot {
	snap := ChallengeSnapshot{
		SessionID:  s.id,
		State:      s.state,
		Index:      s.index,
		Total:      len(s.questions),
		Remaining:  s.remaining,
		Answered:   s.answered,
		Score:      s.score,
		Percentage: s.percentage,
		XPAward:    s.xpAward,
		Warning:    s.warning,
	}
	if len(s.answers) > 0 {
		snap.Answers = append([]ChallengeAnswer(nil), s.answers...)
	}
	if s.state == ChallengeActive && s.index < len(s.questions) {
		q := s.questions[s.index]
		view := &QuestionView{ID: q.ID, Prompt: q.Prompt, Options: q.Options, Category: q.Category}
		if s.answered {
			correct := q.Correct
			view.Correct = &correct
		}
		snap.Question = view
	}
	return snap
}

func filterByCategory(bank []domain.Question, categories []string) []domain.Question {
	wanted := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		wanted[c] = struct{}{}
	}
	out := make([]domain.Question, 0, len(bank))
	for _, q := range bank {
		if _, ok := wanted[q.Category]; ok {
			out = append(out, q)
		}
	}
	return out
}
