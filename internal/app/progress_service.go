package app

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"vexcel-xp-service/internal/domain"
	"vexcel-xp-service/internal/metrics"
)

// CompletionResult summarizes one completeActivity call.
type CompletionResult struct {
	UserID           string                `json:"userId"`
	ModuleID         string                `json:"moduleId"`
	ActivityID       string                `json:"activityId"`
	Type             domain.ActivityType   `json:"type"`
	Outcome          domain.Outcome        `json:"outcome"`
	Percentage       int                   `json:"percentage"`
	AlreadyCompleted bool                  `json:"alreadyCompleted"`
	XPAwarded        int                   `json:"xpAwarded"`
	UserXP           int                   `json:"userXp"`
	Level            int                   `json:"level"`
	LeveledUp        bool                  `json:"leveledUp"`
	Progress         domain.ProgressRecord `json:"progress"`
}

// ProgressService applies completed-activity events to user, module and team records.
type ProgressService struct {
	deps Deps
}

func NewProgressService(deps Deps) *ProgressService {
	return &ProgressService{deps: deps.withDefaults()}
}

// CompleteActivity scores attempt and, on the first passing completion only,
// awards the activity's XP to the user, the module roll-up and the user's team
// in a single atomic batch. Repeat completions award nothing but may update the
// stored quiz score. A failing quiz is recorded as not completed and reported
// with domain.ErrBelowPassThreshold alongside the populated result.
func (s *ProgressService) CompleteActivity(ctx context.Context, userID, moduleID, activityID string, attempt domain.Attempt) (CompletionResult, error) {
	release, err := s.deps.Gate.Acquire(userID)
	if err != nil {
		return CompletionResult{}, err
	}
	defer release()

	user, err := s.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return CompletionResult{}, err
	}
	module, err := s.deps.Content.GetModule(ctx, moduleID)
	if err != nil {
		return CompletionResult{}, err
	}
	activity, err := module.Activity(activityID)
	if err != nil {
		return CompletionResult{}, err
	}
	outcome, err := domain.Score(activity, attempt)
	if err != nil {
		return CompletionResult{}, err
	}
	progress, err := s.deps.Store.GetProgress(ctx, userID, moduleID)
	if err != nil {
		return CompletionResult{}, err
	}

	res := CompletionResult{
		UserID:     userID,
		ModuleID:   moduleID,
		ActivityID: activityID,
		Type:       activity.Type(),
		Outcome:    outcome,
		Percentage: outcome.Percentage(),
		UserXP:     user.XP,
		Level:      s.deps.Leveling.Level(user.XP),
	}
	score := storedScore(activity, outcome)

	if progress.IsCompleted(activityID) {
		return s.review(ctx, res, score)
	}

	if !outcome.Passed {
		if err := s.apply(ctx, domain.RecordScore{UserID: userID, ModuleID: moduleID, ActivityID: activityID, Score: score}); err != nil {
			return CompletionResult{}, err
		}
		metrics.ActivitiesCompleted.WithLabelValues(string(activity.Type()), "failed").Inc()
		res.Progress, err = s.deps.Store.GetProgress(ctx, userID, moduleID)
		if err != nil {
			return CompletionResult{}, err
		}
		return res, domain.ErrBelowPassThreshold
	}

	award := outcome.XPAward
	ops := []domain.Op{
		domain.CompleteActivity{UserID: userID, ModuleID: moduleID, ActivityID: activityID, Score: score, XP: award},
		domain.IncrementUserXP{UserID: userID, Delta: award},
	}
	mirror := domain.MirrorTeamXP(user, award)
	if mirror != nil {
		ops = append(ops, mirror)
	}
	if err := s.apply(ctx, ops...); err != nil {
		if errors.Is(err, domain.ErrAlreadyCompleted) {
			return s.review(ctx, res, score)
		}
		return CompletionResult{}, err
	}

	metrics.ActivitiesCompleted.WithLabelValues(string(activity.Type()), "completed").Inc()
	metrics.XPAwarded.WithLabelValues(string(activity.Type())).Add(float64(award))
	if mirror != nil {
		metrics.TeamXPMirrored.Add(float64(award))
	}

	after, err := s.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return CompletionResult{}, err
	}
	res.XPAwarded = award
	res.UserXP = after.XP
	res.Level = s.deps.Leveling.Level(after.XP)
	res.LeveledUp = publishXP(s.deps, user, after, string(activity.Type()), award)

	res.Progress, err = s.deps.Store.GetProgress(ctx, userID, moduleID)
	if err != nil {
		return CompletionResult{}, err
	}
	return res, nil
}

// review handles a completion of an already-completed activity: the quiz score
// is refreshed, XP is never awarded again.
func (s *ProgressService) review(ctx context.Context, res CompletionResult, score *int) (CompletionResult, error) {
	res.AlreadyCompleted = true
	if score != nil {
		if err := s.apply(ctx, domain.RecordScore{UserID: res.UserID, ModuleID: res.ModuleID, ActivityID: res.ActivityID, Score: score}); err != nil {
			return CompletionResult{}, err
		}
	}
	metrics.ActivitiesCompleted.WithLabelValues(string(res.Type), "review").Inc()
	progress, err := s.deps.Store.GetProgress(ctx, res.UserID, res.ModuleID)
	if err != nil {
		return CompletionResult{}, err
	}
	res.Progress = progress
	return res, nil
}

func (s *ProgressService) apply(ctx context.Context, ops ...domain.Op) error {
	return applyTimed(ctx, s.deps.Store, ops...)
}

// publishXP announces the XP award and, on a level transition, a level-up event.
// Level changes never adjust XP.
func publishXP(deps Deps, before, after domain.User, source string, award int) bool {
	deps.Events.Publish(after.ID, Event{Type: EventXP, Payload: XPEvent{
		Source:  source,
		Amount:  award,
		TotalXP: after.XP,
		TeamID:  before.TeamID,
	}})
	from, to, up := deps.Leveling.LeveledUp(before.XP, after.XP)
	if !up {
		return false
	}
	metrics.LevelUps.Inc()
	log.WithFields(log.Fields{"user_id": after.ID, "from": from, "to": to}).Info("level up")
	deps.Events.Publish(after.ID, Event{Type: EventLevelUp, Payload: LevelUpEvent{From: from, To: to}})
	return true
}

func applyTimed(ctx context.Context, store Store, ops ...domain.Op) error {
	start := time.Now()
	err := store.Apply(ctx, ops...)
	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	if err != nil && errors.Is(err, domain.ErrStoreUnavailable) {
		metrics.StoreFailures.WithLabelValues("apply").Inc()
		log.WithError(err).Warn("atomic batch failed")
	}
	return err
}

// storedScore is the score persisted with the activity entry; only quizzes carry one.
func storedScore(a domain.Activity, out domain.Outcome) *int {
	if _, ok := a.(domain.Quiz); !ok {
		return nil
	}
	score := out.Score
	return &score
}
