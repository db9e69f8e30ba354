package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"vexcel-xp-service/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store persists users, teams and progress in Postgres. Apply runs a batch in
// one transaction; XP columns are only ever incremented in SQL so concurrent
// batches commute.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, display_name, avatar_url, email, xp, team_id, completed, achievements, streak, created_at`

const teamSelect = `
SELECT t.id, t.name, t.code, t.creator_id, t.xp, t.created_at,
       COALESCE(array_agg(u.id ORDER BY u.id) FILTER (WHERE u.id IS NOT NULL), '{}')
FROM teams t
LEFT JOIN users u ON u.team_id = t.id`

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, domain.Unavailable("postgres.GetUser", err)
	}
	return user, nil
}

func (s *Store) GetTeam(ctx context.Context, teamID string) (domain.Team, error) {
	row := s.pool.QueryRow(ctx, teamSelect+` WHERE t.id=$1 GROUP BY t.id`, teamID)
	return s.team(row, "postgres.GetTeam")
}

func (s *Store) FindTeamByCode(ctx context.Context, code string) (domain.Team, error) {
	row := s.pool.QueryRow(ctx, teamSelect+` WHERE t.code=$1 GROUP BY t.id`, code)
	return s.team(row, "postgres.FindTeamByCode")
}

func (s *Store) team(row pgx.Row, op string) (domain.Team, error) {
	team, err := scanTeam(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	if err != nil {
		return domain.Team{}, domain.Unavailable(op, err)
	}
	return team, nil
}

func (s *Store) GetProgress(ctx context.Context, userID, moduleID string) (domain.ProgressRecord, error) {
	rec := domain.NewProgressRecord(userID, moduleID)

	err := s.pool.QueryRow(ctx, `SELECT xp FROM module_progress WHERE user_id=$1 AND module_id=$2`, userID, moduleID).Scan(&rec.XP)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.ProgressRecord{}, domain.Unavailable("postgres.GetProgress", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT activity_id, completed, score FROM activity_progress WHERE user_id=$1 AND module_id=$2`, userID, moduleID)
	if err != nil {
		return domain.ProgressRecord{}, domain.Unavailable("postgres.GetProgress", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			activityID string
			entry      domain.ActivityProgress
		)
		if err := rows.Scan(&activityID, &entry.Completed, &entry.Score); err != nil {
			return domain.ProgressRecord{}, domain.Unavailable("postgres.GetProgress", err)
		}
		rec.Activities[activityID] = entry
	}
	if err := rows.Err(); err != nil {
		return domain.ProgressRecord{}, domain.Unavailable("postgres.GetProgress", err)
	}
	return rec, nil
}

func (s *Store) TopTeams(ctx context.Context, limit int) ([]domain.Team, error) {
	rows, err := s.pool.Query(ctx, teamSelect+` GROUP BY t.id ORDER BY t.xp DESC, t.name ASC LIMIT $1`, limit)
	if err != nil {
		return nil, domain.Unavailable("postgres.TopTeams", err)
	}
	defer rows.Close()
	teams := []domain.Team{}
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, domain.Unavailable("postgres.TopTeams", err)
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("postgres.TopTeams", err)
	}
	return teams, nil
}

func (s *Store) TopUsers(ctx context.Context, limit int) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY xp DESC, display_name ASC LIMIT $1`, limit)
	if err != nil {
		return nil, domain.Unavailable("postgres.TopUsers", err)
	}
	defer rows.Close()
	users := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, domain.Unavailable("postgres.TopUsers", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("postgres.TopUsers", err)
	}
	return users, nil
}

// Apply runs every op inside a single transaction.
func (s *Store) Apply(ctx context.Context, ops ...domain.Op) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, op := range ops {
			if err := applyOp(ctx, tx, op); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Unavailable("postgres.Apply", err)
	}
	return nil
}

func applyOp(ctx context.Context, tx pgx.Tx, op domain.Op) error {
	switch o := op.(type) {
	case domain.CreateUser:
		u := o.User
		_, err := tx.Exec(ctx, `
INSERT INTO users (id, display_name, avatar_url, email, xp, completed, achievements, streak, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`,
			u.ID, u.DisplayName, u.AvatarURL, u.Email, u.XP, nonNil(u.Completed), nonNil(u.Achievements), u.Streak, createdAt(u.CreatedAt))
		return err

	case domain.IncrementUserXP:
		tag, err := tx.Exec(ctx, `UPDATE users SET xp = xp + $2 WHERE id=$1`, o.UserID, o.Delta)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrUserNotFound
		}
		return nil

	case domain.CompleteActivity:
		tag, err := tx.Exec(ctx, `
INSERT INTO activity_progress (user_id, module_id, activity_id, completed, score)
VALUES ($1, $2, $3, true, $4)
ON CONFLICT (user_id, module_id, activity_id)
DO UPDATE SET completed = true, score = EXCLUDED.score
WHERE activity_progress.completed = false`,
			o.UserID, o.ModuleID, o.ActivityID, o.Score)
		if err != nil {
			return mapViolation(err, domain.ErrUserNotFound)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadyCompleted
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO module_progress (user_id, module_id, xp)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, module_id) DO UPDATE SET xp = module_progress.xp + EXCLUDED.xp`,
			o.UserID, o.ModuleID, o.XP); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE users SET completed = array_append(completed, $2) WHERE id=$1`, o.UserID, o.ActivityID)
		return err

	case domain.RecordScore:
		_, err := tx.Exec(ctx, `
INSERT INTO activity_progress (user_id, module_id, activity_id, completed, score)
VALUES ($1, $2, $3, false, $4)
ON CONFLICT (user_id, module_id, activity_id) DO UPDATE SET score = EXCLUDED.score`,
			o.UserID, o.ModuleID, o.ActivityID, o.Score)
		return mapViolation(err, domain.ErrUserNotFound)

	case domain.IncrementTeamXP:
		tag, err := tx.Exec(ctx, `UPDATE teams SET xp = xp + $2 WHERE id=$1`, o.TeamID, o.Delta)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrTeamNotFound
		}
		return nil

	case domain.CreateTeam:
		t := o.Team
		_, err := tx.Exec(ctx, `
INSERT INTO teams (id, name, code, creator_id, xp, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, t.Name, t.Code, t.CreatorID, t.XP, createdAt(t.CreatedAt))
		return mapViolation(err, domain.ErrTeamCodeTaken)

	case domain.JoinTeam:
		tag, err := tx.Exec(ctx, `UPDATE users SET team_id=$2 WHERE id=$1 AND team_id IS NULL`, o.UserID, o.TeamID)
		if err != nil {
			return mapViolation(err, domain.ErrTeamNotFound)
		}
		if tag.RowsAffected() == 0 {
			return userOr(ctx, tx, o.UserID, domain.ErrAlreadyOnTeam)
		}
		return nil

	case domain.LeaveTeam:
		// Lock the team so concurrent leaves see each other before the emptiness check.
		if _, err := tx.Exec(ctx, `SELECT id FROM teams WHERE id=$1 FOR UPDATE`, o.TeamID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE users SET team_id=NULL WHERE id=$1 AND team_id=$2`, o.UserID, o.TeamID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return userOr(ctx, tx, o.UserID, domain.ErrNotOnTeam)
		}
		_, err = tx.Exec(ctx, `DELETE FROM teams WHERE id=$1 AND NOT EXISTS (SELECT 1 FROM users WHERE team_id=$1)`, o.TeamID)
		return err

	case domain.DeleteTeam:
		if _, err := tx.Exec(ctx, `UPDATE users SET team_id=NULL WHERE team_id=$1`, o.TeamID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM teams WHERE id=$1`, o.TeamID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrTeamNotFound
		}
		return nil
	}
	return domain.ErrInvalidInput
}

// userOr returns ErrUserNotFound when the user row is missing, otherwise fallback.
func userOr(ctx context.Context, tx pgx.Tx, userID string, fallback error) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return fallback
}

// mapViolation turns constraint violations into domain errors.
func mapViolation(err error, onViolation error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == uniqueViolation || pgErr.Code == foreignKeyViolation) {
		return onViolation
	}
	return err
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u      domain.User
		teamID *string
	)
	err := row.Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.Email, &u.XP, &teamID, &u.Completed, &u.Achievements, &u.Streak, &u.CreatedAt)
	if err != nil {
		return domain.User{}, err
	}
	if teamID != nil {
		u.TeamID = *teamID
	}
	return u, nil
}

func scanTeam(row pgx.Row) (domain.Team, error) {
	var t domain.Team
	err := row.Scan(&t.ID, &t.Name, &t.Code, &t.CreatorID, &t.XP, &t.CreatedAt, &t.Members)
	return t, err
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
