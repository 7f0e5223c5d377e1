package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/rehab.report/internal/alignment"
	"github.com/banshee-data/rehab.report/internal/session"
)

// ErrNotFound is returned when no summary exists for a session id.
var ErrNotFound = errors.New("summary not found")

// SummaryStore persists session summaries with their error and joint
// statistics.
type SummaryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSummaryStore creates a new SummaryStore.
func NewSummaryStore(db *sql.DB) *SummaryStore {
	return &SummaryStore{db: db, now: time.Now}
}

// SaveSummary writes s, replacing any earlier summary for the same session.
// It implements session.SummarySink.
func (st *SummaryStore) SaveSummary(ctx context.Context, s session.Summary) error {
	if s.SessionID == "" {
		return fmt.Errorf("save summary: empty session id")
	}
	return retryOnBusy(func() error {
		tx, err := st.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO exercise_sessions (
				session_id, exercise_id, exercise_name, status,
				target_reps, completed_reps, started_at, ended_at,
				duration_s, quality_score, lost_time_s, unstable_time_s,
				stability, frames, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.SessionID, s.ExerciseID, s.ExerciseName, string(s.Status),
			s.TargetReps, s.CompletedReps, s.StartedAt.UnixNano(), s.EndedAt.UnixNano(),
			s.Duration, s.QualityScore, s.Tracking.LostTime, s.Tracking.UnstableTime,
			string(s.Tracking.Stability), s.Frames, st.now().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		for _, table := range []string{"session_errors", "session_joint_stats"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", s.SessionID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		for name, e := range s.Errors {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO session_errors (session_id, error_type, count, total_time_s)
				VALUES (?, ?, ?, ?)`,
				s.SessionID, name, e.Count, e.TotalTime,
			); err != nil {
				return fmt.Errorf("insert error %s: %w", name, err)
			}
		}
		for joint, j := range s.Joints {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO session_joint_stats (session_id, joint, min_deg, max_deg, avg_deg, samples)
				VALUES (?, ?, ?, ?, ?, ?)`,
				s.SessionID, joint, j.Min, j.Max, j.Avg, j.Count,
			); err != nil {
				return fmt.Errorf("insert joint %s: %w", joint, err)
			}
		}
		return tx.Commit()
	})
}

const summaryColumns = `
	session_id, exercise_id, exercise_name, status,
	target_reps, completed_reps, started_at, ended_at,
	duration_s, quality_score, lost_time_s, unstable_time_s,
	stability, frames`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSummary(row scanner) (session.Summary, error) {
	var s session.Summary
	var status, stability string
	var started, ended int64
	err := row.Scan(
		&s.SessionID, &s.ExerciseID, &s.ExerciseName, &status,
		&s.TargetReps, &s.CompletedReps, &started, &ended,
		&s.Duration, &s.QualityScore, &s.Tracking.LostTime, &s.Tracking.UnstableTime,
		&stability, &s.Frames,
	)
	if err != nil {
		return s, err
	}
	s.Status = session.Status(status)
	s.Tracking.Stability = session.Stability(stability)
	s.StartedAt = time.Unix(0, started).UTC()
	s.EndedAt = time.Unix(0, ended).UTC()
	s.Errors = make(map[string]alignment.ErrorStat)
	s.Joints = make(map[string]session.JointSummary)
	return s, nil
}

// GetSummary returns the summary for sessionID.
func (st *SummaryStore) GetSummary(ctx context.Context, sessionID string) (session.Summary, error) {
	row := st.db.QueryRowContext(ctx, `SELECT `+summaryColumns+`
		FROM exercise_sessions WHERE session_id = ?`, sessionID)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Summary{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return session.Summary{}, fmt.Errorf("query session: %w", err)
	}
	if err := st.loadDetails(ctx, &s); err != nil {
		return session.Summary{}, err
	}
	return s, nil
}

// ListByExercise returns the summaries for exerciseID, most recent start
// first. A non-positive limit returns all.
func (st *SummaryStore) ListByExercise(ctx context.Context, exerciseID string, limit int) ([]session.Summary, error) {
	query := `SELECT ` + summaryColumns + `
		FROM exercise_sessions
		WHERE exercise_id = ?
		ORDER BY started_at DESC`
	args := []interface{}{exerciseID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	var out []session.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Details are loaded after the cursor is released; the pool holds a
	// single connection.
	rows.Close()

	for i := range out {
		if err := st.loadDetails(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ExerciseStats aggregates the stored sessions of one exercise.
type ExerciseStats struct {
	Sessions       int     `json:"sessions"`
	CompletedReps  int     `json:"completedReps"`
	AverageQuality float64 `json:"averageQuality"`
	TotalErrors    int     `json:"totalErrors"`
}

// StatsByExercise returns aggregate counts for exerciseID.
func (st *SummaryStore) StatsByExercise(ctx context.Context, exerciseID string) (ExerciseStats, error) {
	var stats ExerciseStats
	var avg sql.NullFloat64
	err := st.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(completed_reps), 0), AVG(quality_score)
		FROM exercise_sessions WHERE exercise_id = ?`, exerciseID,
	).Scan(&stats.Sessions, &stats.CompletedReps, &avg)
	if err != nil {
		return stats, fmt.Errorf("query exercise stats: %w", err)
	}
	stats.AverageQuality = avg.Float64

	err = st.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(e.count), 0)
		FROM session_errors e
		JOIN exercise_sessions s ON s.session_id = e.session_id
		WHERE s.exercise_id = ?`, exerciseID,
	).Scan(&stats.TotalErrors)
	if err != nil {
		return stats, fmt.Errorf("query exercise errors: %w", err)
	}
	return stats, nil
}

// Delete removes a stored summary and its details.
func (st *SummaryStore) Delete(ctx context.Context, sessionID string) error {
	return retryOnBusy(func() error {
		res, err := st.db.ExecContext(ctx, `DELETE FROM exercise_sessions WHERE session_id = ?`, sessionID)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil
	})
}

func (st *SummaryStore) loadDetails(ctx context.Context, s *session.Summary) error {
	rows, err := st.db.QueryContext(ctx, `
		SELECT error_type, count, total_time_s FROM session_errors WHERE session_id = ?`, s.SessionID)
	if err != nil {
		return fmt.Errorf("query errors: %w", err)
	}
	for rows.Next() {
		var name string
		var e alignment.ErrorStat
		if err := rows.Scan(&name, &e.Count, &e.TotalTime); err != nil {
			rows.Close()
			return fmt.Errorf("scan error: %w", err)
		}
		s.Errors[name] = e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = st.db.QueryContext(ctx, `
		SELECT joint, min_deg, max_deg, avg_deg, samples FROM session_joint_stats WHERE session_id = ?`, s.SessionID)
	if err != nil {
		return fmt.Errorf("query joint stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var joint string
		var j session.JointSummary
		if err := rows.Scan(&joint, &j.Min, &j.Max, &j.Avg, &j.Count); err != nil {
			return fmt.Errorf("scan joint stat: %w", err)
		}
		s.Joints[joint] = j
	}
	return rows.Err()
}
