package daily

import (
	"context"
	"database/sql"
)

type Result struct {
	UserID         string `json:"userId"`
	Date           string `json:"date"`
	Seed           int64  `json:"seed"`
	Moves          int    `json:"moves"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Score          int    `json:"score"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) AlreadyPlayed(ctx context.Context, userID, date string) (bool, error) {
	var cnt int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM daily_results WHERE user_id=? AND date=?",
		userID, date,
	).Scan(&cnt)
	return cnt > 0, err
}

func (s *Store) InsertResult(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_results(user_id, date, seed, moves, elapsed_seconds, score)
		 VALUES(?,?,?,?,?,?)`, r.UserID, r.Date, r.Seed, r.Moves, r.ElapsedSeconds, r.Score,
	)
	return err
}

type LBRow struct {
	UserID         string `json:"userId"`
	Moves          int    `json:"moves"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Score          int    `json:"score"`
}

// Leaderboard returns the top rows for a date, best score first;
// ties break on elapsed time then insertion order.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, moves, elapsed_seconds, score
		 FROM daily_results
		 WHERE date=?
		 ORDER BY score DESC, elapsed_seconds ASC, created_at ASC
		 LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LBRow
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.UserID, &r.Moves, &r.ElapsedSeconds, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
