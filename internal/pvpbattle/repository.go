package pvpbattle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/park285/sealed-battleship/internal/battleship"
	"github.com/park285/sealed-battleship/internal/domain"
)

// Repository archives finished games in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS battleship_games (
    game_id       TEXT PRIMARY KEY,
    player_a      TEXT NOT NULL,
    player_b      TEXT NOT NULL,
    winner_id     TEXT NOT NULL,
    winner_slot   TEXT NOT NULL,
    result_method TEXT NOT NULL,
    verified      BOOLEAN NOT NULL DEFAULT FALSE,
    revealed_a    BOOLEAN NOT NULL DEFAULT FALSE,
    revealed_b    BOOLEAN NOT NULL DEFAULT FALSE,
    hit_count_a   INTEGER NOT NULL,
    hit_count_b   INTEGER NOT NULL,
    shot_count    INTEGER NOT NULL,
    board_size    INTEGER NOT NULL,
    fleet         INTEGER[] NOT NULL,
    shot_log      JSONB NOT NULL,
    board_a       TEXT,
    board_b       TEXT,
    commitment_a  TEXT NOT NULL,
    commitment_b  TEXT NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    ended_at      TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT NOT NULL
)`

// EnsureSchema creates the archive table when it is missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schemaSQL)
	return err
}

// SaveResult upserts a finished game. The row is written at game over and
// rewritten after each successful board reveal.
func (r *Repository) SaveResult(ctx context.Context, row domain.BattleResult) error {
	if r == nil || r.db == nil {
		return nil
	}
	q := `INSERT INTO battleship_games (
        game_id, player_a, player_b, winner_id, winner_slot, result_method,
        verified, revealed_a, revealed_b, hit_count_a, hit_count_b, shot_count,
        board_size, fleet, shot_log, board_a, board_b, commitment_a, commitment_b,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
      ) ON CONFLICT (game_id) DO UPDATE SET
        winner_id=EXCLUDED.winner_id,
        winner_slot=EXCLUDED.winner_slot,
        result_method=EXCLUDED.result_method,
        verified=EXCLUDED.verified,
        revealed_a=EXCLUDED.revealed_a,
        revealed_b=EXCLUDED.revealed_b,
        hit_count_a=EXCLUDED.hit_count_a,
        hit_count_b=EXCLUDED.hit_count_b,
        shot_count=EXCLUDED.shot_count,
        shot_log=EXCLUDED.shot_log,
        board_a=EXCLUDED.board_a,
        board_b=EXCLUDED.board_b,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	fleet := make(pq.Int64Array, len(row.Fleet))
	for i, l := range row.Fleet {
		fleet[i] = int64(l)
	}
	_, err := r.db.ExecContext(ctx, q,
		row.GameID, row.PlayerA, row.PlayerB, row.WinnerID, row.Winner, row.ResultMethod,
		row.Verified, row.RevealedA, row.RevealedB, row.HitCountA, row.HitCountB, row.ShotCount,
		row.BoardSize, fleet, string(row.ShotLog), nullable(row.BoardA), nullable(row.BoardB),
		row.CommitmentA, row.CommitmentB,
		row.StartedAt, row.EndedAt, row.Duration.Milliseconds(),
	)
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// resultRow flattens a finished game into its archive row.
func resultRow(g *battleship.Game, method string) domain.BattleResult {
	a := g.Audit()
	shots, err := json.Marshal(g.Shots)
	if err != nil {
		shots = []byte("[]")
	}
	d := g.UpdatedAt.Sub(g.CreatedAt)
	if d < 0 {
		d = 0
	}
	return domain.BattleResult{
		GameID:       a.GameID,
		PlayerA:      a.PlayerA,
		PlayerB:      a.PlayerB,
		WinnerID:     a.WinnerID,
		Winner:       a.Winner.String(),
		ResultMethod: method,
		Verified:     a.Verified,
		RevealedA:    a.RevealedA,
		RevealedB:    a.RevealedB,
		HitCountA:    a.HitCountA,
		HitCountB:    a.HitCountB,
		ShotCount:    a.ShotCount,
		BoardSize:    g.Rules.BoardSize,
		Fleet:        append([]int(nil), g.Rules.Fleet...),
		ShotLog:      shots,
		BoardA:       a.BoardA.String(),
		BoardB:       a.BoardB.String(),
		CommitmentA:  g.CommitmentA.String(),
		CommitmentB:  g.CommitmentB.String(),
		StartedAt:    g.CreatedAt,
		EndedAt:      g.UpdatedAt,
		Duration:     d,
	}
}
