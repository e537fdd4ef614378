package pvpbattle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/sealed-battleship/internal/battleship"
	"github.com/park285/sealed-battleship/internal/domain"
	"github.com/park285/sealed-battleship/internal/obslog"
)

// maxTxAttempts bounds how often a transition is replayed after losing a
// WATCH race before ErrConcurrentUpdate is returned.
const maxTxAttempts = 3

const DefaultTTL = 7 * 24 * time.Hour

// ResultStore archives finished games.
type ResultStore interface {
	SaveResult(ctx context.Context, row domain.BattleResult) error
}

// Manager hosts game records in Redis. Each transition runs the engine on a
// copy of the record inside a WATCH transaction, so concurrent submissions
// on one game are applied one at a time and a rejected call writes nothing.
type Manager struct {
	rdb   *redis.Client
	repo  ResultStore
	rules battleship.Rules
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger
}

type Option func(*Manager)

// WithRules sets the board size and fleet used for new games.
func WithRules(r battleship.Rules) Option { return func(m *Manager) { m.rules = r } }

// WithTTL sets the expiry of game records and player indexes. Zero keeps them forever.
func WithTTL(d time.Duration) Option { return func(m *Manager) { m.ttl = d } }

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager connects to redisURL and checks the connection.
func NewManager(redisURL string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for battle manager")
	}
	ropts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(ropts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewManagerWithClient(rdb, opts...)
}

// NewManagerWithClient wraps an existing client. The manager owns it afterwards.
func NewManagerWithClient(rdb *redis.Client, opts ...Option) (*Manager, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	m := &Manager{
		rdb:   rdb,
		rules: battleship.StandardRules(),
		ttl:   DefaultTTL,
		now:   time.Now,
		log:   obslog.L(),
	}
	for _, o := range opts {
		o(m)
	}
	if err := m.rules.Validate(); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return m, nil
}

func (m *Manager) Close() error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Close()
}

// AttachRepository wires an archive for finished games.
func (m *Manager) AttachRepository(r ResultStore) {
	if m != nil {
		m.repo = r
	}
}

// Rules returns the parameters applied to newly created games.
func (m *Manager) Rules() battleship.Rules { return m.rules }

func (m *Manager) Ping(ctx context.Context) error { return m.rdb.Ping(ctx).Err() }

// InitializeGame opens a game with caller as player A. An empty gameID is
// replaced by a fresh UUID.
func (m *Manager) InitializeGame(ctx context.Context, gameID, caller string, commitment battleship.Commitment) (*battleship.Game, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		gameID = uuid.NewString()
	}
	caller = strings.TrimSpace(caller)
	g, err := battleship.NewGame(gameID, caller, commitment, m.rules, m.now().UTC())
	if err != nil {
		m.reject("bs_game_init", gameID, caller, err)
		return nil, err
	}
	if err := g.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("%w: %v", battleship.ErrCorruptRecord, err)
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	key := gameKey(gameID)
	ev := newEvent(EventGameCreated, g, map[string]string{"player_a": g.PlayerA})

	err = m.retry(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return battleship.ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, m.ttl)
			m.indexPlayer(ctx, pipe, g.PlayerA, gameID)
			return publish(ctx, pipe, ev)
		})
		return err
	})
	if err != nil {
		m.reject("bs_game_init", gameID, caller, err)
		return nil, err
	}
	m.log.Info("bs_game_init",
		zap.String("game_id", g.ID),
		zap.String("player_a", g.PlayerA),
		zap.String("commitment_a", g.CommitmentA.String()),
		zap.Int("board_size", g.Rules.BoardSize),
	)
	return g, nil
}

// JoinGame seats caller as player B and starts play.
func (m *Manager) JoinGame(ctx context.Context, gameID, caller string, commitment battleship.Commitment) (*battleship.Game, error) {
	caller = strings.TrimSpace(caller)
	g, err := m.transact(ctx, "bs_join", gameID, caller, func(g *battleship.Game, now time.Time) ([]Event, error) {
		if err := g.Join(caller, commitment, now); err != nil {
			return nil, err
		}
		return []Event{newEvent(EventGameJoined, g, map[string]string{"player_b": g.PlayerB})}, nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("bs_join",
		zap.String("game_id", g.ID),
		zap.String("player_b", g.PlayerB),
		zap.String("commitment_b", g.CommitmentB.String()),
	)
	return g, nil
}

// FireShot targets (x, y) on the opponent's board for the caller.
func (m *Manager) FireShot(ctx context.Context, gameID, caller string, x, y int) (*battleship.Game, error) {
	caller = strings.TrimSpace(caller)
	g, err := m.transact(ctx, "bs_fire", gameID, caller, func(g *battleship.Game, now time.Time) ([]Event, error) {
		if err := g.FireShot(caller, x, y, now); err != nil {
			return nil, err
		}
		return []Event{newEvent(EventShotFired, g, map[string]string{
			"shooter": g.PendingShotBy.String(),
			"x":       strconv.Itoa(x),
			"y":       strconv.Itoa(y),
		})}, nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("bs_fire",
		zap.String("game_id", g.ID),
		zap.String("user_id", caller),
		zap.Int("x", x),
		zap.Int("y", y),
	)
	return g, nil
}

// RevealShotResult records the defender's answer to the pending shot.
func (m *Manager) RevealShotResult(ctx context.Context, gameID, caller string, hit bool) (*battleship.Game, battleship.ShotRecord, error) {
	caller = strings.TrimSpace(caller)
	var rec battleship.ShotRecord
	g, err := m.transact(ctx, "bs_reveal_shot", gameID, caller, func(g *battleship.Game, now time.Time) ([]Event, error) {
		r, err := g.RevealShotResult(caller, hit, now)
		if err != nil {
			return nil, err
		}
		rec = r
		evs := []Event{newEvent(EventShotResolved, g, map[string]string{
			"shooter": r.Shooter.String(),
			"x":       strconv.Itoa(r.X),
			"y":       strconv.Itoa(r.Y),
			"hit":     strconv.FormatBool(r.Hit),
		})}
		if g.GameOver {
			evs = append(evs, newEvent(EventGameOver, g, map[string]string{
				"winner":    g.Winner.String(),
				"winner_id": g.WinnerID(),
			}))
		}
		return evs, nil
	})
	if err != nil {
		return nil, rec, err
	}
	m.log.Info("bs_reveal_shot",
		zap.String("game_id", g.ID),
		zap.String("user_id", caller),
		zap.Int("x", rec.X),
		zap.Int("y", rec.Y),
		zap.Bool("hit", rec.Hit),
		zap.Int("hit_count_a", g.HitCountA),
		zap.Int("hit_count_b", g.HitCountB),
	)
	if g.GameOver {
		m.log.Info("bs_game_over",
			zap.String("game_id", g.ID),
			zap.String("winner", g.WinnerID()),
			zap.Int("shots", len(g.Shots)),
		)
		_ = m.persistIfFinal(ctx, g, "sunk")
	}
	return g, rec, nil
}

// RevealBoardPlayerA opens A's commitment after the game is over.
func (m *Manager) RevealBoardPlayerA(ctx context.Context, gameID, caller string, board battleship.Board, salt []byte) (*battleship.Game, error) {
	return m.revealBoard(ctx, battleship.PlayerA, gameID, caller, board, salt)
}

// RevealBoardPlayerB opens B's commitment after the game is over.
func (m *Manager) RevealBoardPlayerB(ctx context.Context, gameID, caller string, board battleship.Board, salt []byte) (*battleship.Game, error) {
	return m.revealBoard(ctx, battleship.PlayerB, gameID, caller, board, salt)
}

func (m *Manager) revealBoard(ctx context.Context, slot battleship.Player, gameID, caller string, board battleship.Board, salt []byte) (*battleship.Game, error) {
	caller = strings.TrimSpace(caller)
	g, err := m.transact(ctx, "bs_reveal_board", gameID, caller, func(g *battleship.Game, now time.Time) ([]Event, error) {
		if err := g.RevealBoard(slot, caller, board, salt, now); err != nil {
			return nil, err
		}
		evs := []Event{newEvent(EventBoardRevealed, g, map[string]string{"slot": slot.String()})}
		if g.Verified() {
			evs = append(evs, newEvent(EventGameVerified, g, map[string]string{"winner_id": g.WinnerID()}))
		}
		return evs, nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("bs_reveal_board",
		zap.String("game_id", g.ID),
		zap.String("user_id", caller),
		zap.String("slot", slot.String()),
	)
	method := "revealed"
	if g.Verified() {
		m.log.Info("bs_verified", zap.String("game_id", g.ID), zap.String("winner", g.WinnerID()))
		method = "verified"
	}
	_ = m.persistIfFinal(ctx, g, method)
	return g, nil
}

// txFunc mutates the loaded record and returns the events to publish with it.
type txFunc func(g *battleship.Game, now time.Time) ([]Event, error)

// transact loads the record under WATCH, applies fn, re-checks the record
// and writes it back together with its events in one MULTI/EXEC.
func (m *Manager) transact(ctx context.Context, op, gameID, caller string, fn txFunc) (*battleship.Game, error) {
	gameID = strings.TrimSpace(gameID)
	key := gameKey(gameID)
	var out *battleship.Game
	err := m.retry(ctx, key, func(tx *redis.Tx) error {
		g, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		evs, err := fn(g, m.now().UTC())
		if err != nil {
			return err
		}
		if err := g.CheckInvariants(); err != nil {
			return fmt.Errorf("%w: %v", battleship.ErrCorruptRecord, err)
		}
		raw, err := json.Marshal(g)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, m.ttl)
			// 참가 시점에만 B 인덱스 추가 (A는 생성 시 등록됨)
			if op == "bs_join" {
				m.indexPlayer(ctx, pipe, g.PlayerB, g.ID)
			}
			for _, ev := range evs {
				if err := publish(ctx, pipe, ev); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		m.reject(op, gameID, caller, err)
		return nil, err
	}
	return out, nil
}

// retry runs fn under WATCH on key, replaying it when another writer
// committed first.
func (m *Manager) retry(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := m.rdb.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		// 다른 쓰기가 먼저 커밋됨: 최신 상태로 다시 검증
	}
	return battleship.ErrConcurrentUpdate
}

func (m *Manager) reject(op, gameID, caller string, err error) {
	if pe, ok := battleship.AsError(err); ok {
		m.log.Warn(op+"_rejected",
			zap.String("game_id", gameID),
			zap.String("user_id", caller),
			zap.String("code", pe.Code),
			zap.String("kind", string(pe.Kind)),
		)
		return
	}
	m.log.Error(op+"_error", zap.String("game_id", gameID), zap.String("user_id", caller), zap.Error(err))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, key string) (*battleship.Game, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, battleship.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	var g battleship.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", battleship.ErrCorruptRecord, err)
	}
	if err := g.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("%w: %v", battleship.ErrCorruptRecord, err)
	}
	return &g, nil
}

// LoadGame returns the stored record by ID.
func (m *Manager) LoadGame(ctx context.Context, id string) (*battleship.Game, error) {
	if strings.TrimSpace(id) == "" {
		return nil, battleship.ErrGameNotFound
	}
	return load(ctx, m.rdb, gameKey(id))
}

// GamesByUser lists the games a player takes part in, most recently updated first.
// Expired records are dropped from the index on the way.
func (m *Manager) GamesByUser(ctx context.Context, userID string) ([]*battleship.Game, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, battleship.ErrInvalidCaller
	}
	key := idxUserKey(userID)
	ids, err := m.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	list := make([]*battleship.Game, 0, len(ids))
	for _, id := range ids {
		g, gerr := m.LoadGame(ctx, id)
		if errors.Is(gerr, battleship.ErrGameNotFound) {
			_ = m.rdb.SRem(ctx, key, id).Err()
			continue
		}
		if gerr != nil {
			m.log.Warn("bs_index_skip", zap.String("game_id", id), zap.Error(gerr))
			continue
		}
		list = append(list, g)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}

func (m *Manager) indexPlayer(ctx context.Context, pipe redis.Pipeliner, userID, gameID string) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	key := idxUserKey(userID)
	pipe.SAdd(ctx, key, gameID)
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
}

func gameKey(id string) string        { return "bs:game:" + strings.TrimSpace(id) }
func idxUserKey(userID string) string { return "bs:index:user:" + strings.TrimSpace(userID) }

// ParseRedisURL turns redis://[:pass@]host:port/db into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("redis db %q: %w", p, err)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

// persistIfFinal archives the game when a repository is attached.
func (m *Manager) persistIfFinal(ctx context.Context, g *battleship.Game, method string) error {
	if m == nil || m.repo == nil || g == nil || !g.GameOver {
		return nil
	}
	row := resultRow(g, method)
	if err := m.repo.SaveResult(ctx, row); err != nil {
		m.log.Error("bs_result_persist_error", zap.String("game_id", g.ID), zap.String("method", method), zap.Error(err))
		return err
	}
	m.log.Info("bs_result_persist", zap.String("game_id", g.ID), zap.String("method", method), zap.Bool("verified", row.Verified))
	return nil
}
