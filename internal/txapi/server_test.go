package txapi

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/sealed-battleship/internal/battleship"
	"github.com/park285/sealed-battleship/internal/msgcat"
	"github.com/park285/sealed-battleship/internal/pvpbattle"
	"github.com/park285/sealed-battleship/internal/rulebook"
	"github.com/park285/sealed-battleship/pkg/battledto"
)

var fleetCells = []int{0, 1, 2, 3, 4, 10, 11, 12, 13, 20, 21, 22, 30, 31, 32, 40, 41}

type harness struct {
	t      *testing.T
	client *fasthttp.Client
	lang   string
}

func newHarness(t *testing.T, opts ...pvpbattle.Option) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	m, err := pvpbattle.NewManager(fmt.Sprintf("redis://%s/0", mr.Addr()), opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}

	srv := New(m, Config{Book: rulebook.Standard(), Catalog: cat})
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	return &harness{t: t, client: &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}}
}

// do sends a request and decodes the JSON answer into out when non-nil.
func (h *harness) do(method, path, player string, body any, out any) int {
	h.t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://node" + path)
	req.Header.SetMethod(method)
	if player != "" {
		req.Header.Set(battledto.PlayerHeader, player)
	}
	if h.lang != "" {
		req.Header.Set("Accept-Language", h.lang)
	}
	if body != nil {
		raw, _ := json.Marshal(body)
		req.Header.SetContentType("application/json")
		req.SetBody(raw)
	}
	if err := h.client.Do(req, resp); err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			h.t.Fatalf("%s %s: decode %q: %v", method, path, resp.Body(), err)
		}
	}
	return resp.StatusCode()
}

func (h *harness) expectError(method, path, player string, body any, status int, code string) battledto.ErrorResponse {
	h.t.Helper()
	var e battledto.ErrorResponse
	if got := h.do(method, path, player, body, &e); got != status || e.Code != code {
		h.t.Fatalf("%s %s: got %d %q, want %d %q", method, path, got, e.Code, status, code)
	}
	return e
}

type secret struct {
	board battleship.Board
	salt  []byte
	c     battleship.Commitment
}

func newSecret(fill byte) secret {
	b := battleship.BoardFromCells(100, fleetCells...)
	salt := make([]byte, battleship.SaltSize)
	for i := range salt {
		salt[i] = fill
	}
	return secret{board: b, salt: salt, c: battleship.ComputeCommitment(b, salt)}
}

func TestGameOverHTTP(t *testing.T) {
	h := newHarness(t)
	a, b := newSecret(0xaa), newSecret(0xbb)

	var v battledto.GameView
	if st := h.do("POST", "/games", "alice", battledto.InitializeRequest{GameID: "g1", Commitment: a.c.String()}, &v); st != 201 {
		t.Fatalf("create status %d", st)
	}
	if v.Phase != "WAITING" || v.PlayerA != "alice" {
		t.Fatalf("unexpected view %+v", v)
	}
	if st := h.do("POST", "/games/g1/join", "bob", battledto.JoinRequest{Commitment: "0x" + b.c.String()}, &v); st != 200 || v.Phase != "ACTIVE" {
		t.Fatalf("join: %d %s", st, v.Phase)
	}

	for i, cell := range fleetCells {
		h.do("POST", "/games/g1/fire", "alice", battledto.NewFireRequest(cell%10, cell/10), &v)
		if v.Phase != "AWAITING_REVEAL" {
			t.Fatalf("after fire %d: phase %s", cell, v.Phase)
		}
		var rr battledto.RevealShotResponse
		if st := h.do("POST", "/games/g1/reveal-shot", "bob", battledto.NewRevealShotRequest(true), &rr); st != 200 || !rr.Shot.Hit {
			t.Fatalf("reveal %d: %d %+v", cell, st, rr.Shot)
		}
		if i == len(fleetCells)-1 {
			v = rr.Game
			break
		}
		miss := 60 + i
		h.do("POST", "/games/g1/fire", "bob", battledto.NewFireRequest(miss%10, miss/10), nil)
		h.do("POST", "/games/g1/reveal-shot", "alice", battledto.NewRevealShotRequest(false), nil)
	}
	if v.Phase != "GAME_OVER" || v.WinnerID != "alice" || v.HitCountB != 17 {
		t.Fatalf("unexpected final view %+v", v)
	}

	var audit battledto.Audit
	h.do("GET", "/games/g1/audit", "", nil, &audit)
	if audit.Verified || audit.WinnerID != "alice" {
		t.Fatalf("audit before reveal %+v", audit)
	}

	h.expectError("POST", "/games/g1/reveal-board/a", "alice",
		battledto.RevealBoardRequest{Board: a.board.String(), Salt: hex.EncodeToString(b.salt)},
		422, "CommitmentMismatch")
	h.do("POST", "/games/g1/reveal-board/a", "alice", battledto.RevealBoardRequest{Board: a.board.String(), Salt: hex.EncodeToString(a.salt)}, &v)
	h.do("POST", "/games/g1/reveal-board/b", "bob", battledto.RevealBoardRequest{Board: b.board.String(), Salt: hex.EncodeToString(b.salt)}, &v)
	if v.Phase != "VERIFIED" {
		t.Fatalf("phase after reveals %s", v.Phase)
	}
	h.do("GET", "/games/g1/audit", "", nil, &audit)
	if !audit.Verified || audit.BoardB != b.board.String() || audit.ShotCount != 33 {
		t.Fatalf("final audit %+v", audit)
	}

	var list battledto.GameList
	h.do("GET", "/players/bob/games", "", nil, &list)
	if len(list.Games) != 1 || list.Games[0].ID != "g1" {
		t.Fatalf("games list %+v", list)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	a := newSecret(1)

	h.expectError("POST", "/games", "", battledto.InitializeRequest{Commitment: a.c.String()}, 401, "InvalidCaller")
	h.expectError("POST", "/games", "alice", battledto.InitializeRequest{Commitment: "beef"}, 400, "InvalidCommitment")
	h.expectError("POST", "/games", "alice", map[string]any{"commitment": a.c.String(), "extra": 1}, 400, "BadRequest")

	var v battledto.GameView
	h.do("POST", "/games", "alice", battledto.InitializeRequest{GameID: "e1", Commitment: a.c.String()}, &v)
	h.expectError("POST", "/games", "carol", battledto.InitializeRequest{GameID: "e1", Commitment: a.c.String()}, 409, "AlreadyExists")
	h.expectError("POST", "/games/e1/fire", "alice", battledto.NewFireRequest(1, 1), 409, "NotInitialized")
	h.expectError("POST", "/games/e1/join", "alice", battledto.JoinRequest{Commitment: a.c.String()}, 403, "SelfJoin")
	h.do("POST", "/games/e1/join", "bob", battledto.JoinRequest{Commitment: a.c.String()}, nil)

	e := h.expectError("POST", "/games/e1/fire", "bob", battledto.NewFireRequest(1, 1), 403, "NotYourTurn")
	if !e.Retryable || e.Kind != "authorization_violation" || e.Hint == "" {
		t.Fatalf("unexpected error body %+v", e)
	}
	e = h.expectError("POST", "/games/e1/fire", "alice", battledto.NewFireRequest(10, 0), 400, "InvalidCoordinate")
	if e.Hint != "Coordinates run from 0 to 9 on both axes." {
		t.Fatalf("hint = %q", e.Hint)
	}
	h.expectError("POST", "/games/e1/reveal-board/a", "alice", battledto.RevealBoardRequest{Board: a.board.String(), Salt: hex.EncodeToString(a.salt)}, 409, "GameNotOver")
	h.expectError("POST", "/games/e1/reveal-board/a", "alice", battledto.RevealBoardRequest{Board: "01", Salt: hex.EncodeToString(a.salt)}, 409, "GameNotOver")
	h.expectError("POST", "/games/e1/reveal-board/a", "alice", battledto.RevealBoardRequest{Board: "0x1", Salt: hex.EncodeToString(a.salt)}, 400, "InvalidBoard")
	h.expectError("GET", "/games/e1/audit", "", nil, 409, "GameNotOver")
	h.expectError("GET", "/games/missing", "", nil, 404, "GameNotFound")
	h.expectError("GET", "/nowhere", "", nil, 404, "NotFound")
	h.expectError("DELETE", "/games/e1", "", nil, 405, "MethodNotAllowed")
	h.expectError("GET", "/games/e1/join", "", nil, 405, "MethodNotAllowed")
	h.expectError("POST", "/games/e1/reveal-board/c", "alice", battledto.RevealBoardRequest{}, 404, "NotFound")
	h.expectError("GET", "/games/e1/reveal-board/a", "alice", nil, 405, "MethodNotAllowed")
}

func TestMissingFieldsWriteNothing(t *testing.T) {
	h := newHarness(t)
	a, b := newSecret(1), newSecret(2)
	h.do("POST", "/games", "alice", battledto.InitializeRequest{GameID: "m1", Commitment: a.c.String()}, nil)
	h.do("POST", "/games/m1/join", "bob", battledto.JoinRequest{Commitment: b.c.String()}, nil)

	for _, body := range []any{map[string]any{}, map[string]any{"x": 3}, map[string]any{"y": 3}} {
		e := h.expectError("POST", "/games/m1/fire", "alice", body, 400, "MissingField")
		if e.Kind != "input_violation" || e.Hint == "" {
			t.Fatalf("missing coordinate error %+v", e)
		}
	}
	var v battledto.GameView
	h.do("GET", "/games/m1", "", nil, &v)
	if v.PendingShot != nil || v.Phase != "ACTIVE" {
		t.Fatalf("fire without coordinates changed the game: %+v", v)
	}

	h.do("POST", "/games/m1/fire", "alice", battledto.NewFireRequest(0, 0), nil)
	e := h.expectError("POST", "/games/m1/reveal-shot", "bob", map[string]any{}, 400, "MissingField")
	if e.Hint != "The request body must set hit." {
		t.Fatalf("hint = %q", e.Hint)
	}
	h.do("GET", "/games/m1", "", nil, &v)
	if v.PendingShot == nil || v.HitsB[0] != '.' || len(v.Shots) != 0 {
		t.Fatalf("answer without hit resolved the shot: %+v", v)
	}
}

func TestGameIDMustBeRoutable(t *testing.T) {
	h := newHarness(t)
	a := newSecret(1)
	for _, id := range []string{"x/y", "has space", "a?b", strings.Repeat("z", 65)} {
		h.expectError("POST", "/games", "alice", battledto.InitializeRequest{GameID: id, Commitment: a.c.String()}, 400, "InvalidGameID")
	}
	var list battledto.GameList
	h.do("GET", "/players/alice/games", "", nil, &list)
	if len(list.Games) != 0 {
		t.Fatalf("rejected ids were stored: %+v", list.Games)
	}
	if st := h.do("POST", "/games", "alice", battledto.InitializeRequest{GameID: "Round_2-b", Commitment: a.c.String()}, nil); st != 201 {
		t.Fatalf("valid id rejected with %d", st)
	}
}

func TestHintsUseTheGameRules(t *testing.T) {
	// the node now advertises the standard board, but s1 was opened on 6x6
	h := newHarness(t, pvpbattle.WithRules(battleship.Rules{BoardSize: 6, Fleet: []int{4, 3}}))
	var c battleship.Commitment
	h.do("POST", "/games", "alice", battledto.InitializeRequest{GameID: "s1", Commitment: c.String()}, nil)
	h.do("POST", "/games/s1/join", "bob", battledto.JoinRequest{Commitment: c.String()}, nil)

	e := h.expectError("POST", "/games/s1/fire", "alice", battledto.NewFireRequest(6, 0), 400, "InvalidCoordinate")
	if e.Hint != "Coordinates run from 0 to 5 on both axes." {
		t.Fatalf("hint = %q", e.Hint)
	}
	e = h.expectError("POST", "/games/s1/reveal-board/a", "alice", battledto.RevealBoardRequest{Board: "01x"}, 400, "InvalidBoard")
	if e.Hint != "Send the board as 36 characters of 0 and 1." {
		t.Fatalf("hint = %q", e.Hint)
	}
	e = h.expectError("POST", "/games/nope/reveal-board/a", "alice", battledto.RevealBoardRequest{Board: "01x"}, 400, "InvalidBoard")
	if e.Hint != "Send the board as 100 characters of 0 and 1." {
		t.Fatalf("fallback hint = %q", e.Hint)
	}
}

func TestRulesAndHealth(t *testing.T) {
	h := newHarness(t)
	var r battledto.RulesView
	if st := h.do("GET", "/rules", "", nil, &r); st != 200 {
		t.Fatalf("rules status %d", st)
	}
	if r.BoardSize != 10 || r.ShipSquares != 17 || r.Ships[0].Name != "carrier" {
		t.Fatalf("rules %+v", r)
	}
	var hc battledto.Health
	if st := h.do("GET", "/healthz", "", nil, &hc); st != 200 || hc.Status != "ok" {
		t.Fatalf("health %d %+v", st, hc)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{battleship.ErrGameFull, 409},
		{battleship.ErrShotAlreadyPending, 409},
		{battleship.ErrNotDefender, 403},
		{battleship.ErrInvalidSalt, 400},
		{battleship.ErrInconsistentReveal, 422},
		{fmt.Errorf("load: %w", battleship.ErrCorruptRecord), 500},
		{fmt.Errorf("redis: connection refused"), 500},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHintFollowsAcceptLanguage(t *testing.T) {
	h := newHarness(t)
	h.lang = "ko-KR,ko;q=0.9"
	e := h.expectError("GET", "/games/k1", "", nil, 404, "GameNotFound")
	if e.Hint != "게임 k1을(를) 찾을 수 없습니다. 만료되었을 수 있습니다." {
		t.Fatalf("ko hint = %q", e.Hint)
	}
	if e.Message != "game not found" {
		t.Fatalf("message must stay untranslated: %q", e.Message)
	}
	h.lang = "de"
	e = h.expectError("GET", "/games/k1", "", nil, 404, "GameNotFound")
	if e.Hint != "No game k1 is stored here. It may have expired." {
		t.Fatalf("fallback hint = %q", e.Hint)
	}
}
