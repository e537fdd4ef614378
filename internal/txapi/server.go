// Package txapi exposes the game operations as a JSON API. Routing is a chi
// router served by fasthttp through fasthttpadaptor.
package txapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/park285/sealed-battleship/internal/battleship"
	"github.com/park285/sealed-battleship/internal/msgcat"
	"github.com/park285/sealed-battleship/internal/rulebook"
	"github.com/park285/sealed-battleship/pkg/battledto"
)

// Games is the host the API drives. *pvpbattle.Manager implements it.
type Games interface {
	InitializeGame(ctx context.Context, gameID, caller string, c battleship.Commitment) (*battleship.Game, error)
	JoinGame(ctx context.Context, gameID, caller string, c battleship.Commitment) (*battleship.Game, error)
	FireShot(ctx context.Context, gameID, caller string, x, y int) (*battleship.Game, error)
	RevealShotResult(ctx context.Context, gameID, caller string, hit bool) (*battleship.Game, battleship.ShotRecord, error)
	RevealBoardPlayerA(ctx context.Context, gameID, caller string, board battleship.Board, salt []byte) (*battleship.Game, error)
	RevealBoardPlayerB(ctx context.Context, gameID, caller string, board battleship.Board, salt []byte) (*battleship.Game, error)
	LoadGame(ctx context.Context, id string) (*battleship.Game, error)
	GamesByUser(ctx context.Context, userID string) ([]*battleship.Game, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Book           rulebook.Book
	Catalog        *msgcat.Catalog
	Logger         *zap.Logger
	MaxBodyBytes   int
	RequestTimeout time.Duration
}

type Server struct {
	games   Games
	book    rulebook.Book
	cat     *msgcat.Catalog
	log     *zap.Logger
	timeout time.Duration
	router  chi.Router
	srv     *fasthttp.Server
}

func New(games Games, cfg Config) *Server {
	s := &Server{
		games:   games,
		book:    cfg.Book,
		cat:     cfg.Catalog,
		log:     cfg.Logger,
		timeout: cfg.RequestTimeout,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.book.BoardSize == 0 {
		s.book = rulebook.Standard()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 * 1024
	}
	s.router = s.routes()
	s.srv = &fasthttp.Server{
		Handler:            fasthttpadaptor.NewFastHTTPHandler(s.router),
		Name:               "battleship-node",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxRequestBodySize: maxBody,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.recoverer)
	r.Use(s.accessLog)
	r.Use(s.deadline)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, battledto.ErrorResponse{Code: "NotFound", Message: "no such endpoint: " + r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, battledto.ErrorResponse{Code: "MethodNotAllowed", Message: "method not allowed"})
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/rules", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, rulesOf(s.book))
	})
	r.Post("/games", s.handleInitialize)
	r.Get("/games/{id}", s.handleGet)
	r.Get("/games/{id}/audit", s.handleAudit)
	r.Post("/games/{id}/join", s.handleJoin)
	r.Post("/games/{id}/fire", s.handleFire)
	r.Post("/games/{id}/reveal-shot", s.handleRevealShot)
	r.Route("/games/{id}/reveal-board", func(r chi.Router) {
		r.Post("/a", s.revealBoard(battleship.PlayerA))
		r.Post("/b", s.revealBoard(battleship.PlayerB))
	})
	r.Get("/players/{id}/games", s.handleListGames)
	return r
}

// Handler is the chi router, for net/http hosting and tests.
func (s *Server) Handler() http.Handler { return s.router }

// Handle serves one fasthttp request through the router.
func (s *Server) Handle(rc *fasthttp.RequestCtx) { s.srv.Handler(rc) }

func (s *Server) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("txapi_panic", zap.Any("panic", p), zap.String("path", r.URL.Path))
				s.writeError(w, r, fmt.Errorf("panic: %v", p), errData{})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("txapi_request",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) deadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.games.Ping(r.Context()); err != nil {
		s.log.Warn("txapi_health", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, battledto.Health{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, battledto.Health{Status: "ok"})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req battledto.InitializeRequest
	if !s.decode(w, r, &req) {
		return
	}
	data := errData{GameID: req.GameID, Caller: caller}
	c, err := battleship.ParseCommitment(req.Commitment)
	if err != nil {
		s.writeError(w, r, err, data)
		return
	}
	g, err := s.games.InitializeGame(ctx, req.GameID, caller, c)
	if err != nil {
		s.writeError(w, r, err, data)
		return
	}
	writeJSON(w, http.StatusCreated, ViewOf(g))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, id := r.Context(), chi.URLParam(r, "id")
	g, err := s.games.LoadGame(ctx, id)
	if err != nil {
		s.writeError(w, r, err, errData{GameID: id})
		return
	}
	writeJSON(w, http.StatusOK, ViewOf(g))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx, id := r.Context(), chi.URLParam(r, "id")
	g, err := s.games.LoadGame(ctx, id)
	if err != nil {
		s.writeError(w, r, err, errData{GameID: id})
		return
	}
	if !g.GameOver {
		s.writeError(w, r, battleship.ErrGameNotOver, errData{GameID: id})
		return
	}
	writeJSON(w, http.StatusOK, auditOf(g.Audit()))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	ctx, id := r.Context(), chi.URLParam(r, "id")
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req battledto.JoinRequest
	if !s.decode(w, r, &req) {
		return
	}
	data := errData{GameID: id, Caller: caller}
	c, err := battleship.ParseCommitment(req.Commitment)
	if err != nil {
		s.writeError(w, r, err, data)
		return
	}
	g, err := s.games.JoinGame(ctx, id, caller, c)
	if err != nil {
		s.writeError(w, r, err, data)
		return
	}
	writeJSON(w, http.StatusOK, ViewOf(g))
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	ctx, id := r.Context(), chi.URLParam(r, "id")
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req battledto.FireRequest
	if !s.decode(w, r, &req) {
		return
	}
	data := errData{GameID: id, Caller: caller}
	switch {
	case req.X == nil:
		data.Field = "x"
	case req.Y == nil:
		data.Field = "y"
	}
	if data.Field != "" {
		s.writeError(w, r, battleship.ErrMissingField, data)
		return
	}
	g, err := s.games.FireShot(ctx, id, caller, *req.X, *req.Y)
	if err != nil {
		s.writeError(w, r, err, data)
		return
	}
	writeJSON(w, http.StatusOK, ViewOf(g))
}

func (s *Server) handleRevealShot(w http.ResponseWriter, r *http.Request) {
	ctx, id := r.Context(), chi.URLParam(r, "id")
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req battledto.RevealShotRequest
	if !s.decode(w, r, &req) {
		return
	}
	data := errData{GameID: id, Caller: caller}
	if req.Hit == nil {
		data.Field = "hit"
		s.writeError(w, r, battleship.ErrMissingField, data)
		return
	}
	g, rec, err := s.games.RevealShotResult(ctx, id, caller, *req.Hit)
	if err != nil {
		s.writeError(w, r, err, data)
		return
	}
	writeJSON(w, http.StatusOK, battledto.RevealShotResponse{Game: ViewOf(g), Shot: shotOf(rec)})
}

func (s *Server) revealBoard(slot battleship.Player) http.HandlerFunc {
	reveal := s.games.RevealBoardPlayerA
	if slot == battleship.PlayerB {
		reveal = s.games.RevealBoardPlayerB
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, id := r.Context(), chi.URLParam(r, "id")
		caller, ok := s.caller(w, r)
		if !ok {
			return
		}
		var req battledto.RevealBoardRequest
		if !s.decode(w, r, &req) {
			return
		}
		data := errData{GameID: id, Caller: caller}
		board, err := battleship.ParseBoard(strings.TrimSpace(req.Board))
		if err != nil {
			s.writeError(w, r, err, data)
			return
		}
		salt, err := battleship.ParseSalt(req.Salt)
		if err != nil {
			s.writeError(w, r, err, data)
			return
		}
		g, err := reveal(ctx, id, caller, board, salt)
		if err != nil {
			s.writeError(w, r, err, data)
			return
		}
		writeJSON(w, http.StatusOK, ViewOf(g))
	}
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	ctx, player := r.Context(), chi.URLParam(r, "id")
	list, err := s.games.GamesByUser(ctx, player)
	if err != nil {
		s.writeError(w, r, err, errData{Caller: player})
		return
	}
	out := battledto.GameList{Player: player, Games: make([]battledto.GameView, 0, len(list))}
	for _, g := range list {
		out.Games = append(out.Games, ViewOf(g))
	}
	writeJSON(w, http.StatusOK, out)
}

// caller reads the identity header, answering 401 when it is absent.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(battledto.PlayerHeader))
	if id == "" {
		s.writeError(w, r, battleship.ErrInvalidCaller, errData{})
		return "", false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, battledto.ErrorResponse{
			Code:    "BadRequest",
			Kind:    string(battleship.KindInput),
			Message: "malformed request body: " + err.Error(),
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	raw, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"Internal","message":"encode response"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
