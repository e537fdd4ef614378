// Package eventfeed streams committed game transitions to websocket observers.
package eventfeed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/sealed-battleship/internal/msgcat"
	"github.com/park285/sealed-battleship/internal/pvpbattle"
	"github.com/park285/sealed-battleship/pkg/battledto"
)

// Source hands out event subscriptions. *pvpbattle.Manager implements it.
type Source interface {
	Subscribe(ctx context.Context, gameID string) (*pvpbattle.Subscription, error)
}

type Config struct {
	OriginPatterns []string
	Catalog        *msgcat.Catalog
	Logger         *zap.Logger
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

type Server struct {
	src    Source
	cfg    Config
	log    *zap.Logger
	router chi.Router
	http   *http.Server
}

func New(src Source, cfg Config) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	s := &Server{src: src, cfg: cfg, log: cfg.Logger}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		s.stream(w, r, r.URL.Query().Get("game"))
	})
	r.Get("/events/{gameID}", func(w http.ResponseWriter, r *http.Request) {
		s.stream(w, r, chi.URLParam(r, "gameID"))
	})
	s.router = r
	s.http = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error { return s.http.Shutdown(ctx) }

// stream subscribes first so a Redis failure can still be answered with a
// plain HTTP error, then upgrades and forwards events until either side leaves.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, gameID string) {
	gameID = strings.TrimSpace(gameID)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.src.Subscribe(ctx, gameID)
	if err != nil {
		s.log.Error("feed_subscribe", zap.String("game_id", gameID), zap.Error(err))
		http.Error(w, `{"code":"Unavailable","message":"event source unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.cfg.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.log.Warn("feed_accept", zap.Error(err))
		return
	}
	defer c.Close(websocket.StatusInternalError, "feed closed")

	// browsers cannot set headers on a websocket handshake, so ?lang= wins
	locale := s.cfg.Catalog.Match(r.Header.Get("Accept-Language"))
	if q := r.URL.Query().Get("lang"); q != "" {
		locale = s.cfg.Catalog.Match(q)
	}
	s.log.Info("feed_open", zap.String("game_id", gameID), zap.String("remote", r.RemoteAddr), zap.String("locale", locale))
	// observers only listen; reading is left to CloseRead
	ctx = c.CloseRead(ctx)

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("feed_close", zap.String("game_id", gameID))
			return
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := c.Ping(pctx)
			pcancel()
			if err != nil {
				s.log.Info("feed_ping_failed", zap.String("game_id", gameID), zap.Error(err))
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				c.Close(websocket.StatusGoingAway, "subscription ended")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := wsjson.Write(wctx, c, s.toDTO(ev, locale))
			wcancel()
			if err != nil {
				s.log.Info("feed_write_failed", zap.String("game_id", gameID), zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) toDTO(ev pvpbattle.Event, locale string) battledto.Event {
	data := make(map[string]string, len(ev.Attributes)+1)
	for k, v := range ev.Attributes {
		data[k] = v
	}
	data["GameID"] = ev.GameID
	return battledto.Event{
		Type:       string(ev.Type),
		GameID:     ev.GameID,
		Phase:      string(ev.Phase),
		Attributes: ev.Attributes,
		At:         ev.At,
		Text:       s.cfg.Catalog.RenderLocaleOr(locale, "events."+string(ev.Type), data, ""),
	}
}
