// Package bsclient talks to a battleship node: the JSON transaction API over
// fasthttp and the websocket event feed.
package bsclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/sealed-battleship/internal/battleship"
	"github.com/park285/sealed-battleship/pkg/battledto"
)

type Client struct {
	baseURL string
	http    *fasthttp.Client
	player  string

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

// WithRetry sets how often reads are attempted. Writes are never retried:
// a lost response does not tell whether the transition committed.
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the dialer, for in-memory listeners in tests.
func WithDial(d fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = d }
}

// WithPlayer sets the identity sent with every request.
func WithPlayer(id string) Option {
	return func(c *Client) { c.player = strings.TrimSpace(id) }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Player returns the identity this client acts as.
func (c *Client) Player() string { return c.player }

func (c *Client) Rules(ctx context.Context) (*battledto.RulesView, error) {
	var out battledto.RulesView
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/rules", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) error {
	var out battledto.Health
	return c.doJSON(ctx, fasthttp.MethodGet, "/healthz", nil, &out, true)
}

// CreateGame opens a game. An empty gameID lets the node pick one.
func (c *Client) CreateGame(ctx context.Context, gameID string, commitment battleship.Commitment) (*battledto.GameView, error) {
	req := battledto.InitializeRequest{GameID: gameID, Commitment: commitment.String()}
	var out battledto.GameView
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/games", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Join(ctx context.Context, gameID string, commitment battleship.Commitment) (*battledto.GameView, error) {
	var out battledto.GameView
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, "join"), battledto.JoinRequest{Commitment: commitment.String()}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Fire(ctx context.Context, gameID string, x, y int) (*battledto.GameView, error) {
	var out battledto.GameView
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, "fire"), battledto.NewFireRequest(x, y), &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RevealShot(ctx context.Context, gameID string, hit bool) (*battledto.RevealShotResponse, error) {
	var out battledto.RevealShotResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, "reveal-shot"), battledto.NewRevealShotRequest(hit), &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevealBoard opens the commitment of slot "a" or "b".
func (c *Client) RevealBoard(ctx context.Context, gameID, slot string, board battleship.Board, salt []byte) (*battledto.GameView, error) {
	slot = strings.ToLower(strings.TrimSpace(slot))
	if slot != "a" && slot != "b" {
		return nil, fmt.Errorf("slot must be a or b, got %q", slot)
	}
	req := battledto.RevealBoardRequest{Board: board.String(), Salt: hex.EncodeToString(salt)}
	var out battledto.GameView
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(gameID, "reveal-board/"+slot), req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Game(ctx context.Context, gameID string) (*battledto.GameView, error) {
	var out battledto.GameView
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(gameID, ""), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Audit(ctx context.Context, gameID string) (*battledto.Audit, error) {
	var out battledto.Audit
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(gameID, "audit"), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GamesOf(ctx context.Context, player string) (*battledto.GameList, error) {
	var out battledto.GameList
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/players/"+url.PathEscape(player)+"/games", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func gamePath(id, action string) string {
	p := "/games/" + url.PathEscape(strings.TrimSpace(id))
	if action != "" {
		p += "/" + action
	}
	return p
}

// ProtocolError maps an API failure back to the engine's sentinel, so
// callers can use errors.Is against battleship.Err* values.
func ProtocolError(err error) (*battleship.Error, bool) {
	var de battledto.DomainError
	if !errors.As(err, &de) {
		return nil, false
	}
	return battleship.ErrorByCode(de.Code)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.player != "" {
		req.Header.Set(battledto.PlayerHeader, c.player)
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = decodeError(status, resp.Body())
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func decodeError(status int, body []byte) error {
	de := battledto.DomainError{Status: status}
	if err := json.Unmarshal(body, &de.ErrorResponse); err != nil || de.Code == "" {
		de.Code = "HTTP"
		de.Message = fmt.Sprintf("node error: status=%d body=%s", status, truncate(string(body), 512))
	}
	return de
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
