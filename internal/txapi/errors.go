package txapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/sealed-battleship/internal/battleship"
	"github.com/park285/sealed-battleship/pkg/battledto"
)

// errData feeds the hint templates.
type errData struct {
	GameID string
	Caller string
	Field  string
}

// these hints quote board dimensions, which belong to the game's own rules
var rulesHints = map[string]bool{
	battleship.ErrInvalidCoordinate.Code:         true,
	battleship.ErrInvalidBoard.Code:              true,
	battleship.ErrInvalidFleetConfiguration.Code: true,
}

// StatusFor maps a protocol error to its HTTP status.
func StatusFor(err error) int {
	pe, ok := battleship.AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch {
	case errors.Is(pe, battleship.ErrInvalidCaller):
		return http.StatusUnauthorized
	case errors.Is(pe, battleship.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(pe, battleship.ErrCorruptRecord):
		return http.StatusInternalServerError
	}
	switch pe.Kind {
	case battleship.KindInput:
		return http.StatusBadRequest
	case battleship.KindAuthorization:
		return http.StatusForbidden
	case battleship.KindState, battleship.KindCapacity:
		return http.StatusConflict
	case battleship.KindIntegrity:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError answers with the error body. The hint follows the request's
// Accept-Language when the catalog has that locale.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, d errData) {
	status := StatusFor(err)
	body := battledto.ErrorResponse{Code: "Internal", Message: "internal error"}
	if pe, ok := battleship.AsError(err); ok {
		body = battledto.ErrorResponse{
			Code:      pe.Code,
			Kind:      string(pe.Kind),
			Message:   pe.Message,
			Retryable: pe.Retryable(),
		}
	}
	if key := "errors." + body.Code; s.cat.Has(key) {
		locale := s.cat.Match(r.Header.Get("Accept-Language"))
		body.Hint = s.cat.RenderLocaleOr(locale, key, s.hintData(r.Context(), body.Code, d), "")
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("txapi_error", zap.String("game_id", d.GameID), zap.String("code", body.Code), zap.Error(err))
	}
	writeJSON(w, status, body)
}

// hintData uses the rules stored in the game when the hint depends on them,
// falling back to the node's rulebook for games that do not exist.
func (s *Server) hintData(ctx context.Context, code string, d errData) map[string]any {
	r := s.book.Rules()
	if rulesHints[code] && d.GameID != "" {
		if g, err := s.games.LoadGame(ctx, d.GameID); err == nil {
			r = g.Rules
		}
	}
	return map[string]any{
		"GameID":   d.GameID,
		"Caller":   d.Caller,
		"Field":    d.Field,
		"MaxCoord": r.BoardSize - 1,
		"Cells":    r.Cells(),
		"Fleet":    fmt.Sprint(r.Fleet),
	}
}
