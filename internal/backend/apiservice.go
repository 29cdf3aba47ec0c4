package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jo-hoe/promptrank/internal/core"
	"github.com/jo-hoe/promptrank/internal/entry"
	"github.com/jo-hoe/promptrank/internal/lifecycle"
	"github.com/jo-hoe/promptrank/internal/rating"
)

type APIService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
		config:      config,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set probe route
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/api/entries", s.getEntriesHandler)
	e.GET("/api/entry/:id", s.getEntryHandler)
	e.DELETE("/api/entry/:id", s.deleteEntryHandler)
	e.POST("/api/entry/:id/toggle_broken", s.toggleBrokenHandler)
	e.POST("/api/entry/:id/status", s.setStatusHandler)
	e.GET("/api/ranking", s.rankingHandler)

	e.POST("/api/trueskill/next_pair", s.nextPairHandler)
	e.POST("/api/trueskill/update", s.updateHandler)

	// Serves /ws/generate/:id and /ws/upscale/:id
	e.GET("/ws/:operation/:id", s.jobStreamHandler)

	if s.config.Images.Dir != "" {
		e.Static("/images", s.config.Images.Dir)
	}
}

func (s *APIService) getEntriesHandler(ctx echo.Context) error {
	filter, err := parseEntryFilter(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entries, err := s.coreService.Entries(ctx.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, s.responses(entries))
}

func (s *APIService) getEntryHandler(ctx echo.Context) error {
	e, err := s.coreService.Entry(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, s.response(e))
}

func (s *APIService) deleteEntryHandler(ctx echo.Context) error {
	e, err := s.coreService.Delete(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, s.response(e))
}

func (s *APIService) toggleBrokenHandler(ctx echo.Context) error {
	e, err := s.coreService.ToggleBroken(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, s.response(e))
}

func (s *APIService) setStatusHandler(ctx echo.Context) error {
	var req StatusRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}
	status, err := entry.ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	e, err := s.coreService.SetStatus(ctx.Request().Context(), ctx.Param("id"), status)
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, s.response(e))
}

func (s *APIService) rankingHandler(ctx echo.Context) error {
	entries, err := s.coreService.Ranking(ctx.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, s.responses(entries))
}

func (s *APIService) nextPairHandler(ctx echo.Context) error {
	var req PairRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, b, err := s.coreService.SelectPair(ctx.Request().Context(), req.IDs)
	if errors.Is(err, rating.ErrInsufficientCandidates) {
		return ctx.JSON(http.StatusOK, PairResponse{})
	}
	if err != nil {
		return httpError(err)
	}
	ra, rb := s.response(a), s.response(b)
	return ctx.JSON(http.StatusOK, PairResponse{A: &ra, B: &rb})
}

func (s *APIService) updateHandler(ctx echo.Context) error {
	var req UpdateRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, rating.ErrInvalidOutcome.Error())
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}

	aID, bID, outcome, err := req.outcome()
	if err != nil {
		return httpError(err)
	}
	a, b, err := s.coreService.Update(ctx.Request().Context(), aID, bID, outcome)
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, []EntryResponse{s.response(a), s.response(b)})
}

func (r UpdateRequest) outcome() (string, string, rating.Outcome, error) {
	decisive := r.Winner != "" || r.Loser != ""
	switch {
	case len(r.Draw) == 2 && !decisive:
		return r.Draw[0], r.Draw[1], rating.Draw, nil
	case len(r.Draw) == 0 && r.Winner != "" && r.Loser != "":
		return r.Winner, r.Loser, rating.AWins, nil
	default:
		return "", "", 0, rating.ErrInvalidOutcome
	}
}

// jobStreamHandler runs the operation in the path on the entry in the path and streams
// its progress over a WebSocket. The job is cancelled when the client goes away.
func (s *APIService) jobStreamHandler(ctx echo.Context) error {
	op, err := lifecycle.ParseOperation(ctx.Param("operation"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	ws, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		slog.Error("jobStreamHandler: failed to upgrade the websocket", "error", err)
		return nil
	}
	defer func() {
		_ = ws.Close()
	}()

	id := ctx.Param("id")
	jobCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	stream := &jobStream{ws: ws}
	slog.Info("jobStreamHandler: job started", "id", id, "operation", op)
	result, err := s.coreService.Generate(jobCtx, id, op, func(message string) {
		stream.send(StreamMessage{Type: streamProgress, Message: message})
	})
	if err != nil {
		slog.Warn("jobStreamHandler: job failed", "id", id, "operation", op, "error", err)
		stream.send(StreamMessage{Type: streamError, Message: err.Error()})
		return nil
	}
	data := s.response(result)
	stream.send(StreamMessage{Type: streamResult, Data: &data})
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

// jobStream serialises writes to one socket.
type jobStream struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (j *jobStream) send(v StreamMessage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.ws.WriteJSON(v); err != nil {
		slog.Warn("jobStream: failed to write websocket message", "error", err)
	}
}

func (s *APIService) response(e entry.Entry) EntryResponse {
	return toEntryResponse(e, s.config.Images.BaseURL)
}

func (s *APIService) responses(entries []entry.Entry) []EntryResponse {
	return toEntryResponses(entries, s.config.Images.BaseURL)
}

// httpError maps domain errors to HTTP statuses.
func httpError(err error) error {
	switch {
	case errors.Is(err, core.ErrUnknownEntry):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrPrecondition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, rating.ErrInvalidOutcome):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, rating.ErrInvalidBelief):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("request failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
