// Package api exposes the counters, rankings and predictions over HTTP and
// streams live counter snapshots to browsers.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/eventbus"
	"github.com/toky-team/toky-back-sub001/lock"
	"github.com/toky-team/toky-back-sub001/pagination"
	"github.com/toky-team/toky-back-sub001/prediction"
	"github.com/toky-team/toky-back-sub001/pubsub"
	"github.com/toky-team/toky-back-sub001/storage"
)

const maxBodySize = 64 << 10

var kst = time.FixedZone("KST", 9*60*60)

type CounterService interface {
	UpdateScore(ctx context.Context, sport domain.Sport, ku, yu int, status domain.MatchStatus) (domain.ScoreSnapshot, error)
	AddLike(ctx context.Context, sport domain.Sport, univ domain.University, count int, userID string) (domain.LikeSnapshot, error)
	AddCheer(ctx context.Context, sport domain.Sport, univ domain.University, userID string) (domain.CheerSnapshot, error)
}

type RankingReader interface {
	ListRanking(ctx context.Context, req pagination.Request) (pagination.Page[storage.RankEntry], error)
}

type PredictionService interface {
	CreateMatch(ctx context.Context, sport domain.Sport) (*domain.Match, error)
	PlaceBet(ctx context.Context, matchID, userID string, predicted domain.Outcome) (*domain.BetAnswer, error)
	ShareBet(ctx context.Context, matchID, userID string) error
	SetMatchResult(ctx context.Context, matchID string, res domain.MatchResult) (*domain.Match, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, ev domain.Event) error
}

type Deps struct {
	Counters    CounterService
	Rankings    RankingReader
	Predictions PredictionService
	Events      EventEmitter
	Gateway     *Gateway
	Logger      *log.Logger
	PageSize    int
	MaxPageSize int
	// Health reports backend reachability for /healthz. Nil means always healthy.
	Health func(ctx context.Context) error
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.PageSize <= 0 {
		d.PageSize = 20
	}
	if d.MaxPageSize <= 0 {
		d.MaxPageSize = 100
	}
	e.GET("/healthz", healthz(d.Health))
	e.GET("/api/rankings", getRankings(d.Rankings, d.PageSize, d.MaxPageSize, d.Logger))
	e.POST("/api/scores", postScore(d.Counters))
	e.POST("/api/likes", postLike(d.Counters))
	e.POST("/api/cheers", postCheer(d.Counters))
	e.POST("/api/users", postUser(d.Events, d.Logger))
	e.POST("/api/attendance", postAttendance(d.Events, d.Logger))
	e.POST("/api/matches", postMatch(d.Predictions))
	e.POST("/api/matches/:id/bets", postBet(d.Predictions))
	e.POST("/api/matches/:id/share", postShare(d.Predictions))
	e.PUT("/api/matches/:id/result", putResult(d.Predictions))
	if d.Gateway != nil {
		e.GET("/stream", d.Gateway.stream)
	}
}

func healthz(check func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if check == nil {
			return c.NoContent(http.StatusOK)
		}
		if err := check(c.Request().Context()); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.NoContent(http.StatusOK)
	}
}

func getRankings(rankings RankingReader, pageSize, maxPageSize int, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRankingRequestMetrics(c.Request().Context(), logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		req := pagination.Request{
			Cursor: strings.TrimSpace(c.QueryParam("cursor")),
			Order:  pagination.Order(c.QueryParam("order")),
		}
		metrics.SetCursorProvided(req.Cursor != "")
		if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
			limit, parseErr := strconv.Atoi(raw)
			if parseErr != nil || limit <= 0 {
				metrics.SetErrorStage("invalid_limit")
				return c.String(http.StatusBadRequest, "invalid limit")
			}
			req.Limit = limit
		}
		req, normErr := req.Normalize(pageSize, maxPageSize)
		if normErr != nil {
			if errors.Is(normErr, pagination.ErrInvalidCursor) {
				metrics.SetErrorStage("invalid_cursor")
				return c.String(http.StatusBadRequest, "invalid cursor")
			}
			metrics.SetErrorStage("invalid_request")
			return c.String(http.StatusBadRequest, normErr.Error())
		}

		fetchStart := time.Now()
		page, fetchErr := rankings.ListRanking(ctx, req)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			return respondError(c, fetchErr)
		}
		metrics.SetEntriesReturned(len(page.Items))
		metrics.SetHasNextPage(page.HasNext)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, page)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type scoreRequest struct {
	Sport       string `json:"sport"`
	KUScore     int    `json:"KUScore"`
	YUScore     int    `json:"YUScore"`
	MatchStatus string `json:"matchStatus"`
}

func postScore(counters CounterService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body scoreRequest
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		status := domain.MatchStatus(body.MatchStatus)
		if status == "" {
			status = domain.MatchLive
		}
		snap, err := counters.UpdateScore(c.Request().Context(), domain.Sport(body.Sport), body.KUScore, body.YUScore, status)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, snap.Message())
	}
}

type likeRequest struct {
	Sport      string `json:"sport"`
	University string `json:"university"`
	Count      int    `json:"count"`
	UserID     string `json:"userId"`
}

func postLike(counters CounterService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body likeRequest
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if body.Count == 0 {
			body.Count = 1
		}
		snap, err := counters.AddLike(c.Request().Context(), domain.Sport(body.Sport), domain.University(body.University), body.Count, body.UserID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, snap.Message())
	}
}

type cheerRequest struct {
	Sport      string `json:"sport"`
	University string `json:"university"`
	UserID     string `json:"userId"`
}

func postCheer(counters CounterService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body cheerRequest
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		snap, err := counters.AddCheer(c.Request().Context(), domain.Sport(body.Sport), domain.University(body.University), body.UserID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, snap.Message())
	}
}

type userRequest struct {
	UserID     string `json:"userId"`
	ReferrerID string `json:"referrerId"`
}

// postUser announces a registration. Reward failures are logged; they never
// fail the registration itself.
func postUser(events EventEmitter, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body userRequest
		if err := decodeBody(c, &body); err != nil || body.UserID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		ctx := c.Request().Context()
		emit(ctx, events, logger, domain.NewUserRegistered(body.UserID))
		if body.ReferrerID != "" && body.ReferrerID != body.UserID {
			emit(ctx, events, logger, domain.NewReferralCompleted(body.ReferrerID, body.UserID))
		}
		return c.NoContent(http.StatusAccepted)
	}
}

type attendanceRequest struct {
	UserID string `json:"userId"`
}

func postAttendance(events EventEmitter, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body attendanceRequest
		if err := decodeBody(c, &body); err != nil || body.UserID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		day := time.Now().In(kst).Format(time.DateOnly)
		emit(c.Request().Context(), events, logger, domain.NewAttendanceChecked(body.UserID, day))
		return c.JSON(http.StatusAccepted, map[string]string{"day": day})
	}
}

type matchRequest struct {
	Sport string `json:"sport"`
}

type matchResponse struct {
	ID        string     `json:"id"`
	Sport     string     `json:"sport"`
	KUScore   *int       `json:"KUScore,omitempty"`
	YUScore   *int       `json:"YUScore,omitempty"`
	Winner    string     `json:"winner,omitempty"`
	SettledAt *time.Time `json:"settledAt,omitempty"`
}

func toMatchResponse(m *domain.Match) matchResponse {
	resp := matchResponse{ID: m.ID, Sport: string(m.Sport), SettledAt: m.SettledAt}
	if m.Result != nil {
		ku, yu := m.Result.KUScore, m.Result.YUScore
		resp.KUScore, resp.YUScore = &ku, &yu
		resp.Winner = string(m.Result.Winner())
	}
	return resp
}

func postMatch(predictions PredictionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body matchRequest
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		m, err := predictions.CreateMatch(c.Request().Context(), domain.Sport(body.Sport))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, toMatchResponse(m))
	}
}

type betRequest struct {
	UserID    string `json:"userId"`
	Predicted string `json:"predicted"`
}

type betResponse struct {
	ID        string `json:"id"`
	MatchID   string `json:"matchId"`
	UserID    string `json:"userId"`
	Predicted string `json:"predicted"`
}

func postBet(predictions PredictionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body betRequest
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		a, err := predictions.PlaceBet(c.Request().Context(), c.Param("id"), body.UserID, domain.Outcome(body.Predicted))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, betResponse{ID: a.ID, MatchID: a.MatchID, UserID: a.UserID, Predicted: string(a.Predicted)})
	}
}

type shareRequest struct {
	UserID string `json:"userId"`
}

func postShare(predictions PredictionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body shareRequest
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		err := predictions.ShareBet(c.Request().Context(), c.Param("id"), body.UserID)
		if err != nil && !errors.Is(err, eventbus.ErrHandlerFailed) {
			return respondError(c, err)
		}
		if err != nil {
			c.Logger().Error(err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

type resultRequest struct {
	KUScore int `json:"KUScore"`
	YUScore int `json:"YUScore"`
}

func putResult(predictions PredictionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body resultRequest
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		m, err := predictions.SetMatchResult(c.Request().Context(), c.Param("id"), domain.MatchResult{KUScore: body.KUScore, YUScore: body.YUScore})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, toMatchResponse(m))
	}
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func emit(ctx context.Context, events EventEmitter, logger *log.Logger, ev domain.Event) {
	if err := events.Emit(ctx, ev); err != nil {
		logger.WithError(err).WithField("event", ev.EventName()).Error("event handlers failed")
	}
}

func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, prediction.ErrMatchNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrMatchSettled):
		return c.String(http.StatusConflict, err.Error())
	case errors.Is(err, lock.ErrNotAcquired):
		c.Response().Header().Set("Retry-After", "1")
		return c.String(http.StatusServiceUnavailable, "counter busy, retry")
	case errors.Is(err, lock.ErrBackendUnavailable), errors.Is(err, pubsub.ErrBrokerUnavailable):
		c.Logger().Error(err)
		return c.String(http.StatusServiceUnavailable, "backend unavailable")
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, "internal error")
	}
}
