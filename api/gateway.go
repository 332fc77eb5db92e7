package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/toky-team/toky-back-sub001/countersync"
	"github.com/toky-team/toky-back-sub001/domain"
)

// frame is one server-sent event.
type frame struct {
	event string
	data  []byte
}

// Gateway pushes validated counter snapshots to SSE clients. Clients join
// the room of one sport.
type Gateway struct {
	logger    *log.Logger
	buffer    int
	keepalive time.Duration

	mu    sync.Mutex
	rooms map[domain.Sport]map[chan frame]struct{}
}

func NewGateway(logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Gateway{
		logger:    logger,
		buffer:    16,
		keepalive: 15 * time.Second,
		rooms:     make(map[domain.Sport]map[chan frame]struct{}),
	}
}

func (g *Gateway) join(sport domain.Sport) chan frame {
	ch := make(chan frame, g.buffer)
	g.mu.Lock()
	room, ok := g.rooms[sport]
	if !ok {
		room = make(map[chan frame]struct{})
		g.rooms[sport] = room
	}
	room[ch] = struct{}{}
	g.mu.Unlock()
	return ch
}

func (g *Gateway) leave(sport domain.Sport, ch chan frame) {
	g.mu.Lock()
	if room, ok := g.rooms[sport]; ok {
		delete(room, ch)
		if len(room) == 0 {
			delete(g.rooms, sport)
		}
	}
	g.mu.Unlock()
}

// Members reports how many clients are in the room of sport.
func (g *Gateway) Members(sport domain.Sport) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms[sport])
}

// Broadcast sends payload to every client of the sport's room. A client whose
// buffer is full misses the frame; the next snapshot supersedes it anyway.
func (g *Gateway) Broadcast(sport domain.Sport, event string, payload any) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		g.logger.WithError(err).WithField("event", event).Error("encode gateway frame")
		return
	}
	f := frame{event: event, data: data}
	skipped := 0
	g.mu.Lock()
	for ch := range g.rooms[sport] {
		select {
		case ch <- f:
		default:
			skipped++
		}
	}
	g.mu.Unlock()
	if skipped > 0 {
		g.logger.WithFields(log.Fields{"event": event, "sport": sport, "skipped": skipped}).Debug("slow stream clients skipped")
	}
}

// Attach feeds the gateway from the counter-sync subscribers.
func (g *Gateway) Attach(
	ctx context.Context,
	scores *countersync.Service[domain.ScoreSnapshot],
	likes *countersync.Service[domain.LikeSnapshot],
	cheers *countersync.Service[domain.CheerSnapshot],
) error {
	if err := scores.Subscribe(ctx, func(_ context.Context, s domain.ScoreSnapshot) {
		g.Broadcast(s.Sport, scores.Channel(), s.Message())
	}); err != nil {
		return fmt.Errorf("attach score stream: %w", err)
	}
	if err := likes.Subscribe(ctx, func(_ context.Context, s domain.LikeSnapshot) {
		g.Broadcast(s.Sport, likes.Channel(), s.Message())
	}); err != nil {
		return fmt.Errorf("attach like stream: %w", err)
	}
	if err := cheers.Subscribe(ctx, func(_ context.Context, s domain.CheerSnapshot) {
		g.Broadcast(s.Sport, cheers.Channel(), s.Message())
	}); err != nil {
		return fmt.Errorf("attach cheer stream: %w", err)
	}
	return nil
}

func (g *Gateway) stream(c echo.Context) error {
	sport, err := domain.ParseSport(c.QueryParam("sport"))
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request().Context()
	ch := g.join(sport)
	defer g.leave(sport, ch)
	ticker := time.NewTicker(g.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Response().Write([]byte(": keepalive\n\n")); err != nil {
				return nil
			}
		case f := <-ch:
			if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", f.event, f.data); err != nil {
				return nil
			}
		}
		flusher.Flush()
	}
}
