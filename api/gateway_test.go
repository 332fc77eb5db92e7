package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/toky-team/toky-back-sub001/countersync"
	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/pubsub"
)

func TestGatewayStreamsSnapshotsToSportRoom(t *testing.T) {
	logger, _ := test.NewNullLogger()
	broker := pubsub.NewMemoryBroker(pubsub.Options{}, logger)
	defer broker.Close()

	scores := countersync.NewScoreSync(broker, logger)
	likes := countersync.NewLikeSync(broker, logger)
	cheers := countersync.NewCheerSync(broker, logger)

	gw := NewGateway(logger)
	if err := gw.Attach(context.Background(), scores, likes, cheers); err != nil {
		t.Fatalf("attach: %v", err)
	}
	e := echo.New()
	Register(e, Deps{Gateway: gw, Logger: logger})
	srv := httptest.NewServer(e)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream?sport=football", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for gw.Members(domain.Football) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never joined the room")
		}
		time.Sleep(5 * time.Millisecond)
	}

	now := time.Now().UTC()
	other := domain.NewCheer(domain.Rugby, now)
	_ = other.Add(domain.Korea, "u", now)
	if err := cheers.Publish(context.Background(), other.Snapshot()); err != nil {
		t.Fatalf("publish cheer: %v", err)
	}
	like := domain.NewLike(domain.Football, now)
	_ = like.Add(domain.Korea, 2, "u", now)
	if err := likes.Publish(context.Background(), like.Snapshot()); err != nil {
		t.Fatalf("publish like: %v", err)
	}

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var event, data string
	timeout := time.After(2 * time.Second)
	for data == "" {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed early")
			}
			if strings.HasPrefix(line, "event: ") {
				event = strings.TrimPrefix(line, "event: ")
			}
			if strings.HasPrefix(line, "data: ") {
				data = strings.TrimPrefix(line, "data: ")
			}
		case <-timeout:
			t.Fatalf("no frame received")
		}
	}
	if event != "like" {
		t.Fatalf("expected like frame first, got %q", event)
	}
	if !strings.Contains(data, `"KULike":2`) || !strings.Contains(data, `"sport":"football"`) {
		t.Fatalf("unexpected frame data: %s", data)
	}

	cancel()
	deadline = time.Now().Add(2 * time.Second)
	for gw.Members(domain.Football) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never left the room")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGatewayRejectsUnknownSport(t *testing.T) {
	e := echo.New()
	Register(e, Deps{Gateway: NewGateway(nil)})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream?sport=curling", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGatewayBroadcastSkipsFullClients(t *testing.T) {
	gw := NewGateway(nil)
	gw.buffer = 1
	ch := gw.join(domain.Baseball)
	defer gw.leave(domain.Baseball, ch)

	gw.Broadcast(domain.Baseball, "score", map[string]any{"n": 1})
	gw.Broadcast(domain.Baseball, "score", map[string]any{"n": 2})

	f := <-ch
	if string(f.data) != `{"n":1}` {
		t.Fatalf("unexpected frame: %s", f.data)
	}
	select {
	case f := <-ch:
		t.Fatalf("full client should have skipped a frame, got %s", f.data)
	default:
	}
}
