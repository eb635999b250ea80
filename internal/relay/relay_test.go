package relay

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trackerhq/tracker-core/internal/cache"
	"github.com/trackerhq/tracker-core/internal/credential"
	"github.com/trackerhq/tracker-core/internal/event"
	"github.com/trackerhq/tracker-core/internal/realtime"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]cache.Key
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, patterns ...cache.Key) {
	r.mu.Lock()
	r.calls = append(r.calls, patterns)
	r.mu.Unlock()
}

func (r *recordingInvalidator) last() []cache.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func startRelay(t *testing.T, secret string) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.Default())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ws/{household_id}", HandleSync(hub, secret, slog.Default()))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// TestEndToEndSync runs the real supervisor against the relay over a real
// WebSocket and checks a broadcast lands as a cache invalidation.
func TestEndToEndSync(t *testing.T) {
	hub, srv := startRelay(t, "")

	inv := &recordingInvalidator{}
	sup := realtime.NewSupervisor(realtime.Config{
		BaseURL:        srv.URL,
		BackoffInitial: 10 * time.Millisecond,
		BackoffCap:     50 * time.Millisecond,
	}, credential.Func(func() (string, bool) { return "dev-token", true }), inv, nil, slog.Default())
	defer sup.Teardown()

	sup.SetHousehold(context.Background(), "hh-e2e")

	waitFor(t, func() bool { return hub.ActiveCount("hh-e2e") == 1 }, "client never joined the room")
	waitFor(t, func() bool { return sup.State() == realtime.StateConnected }, "supervisor never connected")

	hub.Broadcast("hh-e2e", event.BankSynced, map[string]any{"transactions": 3})

	waitFor(t, func() bool {
		keys := inv.last()
		return len(keys) == 2 && keys[0].String() == "bank-transactions" && keys[1].String() == "budget"
	}, "bank_synced invalidation never arrived")
}

func TestEndToEndTeardownLeavesRoom(t *testing.T) {
	hub, srv := startRelay(t, "")

	sup := realtime.NewSupervisor(realtime.Config{
		BaseURL:        srv.URL,
		BackoffInitial: 10 * time.Millisecond,
		BackoffCap:     50 * time.Millisecond,
	}, credential.Func(func() (string, bool) { return "dev-token", true }), &recordingInvalidator{}, nil, slog.Default())

	sup.SetHousehold(context.Background(), "hh-leave")
	waitFor(t, func() bool { return hub.ActiveCount("hh-leave") == 1 }, "client never joined")

	sup.Teardown()
	waitFor(t, func() bool { return hub.ActiveCount("hh-leave") == 0 }, "client never left the room")

	// No reconnect after intentional close.
	time.Sleep(150 * time.Millisecond)
	if got := hub.ActiveCount("hh-leave"); got != 0 {
		t.Errorf("client reconnected after teardown, room has %d members", got)
	}
}

func TestEndToEndRejectsInvalidToken(t *testing.T) {
	hub, srv := startRelay(t, "s3cret")

	sup := realtime.NewSupervisor(realtime.Config{
		BaseURL:        srv.URL,
		BackoffInitial: 10 * time.Millisecond,
		BackoffCap:     50 * time.Millisecond,
	}, credential.Func(func() (string, bool) { return "not-a-jwt", true }), &recordingInvalidator{}, nil, slog.Default())
	defer sup.Teardown()

	sup.SetHousehold(context.Background(), "hh-auth")

	time.Sleep(150 * time.Millisecond)
	if got := hub.ActiveCount("hh-auth"); got != 0 {
		t.Fatalf("unauthorized client joined the room, %d members", got)
	}
	if sup.State() == realtime.StateConnected {
		t.Error("supervisor should not reach connected with a rejected token")
	}
}

func TestEndToEndAcceptsSignedToken(t *testing.T) {
	hub, srv := startRelay(t, "s3cret")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	sup := realtime.NewSupervisor(realtime.Config{
		BaseURL:        srv.URL,
		BackoffInitial: 10 * time.Millisecond,
		BackoffCap:     50 * time.Millisecond,
	}, credential.NewSession(token), &recordingInvalidator{}, nil, slog.Default())
	defer sup.Teardown()

	sup.SetHousehold(context.Background(), "hh-jwt")
	waitFor(t, func() bool { return hub.ActiveCount("hh-jwt") == 1 }, "signed token never accepted")
}
