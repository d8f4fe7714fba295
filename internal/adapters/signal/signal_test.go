package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Mayank7805/QuickChat/internal/app"
	"github.com/Mayank7805/QuickChat/internal/config"
	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *SignalWSController) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		PingPeriod: 30 * time.Second,
		ReadLimit:  1 << 20,
	}
	table := NewConnTable()
	notifier := app.NewStatusNotifier(table)
	presence := app.NewRegistry(notifier)
	router := app.NewRouter(presence, table)
	limiter := app.NewCallRateLimiter(100, time.Minute)
	ctl := NewSignalWSController(cfg, presence, router, limiter, table)

	ctx, cancel := context.WithCancel(context.Background())
	go notifier.Run(ctx)

	engine := gin.New()
	engine.GET("/api/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		cancel()
		table.CloseAll()
		srv.Close()
	})
	return srv, ctl
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialClient(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("dial status = %d, want 101", resp.StatusCode)
	}
	c := &testClient{t: t, conn: conn}
	t.Cleanup(func() { conn.Close() })
	return c
}

func (c *testClient) send(raw string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) join(userID string) {
	c.t.Helper()
	c.send(`{"type":"user_join","userId":"` + userID + `"}`)
}

// recv reads the next frame as a generic JSON object.
func (c *testClient) recv() map[string]any {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		c.t.Fatalf("unmarshal %q: %v", data, err)
	}
	return m
}

func (c *testClient) expectType(want string) map[string]any {
	c.t.Helper()
	m := c.recv()
	if m["type"] != want {
		c.t.Fatalf("received %v, want type %q", m, want)
	}
	return m
}

func (c *testClient) expectSilence(d time.Duration) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(d))
	if _, data, err := c.conn.ReadMessage(); err == nil {
		c.t.Fatalf("unexpected frame: %s", data)
	}
}

const offerToBob = `{"type":"webrtc_offer","to":"bob","from":"alice","fromName":"Alice","chatId":"chat-1","callType":"video","offer":{"type":"offer","sdp":"v=0..."}}`

func TestOfferToOfflineUserFailsBack(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialClient(t, srv)
	alice.join("alice")

	alice.send(offerToBob)

	m := alice.expectType("call_failed")
	if m["reason"] != "User is offline" {
		t.Errorf("reason = %v, want %q", m["reason"], "User is offline")
	}
}

func TestOfferFromAnonymousConnectionRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialClient(t, srv)

	alice.send(offerToBob)

	alice.expectType("call_failed")
}

// joinAcked joins and waits for the pong that proves the server has
// processed the join, so cross-socket ordering is deterministic.
func (c *testClient) joinAcked(userID string) {
	c.t.Helper()
	c.join(userID)
	c.send(`{"type":"ping"}`)
	c.expectType("pong")
}

func TestOfferDeliveredToFirstConnectionOnly(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialClient(t, srv)
	alice.joinAcked("alice")
	bobTab1 := dialClient(t, srv)
	bobTab1.joinAcked("bob")
	alice.expectType("user_status_change") // bob online
	bobTab2 := dialClient(t, srv)
	bobTab2.joinAcked("bob")

	alice.send(offerToBob)

	m := bobTab1.expectType("webrtc_offer")
	if m["from"] != "alice" || m["chatId"] != "chat-1" {
		t.Errorf("offer payload altered: %v", m)
	}
	bobTab2.expectSilence(200 * time.Millisecond)

	// The answering tab's reply reaches the caller exactly once.
	bobTab1.send(`{"type":"webrtc_answer","to":"alice","from":"bob","chatId":"chat-1","answer":{"type":"answer","sdp":"v=0..."}}`)
	a := alice.expectType("webrtc_answer")
	if a["from"] != "bob" || a["chatId"] != "chat-1" {
		t.Errorf("answer payload altered: %v", a)
	}
	alice.expectSilence(200 * time.Millisecond)
}

func TestCallEndedFansOutToAllTabs(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialClient(t, srv)
	alice.joinAcked("alice")
	bobTab1 := dialClient(t, srv)
	bobTab1.joinAcked("bob")
	alice.expectType("user_status_change")
	bobTab2 := dialClient(t, srv)
	bobTab2.joinAcked("bob")

	alice.send(`{"type":"webrtc_call_ended","to":"bob","chatId":"chat-1"}`)

	bobTab1.expectType("webrtc_call_ended")
	bobTab2.expectType("webrtc_call_ended")
}

func TestStatusChangeBroadcastOnJoinAndLeave(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialClient(t, srv)
	alice.join("alice")

	bob := dialClient(t, srv)
	bob.join("bob")

	m := alice.expectType("user_status_change")
	if m["userId"] != "bob" || m["status"] != "online" {
		t.Errorf("broadcast = %v, want bob online", m)
	}

	bob.conn.Close()

	m = alice.expectType("user_status_change")
	if m["userId"] != "bob" || m["status"] != "offline" {
		t.Errorf("broadcast = %v, want bob offline", m)
	}
}

func TestSecondTabDoesNotRebroadcastOnline(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialClient(t, srv)
	alice.joinAcked("alice")

	bobTab1 := dialClient(t, srv)
	bobTab1.joinAcked("bob")
	m := alice.expectType("user_status_change")
	if m["status"] != "online" {
		t.Fatalf("broadcast = %v, want bob online", m)
	}

	// A second tab and the loss of one tab are both invisible: frames on
	// one connection are ordered, so if either had triggered a broadcast
	// the next frame alice sees would not be the final offline.
	bobTab2 := dialClient(t, srv)
	bobTab2.joinAcked("bob")
	bobTab1.conn.Close()
	bobTab2.conn.Close()

	m = alice.expectType("user_status_change")
	if m["userId"] != "bob" || m["status"] != "offline" {
		t.Errorf("broadcast = %v, want bob offline", m)
	}
	alice.expectSilence(200 * time.Millisecond)
}

func TestDisconnectCleansUpRouting(t *testing.T) {
	srv, ctl := newTestServer(t)
	bob := dialClient(t, srv)
	bob.joinAcked("bob")
	alice := dialClient(t, srv)
	alice.join("alice")
	bob.expectType("user_status_change")

	bob.conn.Close()
	// Wait out the server-side deregistration.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(ctl.Presence.Lookup("bob")) > 0 {
		time.Sleep(5 * time.Millisecond)
	}

	alice.expectType("user_status_change") // bob offline
	alice.send(offerToBob)
	m := alice.expectType("call_failed")
	if m["reason"] != "User is offline" {
		t.Errorf("reason = %v, want %q", m["reason"], "User is offline")
	}
}

func TestPingAnsweredWithPong(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialClient(t, srv)
	alice.join("alice")

	alice.send(`{"type":"ping"}`)

	alice.expectType("pong")
}

func TestMalformedFrameIsDroppedNotFatal(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialClient(t, srv)
	alice.join("alice")

	alice.send(`{"type":"webrtc_offer"}`) // missing everything
	alice.send(`not json at all`)

	// The connection must survive both.
	alice.send(`{"type":"ping"}`)
	alice.expectType("pong")
}

func TestOfferSenderMismatchDropped(t *testing.T) {
	srv, _ := newTestServer(t)
	bob := dialClient(t, srv)
	bob.joinAcked("bob")
	mallory := dialClient(t, srv)
	mallory.join("mallory")
	bob.expectType("user_status_change")

	// mallory claims to be alice.
	mallory.send(offerToBob)

	bob.expectSilence(200 * time.Millisecond)
}

func TestOfferRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{PingPeriod: 30 * time.Second, ReadLimit: 1 << 20}
	table := NewConnTable()
	presence := app.NewRegistry(nil)
	router := app.NewRouter(presence, table)
	limiter := app.NewCallRateLimiter(2, time.Minute)
	ctl := NewSignalWSController(cfg, presence, router, limiter, table)

	ctx, cancel := context.WithCancel(context.Background())
	engine := gin.New()
	engine.GET("/api/ws/signal", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		cancel()
		table.CloseAll()
		srv.Close()
	})

	bob := dialClient(t, srv)
	bob.joinAcked("bob")
	alice := dialClient(t, srv)
	alice.join("alice")

	alice.send(offerToBob)
	bob.expectType("webrtc_offer")
	alice.send(offerToBob)
	bob.expectType("webrtc_offer")

	alice.send(offerToBob)
	m := alice.expectType("call_failed")
	if m["reason"] != "too many call attempts" {
		t.Errorf("reason = %v, want throttle reason", m["reason"])
	}
	bob.expectSilence(200 * time.Millisecond)
}

// stubConn is a transport-less connection for exercising the table on
// its own.
type stubConn struct {
	id     core.ConnID
	user   domain.UserID
	frames []core.Frame
	closed bool
}

func (c *stubConn) ID() core.ConnID            { return c.id }
func (c *stubConn) BoundUser() domain.UserID   { return c.user }
func (c *stubConn) TrySend(f core.Frame) error { c.frames = append(c.frames, f); return nil }
func (c *stubConn) Close()                     { c.closed = true }

func TestConnTableWorksOnAnyConnection(t *testing.T) {
	table := NewConnTable()
	a := &stubConn{id: "c1", user: "alice"}
	b := &stubConn{id: "c2", user: "bob"}
	table.Add(a)
	table.Add(b)

	if err := table.Send("c2", core.Frame("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(b.frames) != 1 || len(a.frames) != 0 {
		t.Errorf("frames after Send = a:%d b:%d, want a:0 b:1", len(a.frames), len(b.frames))
	}

	table.Fanout("bob", core.Frame("news"))
	if len(a.frames) != 1 {
		t.Errorf("alice got %d fanout frames, want 1", len(a.frames))
	}
	if len(b.frames) != 1 {
		t.Errorf("bob got a fanout frame addressed away from him")
	}

	table.Remove("c1")
	if err := table.Send("c1", core.Frame("gone")); err == nil {
		t.Error("Send to a removed connection succeeded")
	}

	table.CloseAll()
	if !b.closed {
		t.Error("CloseAll left a connection open")
	}
}
