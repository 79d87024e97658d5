package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/bingoserver/auth"
	"github.com/wfunc/bingoserver/config"
	"github.com/wfunc/bingoserver/errs"
	"github.com/wfunc/bingoserver/models"
	"github.com/wfunc/bingoserver/monitor"
	"github.com/wfunc/bingoserver/network"
	"github.com/wfunc/bingoserver/persistence"
	"github.com/wfunc/bingoserver/pool"
	"github.com/wfunc/bingoserver/room"
	"github.com/wfunc/bingoserver/services"
)

func newTestServer(t *testing.T, grace time.Duration) (*GameServer, *httptest.Server) {
	t.Helper()
	gs := NewGameServer(Deps{
		Server: config.ServerConfig{
			AllowedOrigins: []string{"*"},
			WriteQueue:     64,
		},
		Game: config.GameConfig{
			WinnerCap:      1,
			MaxRooms:       1,
			MaxPlayers:     10,
			IdlePolicy:     "dispose",
			ReconnectGrace: grace,
		},
		Signer:    auth.NewSigner("test-secret", "bingoserver", time.Hour),
		Pool:      pool.Standard(),
		Validator: room.AcceptAll{},
		Records:   services.NewRecordService(persistence.NewMemory(10)),
		Monitor:   monitor.NewMonitor("bingo_server_test"),
	})
	srv := httptest.NewServer(gs.Router())
	t.Cleanup(func() {
		srv.Close()
		gs.sessionManager.CloseAll()
		gs.timers.Stop()
	})
	return gs, srv
}

func register(t *testing.T, srv *httptest.Server, name string, host bool) registerResponse {
	t.Helper()
	body, _ := json.Marshal(registerRequest{PlayerName: name, IsHost: host})
	resp, err := http.Post(srv.URL+"/room", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /room failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from /room, got %d", resp.StatusCode)
	}
	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Decode registration failed: %v", err)
	}
	return out
}

type ackFrame struct {
	Seq   uint64          `json:"seq"`
	OK    bool            `json:"ok"`
	Error *errs.Error     `json:"error"`
	Data  json.RawMessage `json:"data"`
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	seq  uint64
}

func dial(t *testing.T, srv *httptest.Server, token string) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msgID uint16, payload map[string]any) uint64 {
	c.t.Helper()
	c.seq++
	if payload == nil {
		payload = map[string]any{}
	}
	payload["seq"] = c.seq
	data, _ := json.Marshal(payload)
	frame, err := network.Encode(msgID, data)
	if err != nil {
		c.t.Fatalf("Encode failed: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.t.Fatalf("Write failed: %v", err)
	}
	return c.seq
}

func (c *testClient) next() *network.Packet {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("Read failed: %v", err)
	}
	p, err := network.Decode(data)
	if err != nil {
		c.t.Fatalf("Decode failed: %v", err)
	}
	return p
}

// waitFor skips frames until one with msgID arrives.
func (c *testClient) waitFor(msgID uint16) []byte {
	c.t.Helper()
	for {
		p := c.next()
		if p.MsgID == msgID {
			return p.Data
		}
	}
}

// request sends an event and returns its ack, skipping broadcasts.
func (c *testClient) request(msgID uint16, payload map[string]any) ackFrame {
	c.t.Helper()
	seq := c.send(msgID, payload)
	for {
		p := c.next()
		if p.MsgID != network.MsgTypeAck {
			continue
		}
		var ack ackFrame
		if err := json.Unmarshal(p.Data, &ack); err != nil {
			c.t.Fatalf("Bad ack: %v", err)
		}
		if ack.Seq == seq {
			return ack
		}
	}
}

func (c *testClient) join(roomID string, extra map[string]any) (models.Player, models.RoomSnapshot) {
	c.t.Helper()
	payload := map[string]any{"roomId": roomID}
	for k, v := range extra {
		payload[k] = v
	}
	ack := c.request(network.MsgTypeJoinRoom, payload)
	if !ack.OK {
		c.t.Fatalf("Join rejected: %+v", ack.Error)
	}
	var reply joinReply
	json.Unmarshal(ack.Data, &reply)
	return reply.Player, reply.Room
}

func TestRegister_Validation(t *testing.T) {
	_, srv := newTestServer(t, 0)

	resp, err := http.Post(srv.URL+"/room", "application/json", strings.NewReader(`{"playerName":"  "}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty name, got %d", resp.StatusCode)
	}

	reg := register(t, srv, "Alice", true)
	if !reg.Success || reg.RoomID == "" || reg.Token == "" || !reg.Player.IsHost {
		t.Errorf("Unexpected registration: %+v", reg)
	}
}

func TestWebSocket_RequiresCredential(t *testing.T) {
	_, srv := newTestServer(t, 0)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected the dial to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %+v", resp)
	}
	var body errorResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Error == nil || body.Error.Code != errs.CodeAuthenticationRequired {
		t.Errorf("Expected authentication_required, got %+v", body.Error)
	}

	_, resp, _ = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a bad token, got %+v", resp)
	}
}

func TestGameFlow(t *testing.T) {
	_, srv := newTestServer(t, 0)

	aliceReg := register(t, srv, "Alice", true)
	alice := dial(t, srv, aliceReg.Token)
	alicePlayer, _ := alice.join(aliceReg.RoomID, nil)
	if !alicePlayer.IsHost {
		t.Fatal("Alice should be host")
	}

	bobReg := register(t, srv, "Bob", false)
	if bobReg.RoomID != aliceReg.RoomID {
		t.Fatalf("Bob should be pointed at Alice's room, got %s", bobReg.RoomID)
	}
	bob := dial(t, srv, bobReg.Token)
	_, snap := bob.join(bobReg.RoomID, map[string]any{"isHost": true})
	if len(snap.Players) != 2 || snap.Players[1].IsHost {
		t.Fatalf("Bob must join as a regular player, got %+v", snap.Players)
	}

	// 非房主不能开始
	ack := bob.request(network.MsgTypeStartGame, nil)
	if ack.OK || ack.Error.Code != errs.CodeAuthorizationDenied {
		t.Fatalf("Expected authorization_denied, got %+v", ack)
	}

	if ack := alice.request(network.MsgTypeStartGame, nil); !ack.OK {
		t.Fatalf("Start rejected: %+v", ack.Error)
	}
	bob.waitFor(network.MsgTypeGameStarted)

	ack = alice.request(network.MsgTypeCallNumber, map[string]any{"number": map[string]any{"value": 12, "category": "B"}})
	if !ack.OK {
		t.Fatalf("Call rejected: %+v", ack.Error)
	}
	var called models.CalledNumber
	json.Unmarshal(bob.waitFor(network.MsgTypeNumberCalled), &called)
	if called.Value != 12 {
		t.Errorf("Expected 12, got %+v", called)
	}
	if p := bob.next(); p.MsgID != network.MsgTypeRoomUpdate {
		t.Errorf("Expected room_update right after number_called, got %s", network.MsgName(p.MsgID))
	}

	ack = alice.request(network.MsgTypeCallNumber, map[string]any{"number": map[string]any{"value": 12}})
	if ack.OK || ack.Error.Code != errs.CodeValidationFailed {
		t.Errorf("Expected validation_failed for a repeated number, got %+v", ack)
	}

	ack = bob.request(network.MsgTypeClaimWin, map[string]any{"pattern": "row"})
	if !ack.OK {
		t.Fatalf("Claim rejected: %+v", ack.Error)
	}
	alice.waitFor(network.MsgTypeWinClaimed)
	alice.waitFor(network.MsgTypeGameFinished)

	ack = alice.request(network.MsgTypeClaimWin, map[string]any{"pattern": "row"})
	if ack.OK || ack.Error.Code != errs.CodeInvalidState {
		t.Errorf("Expected invalid_state after the round finished, got %+v", ack)
	}

	if ack := alice.request(network.MsgTypeResetGame, nil); !ack.OK {
		t.Fatalf("Reset rejected: %+v", ack.Error)
	}
	var update models.RoomSnapshot
	json.Unmarshal(bob.waitFor(network.MsgTypeRoomUpdate), &update)
	for update.Status != models.StatusWaiting {
		json.Unmarshal(bob.waitFor(network.MsgTypeRoomUpdate), &update)
	}
	if len(update.CalledNumbers) != 0 || len(update.Winners) != 0 {
		t.Errorf("Expected an empty round after reset, got %+v", update)
	}
}

func TestUnknownAndUnjoinedEvents(t *testing.T) {
	_, srv := newTestServer(t, 0)
	reg := register(t, srv, "Alice", true)
	c := dial(t, srv, reg.Token)

	if ack := c.request(network.MsgTypeStartGame, nil); ack.OK || ack.Error.Code != errs.CodeAuthorizationDenied {
		t.Errorf("Expected authorization_denied before joining, got %+v", ack)
	}
	if ack := c.request(999, nil); ack.OK || ack.Error.Code != errs.CodeValidationFailed {
		t.Errorf("Expected validation_failed for an unknown event, got %+v", ack)
	}
	if ack := c.request(network.MsgTypeJoinRoom, map[string]any{"roomId": reg.RoomID, "playerName": "Mallory"}); ack.OK {
		t.Error("A join under another name must be rejected")
	}
}

func TestMalformedPayloadIsRejectedOnce(t *testing.T) {
	_, srv := newTestServer(t, 0)
	reg := register(t, srv, "Alice", true)
	c := dial(t, srv, reg.Token)

	frame, err := network.Encode(network.MsgTypeJoinRoom, []byte(`{"roomId":`))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	var ack ackFrame
	json.Unmarshal(c.waitFor(network.MsgTypeAck), &ack)
	if ack.OK || ack.Seq != 0 || ack.Error == nil || ack.Error.Code != errs.CodeValidationFailed {
		t.Fatalf("Expected validation_failed with seq 0 for malformed JSON, got %+v", ack)
	}

	// the connection keeps working and the next event is acked normally
	if ack := c.request(network.MsgTypeStartGame, nil); ack.OK || ack.Error.Code != errs.CodeAuthorizationDenied {
		t.Errorf("Expected authorization_denied after a bad frame, got %+v", ack)
	}
}

func TestDisconnectPromotesHost(t *testing.T) {
	gs, srv := newTestServer(t, 0)

	aliceReg := register(t, srv, "Alice", true)
	alice := dial(t, srv, aliceReg.Token)
	alice.join(aliceReg.RoomID, nil)

	bobReg := register(t, srv, "Bob", false)
	bob := dial(t, srv, bobReg.Token)
	bobPlayer, _ := bob.join(bobReg.RoomID, nil)

	alice.conn.Close()

	var update models.RoomSnapshot
	for {
		json.Unmarshal(bob.waitFor(network.MsgTypeRoomUpdate), &update)
		if len(update.Players) == 1 {
			break
		}
	}
	if update.Players[0].ID != bobPlayer.ID || !update.Players[0].IsHost {
		t.Errorf("Expected Bob to be promoted, got %+v", update.Players)
	}

	// leave once: explicit leave then disconnect must not fail or double-remove
	if ack := bob.request(network.MsgTypeLeaveRoom, nil); !ack.OK {
		t.Fatalf("Leave rejected: %+v", ack.Error)
	}
	if ack := bob.request(network.MsgTypeLeaveRoom, nil); ack.OK {
		t.Error("A second leave must be rejected")
	}
	if gs.roomManager.Count() != 0 {
		t.Error("The empty room should be disposed")
	}
}

func TestReconnectWithinGrace(t *testing.T) {
	gs, srv := newTestServer(t, time.Minute)

	aliceReg := register(t, srv, "Alice", true)
	alice := dial(t, srv, aliceReg.Token)
	alice.join(aliceReg.RoomID, nil)

	bobReg := register(t, srv, "Bob", false)
	bob := dial(t, srv, bobReg.Token)
	bobPlayer, _ := bob.join(bobReg.RoomID, nil)
	alice.request(network.MsgTypeStartGame, nil)

	bob.conn.Close()
	var update models.RoomSnapshot
	for {
		json.Unmarshal(alice.waitFor(network.MsgTypeRoomUpdate), &update)
		if len(update.Players) == 2 && !update.Players[1].Connected {
			break
		}
	}
	if gs.lifecycle.Held() != 1 {
		t.Fatalf("Expected one held seat, got %d", gs.lifecycle.Held())
	}

	// a fresh join while playing is refused
	late := dial(t, srv, bobReg.Token)
	if ack := late.request(network.MsgTypeJoinRoom, map[string]any{"roomId": bobReg.RoomID}); ack.OK || ack.Error.Code != errs.CodeInvalidState {
		t.Fatalf("Expected invalid_state for a new seat mid-game, got %+v", ack)
	}

	player, snap := late.join(bobReg.RoomID, map[string]any{"resumePlayerId": bobPlayer.ID})
	if player.ID != bobPlayer.ID || !player.Connected || snap.Status != models.StatusPlaying {
		t.Errorf("Unexpected resume: %+v in %s", player, snap.Status)
	}
	if gs.lifecycle.Held() != 0 {
		t.Error("The expiry timer should be cancelled on resume")
	}
}

// waitUntil polls cond until it holds or three seconds pass.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func playerCount(gs *GameServer, roomID string) int {
	r, ok := gs.roomManager.GetRoom(roomID)
	if !ok {
		return 0
	}
	return r.PlayerCount()
}

func TestReconnectAfterGrace(t *testing.T) {
	gs, srv := newTestServer(t, 200*time.Millisecond)

	aliceReg := register(t, srv, "Alice", true)
	alice := dial(t, srv, aliceReg.Token)
	alice.join(aliceReg.RoomID, nil)

	bobReg := register(t, srv, "Bob", false)
	bob := dial(t, srv, bobReg.Token)
	bobPlayer, _ := bob.join(bobReg.RoomID, nil)
	alice.request(network.MsgTypeStartGame, nil)

	bob.conn.Close()
	waitUntil(t, "the seat to be held", func() bool { return gs.lifecycle.Held() == 1 })
	waitUntil(t, "the grace window to run out", func() bool {
		return gs.lifecycle.Held() == 0 && playerCount(gs, bobReg.RoomID) == 1
	})

	r, _ := gs.roomManager.GetRoom(bobReg.RoomID)
	for _, p := range r.Snapshot().Players {
		if p.ID == bobPlayer.ID {
			t.Fatalf("Expected Bob's seat to be gone, got %+v", r.Snapshot().Players)
		}
	}

	late := dial(t, srv, bobReg.Token)
	ack := late.request(network.MsgTypeJoinRoom, map[string]any{
		"roomId":         bobReg.RoomID,
		"resumePlayerId": bobPlayer.ID,
	})
	if ack.OK || ack.Error == nil || ack.Error.Code != errs.CodeInvalidState {
		t.Fatalf("Expected invalid_state for a resume after the window, got %+v", ack)
	}
}

func TestStaleExpiryKeepsNewHold(t *testing.T) {
	gs, srv := newTestServer(t, time.Minute)

	aliceReg := register(t, srv, "Alice", true)
	alice := dial(t, srv, aliceReg.Token)
	alice.join(aliceReg.RoomID, nil)

	bobReg := register(t, srv, "Bob", false)
	bob := dial(t, srv, bobReg.Token)
	bobPlayer, _ := bob.join(bobReg.RoomID, nil)

	bob.conn.Close()
	waitUntil(t, "the first hold", func() bool { return gs.lifecycle.Held() == 1 })
	gs.lifecycle.mutex.Lock()
	stale := gs.lifecycle.held[bobPlayer.ID]
	gs.lifecycle.mutex.Unlock()

	again := dial(t, srv, bobReg.Token)
	again.join(bobReg.RoomID, map[string]any{"resumePlayerId": bobPlayer.ID})
	again.conn.Close()
	waitUntil(t, "the second hold", func() bool {
		gs.lifecycle.mutex.Lock()
		defer gs.lifecycle.mutex.Unlock()
		id, ok := gs.lifecycle.held[bobPlayer.ID]
		return ok && id != stale
	})

	// the first window's callback arrives late
	gs.lifecycle.expire(bobReg.RoomID, bobPlayer.ID, &stale)

	if n := playerCount(gs, bobReg.RoomID); n != 2 {
		t.Errorf("Expected the held seat to survive a stale expiry, got %d players", n)
	}
	if gs.lifecycle.Held() != 1 {
		t.Errorf("Expected the new hold to remain, got %d", gs.lifecycle.Held())
	}
}

func TestRoomAndRecordEndpoints(t *testing.T) {
	_, srv := newTestServer(t, 0)

	resp, err := http.Get(srv.URL + "/rooms/nope")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	reg := register(t, srv, "Alice", true)
	c := dial(t, srv, reg.Token)
	c.join(reg.RoomID, nil)

	resp, err = http.Get(srv.URL + "/rooms/" + reg.RoomID)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var snap models.RoomSnapshot
	json.NewDecoder(resp.Body).Decode(&snap)
	resp.Body.Close()
	if snap.ID != reg.RoomID || len(snap.Players) != 1 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}

	resp, err = http.Get(srv.URL + "/records")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /records, got %d", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", resp2.StatusCode)
	}
}
