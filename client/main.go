package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/wfunc/bingoserver/network"
)

type registration struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId"`
	Token   string `json:"token"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func register(server, name string, host bool) (registration, error) {
	var reg registration
	body, _ := json.Marshal(map[string]any{"playerName": name, "isHost": host})
	resp, err := http.Post(strings.TrimRight(server, "/")+"/room", "application/json", bytes.NewReader(body))
	if err != nil {
		return reg, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return reg, err
	}
	if !reg.Success {
		if reg.Error != nil {
			return reg, fmt.Errorf("%s: %s", reg.Error.Code, reg.Error.Message)
		}
		return reg, fmt.Errorf("registration failed with status %d", resp.StatusCode)
	}
	return reg, nil
}

type client struct {
	conn *websocket.Conn
	seq  uint64
}

// send formats and sends a message to the WebSocket server.
func (c *client) send(msgID uint16, payload map[string]any) error {
	c.seq++
	payload["seq"] = c.seq
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	packet, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}
	log.Printf("-> SENT %s #%d", network.MsgName(msgID), c.seq)
	return c.conn.WriteMessage(websocket.BinaryMessage, packet)
}

// command turns one line of input into an event.
func command(line string) (uint16, map[string]any, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, nil, nil
	}
	payload := map[string]any{}
	switch fields[0] {
	case "start":
		return network.MsgTypeStartGame, payload, nil
	case "call":
		number := map[string]any{"value": 0}
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil {
				return 0, nil, fmt.Errorf("bad number %q", fields[1])
			}
			number["value"] = v
		}
		if len(fields) > 2 {
			number["category"] = strings.ToUpper(fields[2])
		}
		payload["number"] = number
		return network.MsgTypeCallNumber, payload, nil
	case "claim":
		if len(fields) < 2 {
			return 0, nil, fmt.Errorf("usage: claim <pattern> [marked...]")
		}
		payload["pattern"] = fields[1]
		var marked []int
		for _, f := range fields[2:] {
			v, err := strconv.Atoi(f)
			if err != nil {
				return 0, nil, fmt.Errorf("bad mark %q", f)
			}
			marked = append(marked, v)
		}
		payload["marked"] = marked
		return network.MsgTypeClaimWin, payload, nil
	case "reset":
		return network.MsgTypeResetGame, payload, nil
	case "leave":
		return network.MsgTypeLeaveRoom, payload, nil
	case "ping":
		return network.MsgTypeHeartbeat, payload, nil
	default:
		return 0, nil, fmt.Errorf("unknown command %q (start, call [n] [letter], claim <pattern> [marks], reset, leave, ping)", fields[0])
	}
}

func main() {
	server := pflag.String("server", "http://localhost:8080", "game server base URL")
	name := pflag.String("name", "", "display name")
	host := pflag.Bool("host", false, "register as host")
	roomID := pflag.String("room", "", "room to join instead of the one assigned at registration")
	resume := pflag.String("resume", "", "player id of a held seat to resume")
	pflag.Parse()

	if *name == "" {
		log.Fatal("--name is required")
	}

	reg, err := register(*server, *name, *host)
	if err != nil {
		log.Fatalf("Register failed: %v", err)
	}
	if *roomID != "" {
		reg.RoomID = *roomID
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	base, err := url.Parse(*server)
	if err != nil {
		log.Fatalf("Bad server URL: %v", err)
	}
	u := url.URL{Scheme: "ws", Host: base.Host, Path: "/ws", RawQuery: "token=" + url.QueryEscape(reg.Token)}
	if base.Scheme == "https" {
		u.Scheme = "wss"
	}
	log.Printf("Connecting to %s://%s%s", u.Scheme, u.Host, u.Path)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	c := &client{conn: conn}

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			p, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid packet: %v", err)
				continue
			}
			log.Printf("<- RECV %s: %s", network.MsgName(p.MsgID), p.Data)
		}
	}()

	join := map[string]any{"roomId": reg.RoomID, "isHost": *host}
	if *resume != "" {
		join["resumePlayerId"] = *resume
	}
	if err := c.send(network.MsgTypeJoinRoom, join); err != nil {
		log.Fatalf("Write error: %v", err)
	}
	log.Printf("Joined room %s. Commands: start, call [n] [letter], claim <pattern> [marks], reset, leave", reg.RoomID)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// 保持心跳，服务端两个周期收不到数据会断开
	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			packet, _ := network.Encode(network.MsgTypeHeartbeat, nil)
			if err := conn.WriteMessage(websocket.BinaryMessage, packet); err != nil {
				log.Println("Write error:", err)
				return
			}
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			msgID, payload, err := command(line)
			if err != nil {
				log.Println(err)
				continue
			}
			if payload == nil {
				continue
			}
			if err := c.send(msgID, payload); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
