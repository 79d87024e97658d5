package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/bingoserver/auth"
	"github.com/wfunc/bingoserver/broadcast"
	"github.com/wfunc/bingoserver/config"
	"github.com/wfunc/bingoserver/logger"
	"github.com/wfunc/bingoserver/models"
	"github.com/wfunc/bingoserver/monitor"
	"github.com/wfunc/bingoserver/network"
	"github.com/wfunc/bingoserver/pool"
	"github.com/wfunc/bingoserver/room"
	"github.com/wfunc/bingoserver/services"
	"github.com/wfunc/bingoserver/session"
	"github.com/wfunc/bingoserver/timer"

	bingo_rpc "github.com/wfunc/bingoserver/rpc"
)

// Deps 构建游戏服务器所需的依赖
type Deps struct {
	Server    config.ServerConfig
	Game      config.GameConfig
	Signer    *auth.Signer
	Pool      *pool.Pool
	Validator room.WinValidator
	Records   *services.RecordService
	Monitor   *monitor.Monitor
}

type GameServer struct {
	cfg            config.ServerConfig
	upgrader       websocket.Upgrader
	signer         *auth.Signer
	roomManager    *room.Manager
	sessionManager *session.Manager
	hub            *broadcast.Hub
	lifecycle      *Lifecycle
	records        *services.RecordService
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	rpcServer      *bingo_rpc.Server
	httpServer     *http.Server
	mutex          sync.Mutex
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(d Deps) *GameServer {
	if d.Monitor == nil {
		d.Monitor = monitor.NewMonitor("bingo")
	}
	s := &GameServer{
		cfg:            d.Server,
		signer:         d.Signer,
		sessionManager: session.NewManager(),
		records:        d.Records,
		monitor:        d.Monitor,
		timers:         timer.NewTimerManager(0),
		shutdownChan:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// 初始化广播器
	s.hub = broadcast.NewHub(func(roomID, subscriberID string) {
		s.monitor.IncDroppedSubscribers()
	})

	var recorder room.Recorder
	if d.Records != nil {
		recorder = roundRecorder{records: d.Records, monitor: d.Monitor}
	}
	s.roomManager = room.NewRoomManager(room.ManagerConfig{
		Room: room.Options{
			Pool:       d.Pool,
			WinnerCap:  d.Game.WinnerCap,
			MaxPlayers: d.Game.MaxPlayers,
			Validator:  d.Validator,
			Recorder:   recorder,
		},
		Broadcaster: s.hub,
		MaxRooms:    d.Game.MaxRooms,
		IdlePolicy:  room.IdlePolicy(d.Game.IdlePolicy),
		IdleTTL:     d.Game.IdleTTL,
		Timers:      s.timers,
		OnRemove: func(roomID string, remaining int) {
			s.monitor.SetActiveRooms(remaining)
		},
	})
	s.lifecycle = NewLifecycle(s.roomManager, s.hub, s.timers, d.Game.ReconnectGrace)
	return s
}

// roundRecorder counts finished rounds before handing them to storage.
type roundRecorder struct {
	records *services.RecordService
	monitor *monitor.Monitor
}

func (r roundRecorder) Record(rec models.GameRecord) {
	r.monitor.IncRoundsFinished()
	r.records.Record(rec)
}

func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

// Start serves HTTP on the configured address and blocks until shutdown.
func (s *GameServer) Start() error {
	if s.cfg.RPCAddress != "" {
		rpcServer, err := bingo_rpc.NewServer(s.cfg.RPCAddress, s.roomManager)
		if err != nil {
			return err
		}
		s.mutex.Lock()
		s.rpcServer = rpcServer
		s.mutex.Unlock()
		go rpcServer.Start()
	}
	s.monitor.StartServer(s.cfg.MetricsAddress)

	srv := &http.Server{
		Addr:              s.cfg.HTTPAddress,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mutex.Lock()
	s.httpServer = srv
	s.mutex.Unlock()

	logger.Log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes every session and stops the
// background servers.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)

		s.mutex.Lock()
		httpServer, rpcServer := s.httpServer, s.rpcServer
		s.mutex.Unlock()

		if httpServer != nil {
			err = httpServer.Shutdown(ctx)
		}
		s.sessionManager.CloseAll()
		if rpcServer != nil {
			rpcServer.Stop()
		}
		if mErr := s.monitor.Shutdown(ctx); mErr != nil && err == nil {
			err = mErr
		}
		s.timers.Stop()
	})
	return err
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// 升级之前校验令牌
	identity, err := s.signer.Authenticate(r)
	if err != nil {
		logger.Log.Infow("websocket rejected", "remote", r.RemoteAddr, "err", err)
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn, identity)
}

func (s *GameServer) handleConnection(conn *websocket.Conn, identity auth.Identity) {
	wsConn := network.NewWSConnection(conn)
	if s.cfg.Heartbeat > 0 {
		wsConn.SetHeartbeat(s.cfg.Heartbeat)
	}
	sess := session.NewSession(uuid.New().String(), wsConn, s.cfg.WriteQueue)
	sess.Identity = identity
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()
	go sess.WritePump()

	logger.Log.Infof("New connection from %s, session ID: %s, player: %s",
		wsConn.RemoteAddr(), sess.GetID(), identity.DisplayName)

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.lifecycle.Disconnect(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		s.monitor.SetActiveRooms(s.roomManager.Count())
		sess.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		case <-sess.Done():
			return
		default:
		}
		packet, err := wsConn.ReadPacket()
		if err != nil {
			return
		}
		s.handlePacket(sess, packet)
	}
}
