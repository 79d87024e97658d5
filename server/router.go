package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wfunc/bingoserver/errs"
	"github.com/wfunc/bingoserver/logger"
	"github.com/wfunc/bingoserver/room"
)

// Router 对外 HTTP 入口
func (s *GameServer) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"rooms":    s.roomManager.Count(),
			"sessions": s.sessionManager.Count(),
		})
	})

	r.Post("/room", s.handleRegister)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/rooms/{id}", s.handleRoom)
	r.Get("/records", s.handleRecords)

	return r
}

// requestLogger writes one slog line per request. The wrapped writer still
// supports Hijack so websocket upgrades pass through.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		switch {
		case ww.Status() >= 500:
			level = slog.LevelError
		case ww.Status() >= 400:
			level = slog.LevelWarn
		}
		slog.LogAttrs(r.Context(), level, "http_request",
			slog.String("req_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_ip", r.RemoteAddr),
		)
	})
}

type registerRequest struct {
	PlayerName string `json:"playerName"`
	IsHost     bool   `json:"isHost"`
}

type registeredPlayer struct {
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

type registerResponse struct {
	Success bool             `json:"success"`
	Player  registeredPlayer `json:"player"`
	RoomID  string           `json:"roomId"`
	Token   string           `json:"token"`
}

// handleRegister issues a credential and tells the client which room to join.
func (s *GameServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, errs.ErrInvalidPayload)
		return
	}
	name, err := room.ValidateName(req.PlayerName)
	if err != nil {
		writeError(w, err)
		return
	}

	roomID, err := s.roomManager.AllocateID(req.IsHost)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := s.signer.Issue(name, req.IsHost)
	if err != nil {
		logger.Log.Errorw("issue token failed", "player", name, "err", err)
		writeError(w, err)
		return
	}

	logger.Log.Infow("player registered", "player", name, "host", req.IsHost, "room", roomID)
	writeJSON(w, http.StatusOK, registerResponse{
		Success: true,
		Player:  registeredPlayer{Name: name, IsHost: req.IsHost},
		RoomID:  roomID,
		Token:   token,
	})
}

func (s *GameServer) handleRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomManager.GetRoom(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, errs.ErrRoomNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rm.Snapshot())
}

func (s *GameServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.records.Recent(r.Context(), limit)
	if err != nil {
		logger.Log.Errorw("load records failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type errorResponse struct {
	Success bool        `json:"success"`
	Error   *errs.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(err), errorResponse{Error: errs.Public(err)})
}
