package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/bingoserver/errs"
	"github.com/wfunc/bingoserver/logger"
	"github.com/wfunc/bingoserver/models"
	"github.com/wfunc/bingoserver/room"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers the admin services. Each Server
// has its own net/rpc registry.
func NewServer(addr string, rooms *room.Manager) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("RoomService", NewRoomService(rooms)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomService exposes read-only room state to operators.
type RoomService struct {
	rooms *room.Manager
}

func NewRoomService(rooms *room.Manager) *RoomService {
	return &RoomService{rooms: rooms}
}

// It must follow the net/rpc signature: exported method, exported arguments,
// second argument is a pointer, return type is error.
type SnapshotArgs struct {
	RoomID string
}

type SnapshotReply struct {
	Room models.RoomSnapshot
}

func (rs *RoomService) Snapshot(args *SnapshotArgs, reply *SnapshotReply) error {
	r, ok := rs.rooms.GetRoom(args.RoomID)
	if !ok {
		return errs.ErrRoomNotFound
	}
	reply.Room = r.Snapshot()
	return nil
}

type ListArgs struct{}

type RoomSummary struct {
	ID      string
	Status  models.Status
	Players int
	Called  int
}

type ListReply struct {
	Rooms []RoomSummary
}

func (rs *RoomService) List(_ *ListArgs, reply *ListReply) error {
	for _, r := range rs.rooms.Rooms() {
		snap := r.Snapshot()
		reply.Rooms = append(reply.Rooms, RoomSummary{
			ID:      snap.ID,
			Status:  snap.Status,
			Players: len(snap.Players),
			Called:  len(snap.CalledNumbers),
		})
	}
	return nil
}
