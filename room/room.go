// room/room.go
package room

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wfunc/bingoserver/auth"
	"github.com/wfunc/bingoserver/errs"
	"github.com/wfunc/bingoserver/logger"
	"github.com/wfunc/bingoserver/models"
	"github.com/wfunc/bingoserver/network"
	"github.com/wfunc/bingoserver/pool"
	"github.com/wfunc/bingoserver/state"
)

const maxNameLength = 32

// Options 房间的游戏参数
type Options struct {
	Pool       *pool.Pool
	WinnerCap  int
	MaxPlayers int
	Validator  WinValidator
	Recorder   Recorder
	// Rand drives server side draws. Only used under the room lock.
	Rand *rand.Rand
}

func (o Options) withDefaults() Options {
	if o.Pool == nil {
		o.Pool = pool.Standard()
	}
	if o.WinnerCap < 1 {
		o.WinnerCap = 1
	}
	if o.MaxPlayers < 1 {
		o.MaxPlayers = 100
	}
	if o.Validator == nil {
		o.Validator = AcceptAll{}
	}
	return o
}

// Room 是游戏房间的核心结构。所有操作在 mutex 下串行执行，广播也在锁内发出，
// 因此每个订阅者看到的事件顺序与状态变更顺序一致。
type Room struct {
	ID        string
	CreatedAt time.Time

	opts        Options
	broadcaster Broadcaster
	machine     *state.BaseStateMachine

	players []*models.Player // join order
	called  []models.CalledNumber
	current *models.CalledNumber
	winners []models.WinClaim

	startedAt time.Time
	finished  *models.GameRecord // handed to the recorder after unlock
	mutex     sync.Mutex
}

// NewRoom 创建一个新房间，初始为 waiting
func NewRoom(id string, opts Options, broadcaster Broadcaster) *Room {
	r := &Room{
		ID:          id,
		CreatedAt:   time.Now(),
		opts:        opts.withDefaults(),
		broadcaster: broadcaster,
	}
	r.machine = state.NewRoomMachine(roomContext{r})
	return r
}

// --- state.RoomContext, called with the room locked ---

type roomContext struct {
	r *Room
}

func (c roomContext) GetID() string                 { return c.r.ID }
func (c roomContext) ClearRound()                   { c.r.clearRoundLocked() }
func (c roomContext) Snapshot() models.RoomSnapshot { return c.r.snapshotLocked() }
func (c roomContext) Emit(msgID uint16, payload any) {
	c.r.emit(msgID, payload)
}

func (r *Room) emit(msgID uint16, payload any) {
	if r.broadcaster == nil {
		return
	}
	if err := r.broadcaster.BroadcastToRoom(r.ID, msgID, payload); err != nil {
		logger.Log.Errorw("broadcast failed", "room", r.ID, "event", network.MsgName(msgID), "err", err)
	}
}

func (r *Room) emitUpdate() {
	r.emit(network.MsgTypeRoomUpdate, r.snapshotLocked())
}

// run executes fn under the lock and passes a finished round to the
// recorder once the lock is released.
func (r *Room) run(fn func() error) error {
	r.mutex.Lock()
	err := fn()
	rec := r.finished
	r.finished = nil
	r.mutex.Unlock()

	if rec != nil && r.opts.Recorder != nil {
		r.opts.Recorder.Record(*rec)
	}
	return err
}

func (r *Room) status() models.Status {
	return r.machine.GetCurrentState().GetID()
}

func (r *Room) find(playerID string) *models.Player {
	for _, p := range r.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) host(playerID string) (*models.Player, error) {
	p := r.find(playerID)
	if p == nil {
		return nil, errs.ErrNotInRoom
	}
	if err := auth.RequireHost(*p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Room) clearRoundLocked() {
	r.called = nil
	r.current = nil
	r.winners = nil
	r.startedAt = time.Time{}
}

func (r *Room) snapshotLocked() models.RoomSnapshot {
	snap := models.RoomSnapshot{
		ID:            r.ID,
		Players:       make([]models.Player, len(r.players)),
		CalledNumbers: make([]models.CalledNumber, len(r.called)),
		Winners:       make([]models.WinClaim, len(r.winners)),
		Status:        r.status(),
	}
	for i, p := range r.players {
		snap.Players[i] = *p
	}
	copy(snap.CalledNumbers, r.called)
	copy(snap.Winners, r.winners)
	if r.current != nil {
		cur := *r.current
		snap.CurrentNumber = &cur
	}
	return snap
}

func (r *Room) finishLocked() {
	if err := r.machine.ChangeState(state.NewFinishedState(roomContext{r})); err != nil {
		logger.Log.Errorw("finish round", "room", r.ID, "err", err)
		return
	}
	snap := r.snapshotLocked()
	r.finished = &models.GameRecord{
		RoomID:        r.ID,
		Players:       snap.Players,
		CalledNumbers: snap.CalledNumbers,
		Winners:       snap.Winners,
		StartedAt:     r.startedAt,
		FinishedAt:    time.Now(),
	}
}

// ValidateName trims and checks a display name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", errs.ErrInvalidName
	}
	return name, nil
}

// --- 房间核心逻辑 ---

// Join seats a new player. The first player of an empty room becomes host;
// everyone else joins as a regular player whatever they asked for.
func (r *Room) Join(name string) (player models.Player, snap models.RoomSnapshot, err error) {
	name, err = ValidateName(name)
	if err != nil {
		return player, snap, err
	}

	err = r.run(func() error {
		st := r.status()
		switch {
		case st == models.StatusWaiting:
		case len(r.players) == 0:
			// 房间空置后的下一位玩家开启新一局
			if err := r.machine.ChangeState(state.NewWaitingState(roomContext{r})); err != nil {
				return fmt.Errorf("%w: %v", errs.ErrInternal, err)
			}
		case st == models.StatusPlaying:
			return errs.ErrGameInProgress
		default:
			return errs.ErrGameFinished
		}
		if len(r.players) >= r.opts.MaxPlayers {
			return errs.ErrRoomFull
		}

		p := &models.Player{
			ID:        uuid.NewString(),
			Name:      name,
			IsHost:    len(r.players) == 0,
			Connected: true,
		}
		r.players = append(r.players, p)
		player = *p

		r.emitUpdate()
		snap = r.snapshotLocked()
		return nil
	})
	return player, snap, err
}

// Start moves waiting -> playing. Host only.
func (r *Room) Start(playerID string) error {
	return r.run(func() error {
		if _, err := r.host(playerID); err != nil {
			return err
		}
		if r.status() != models.StatusWaiting {
			return errs.ErrGameNotWaiting
		}

		r.startedAt = time.Now()
		if err := r.machine.ChangeState(state.NewPlayingState(roomContext{r})); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrInternal, err)
		}
		r.emitUpdate()
		return nil
	})
}

// CallNumber appends a number to the history. A zero value asks the server
// to draw one; an empty category is filled in from the pool.
func (r *Room) CallNumber(playerID string, number models.CalledNumber) (called models.CalledNumber, err error) {
	err = r.run(func() error {
		if _, err := r.host(playerID); err != nil {
			return err
		}
		switch r.status() {
		case models.StatusPlaying:
		case models.StatusFinished:
			return errs.ErrGameFinished
		default:
			return errs.ErrGameNotPlaying
		}

		if number.Value == 0 {
			n, ok := r.opts.Pool.Draw(r.called, r.opts.Rand)
			if !ok {
				return errs.ErrPoolExhausted
			}
			number = n
		} else {
			entry, ok := r.opts.Pool.Lookup(number.Value)
			if !ok {
				return errs.ErrUnknownNumber
			}
			if number.Category != "" && number.Category != entry.Category {
				return errs.ErrCategoryMismatch
			}
			number = entry
		}
		for _, c := range r.called {
			if c.Value == number.Value {
				return errs.ErrNumberAlreadyCalled
			}
		}

		r.called = append(r.called, number)
		cur := number
		r.current = &cur
		called = number

		r.emit(network.MsgTypeNumberCalled, number)
		r.emitUpdate()

		if len(r.called) >= r.opts.Pool.Size() {
			r.finishLocked()
			r.emitUpdate()
		}
		return nil
	})
	return called, err
}

// ClaimWin records a win for playerID if the validator accepts it. A
// rejected claim changes nothing and reports false.
func (r *Room) ClaimWin(playerID, pattern string, marked []int) (accepted bool, err error) {
	err = r.run(func() error {
		p := r.find(playerID)
		if p == nil {
			return errs.ErrNotInRoom
		}
		switch r.status() {
		case models.StatusPlaying:
		case models.StatusFinished:
			return errs.ErrGameFinished
		default:
			return errs.ErrGameNotPlaying
		}
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			return errs.ErrInvalidPattern
		}
		for _, w := range r.winners {
			if w.PlayerID == playerID {
				return errs.ErrDuplicateClaim
			}
		}

		called := make([]models.CalledNumber, len(r.called))
		copy(called, r.called)
		ok, err := r.validate(WinCheck{PlayerID: playerID, Pattern: pattern, Marked: marked, Called: called})
		if err != nil || !ok {
			return err
		}

		claim := models.WinClaim{PlayerID: p.ID, PlayerName: p.Name, Pattern: pattern}
		r.winners = append(r.winners, claim)
		accepted = true

		r.emit(network.MsgTypeWinClaimed, claim)
		if len(r.winners) >= r.opts.WinnerCap {
			r.finishLocked()
		}
		r.emitUpdate()
		return nil
	})
	return accepted, err
}

func (r *Room) validate(check WinCheck) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Log.Errorw("win validator panicked", "room", r.ID, "player", check.PlayerID, "panic", p)
			ok, err = false, fmt.Errorf("%w: win validator: %v", errs.ErrInternal, p)
		}
	}()
	return r.opts.Validator.Validate(check), nil
}

// Reset returns the room to waiting with an empty round. Calling it while
// already waiting is a no-op apart from the broadcasts. A null win_claimed
// tells clients to clear the last winner.
func (r *Room) Reset(playerID string) error {
	return r.run(func() error {
		if _, err := r.host(playerID); err != nil {
			return err
		}
		if r.status() == models.StatusWaiting {
			r.clearRoundLocked()
		} else if err := r.machine.ChangeState(state.NewWaitingState(roomContext{r})); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrInternal, err)
		}
		r.emit(network.MsgTypeWinClaimed, nil)
		r.emitUpdate()
		return nil
	})
}

// Leave removes a seat. If the host leaves, the earliest remaining player
// is promoted. It returns the number of seats left.
func (r *Room) Leave(playerID string) (remaining int, err error) {
	err = r.run(func() error {
		remaining, err = r.leaveLocked(playerID)
		return err
	})
	return remaining, err
}

func (r *Room) leaveLocked(playerID string) (int, error) {
	idx := -1
	for i, p := range r.players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return len(r.players), errs.ErrNotInRoom
	}

	wasHost := r.players[idx].IsHost
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	if wasHost && len(r.players) > 0 {
		r.players[0].IsHost = true
	}
	if len(r.players) > 0 {
		r.emitUpdate()
	}
	return len(r.players), nil
}

// Hold keeps a disconnected player's seat open.
func (r *Room) Hold(playerID string) error {
	return r.run(func() error {
		p := r.find(playerID)
		if p == nil {
			return errs.ErrNotInRoom
		}
		if !p.Connected {
			return nil
		}
		p.Connected = false
		r.emitUpdate()
		return nil
	})
}

// Expire removes a held seat. A seat that was resumed meanwhile is kept and
// ok is false.
func (r *Room) Expire(playerID string) (remaining int, ok bool, err error) {
	err = r.run(func() error {
		p := r.find(playerID)
		if p == nil {
			remaining = len(r.players)
			return errs.ErrNotInRoom
		}
		if p.Connected {
			remaining = len(r.players)
			return nil
		}
		ok = true
		remaining, err = r.leaveLocked(playerID)
		return err
	})
	return remaining, ok, err
}

// Resume reattaches a connection to a held seat. The name must match the
// one the seat was created with.
func (r *Room) Resume(playerID, name string) (player models.Player, snap models.RoomSnapshot, err error) {
	err = r.run(func() error {
		p := r.find(playerID)
		if p == nil || p.Connected {
			return errs.ErrSeatNotResumable
		}
		if strings.TrimSpace(name) != p.Name {
			return errs.ErrNameMismatch
		}
		p.Connected = true
		player = *p

		r.emitUpdate()
		snap = r.snapshotLocked()
		return nil
	})
	return player, snap, err
}

// Snapshot returns a copy of the room state.
func (r *Room) Snapshot() models.RoomSnapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.snapshotLocked()
}

func (r *Room) Status() models.Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.status()
}

func (r *Room) PlayerCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.players)
}
