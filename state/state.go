package state

import (
	"errors"
	"sync"

	"github.com/wfunc/bingoserver/models"
	"github.com/wfunc/bingoserver/network"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from, to models.Status, condition func() bool)
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() models.Status
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// 基础状态机实现。未注册的转换一律拒绝。
type BaseStateMachine struct {
	currentState State
	transitions  map[models.Status]map[models.Status]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

// NewBaseStateMachine starts in initialState without calling its OnEnter;
// a freshly created room has nothing to clear or announce.
func NewBaseStateMachine(initialState State) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[models.Status]map[models.Status]func() bool),
	}
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	current := sm.currentState

	conditions, ok := sm.transitions[current.GetID()]
	if !ok {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	condition, ok := conditions[newState.GetID()]
	if !ok || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	sm.currentState = newState
	sm.mutex.Unlock()

	// hooks run outside the machine lock so they may read the state
	current.OnExit()
	newState.OnEnter()
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from, to models.Status, condition func() bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[models.Status]func() bool)
	}
	sm.transitions[from][to] = condition
}

// 房间状态基础结构
type RoomStateBase struct {
	ID   models.Status
	Room RoomContext
}

func (s *RoomStateBase) GetID() models.Status {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {}

func (s *RoomStateBase) OnExit() {}

// WaitingState 等待状态：进入时清空本局数据
type WaitingState struct {
	RoomStateBase
}

func NewWaitingState(room RoomContext) *WaitingState {
	return &WaitingState{RoomStateBase{ID: models.StatusWaiting, Room: room}}
}

func (s *WaitingState) OnEnter() {
	s.Room.ClearRound()
}

// PlayingState 游戏进行状态
type PlayingState struct {
	RoomStateBase
}

func NewPlayingState(room RoomContext) *PlayingState {
	return &PlayingState{RoomStateBase{ID: models.StatusPlaying, Room: room}}
}

func (s *PlayingState) OnEnter() {
	s.Room.Emit(network.MsgTypeGameStarted, s.Room.Snapshot())
}

// FinishedState 游戏结束状态
type FinishedState struct {
	RoomStateBase
}

func NewFinishedState(room RoomContext) *FinishedState {
	return &FinishedState{RoomStateBase{ID: models.StatusFinished, Room: room}}
}

func (s *FinishedState) OnEnter() {
	s.Room.Emit(network.MsgTypeGameFinished, nil)
}

// NewRoomMachine wires the only lifecycle edges a room may take:
// waiting -> playing -> finished, and playing/finished -> waiting on reset.
func NewRoomMachine(room RoomContext) *BaseStateMachine {
	sm := NewBaseStateMachine(NewWaitingState(room))
	sm.AddTransition(models.StatusWaiting, models.StatusPlaying, nil)
	sm.AddTransition(models.StatusPlaying, models.StatusFinished, nil)
	sm.AddTransition(models.StatusPlaying, models.StatusWaiting, nil)
	sm.AddTransition(models.StatusFinished, models.StatusWaiting, nil)
	return sm
}
