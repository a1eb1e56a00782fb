// Package session은 트랜스포트 세션의 수명 주기(Idle → Ready → Closed)를 추적합니다.
// stdio와 HTTP/SSE 세션 모두 mcp-go 훅을 통해 같은 Tracker로 보고됩니다.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// State는 세션 상태입니다.
type State int

const (
	// Idle은 연결되었지만 핸드셰이크(initialize) 전 상태입니다.
	Idle State = iota
	// Ready는 핸드셰이크가 끝나 요청을 처리할 수 있는 상태입니다.
	Ready
	// Closed는 종료된 상태입니다. 다른 상태로 전이할 수 없습니다.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText는 JSON 출력 시 상태 이름을 사용하도록 합니다.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrUnknownSession은 등록되지 않은 세션 ID입니다.
	ErrUnknownSession = errors.New("unknown session")
	// ErrDuplicateSession은 이미 등록된 세션 ID입니다.
	ErrDuplicateSession = errors.New("session already exists")
	// ErrInvalidTransition은 허용되지 않은 상태 전이입니다.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// Info는 세션 상태 스냅샷입니다.
type Info struct {
	ID        string    `json:"id"`
	Transport string    `json:"transport"`
	State     State     `json:"state"`
	OpenedAt  time.Time `json:"opened_at"`
	ReadyAt   time.Time `json:"ready_at,omitempty"`
	ClosedAt  time.Time `json:"closed_at,omitempty"`
}

// TransportNamer는 세션이 속한 트랜스포트 이름을 알려주는 선택 인터페이스입니다.
type TransportNamer interface {
	TransportName() string
}

// maxClosedRetained는 상태 리소스 조회를 위해 보관하는 종료된 세션 수입니다.
const maxClosedRetained = 64

// DefaultTransportName은 TransportNamer를 구현하지 않는 세션(mcp-go SSE 세션)의 이름입니다.
const DefaultTransportName = "http"

// Listener는 세션 상태 변화 알림을 받습니다.
type Listener func(info Info)

// Tracker는 모든 트랜스포트의 세션 상태를 보관합니다.
type Tracker struct {
	mu        sync.RWMutex
	sessions  map[string]*Info
	listeners []Listener
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTracker는 새 Tracker를 생성합니다.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		sessions: make(map[string]*Info),
		logger:   logger.With().Str("component", "session").Logger(),
		now:      time.Now,
	}
}

// OnChange는 상태 변화 리스너를 추가합니다.
func (t *Tracker) OnChange(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Open은 새 세션을 Idle 상태로 등록합니다.
func (t *Tracker) Open(id, transport string) error {
	t.mu.Lock()
	if _, exists := t.sessions[id]; exists {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	info := &Info{ID: id, Transport: transport, State: Idle, OpenedAt: t.now()}
	t.sessions[id] = info
	snapshot, listeners := *info, t.listeners
	t.mu.Unlock()

	t.logger.Debug().Str("session_id", id).Str("transport", transport).Msg("세션 연결")
	notify(listeners, snapshot)
	return nil
}

// MarkReady는 Idle 세션을 Ready로 전이합니다. 이미 Ready면 아무것도 하지 않습니다.
func (t *Tracker) MarkReady(id string) error {
	return t.transition(id, Ready)
}

// Close는 세션을 Closed로 전이합니다. 이미 Closed면 아무것도 하지 않습니다.
func (t *Tracker) Close(id string) error {
	return t.transition(id, Closed)
}

func (t *Tracker) transition(id string, to State) error {
	t.mu.Lock()
	info, ok := t.sessions[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	from := info.State
	if from == to {
		t.mu.Unlock()
		return nil
	}
	if from == Closed || to < from {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, from, to, id)
	}

	info.State = to
	switch to {
	case Ready:
		info.ReadyAt = t.now()
	case Closed:
		info.ClosedAt = t.now()
		t.pruneClosedLocked()
	}
	snapshot, listeners := *info, t.listeners
	t.mu.Unlock()

	t.logger.Debug().
		Str("session_id", id).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("세션 상태 전이")
	notify(listeners, snapshot)
	return nil
}

// pruneClosedLocked는 오래된 Closed 세션을 제거합니다. t.mu를 잡은 상태에서 호출해야 합니다.
func (t *Tracker) pruneClosedLocked() {
	var closed []*Info
	for _, info := range t.sessions {
		if info.State == Closed {
			closed = append(closed, info)
		}
	}
	if len(closed) <= maxClosedRetained {
		return
	}
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].ClosedAt.Before(closed[j].ClosedAt)
	})
	for _, info := range closed[:len(closed)-maxClosedRetained] {
		delete(t.sessions, info.ID)
	}
}

// Get은 세션 스냅샷을 반환합니다.
func (t *Tracker) Get(id string) (Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.sessions[id]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// List는 열린 시각 순서로 정렬된 모든 세션 스냅샷을 반환합니다.
func (t *Tracker) List() []Info {
	t.mu.RLock()
	out := make([]Info, 0, len(t.sessions))
	for _, info := range t.sessions {
		out = append(out, *info)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Counts는 상태별 세션 수를 반환합니다.
func (t *Tracker) Counts() map[string]int {
	counts := map[string]int{Idle.String(): 0, Ready.String(): 0, Closed.String(): 0}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, info := range t.sessions {
		counts[info.State.String()]++
	}
	return counts
}

// Hooks는 mcp-go 서버 훅에 Tracker를 연결합니다.
// 세션 등록 → Idle, initialize 완료 → Ready, 등록 해제 → Closed.
func (t *Tracker) Hooks(hooks *server.Hooks) *server.Hooks {
	if hooks == nil {
		hooks = &server.Hooks{}
	}

	hooks.AddOnRegisterSession(func(ctx context.Context, s server.ClientSession) {
		if err := t.Open(s.SessionID(), transportName(s)); err != nil {
			t.logger.Warn().Err(err).Msg("세션 등록 실패")
		}
	})

	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		s := server.ClientSessionFromContext(ctx)
		if s == nil {
			return
		}
		if err := t.MarkReady(s.SessionID()); err != nil {
			t.logger.Warn().Err(err).Msg("세션 Ready 전이 실패")
		}
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, s server.ClientSession) {
		if err := t.Close(s.SessionID()); err != nil {
			t.logger.Warn().Err(err).Msg("세션 종료 처리 실패")
		}
	})

	return hooks
}

func transportName(s server.ClientSession) string {
	if n, ok := s.(TransportNamer); ok {
		return n.TransportName()
	}
	return DefaultTransportName
}

func notify(listeners []Listener, info Info) {
	for _, l := range listeners {
		l(info)
	}
}
