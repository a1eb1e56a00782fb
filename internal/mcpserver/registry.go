package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/insajin/stuckbar/internal/explorer"
	"github.com/insajin/stuckbar/internal/logger"
	"github.com/insajin/stuckbar/internal/metrics"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// 도구 이름 상수
const (
	ToolKillExplorer    = "kill_explorer"
	ToolStartExplorer   = "start_explorer"
	ToolRestartExplorer = "restart_explorer"
)

// DefaultCallTimeout은 호출 1건의 기본 대기 한도입니다.
const DefaultCallTimeout = 10 * time.Second

// JSON-RPC 에러 코드. 응답에 실제로 실리는 값입니다.
const (
	// CodeUnknownTool은 mcp-go가 등록되지 않은 도구 호출에 응답하는 코드입니다.
	CodeUnknownTool = mcp.INVALID_PARAMS
	// CodeInvalidParams는 파라미터 거부 코드입니다.
	// mcp-go는 도구 핸들러 에러를 모두 INTERNAL_ERROR로 감싸므로 이 값을 사용합니다.
	CodeInvalidParams = mcp.INTERNAL_ERROR
)

var (
	// ErrUnknownTool은 등록되지 않은 도구 이름입니다.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidParams는 허용되지 않은 파라미터입니다. 모든 도구는 파라미터가 없습니다.
	ErrInvalidParams = errors.New("invalid params")
	// ErrTimeout은 호출 대기 한도를 넘긴 경우입니다. 진행 중인 작업은 되돌리지 않습니다.
	ErrTimeout = errors.New("tool call timed out")
	// ErrDraining은 종료 중인 Registry에 들어온 호출입니다.
	ErrDraining = errors.New("tool server is shutting down")
)

// ProtocolError는 호출한 세션에만 전달되는 요청 수준 에러입니다.
type ProtocolError struct {
	// Code는 응답에 실리는 JSON-RPC 에러 코드입니다.
	Code    int
	Tool    string
	Message string

	kind error
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// Is는 ErrUnknownTool, ErrInvalidParams와 비교합니다.
func (e *ProtocolError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// Controller는 레지스트리가 호출하는 프로세스 컨트롤러입니다.
type Controller interface {
	Target() string
	SettleDelay() time.Duration
	Kill() explorer.Outcome
	Start() explorer.Outcome
	Restart() explorer.Outcome
}

// Descriptor는 정적 도구 설명입니다.
type Descriptor struct {
	Name        string
	Description string
	Operation   explorer.Operation
	Destructive bool
	Idempotent  bool
}

var descriptors = []Descriptor{
	{
		Name:        ToolKillExplorer,
		Description: "Terminate the Windows Explorer (explorer.exe) process. This will cause the taskbar and desktop to temporarily disappear. Use this when you need to forcefully stop explorer.",
		Operation:   explorer.OpKill,
		Destructive: true,
		Idempotent:  true,
	},
	{
		Name:        ToolStartExplorer,
		Description: "Start the Windows Explorer (explorer.exe) process. This will restore the taskbar and desktop. Use this after killing explorer or if explorer is not running.",
		Operation:   explorer.OpStart,
	},
	{
		Name:        ToolRestartExplorer,
		Description: "Restart Windows Explorer (explorer.exe) by killing and restarting it. This is the recommended fix for a stuck or unresponsive Windows taskbar. The operation includes a brief delay between kill and start.",
		Operation:   explorer.OpRestart,
		Destructive: true,
	},
}

// Registry는 도구 이름을 컨트롤러 작업에 매핑하고 모든 작업을 하나씩 실행합니다.
type Registry struct {
	controller Controller
	timeout    time.Duration
	lock       *semaphore.Weighted
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	draining  atomic.Bool
	drainOnce sync.Once
	drained   chan struct{}
}

// RegistryOption은 Registry 설정 옵션입니다.
type RegistryOption func(*Registry)

// WithCallTimeout은 호출 대기 한도를 설정합니다. 0 이하는 무시됩니다.
func WithCallTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics는 호출 통계를 기록할 Metrics를 설정합니다.
func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithRegistryLogger는 로거를 설정합니다.
func WithRegistryLogger(l zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger.WithComponent(l, "registry")
	}
}

// NewRegistry는 새 Registry를 생성합니다.
func NewRegistry(controller Controller, opts ...RegistryOption) *Registry {
	r := &Registry{
		controller: controller,
		timeout:    DefaultCallTimeout,
		lock:       semaphore.NewWeighted(1),
		metrics:    metrics.NewMetrics(),
		logger:     zerolog.Nop(),
		drained:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Descriptors는 도구 설명의 복사본을 반환합니다.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Lookup은 이름으로 도구 설명을 찾습니다.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Controller는 레지스트리가 사용하는 컨트롤러를 반환합니다.
func (r *Registry) Controller() Controller {
	return r.controller
}

// CallTimeout은 호출 대기 한도를 반환합니다.
func (r *Registry) CallTimeout() time.Duration {
	return r.timeout
}

// Metrics는 호출 통계를 반환합니다.
func (r *Registry) Metrics() *metrics.Metrics {
	return r.metrics
}

// Invoke는 도구를 실행하고 컨트롤러 결과를 그대로 반환합니다.
// 알 수 없는 이름이나 파라미터가 있으면 컨트롤러를 호출하지 않고 *ProtocolError를 반환합니다.
// 대기 한도를 넘기면 ErrTimeout을 반환하며, 이미 시작된 작업은 끝까지 실행됩니다.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (explorer.Outcome, error) {
	callID := uuid.NewString()
	log := logger.WithCall(r.logger, callID, name, sessionID(ctx))
	r.metrics.ToolCalls.Add(1)

	desc, ok := r.Lookup(name)
	if !ok {
		r.metrics.ProtocolErrors.Add(1)
		log.Warn().Msg("알 수 없는 도구 호출")
		return explorer.Outcome{}, &ProtocolError{
			Code:    CodeUnknownTool,
			Tool:    name,
			Message: fmt.Sprintf("unknown tool: %s", name),
			kind:    ErrUnknownTool,
		}
	}
	if len(params) > 0 {
		r.metrics.ProtocolErrors.Add(1)
		log.Warn().Int("params", len(params)).Msg("파라미터가 있는 도구 호출 거부")
		return explorer.Outcome{}, &ProtocolError{
			Code:    CodeInvalidParams,
			Tool:    name,
			Message: fmt.Sprintf("tool %s takes no parameters", name),
			kind:    ErrInvalidParams,
		}
	}

	if r.draining.Load() {
		log.Warn().Msg("종료 중 도구 호출 거부")
		return explorer.Outcome{}, fmt.Errorf("%w: %s not started", ErrDraining, name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	started := time.Now()

	if err := r.lock.Acquire(ctx, 1); err != nil {
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.metrics.ToolFailures.Add(1)
		}
		return explorer.Outcome{}, r.abandon(ctx, log, name, started)
	}
	log.Debug().Dur("waited", time.Since(started)).Msg("작업 잠금 획득")

	done := make(chan explorer.Outcome, 1)
	go func() {
		defer r.lock.Release(1)
		done <- r.run(desc.Operation)
	}()

	select {
	case out := <-done:
		r.record(out, time.Since(started))
		log.Info().
			Str("operation_id", out.ID).
			Bool("success", out.Success).
			Bool("degraded", out.Degraded).
			Dur("duration", out.Duration()).
			Msg("도구 호출 완료")
		return out, nil
	case <-ctx.Done():
		go func() {
			out := <-done
			r.recordOutcome(out)
			log.Warn().
				Str("operation_id", out.ID).
				Bool("success", out.Success).
				Str("message", out.Message).
				Msg("시간 초과 후 작업 완료")
		}()
		return explorer.Outcome{}, r.abandon(ctx, log, name, started)
	}
}

// Drain은 새 호출을 거부하고 진행 중인 작업이 끝날 때까지 기다립니다.
// 대기 한도를 넘겨 응답 없이 남은 작업도 포함됩니다. 여러 번 호출해도 안전합니다.
func (r *Registry) Drain(ctx context.Context) error {
	r.draining.Store(true)
	r.drainOnce.Do(func() {
		go func() {
			// 잠금을 돌려주지 않으므로 이후 작업은 시작되지 않음
			if err := r.lock.Acquire(context.Background(), 1); err == nil {
				close(r.drained)
			}
		}()
	})

	select {
	case <-r.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("작업 종료 대기 중단: %w", ctx.Err())
	}
}

// abandon은 대기 중단을 기록하고 반환할 에러를 만듭니다.
func (r *Registry) abandon(ctx context.Context, log zerolog.Logger, name string, started time.Time) error {
	r.metrics.RecordLatency(time.Since(started))
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.metrics.ToolTimeouts.Add(1)
		log.Warn().Dur("timeout", r.timeout).Msg("도구 호출 시간 초과")
		return fmt.Errorf("%w: %s did not finish within %s", ErrTimeout, name, r.timeout)
	}
	log.Warn().Err(ctx.Err()).Msg("도구 호출 취소")
	return fmt.Errorf("%s cancelled: %w", name, ctx.Err())
}

func (r *Registry) run(op explorer.Operation) explorer.Outcome {
	switch op {
	case explorer.OpKill:
		return r.controller.Kill()
	case explorer.OpStart:
		return r.controller.Start()
	default:
		return r.controller.Restart()
	}
}

func (r *Registry) record(out explorer.Outcome, latency time.Duration) {
	r.metrics.RecordLatency(latency)
	r.recordOutcome(out)
}

// recordOutcome은 작업 결과를 집계합니다. 응답이 나간 뒤 끝난 작업도 여기로 옵니다.
func (r *Registry) recordOutcome(out explorer.Outcome) {
	r.metrics.RecordOperation(string(out.Operation))
	switch {
	case !out.Success:
		r.metrics.ToolFailures.Add(1)
	case out.Degraded:
		r.metrics.ToolSuccesses.Add(1)
		r.metrics.ToolDegraded.Add(1)
	default:
		r.metrics.ToolSuccesses.Add(1)
	}
}

func sessionID(ctx context.Context) string {
	if s := server.ClientSessionFromContext(ctx); s != nil {
		return s.SessionID()
	}
	return ""
}
