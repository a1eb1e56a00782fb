// Package explorer는 Windows 셸 프로세스(explorer.exe)의 종료/시작/재시작을 담당합니다.
// 대상 프로세스 이름은 생성 시 한 번 정해지며 이후 변경되지 않습니다.
package explorer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultProcessName은 관리 대상 기본 프로세스입니다.
	DefaultProcessName = "explorer.exe"
	// DefaultSettleDelay는 종료 후 재시작 전 OS 자원 해제를 기다리는 시간입니다.
	DefaultSettleDelay = 500 * time.Millisecond
)

// Operation은 컨트롤러 작업 종류입니다.
type Operation string

const (
	OpKill    Operation = "kill"
	OpStart   Operation = "start"
	OpRestart Operation = "restart"
)

// Outcome은 단일 컨트롤러 작업의 결과입니다. 저장되지 않습니다.
type Outcome struct {
	ID         string    `json:"operation_id"`
	Operation  Operation `json:"operation"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	Degraded   bool      `json:"degraded,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Steps는 restart의 하위 kill/start 결과입니다.
	Steps []Outcome `json:"steps,omitempty"`
	// Err는 실패 원인 또는 정보성 에러(ErrProcessAbsent)입니다.
	Err error `json:"-"`
}

// Duration은 작업 소요 시간을 반환합니다.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Progress는 restart 하위 단계의 시작과 끝을 실행 중에 전달받습니다.
type Progress interface {
	StepStarted(op Operation)
	StepFinished(out Outcome)
}

// Controller는 하나의 이름 있는 프로세스에 대한 수명 주기 작업을 수행합니다.
// 모든 작업은 동기식이며 OS 호출이 끝날 때까지 블로킹됩니다.
// 동시 호출 직렬화는 호출자(mcpserver.Registry)의 책임입니다.
type Controller struct {
	runner      Runner
	target      string
	settleDelay time.Duration
	logger      zerolog.Logger
	progress    Progress

	sleep func(time.Duration)
	now   func() time.Time
}

// Option은 Controller 설정 함수입니다.
type Option func(*Controller)

// WithSettleDelay는 종료와 재시작 사이 대기 시간을 설정합니다.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.settleDelay = d
		}
	}
}

// WithLogger는 컨트롤러 로거를 설정합니다.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithProgress는 restart 단계 알림을 받을 p를 설정합니다.
func WithProgress(p Progress) Option {
	return func(c *Controller) {
		c.progress = p
	}
}

// New는 target 프로세스를 관리하는 Controller를 생성합니다.
// target이 비어 있으면 DefaultProcessName을 사용합니다.
func New(runner Runner, target string, opts ...Option) *Controller {
	if target == "" {
		target = DefaultProcessName
	}
	c := &Controller{
		runner:      runner,
		target:      target,
		settleDelay: DefaultSettleDelay,
		logger:      log.Logger,
		sleep:       time.Sleep,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "explorer").Str("target", target).Logger()
	return c
}

// Target은 관리 대상 프로세스 이름을 반환합니다.
func (c *Controller) Target() string {
	return c.target
}

// SettleDelay는 재시작 대기 시간을 반환합니다.
func (c *Controller) SettleDelay() time.Duration {
	return c.settleDelay
}

// Kill은 대상 프로세스를 강제 종료합니다.
// 프로세스가 이미 없으면 성공으로 처리합니다 (멱등).
func (c *Controller) Kill() Outcome {
	out := c.begin(OpKill)

	err := c.runner.KillProcess(c.target)
	switch {
	case err == nil:
		out.Success = true
		out.Message = fmt.Sprintf("Successfully terminated %s", c.target)
	case errors.Is(err, ErrProcessAbsent):
		out.Success = true
		out.Message = fmt.Sprintf("%s was not running", c.target)
		out.Err = err
	default:
		out.Message = fmt.Sprintf("Failed to terminate %s: %s", c.target, diagnostic(err))
		out.Err = err
	}

	return c.finish(out)
}

// Start는 대상 프로세스를 새로 실행합니다.
// 실행 중인 인스턴스가 있는지 확인하지 않으므로 중복 실행될 수 있습니다.
func (c *Controller) Start() Outcome {
	out := c.begin(OpStart)

	if err := c.runner.StartProcess(c.target); err != nil {
		out.Message = fmt.Sprintf("Error starting %s: %s", c.target, diagnostic(err))
		out.Err = err
	} else {
		out.Success = true
		out.Message = fmt.Sprintf("Successfully started %s", c.target)
	}

	return c.finish(out)
}

// Restart는 Kill, 대기(settle delay), Start 순서로 실행합니다.
// Kill이 실패해도 Start는 항상 시도합니다.
func (c *Controller) Restart() Outcome {
	out := c.begin(OpRestart)

	kill := c.step(OpKill, c.Kill)
	c.sleep(c.settleDelay)
	start := c.step(OpStart, c.Start)
	out.Steps = []Outcome{kill, start}

	switch {
	case kill.Success && start.Success:
		out.Success = true
		out.Message = fmt.Sprintf("%s restarted successfully", c.target)
	case start.Success:
		out.Success = true
		out.Degraded = true
		out.Message = fmt.Sprintf("%s restarted, but termination reported an error: %s", c.target, kill.Message)
		out.Err = kill.Err
	case kill.Success:
		out.Message = start.Message
		out.Err = start.Err
	default:
		// 둘 다 실패하면 kill 실패를 전체 결과로 보고
		out.Message = kill.Message
		out.Err = kill.Err
	}

	return c.finish(out)
}

func (c *Controller) step(op Operation, run func() Outcome) Outcome {
	if c.progress != nil {
		c.progress.StepStarted(op)
	}
	out := run()
	if c.progress != nil {
		c.progress.StepFinished(out)
	}
	return out
}

func (c *Controller) begin(op Operation) Outcome {
	return Outcome{
		ID:        uuid.NewString(),
		Operation: op,
		StartedAt: c.now(),
	}
}

func (c *Controller) finish(out Outcome) Outcome {
	out.FinishedAt = c.now()

	event := c.logger.Info()
	if !out.Success {
		event = c.logger.Warn().Err(out.Err)
	}
	event.
		Str("operation", string(out.Operation)).
		Str("operation_id", out.ID).
		Bool("success", out.Success).
		Bool("degraded", out.Degraded).
		Dur("duration", out.Duration()).
		Msg("[explorer] 작업 완료")

	return out
}

func diagnostic(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Diagnostic()
	}
	return err.Error()
}
