package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/insajin/stuckbar/internal/explorer"
	"github.com/insajin/stuckbar/internal/mcpserver"
	"github.com/insajin/stuckbar/internal/metrics"
	"github.com/insajin/stuckbar/internal/session"
	"github.com/rs/zerolog"
)

// osCall은 테스트 러너가 받은 OS 명령 1건입니다.
type osCall struct {
	op   string
	name string
	at   time.Time
}

// recordingRunner는 실제 프로세스 대신 명령을 기록하는 explorer.Runner입니다.
type recordingRunner struct {
	mu    sync.Mutex
	calls []osCall
	hold  time.Duration
}

func (r *recordingRunner) record(op, name string) {
	r.mu.Lock()
	r.calls = append(r.calls, osCall{op: op, name: name, at: time.Now()})
	r.mu.Unlock()
	if r.hold > 0 {
		time.Sleep(r.hold)
	}
}

func (r *recordingRunner) KillProcess(name string) error {
	r.record("kill", name)
	return nil
}

func (r *recordingRunner) StartProcess(name string) error {
	r.record("start", name)
	return nil
}

func (r *recordingRunner) ops() []osCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]osCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// newTestServer는 기록용 러너를 사용하는 실제 컨트롤러로 MCP 서버를 구성합니다.
func newTestServer(t *testing.T, runner explorer.Runner, settle time.Duration) *mcpserver.Server {
	t.Helper()
	ctrl := explorer.New(runner, explorer.DefaultProcessName, explorer.WithSettleDelay(settle), explorer.WithLogger(zerolog.Nop()))
	m := metrics.NewMetrics()
	registry := mcpserver.NewRegistry(ctrl, mcpserver.WithMetrics(m), mcpserver.WithCallTimeout(5*time.Second))
	return mcpserver.NewServer(registry, session.NewTracker(zerolog.Nop()), m, zerolog.Nop())
}
