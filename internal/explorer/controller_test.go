package explorer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeRunner는 OS 호출을 기록하는 테스트용 Runner입니다.
type fakeRunner struct {
	mu        sync.Mutex
	killErrs  []error
	startErrs []error
	calls     []call
}

type call struct {
	op   Operation
	name string
	at   time.Time
}

func (f *fakeRunner) KillProcess(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: OpKill, name: name, at: time.Now()})
	return pop(&f.killErrs)
}

func (f *fakeRunner) StartProcess(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: OpStart, name: name, at: time.Now()})
	return pop(&f.startErrs)
}

func (f *fakeRunner) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func newTestController(r Runner, opts ...Option) *Controller {
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return New(r, "", opts...)
}

var errAbsent = fmt.Errorf("%w: ERROR: The process \"explorer.exe\" not found.", ErrProcessAbsent)

// TestNew_Defaults는 기본 대상과 대기 시간을 테스트합니다.
func TestNew_Defaults(t *testing.T) {
	c := newTestController(&fakeRunner{})

	if c.Target() != DefaultProcessName {
		t.Errorf("Target() = %q, want %q", c.Target(), DefaultProcessName)
	}
	if c.SettleDelay() != DefaultSettleDelay {
		t.Errorf("SettleDelay() = %v, want %v", c.SettleDelay(), DefaultSettleDelay)
	}

	custom := New(&fakeRunner{}, "shell.exe", WithSettleDelay(time.Second), WithLogger(zerolog.Nop()))
	if custom.Target() != "shell.exe" || custom.SettleDelay() != time.Second {
		t.Errorf("사용자 지정 설정이 반영되지 않았습니다: %q %v", custom.Target(), custom.SettleDelay())
	}
}

// TestKill_Success는 정상 종료를 테스트합니다.
func TestKill_Success(t *testing.T) {
	r := &fakeRunner{}
	out := newTestController(r).Kill()

	if !out.Success {
		t.Fatalf("성공해야 합니다: %+v", out)
	}
	if out.Operation != OpKill || out.ID == "" {
		t.Errorf("Operation/ID가 설정되어야 합니다: %+v", out)
	}
	if !strings.Contains(out.Message, "Successfully terminated explorer.exe") {
		t.Errorf("Message = %q", out.Message)
	}
	calls := r.recorded()
	if len(calls) != 1 || calls[0].name != DefaultProcessName {
		t.Errorf("KillProcess 호출이 기록되어야 합니다: %+v", calls)
	}
}

// TestKill_Idempotent는 프로세스가 없을 때 두 번 연속 Kill이 모두 성공하는지 테스트합니다.
func TestKill_Idempotent(t *testing.T) {
	r := &fakeRunner{killErrs: []error{errAbsent, errAbsent}}
	c := newTestController(r)

	for i := 0; i < 2; i++ {
		out := c.Kill()
		if !out.Success {
			t.Fatalf("%d번째 Kill이 성공해야 합니다: %+v", i+1, out)
		}
		if !errors.Is(out.Err, ErrProcessAbsent) {
			t.Errorf("정보성 ErrProcessAbsent가 남아야 합니다: %v", out.Err)
		}
		if !strings.Contains(out.Message, "was not running") {
			t.Errorf("Message = %q", out.Message)
		}
	}
}

// TestKill_CommandFailure는 명령 실행 실패를 테스트합니다.
func TestKill_CommandFailure(t *testing.T) {
	cmdErr := &CommandError{Command: "taskkill /F /IM explorer.exe", Output: "ERROR: Access is denied.", ExitCode: 1, Err: errors.New("exit status 1")}
	out := newTestController(&fakeRunner{killErrs: []error{cmdErr}}).Kill()

	if out.Success {
		t.Fatal("실패해야 합니다")
	}
	if !strings.Contains(out.Message, "Access is denied") {
		t.Errorf("진단 텍스트가 메시지에 포함되어야 합니다: %q", out.Message)
	}
	var got *CommandError
	if !errors.As(out.Err, &got) {
		t.Errorf("*CommandError여야 합니다: %T", out.Err)
	}
}

// TestStart는 시작 성공/실패를 테스트합니다.
func TestStart(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantSuccess bool
		wantMsg     string
	}{
		{name: "시작 성공", err: nil, wantSuccess: true, wantMsg: "Successfully started explorer.exe"},
		{
			name:        "실행 파일 없음",
			err:         &CommandError{Command: "explorer.exe", ExitCode: -1, Err: errors.New("executable file not found in %PATH%")},
			wantSuccess: false,
			wantMsg:     "Error starting explorer.exe: executable file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{}
			if tt.err != nil {
				r.startErrs = []error{tt.err}
			}
			out := newTestController(r).Start()
			if out.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", out.Success, tt.wantSuccess)
			}
			if !strings.Contains(out.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want contains %q", out.Message, tt.wantMsg)
			}
		})
	}
}

// TestStart_NoLivenessCheck는 Start가 실행 여부를 확인하지 않고 매번 실행하는지 테스트합니다.
func TestStart_NoLivenessCheck(t *testing.T) {
	r := &fakeRunner{}
	c := newTestController(r)

	c.Start()
	c.Start()

	calls := r.recorded()
	if len(calls) != 2 {
		t.Fatalf("StartProcess가 두 번 호출되어야 합니다: %d", len(calls))
	}
	for _, cl := range calls {
		if cl.op != OpStart {
			t.Errorf("Start 외 호출이 있으면 안됩니다: %+v", cl)
		}
	}
}

// TestRestart_Matrix는 kill/start 결과 조합별 restart 결과를 테스트합니다.
func TestRestart_Matrix(t *testing.T) {
	killFail := &CommandError{Command: "taskkill", Output: "kill boom", ExitCode: 1, Err: errors.New("exit status 1")}
	startFail := &CommandError{Command: "explorer.exe", ExitCode: -1, Err: errors.New("start boom")}

	tests := []struct {
		name         string
		killErr      error
		startErr     error
		wantSuccess  bool
		wantDegraded bool
		wantMsg      string
	}{
		{name: "둘 다 성공", wantSuccess: true, wantMsg: "restarted successfully"},
		{name: "프로세스 없음 후 시작", killErr: errAbsent, wantSuccess: true, wantMsg: "restarted successfully"},
		{name: "kill 실패, start 성공", killErr: killFail, wantSuccess: true, wantDegraded: true, wantMsg: "kill boom"},
		{name: "kill 성공, start 실패", startErr: startFail, wantSuccess: false, wantMsg: "start boom"},
		{name: "둘 다 실패", killErr: killFail, startErr: startFail, wantSuccess: false, wantMsg: "Failed to terminate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{}
			if tt.killErr != nil {
				r.killErrs = []error{tt.killErr}
			}
			if tt.startErr != nil {
				r.startErrs = []error{tt.startErr}
			}
			c := newTestController(r)
			c.sleep = func(time.Duration) {}

			out := c.Restart()
			if out.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v (%s)", out.Success, tt.wantSuccess, out.Message)
			}
			if out.Degraded != tt.wantDegraded {
				t.Errorf("Degraded = %v, want %v", out.Degraded, tt.wantDegraded)
			}
			if !strings.Contains(out.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want contains %q", out.Message, tt.wantMsg)
			}
			if len(out.Steps) != 2 || out.Steps[0].Operation != OpKill || out.Steps[1].Operation != OpStart {
				t.Errorf("Steps는 kill, start 순서여야 합니다: %+v", out.Steps)
			}
			// kill 실패 여부와 관계없이 start는 항상 시도
			if calls := r.recorded(); len(calls) != 2 {
				t.Errorf("kill과 start가 모두 호출되어야 합니다: %+v", calls)
			}
		})
	}
}

// TestRestart_SettleDelay는 start가 kill 후 대기 시간이 지난 뒤에만 호출되는지 테스트합니다.
func TestRestart_SettleDelay(t *testing.T) {
	r := &fakeRunner{}
	var slept []time.Duration
	c := newTestController(r, WithSettleDelay(30*time.Millisecond))
	c.sleep = func(d time.Duration) {
		slept = append(slept, d)
		time.Sleep(d)
	}

	out := c.Restart()
	if !out.Success {
		t.Fatalf("성공해야 합니다: %+v", out)
	}
	if len(slept) != 1 || slept[0] != 30*time.Millisecond {
		t.Errorf("settle delay로 한 번 대기해야 합니다: %v", slept)
	}

	calls := r.recorded()
	if len(calls) != 2 || calls[0].op != OpKill || calls[1].op != OpStart {
		t.Fatalf("kill 후 start 순서여야 합니다: %+v", calls)
	}
	if gap := calls[1].at.Sub(calls[0].at); gap < 30*time.Millisecond {
		t.Errorf("start가 대기 시간 전에 호출되었습니다: %v", gap)
	}
}

// progressEvent는 Progress 알림 또는 OS 호출 하나입니다.
type progressEvent struct {
	kind string
	op   Operation
	at   time.Time
}

// eventLog는 Progress 알림과 OS 호출을 한 타임라인에 기록합니다.
type eventLog struct {
	mu     sync.Mutex
	events []progressEvent
}

func (l *eventLog) add(kind string, op Operation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, progressEvent{kind: kind, op: op, at: time.Now()})
}

func (l *eventLog) StepStarted(op Operation) { l.add("started", op) }
func (l *eventLog) StepFinished(out Outcome) { l.add("finished", out.Operation) }

type loggingRunner struct{ log *eventLog }

func (r loggingRunner) KillProcess(string) error {
	r.log.add("os", OpKill)
	return nil
}

func (r loggingRunner) StartProcess(string) error {
	r.log.add("os", OpStart)
	return nil
}

// TestRestart_ProgressIsLive는 단계 알림이 OS 호출 전후에 바로 전달되는지 테스트합니다.
func TestRestart_ProgressIsLive(t *testing.T) {
	events := &eventLog{}
	c := newTestController(loggingRunner{log: events}, WithSettleDelay(30*time.Millisecond), WithProgress(events))

	if out := c.Restart(); !out.Success {
		t.Fatalf("성공해야 합니다: %+v", out)
	}

	want := []progressEvent{
		{kind: "started", op: OpKill},
		{kind: "os", op: OpKill},
		{kind: "finished", op: OpKill},
		{kind: "started", op: OpStart},
		{kind: "os", op: OpStart},
		{kind: "finished", op: OpStart},
	}
	got := events.events
	if len(got) != len(want) {
		t.Fatalf("이벤트 = %+v", got)
	}
	for i := range want {
		if got[i].kind != want[i].kind || got[i].op != want[i].op {
			t.Errorf("이벤트[%d] = %s/%s, want %s/%s", i, got[i].kind, got[i].op, want[i].kind, want[i].op)
		}
	}
	// start 알림은 kill 완료 후 대기 시간이 지난 뒤
	if gap := got[3].at.Sub(got[2].at); gap < 30*time.Millisecond {
		t.Errorf("kill 완료→start 알림 간격 = %v, want >= 30ms", gap)
	}
}

// TestKill_NoProgress는 단독 kill/start는 단계 알림을 보내지 않는지 테스트합니다.
func TestKill_NoProgress(t *testing.T) {
	events := &eventLog{}
	c := newTestController(loggingRunner{log: events}, WithProgress(events))
	c.Kill()
	c.Start()

	for _, e := range events.events {
		if e.kind != "os" {
			t.Errorf("단계 알림이 없어야 합니다: %+v", e)
		}
	}
}

// TestRestart_DefaultDelayScenario는 실행 중 프로세스 재시작 시 500ms 이상 걸리는지 테스트합니다.
func TestRestart_DefaultDelayScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("short 모드에서는 실제 대기 시간을 건너뜁니다")
	}
	r := &fakeRunner{}
	out := newTestController(r).Restart()

	if !out.Success || !out.Steps[0].Success || !out.Steps[1].Success {
		t.Fatalf("모든 단계가 성공해야 합니다: %+v", out)
	}
	if elapsed := out.Steps[1].StartedAt.Sub(out.Steps[0].FinishedAt); elapsed < DefaultSettleDelay {
		t.Errorf("kill 완료와 start 시작 사이 간격 = %v, want >= %v", elapsed, DefaultSettleDelay)
	}
}
