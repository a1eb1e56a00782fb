package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/insajin/stuckbar/internal/config"
	"github.com/insajin/stuckbar/internal/explorer"
	"github.com/insajin/stuckbar/internal/platform"
	"github.com/insajin/stuckbar/internal/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner는 OS 명령 대신 호출을 기록합니다.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	killErr  error
	startErr error
}

func (r *fakeRunner) KillProcess(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "kill:"+name)
	return r.killErr
}

func (r *fakeRunner) StartProcess(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "start:"+name)
	return r.startErr
}

func (r *fakeRunner) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// useRunner는 테스트 동안 r을 Runner로 사용합니다.
func useRunner(t *testing.T, r explorer.Runner) {
	t.Helper()
	orig := newRunner
	newRunner = func() explorer.Runner { return r }
	t.Cleanup(func() { newRunner = orig })
}

// usePlatform은 테스트 동안 플랫폼 검사 결과를 고정합니다.
func usePlatform(t *testing.T, err error) {
	t.Helper()
	orig := checkPlatform
	checkPlatform = func() error { return err }
	t.Cleanup(func() { checkPlatform = orig })
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCommand는 격리된 홈 디렉토리와 새 viper 상태로 CLI를 실행합니다.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("STUCKBAR_LOGGING_LEVEL", "error")

	viper.Reset()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestPlatformGuard_BlocksOperations(t *testing.T) {
	usePlatform(t, &platform.UnsupportedError{Detected: "linux"})

	for _, args := range [][]string{nil, {"kill"}, {"start"}, {"restart"}, {"serve"}, {"serve", "--http"}} {
		runner := &fakeRunner{}
		useRunner(t, runner)

		_, _, err := executeCommand(t, args...)
		require.Error(t, err, "args %v", args)
		assert.ErrorIs(t, err, platform.ErrUnsupported, "args %v", args)
		assert.Contains(t, err.Error(), "'linux' is not supported")
		assert.Empty(t, runner.recorded(), "플랫폼 불일치 시 OS 호출이 없어야 합니다: %v", args)
	}
}

func TestPlatformGuard_SkipsInfoCommands(t *testing.T) {
	usePlatform(t, &platform.UnsupportedError{Detected: "darwin"})

	for _, args := range [][]string{{"version"}, {"config", "path"}, {"config", "list"}} {
		_, _, err := executeCommand(t, args...)
		assert.NoError(t, err, "args %v", args)
	}
}

func TestKill_Success(t *testing.T) {
	usePlatform(t, nil)
	runner := &fakeRunner{}
	useRunner(t, runner)

	stdout, _, err := executeCommand(t, "kill")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Terminating explorer.exe...")
	assert.Contains(t, stdout, "Successfully terminated explorer.exe")
	assert.Equal(t, []string{"kill:explorer.exe"}, runner.recorded())
}

func TestKill_ProcessAbsentIsSuccess(t *testing.T) {
	usePlatform(t, nil)
	useRunner(t, &fakeRunner{killErr: fmt.Errorf("taskkill: %w", explorer.ErrProcessAbsent)})

	stdout, stderr, err := executeCommand(t, "kill")
	require.NoError(t, err)
	assert.Contains(t, stdout, "explorer.exe was not running")
	assert.Empty(t, stderr)
}

func TestStart_FailureExitsNonZero(t *testing.T) {
	usePlatform(t, nil)
	useRunner(t, &fakeRunner{startErr: &explorer.CommandError{Command: "explorer.exe", ExitCode: -1, Err: errors.New("access denied")}})

	stdout, stderr, err := executeCommand(t, "start")
	require.Error(t, err)
	assert.ErrorIs(t, err, errOperationFailed)
	assert.Contains(t, stdout, "Starting explorer.exe...")
	assert.Contains(t, stderr, "Error starting explorer.exe: access denied")
}

func TestRoot_DefaultsToRestart(t *testing.T) {
	usePlatform(t, nil)
	runner := &fakeRunner{}
	useRunner(t, runner)
	t.Setenv("STUCKBAR_TARGET_SETTLE_DELAY_MS", "0")

	stdout, _, err := executeCommand(t)
	require.NoError(t, err)
	assert.Equal(t, []string{"kill:explorer.exe", "start:explorer.exe"}, runner.recorded())
	assert.Contains(t, stdout, "Restarting explorer.exe...")
	assert.Contains(t, stdout, "Terminating explorer.exe...")
	assert.Contains(t, stdout, "Starting explorer.exe...")
	assert.Contains(t, stdout, "explorer.exe restarted successfully!")
}

func TestRestart_KillFailureStillStarts(t *testing.T) {
	usePlatform(t, nil)
	runner := &fakeRunner{killErr: &explorer.CommandError{Command: "taskkill /F /IM explorer.exe", Output: "ERROR: Access is denied.", ExitCode: 1, Err: errors.New("exit status 1")}}
	useRunner(t, runner)
	t.Setenv("STUCKBAR_TARGET_SETTLE_DELAY_MS", "0")

	stdout, stderr, err := executeCommand(t, "restart")
	require.NoError(t, err)
	assert.Equal(t, []string{"kill:explorer.exe", "start:explorer.exe"}, runner.recorded())
	assert.Contains(t, stderr, "Access is denied")
	assert.Contains(t, stdout, "termination reported an error")
}

// snapshotRunner는 OS 호출 시점의 출력 내용을 기록합니다.
type snapshotRunner struct {
	out  *bytes.Buffer
	seen []string
}

func (r *snapshotRunner) KillProcess(string) error {
	r.seen = append(r.seen, r.out.String())
	return nil
}

func (r *snapshotRunner) StartProcess(string) error {
	r.seen = append(r.seen, r.out.String())
	return nil
}

func TestRestart_PrintsStepsAsTheyRun(t *testing.T) {
	var out, errOut bytes.Buffer
	runner := &snapshotRunner{out: &out}
	printer := &stepPrinter{out: &out, errOut: &errOut, target: "explorer.exe"}
	ctrl := explorer.New(runner, "explorer.exe",
		explorer.WithSettleDelay(0),
		explorer.WithLogger(zerolog.Nop()),
		explorer.WithProgress(printer),
	)

	require.NoError(t, performOperation(&out, &errOut, ctrl, explorer.OpRestart))
	require.Len(t, runner.seen, 2)

	// kill 시점에는 종료 안내만, start 시점에는 kill 결과와 시작 안내까지 출력됨
	assert.Contains(t, runner.seen[0], "Terminating explorer.exe...")
	assert.NotContains(t, runner.seen[0], "Successfully terminated")
	assert.Contains(t, runner.seen[1], "Successfully terminated explorer.exe")
	assert.Contains(t, runner.seen[1], "Starting explorer.exe...")
	assert.NotContains(t, runner.seen[1], "Successfully started")
	assert.Contains(t, out.String(), "explorer.exe restarted successfully!")
}

func TestInvalidConfigBlocksOperations(t *testing.T) {
	usePlatform(t, nil)
	runner := &fakeRunner{}
	useRunner(t, runner)
	t.Setenv("STUCKBAR_SERVER_CALL_TIMEOUT", "1s")

	_, _, err := executeCommand(t, "kill")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call_timeout")
	assert.Empty(t, runner.recorded())
}

func TestServe_FlagValidation(t *testing.T) {
	usePlatform(t, nil)

	tests := []struct {
		name string
		args []string
	}{
		{"stdio와 http 동시 사용", []string{"serve", "--stdio", "--http"}},
		{"http 없이 port", []string{"serve", "--port", "9000"}},
		{"stdio와 host", []string{"serve", "--stdio", "--host", "0.0.0.0"}},
		{"범위 밖 포트", []string{"serve", "--http", "--port", "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			useRunner(t, runner)

			_, _, err := executeCommand(t, tt.args...)
			assert.Error(t, err)
			assert.Empty(t, runner.recorded())
		})
	}
}

func TestServe_InvalidTransportSetting(t *testing.T) {
	usePlatform(t, nil)
	runner := &fakeRunner{}
	useRunner(t, runner)
	t.Setenv("STUCKBAR_SERVER_TRANSPORT", "websocket")

	_, _, err := executeCommand(t, "serve")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrUnknownKind)
	assert.Empty(t, runner.recorded())
}

func TestServeKind_FromConfig(t *testing.T) {
	resetFlags(serveCmd)
	t.Cleanup(func() { resetFlags(serveCmd) })

	cfg := &config.Config{Server: config.ServerConfig{Transport: "sse", Host: "127.0.0.1", Port: 8080}}
	kind, err := serveKind(serveCmd, cfg)
	require.NoError(t, err)
	assert.Equal(t, transport.KindStream, kind)

	// 설정이 http이면 --port만으로 오버라이드 가능
	require.NoError(t, serveCmd.Flags().Set("port", "9000"))
	kind, err = serveKind(serveCmd, cfg)
	require.NoError(t, err)
	assert.Equal(t, transport.KindStream, kind)
	assert.Equal(t, 9000, cfg.Server.Port)

	// 플래그가 설정보다 우선
	resetFlags(serveCmd)
	require.NoError(t, serveCmd.Flags().Set("stdio", "true"))
	kind, err = serveKind(serveCmd, &config.Config{Server: config.ServerConfig{Transport: "http"}})
	require.NoError(t, err)
	assert.Equal(t, transport.KindPipe, kind)

	resetFlags(serveCmd)
	kind, err = serveKind(serveCmd, &config.Config{Server: config.ServerConfig{Transport: "stdio"}})
	require.NoError(t, err)
	assert.Equal(t, transport.KindPipe, kind)
}

func TestServeAndDrain_FinishesRunningRestart(t *testing.T) {
	runner := &fakeRunner{}
	useRunner(t, runner)

	// 호출 대기 한도가 restart보다 짧아 응답은 먼저 나가고 작업은 남아 있는 상태
	cfg := &config.Config{
		Target: config.TargetConfig{Process: "explorer.exe", SettleDelayMs: 300},
		Server: config.ServerConfig{CallTimeout: "50ms"},
	}
	srv := newMCPServer(cfg)

	pr, pw := io.Pipe()
	defer pw.Close()
	tr := transport.NewPipe(srv, transport.Options{In: pr, Out: io.Discard, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_, _ = io.WriteString(pw, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"restart_explorer"}}`+"\n")
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	var stderr bytes.Buffer
	stopped := false
	err := serveAndDrain(ctx, tr, srv.Registry(), &stderr, func() { stopped = true })
	require.NoError(t, err)

	assert.True(t, stopped, "시그널 처리가 해제되어야 합니다")
	assert.Equal(t, []string{"kill:explorer.exe", "start:explorer.exe"}, runner.recorded())
	assert.Contains(t, stderr.String(), "Shutting down")
}

func TestVersionCommand(t *testing.T) {
	v, c, b := GetVersionInfo()
	SetVersionInfo("1.2.3", "abc1234", "2026-01-01")
	t.Cleanup(func() { SetVersionInfo(v, c, b) })

	stdout, _, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Version:    1.2.3")
	assert.Contains(t, stdout, "Commit:     abc1234")
	assert.Contains(t, stdout, "Built:      2026-01-01")
}

func TestConfigGet(t *testing.T) {
	t.Setenv("STUCKBAR_SERVER_PORT", "9090")

	stdout, _, err := executeCommand(t, "config", "get", "server.port")
	require.NoError(t, err)
	assert.Equal(t, "server.port = 9090\n", stdout)

	stdout, _, err = executeCommand(t, "config", "get", "target.process")
	require.NoError(t, err)
	assert.Equal(t, "target.process = explorer.exe\n", stdout)

	_, _, err = executeCommand(t, "config", "get", "server.url")
	assert.Error(t, err)
}

func TestConfigList_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stuckbar.yaml")
	content := "target:\n  settle_delay_ms: 250\nserver:\n  port: 9191\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	stdout, _, err := executeCommand(t, "--config", path, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "# 설정 파일: "+path)
	assert.Contains(t, stdout, "settle_delay_ms: 250")
	assert.Contains(t, stdout, "port: 9191")
	assert.Contains(t, stdout, "process: explorer.exe")
}

func TestConfigPath(t *testing.T) {
	stdout, _, err := executeCommand(t, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, stdout, filepath.Join(".config", "stuckbar", "config.yaml"))
}
