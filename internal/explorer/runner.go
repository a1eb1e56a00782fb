package explorer

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// taskkillNotFoundCode는 대상 프로세스가 없을 때 taskkill이 반환하는 종료 코드입니다.
const taskkillNotFoundCode = 128

// Runner는 OS 수준 프로세스 조작을 추상화합니다 (테스트에서 교체 가능).
type Runner interface {
	// KillProcess는 이름으로 프로세스를 강제 종료합니다.
	// 프로세스가 없으면 ErrProcessAbsent를 감싼 에러, 그 외 실패는 *CommandError를 반환합니다.
	KillProcess(name string) error
	// StartProcess는 프로세스를 분리(detached) 실행하고 즉시 반환합니다.
	StartProcess(name string) error
}

// SystemRunner는 실제 시스템 명령을 실행하는 Runner입니다.
type SystemRunner struct{}

// KillProcess는 taskkill /F /IM <name>을 실행합니다.
func (SystemRunner) KillProcess(name string) error {
	command := "taskkill /F /IM " + name
	output, err := exec.Command("taskkill", "/F", "/IM", name).CombinedOutput()
	if err == nil {
		return nil
	}
	return classifyKillError(command, string(output), exitCode(err), err)
}

// StartProcess는 name을 PATH에서 찾아 분리 실행합니다.
// 생성된 프로세스를 기다리거나 감시하지 않습니다.
func (SystemRunner) StartProcess(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return &CommandError{Command: name, ExitCode: -1, Err: err}
	}

	cmd := exec.Command(path)
	cmd.SysProcAttr = detachedSysProcAttr()
	if err := cmd.Start(); err != nil {
		return &CommandError{Command: path, ExitCode: -1, Err: err}
	}

	// 핸들만 해제하고 수명 관리는 OS에 맡김
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("프로세스 핸들 해제 실패: %w", err)
	}
	return nil
}

// classifyKillError는 taskkill 실패를 ProcessAbsent와 CommandExecutionFailure로 구분합니다.
func classifyKillError(command, output string, code int, err error) error {
	text := strings.TrimSpace(output)
	if code == taskkillNotFoundCode || (code > 0 && strings.Contains(strings.ToLower(text), "not found")) {
		if text == "" {
			return ErrProcessAbsent
		}
		return fmt.Errorf("%w: %s", ErrProcessAbsent, text)
	}
	return &CommandError{Command: command, Output: text, ExitCode: code, Err: err}
}

// exitCode는 exec 에러에서 종료 코드를 추출합니다. 명령을 실행하지 못했으면 -1입니다.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
