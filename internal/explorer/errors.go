package explorer

import (
	"errors"
	"fmt"
)

// ErrProcessAbsent는 종료 대상 프로세스가 이미 없을 때 반환됩니다.
// Kill에서는 실패가 아니라 성공으로 취급됩니다.
var ErrProcessAbsent = errors.New("process not running")

// CommandError는 OS 명령 실행 자체가 실패했거나 "not found" 이외의 오류를 반환한 경우입니다.
type CommandError struct {
	// Command는 실행하려던 명령 문자열입니다.
	Command string
	// Output은 캡처된 진단 출력입니다 (stdout + stderr).
	Output string
	// ExitCode는 프로세스 종료 코드입니다. 명령을 실행하지 못한 경우 -1입니다.
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Diagnostic은 사용자에게 보여줄 진단 텍스트를 반환합니다.
func (e *CommandError) Diagnostic() string {
	if e.Output != "" {
		return e.Output
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}
