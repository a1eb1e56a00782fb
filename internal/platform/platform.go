// Package platform은 실행 환경이 explorer.exe 제어를 지원하는지 검사합니다.
// 검사는 프로세스 시작 시 한 번만 수행되며 이후에는 캐시된 결과를 읽기만 합니다.
package platform

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// Supported는 stuckbar가 동작하는 유일한 GOOS 값입니다.
const Supported = "windows"

// ErrUnsupported는 지원하지 않는 플랫폼에서 반환되는 센티넬 에러입니다.
// errors.Is로 *UnsupportedError와 비교할 수 있습니다.
var ErrUnsupported = errors.New("unsupported platform")

// UnsupportedError는 감지된 플랫폼 이름을 담은 치명적 에러입니다.
type UnsupportedError struct {
	Detected string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("stuckbar is a Windows-only tool.\n"+
		"Current platform '%s' is not supported.\n"+
		"This tool restarts explorer.exe which only exists on Windows.", e.Detected)
}

// Is는 errors.Is(err, ErrUnsupported)를 지원합니다.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

var (
	checkOnce   sync.Once
	checkResult error
)

// Check는 현재 OS가 지원 대상인지 확인합니다.
// runtime.GOOS는 최초 호출 시 한 번만 평가되고 결과는 프로세스 전역에서 공유됩니다.
func Check() error {
	checkOnce.Do(func() {
		checkResult = checkOS(runtime.GOOS)
	})
	return checkResult
}

// Detected는 현재 빌드 대상 OS 이름을 반환합니다.
func Detected() string {
	return runtime.GOOS
}

func checkOS(goos string) error {
	if goos != Supported {
		return &UnsupportedError{Detected: goos}
	}
	return nil
}
