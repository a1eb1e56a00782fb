//go:build windows

package explorer

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// detachedSysProcAttr는 부모 콘솔과 분리된 새 프로세스 그룹으로 실행하도록 설정합니다.
// stuckbar가 종료되어도 explorer.exe는 계속 실행되어야 합니다.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
	}
}
