//go:build !windows

package explorer

import "syscall"

// detachedSysProcAttr는 새 프로세스 그룹으로 실행하도록 설정합니다 (Unix).
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
