// Package main은 stuckbar CLI의 진입점입니다.
// 작업 표시줄이 멈췄을 때 explorer.exe를 재시작하고, MCP 도구 서버로도 동작합니다.
package main

import (
	"os"

	"github.com/insajin/stuckbar/cmd"
)

// 빌드 시 ldflags로 주입되는 버전 정보
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// 버전 정보를 cmd 패키지에 설정
	cmd.SetVersionInfo(version, commit, buildDate)

	// CLI 실행 (실패 시 종료 코드 1)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
