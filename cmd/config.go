package cmd

import (
	"fmt"

	"github.com/insajin/stuckbar/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configCmd는 설정 관리를 위한 상위 명령어입니다.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "설정을 조회합니다",
	Long: `현재 적용된 설정 값을 조회합니다.

설정 파일 위치: ~/.config/stuckbar/config.yaml
환경변수는 STUCKBAR_ 접두사와 밑줄 경로를 사용합니다 (예: STUCKBAR_SERVER_PORT).`,
}

// configGetCmd는 설정 값을 조회하는 명령어입니다.
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "설정 값을 조회합니다",
	Long: `특정 키의 현재 값을 조회합니다.

키는 점(.)으로 구분된 경로를 사용합니다.
예시:
  stuckbar config get target.settle_delay_ms
  stuckbar config get server.port

지원하는 설정 키:
  target.process              - 관리 대상 프로세스 이름
  target.settle_delay_ms      - 종료 후 재시작 전 대기 시간(밀리초)
  server.transport            - 기본 트랜스포트 (stdio, http, sse)
  server.host                 - HTTP 트랜스포트 바인드 주소
  server.port                 - HTTP 트랜스포트 포트
  server.sse_path             - SSE 이벤트 스트림 경로
  server.message_path         - 메시지 POST 경로
  server.call_timeout         - 도구 호출 제한 시간 (최소 2s)
  server.keep_alive_interval  - SSE keep-alive 간격 (비어있으면 비활성화)
  logging.level               - 로그 레벨 (debug, info, warn, error)
  logging.format              - 로그 포맷 (json, text)
  logging.file                - 로그 파일 경로 (비어있으면 stderr)`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configListCmd는 전체 설정을 출력하는 명령어입니다.
var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "전체 설정을 출력합니다",
	Long:  `현재 적용된 모든 설정을 YAML 포맷으로 출력합니다.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

// configPathCmd는 설정 파일 경로를 출력하는 명령어입니다.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "설정 파일 경로를 출력합니다",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.ConfigFileUsed()
		if path == "" {
			path = config.DefaultConfigPath()
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)

	// 하위 명령 등록
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configPathCmd)
}

// validConfigKeys는 조회할 수 있는 설정 키 목록입니다.
var validConfigKeys = map[string]bool{
	"target.process":             true,
	"target.settle_delay_ms":     true,
	"server.transport":           true,
	"server.host":                true,
	"server.port":                true,
	"server.sse_path":            true,
	"server.message_path":        true,
	"server.call_timeout":        true,
	"server.keep_alive_interval": true,
	"logging.level":              true,
	"logging.format":             true,
	"logging.file":               true,
}

// runConfigGet은 설정 값을 조회합니다.
func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !validConfigKeys[key] {
		return fmt.Errorf("알 수 없는 설정 키: %s", key)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, viper.Get(key))
	return nil
}

// runConfigList는 전체 설정을 출력합니다.
func runConfigList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// 설정 파일 경로 출력
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Fprintf(out, "# 설정 파일: %s\n", configFile)
	} else {
		fmt.Fprintf(out, "# 설정 파일: (기본값 사용 중)\n")
	}
	fmt.Fprintln(out)

	// YAML로 직렬화
	yamlData, err := yaml.Marshal(appConfig)
	if err != nil {
		return fmt.Errorf("YAML 직렬화 실패: %w", err)
	}
	fmt.Fprint(out, string(yamlData))

	if err := appConfig.Validate(); err != nil {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "# 경고: %v\n", err)
	}
	return nil
}
