// Package cmd는 stuckbar CLI의 명령어를 정의합니다.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/insajin/stuckbar/internal/branding"
	"github.com/insajin/stuckbar/internal/config"
	"github.com/insajin/stuckbar/internal/explorer"
	"github.com/insajin/stuckbar/internal/logger"
	"github.com/insajin/stuckbar/internal/platform"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// annotationOperation이 붙은 명령은 실행 전에 플랫폼 검사와 설정 검증을 거칩니다.
const annotationOperation = "stuckbar/operation"

var (
	// 전역 플래그
	cfgFile string
	verbose bool

	// 버전 정보 (main에서 주입)
	appVersion   = "dev"
	appCommit    = "none"
	appBuildDate = "unknown"

	// appConfig는 PersistentPreRunE에서 로드된 설정입니다.
	appConfig *config.Config

	// checkPlatform은 테스트에서 교체할 수 있습니다.
	checkPlatform = platform.Check
)

// errOperationFailed는 결과가 이미 출력된 실패를 나타냅니다. Execute가 다시 출력하지 않습니다.
var errOperationFailed = errors.New("operation failed")

// rootCmd는 CLI의 루트 명령어입니다. 하위 명령 없이 실행하면 restart를 수행합니다.
var rootCmd = &cobra.Command{
	Use:   branding.BinaryName,
	Short: "A CLI tool for restarting Windows Explorer when the taskbar gets stuck",
	Long: `작업 표시줄이 멈췄을 때 Windows 탐색기(explorer.exe)를 다시 시작합니다.

Windows 전용 도구이며 explorer.exe를 종료(kill), 시작(start), 재시작(restart)할 수 있습니다.
하위 명령 없이 실행하면 restart를 수행합니다.

'stuckbar serve'로 AI 에이전트가 같은 작업을 MCP 도구로 호출할 수 있는 서버를 실행합니다.`,
	Annotations:       map[string]string{annotationOperation: "true"},
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: preRun,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, explorer.OpRestart)
	},
}

// Execute는 루트 명령어를 실행합니다.
// 결과 메시지로 이미 보고된 실패를 제외한 에러는 stderr에 출력합니다.
func Execute() error {
	rootCmd.Version = appVersion
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errOperationFailed) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), errorStyle.Render(err.Error()))
	}
	return err
}

// SetVersionInfo는 버전 정보를 설정합니다.
func SetVersionInfo(version, commit, buildDate string) {
	appVersion = version
	appCommit = commit
	appBuildDate = buildDate
}

// GetVersionInfo는 버전 정보를 반환합니다.
func GetVersionInfo() (version, commit, buildDate string) {
	return appVersion, appCommit, appBuildDate
}

func init() {
	cobra.OnInitialize(initConfig)

	// 전역 플래그 정의
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"설정 파일 경로 (기본값: ~/.config/stuckbar/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"상세 로그 출력 (debug 레벨)")
}

// preRun은 모든 명령 실행 전에 호출됩니다.
// 작업 명령은 OS 호출 전에 플랫폼을 확인하고 설정을 검증합니다.
func preRun(cmd *cobra.Command, args []string) error {
	operation := isOperation(cmd)
	if operation {
		if err := checkPlatform(); err != nil {
			return err
		}
	}
	return initLogger(operation)
}

func isOperation(cmd *cobra.Command) bool {
	return cmd.Annotations[annotationOperation] == "true"
}

// initConfig는 설정 파일을 초기화합니다.
// 설정 우선순위: 플래그 > 환경변수 > 설정파일 > 기본값
func initConfig() {
	if cfgFile != "" {
		// 명시적 설정 파일 사용
		viper.SetConfigFile(cfgFile)
	} else {
		// 기본 설정 경로: ~/.config/stuckbar/config.yaml
		viper.AddConfigPath(config.ConfigDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// 환경변수 자동 바인딩 (STUCKBAR_SERVER_PORT → server.port)
	viper.SetEnvPrefix("STUCKBAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	// 설정 파일 읽기 (없어도 오류 아님)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// 설정 파일이 있지만 읽기 실패한 경우만 경고
			fmt.Fprintf(os.Stderr, "설정 파일 읽기 실패: %v\n", err)
		}
	}
}

// initLogger는 설정을 로드하고 로거를 초기화합니다.
func initLogger(validate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("설정 로드 실패: %w", err)
	}

	// verbose 플래그가 설정되면 debug 레벨로 오버라이드
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if validate {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("설정 검증 실패: %w", err)
		}
	}

	logger.Setup(cfg.Logging)
	appConfig = cfg
	return nil
}
