// Package logger는 구조화된 로깅을 제공합니다.
// 로그는 항상 stderr(또는 설정된 파일)로 출력됩니다. stdout은 stdio 트랜스포트 전용입니다.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/insajin/stuckbar/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup은 전역 로거를 초기화하고 그 로거를 반환합니다.
func Setup(cfg config.LoggingConfig) zerolog.Logger {
	// 출력 대상 설정
	var output io.Writer = os.Stderr
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			// 파일 열기 실패 시 stderr 사용
			log.Warn().Err(err).Str("file", cfg.File).Msg("로그 파일을 열 수 없어 stderr를 사용합니다")
		} else {
			output = file
		}
	}

	// 로그 레벨 설정
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	// 타임스탬프 포맷 설정 (RFC3339)
	zerolog.TimeFieldFormat = time.RFC3339

	log.Logger = New(cfg, output)
	return log.Logger
}

// New는 전역 상태를 건드리지 않고 w로 출력하는 로거를 생성합니다.
func New(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	if cfg.Format == "text" {
		// 콘솔 포맷 (개발 시 가독성)
		consoleWriter := zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.File != "",
		}
		return zerolog.New(consoleWriter).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	}
	// JSON 포맷 (기본값)
	return zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
}

// parseLevel은 문자열 레벨을 zerolog.Level로 변환합니다.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent는 component 필드를 추가한 로거를 반환합니다.
func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

// WithCall은 도구 호출 관련 컨텍스트를 추가한 로거를 반환합니다.
func WithCall(l zerolog.Logger, callID, tool, sessionID string) zerolog.Logger {
	ctx := l.With().Str("call_id", callID).Str("tool", tool)
	if sessionID != "" {
		ctx = ctx.Str("session_id", sessionID)
	}
	return ctx.Logger()
}
