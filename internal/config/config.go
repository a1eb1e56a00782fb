// Package config는 stuckbar의 설정 관리를 담당합니다.
// 설정 우선순위: 플래그 > 환경변수(STUCKBAR_) > 설정파일 > 기본값
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// MinCallTimeout은 도구 호출 타임아웃의 하한입니다 (500ms 대기 시간 포함).
	MinCallTimeout = 2 * time.Second
	// DefaultCallTimeout은 도구 호출 타임아웃 기본값입니다.
	DefaultCallTimeout = 10 * time.Second
)

// Config는 전체 애플리케이션 설정을 나타냅니다.
type Config struct {
	Target  TargetConfig  `mapstructure:"target" yaml:"target"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// TargetConfig는 관리 대상 프로세스 설정입니다.
type TargetConfig struct {
	// Process는 관리 대상 프로세스 이름입니다 (기본값: explorer.exe).
	Process string `mapstructure:"process" yaml:"process"`
	// SettleDelayMs는 종료 후 재시작 전 대기 시간(밀리초)입니다.
	SettleDelayMs int `mapstructure:"settle_delay_ms" yaml:"settle_delay_ms"`
}

// SettleDelay는 대기 시간을 time.Duration으로 반환합니다.
func (t TargetConfig) SettleDelay() time.Duration {
	return time.Duration(t.SettleDelayMs) * time.Millisecond
}

// ServerConfig는 MCP 도구 서버 설정입니다.
type ServerConfig struct {
	// Transport는 플래그가 없을 때 사용할 트랜스포트입니다 (stdio, http, sse).
	Transport string `mapstructure:"transport" yaml:"transport"`
	// Host는 HTTP 트랜스포트 바인드 주소입니다.
	Host string `mapstructure:"host" yaml:"host"`
	// Port는 HTTP 트랜스포트 포트입니다.
	Port int `mapstructure:"port" yaml:"port"`
	// SSEPath는 서버→클라이언트 이벤트 스트림 경로입니다.
	SSEPath string `mapstructure:"sse_path" yaml:"sse_path"`
	// MessagePath는 클라이언트→서버 메시지 경로입니다.
	MessagePath string `mapstructure:"message_path" yaml:"message_path"`
	// CallTimeout은 도구 호출 1건의 제한 시간입니다 (예: "10s").
	CallTimeout string `mapstructure:"call_timeout" yaml:"call_timeout"`
	// KeepAliveInterval은 SSE keep-alive 간격입니다. 비어 있으면 비활성화됩니다.
	KeepAliveInterval string `mapstructure:"keep_alive_interval" yaml:"keep_alive_interval"`
}

// Addr는 host:port 형식의 바인드 주소를 반환합니다.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetCallTimeout은 파싱된 호출 타임아웃을 반환합니다.
// 설정되지 않았거나 파싱할 수 없으면 DefaultCallTimeout을 반환합니다.
func (s ServerConfig) GetCallTimeout() time.Duration {
	if s.CallTimeout == "" {
		return DefaultCallTimeout
	}
	d, err := time.ParseDuration(s.CallTimeout)
	if err != nil {
		return DefaultCallTimeout
	}
	return d
}

// GetKeepAliveInterval은 SSE keep-alive 간격을 반환합니다. 0이면 비활성화입니다.
func (s ServerConfig) GetKeepAliveInterval() time.Duration {
	if s.KeepAliveInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(s.KeepAliveInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// LoggingConfig는 로깅 설정입니다.
type LoggingConfig struct {
	// Level은 로그 레벨입니다 (debug, info, warn, error).
	Level string `mapstructure:"level" yaml:"level"`
	// Format은 로그 포맷입니다 (json, text).
	Format string `mapstructure:"format" yaml:"format"`
	// File은 로그 파일 경로입니다. 비어있으면 stderr로 출력합니다.
	// stdout은 stdio 트랜스포트가 사용하므로 로그를 쓰지 않습니다.
	File string `mapstructure:"file" yaml:"file"`
}

// SetDefaults는 viper 기본값을 등록합니다.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("target.process", "explorer.exe")
	v.SetDefault("target.settle_delay_ms", 500)

	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.sse_path", "/sse")
	v.SetDefault("server.message_path", "/message")
	v.SetDefault("server.call_timeout", DefaultCallTimeout.String())
	v.SetDefault("server.keep_alive_interval", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
}

// Load는 전역 viper에서 설정을 로드하고 Config 구조체를 반환합니다.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom은 주어진 viper 인스턴스에서 설정을 로드합니다.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("설정 파싱 실패: %w", err)
	}

	// 홈 디렉토리 경로 확장
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return &cfg, nil
}

// Validate는 설정의 유효성을 검사합니다.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target.Process) == "" {
		return fmt.Errorf("target.process가 비어 있습니다")
	}
	if c.Target.SettleDelayMs < 0 {
		return fmt.Errorf("target.settle_delay_ms는 0 이상이어야 합니다: %d", c.Target.SettleDelayMs)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("유효하지 않은 포트: %d (0-65535)", c.Server.Port)
	}
	for name, path := range map[string]string{"sse_path": c.Server.SSEPath, "message_path": c.Server.MessagePath} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("server.%s는 /로 시작해야 합니다: %q", name, path)
		}
	}
	if c.Server.SSEPath == c.Server.MessagePath {
		return fmt.Errorf("server.sse_path와 server.message_path는 달라야 합니다: %q", c.Server.SSEPath)
	}

	if c.Server.CallTimeout != "" {
		d, err := time.ParseDuration(c.Server.CallTimeout)
		if err != nil {
			return fmt.Errorf("유효하지 않은 server.call_timeout: %w", err)
		}
		if d < MinCallTimeout {
			return fmt.Errorf("server.call_timeout은 %s 이상이어야 합니다: %s", MinCallTimeout, d)
		}
	}
	if c.Server.KeepAliveInterval != "" {
		if _, err := time.ParseDuration(c.Server.KeepAliveInterval); err != nil {
			return fmt.Errorf("유효하지 않은 server.keep_alive_interval: %w", err)
		}
	}

	// 로그 레벨 검증
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("유효하지 않은 로그 레벨: %s (debug, info, warn, error 중 하나)", c.Logging.Level)
	}

	// 로그 포맷 검증
	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("유효하지 않은 로그 포맷: %s (json, text 중 하나)", c.Logging.Format)
	}

	return nil
}

// expandPath는 ~를 홈 디렉토리로 확장합니다.
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// ConfigDir는 기본 설정 디렉토리를 반환합니다.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "stuckbar")
}

// DefaultConfigPath는 기본 설정 파일 경로를 반환합니다.
func DefaultConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}
