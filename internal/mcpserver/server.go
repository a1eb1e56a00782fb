package mcpserver

import (
	"context"
	"errors"

	"github.com/insajin/stuckbar/internal/logger"
	"github.com/insajin/stuckbar/internal/metrics"
	"github.com/insajin/stuckbar/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

const (
	// ServerName은 MCP 서버 이름입니다.
	ServerName = "stuckbar"
	// DefaultServerVersion은 빌드 정보가 없을 때 사용하는 버전입니다.
	DefaultServerVersion = "dev"
)

// Instructions는 initialize 응답에 포함되는 사용 안내입니다.
const Instructions = "Stuckbar MCP Server - A tool for managing Windows Explorer.\n\n" +
	"Available tools:\n" +
	"- kill_explorer: Terminate explorer.exe\n" +
	"- start_explorer: Start explorer.exe\n" +
	"- restart_explorer: Restart explorer.exe (recommended for stuck taskbar)\n\n" +
	"Use 'restart_explorer' to fix a stuck or unresponsive Windows taskbar."

// Server는 stuckbar MCP 서버입니다.
// 모든 트랜스포트가 같은 MCPServer와 Registry를 공유합니다.
type Server struct {
	mcpServer *server.MCPServer
	registry  *Registry
	tracker   *session.Tracker
	metrics   *metrics.Metrics
	version   string
	logger    zerolog.Logger
}

// ServerOption은 Server 설정 옵션입니다.
type ServerOption func(*Server)

// WithVersion은 initialize 응답에 보고할 버전을 설정합니다.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		if version != "" {
			s.version = version
		}
	}
}

// NewServer는 새 MCP 서버를 생성합니다.
// tracker는 mcp-go 세션 훅으로 연결되고, 세션 상태 변화는 metrics에 집계됩니다.
func NewServer(registry *Registry, tracker *session.Tracker, m *metrics.Metrics, log zerolog.Logger, opts ...ServerOption) *Server {
	if m == nil {
		m = registry.Metrics()
	}
	s := &Server{
		registry: registry,
		tracker:  tracker,
		metrics:  m,
		version:  DefaultServerVersion,
		logger:   logger.WithComponent(log, "mcpserver"),
	}
	for _, opt := range opts {
		opt(s)
	}

	tracker.OnChange(s.countSession)

	hooks := tracker.Hooks(&server.Hooks{})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		// 등록되지 않은 도구는 Registry까지 오지 않으므로 여기서 집계
		if errors.Is(err, server.ErrToolNotFound) {
			s.metrics.ProtocolErrors.Add(1)
		}
		s.logger.Debug().Err(err).Str("method", string(method)).Interface("id", id).Msg("요청 처리 에러")
	})

	// MCP 서버 생성
	s.mcpServer = server.NewMCPServer(
		ServerName,
		s.version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions(Instructions),
		server.WithHooks(hooks),
		server.WithRecovery(),
	)

	// 도구 및 리소스 등록
	s.registerTools()
	s.registerResources()

	s.logger.Info().
		Str("name", ServerName).
		Str("version", s.version).
		Str("target", registry.Controller().Target()).
		Msg("MCP 서버 초기화 완료")

	return s
}

// MCPServer는 트랜스포트가 연결할 mcp-go 서버를 반환합니다.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Registry는 도구 레지스트리를 반환합니다.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Tracker는 세션 추적기를 반환합니다.
func (s *Server) Tracker() *session.Tracker {
	return s.tracker
}

// Metrics는 서버 통계를 반환합니다.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Version은 보고되는 서버 버전을 반환합니다.
func (s *Server) Version() string {
	return s.version
}

// registerTools는 모든 MCP 도구를 등록합니다.
func (s *Server) registerTools() {
	for _, d := range s.registry.Descriptors() {
		tool := mcp.NewTool(d.Name,
			mcp.WithDescription(d.Description),
			mcp.WithDestructiveHintAnnotation(d.Destructive),
			mcp.WithIdempotentHintAnnotation(d.Idempotent),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithOpenWorldHintAnnotation(false),
		)
		s.mcpServer.AddTool(tool, s.toolHandler(d.Name))
	}

	s.logger.Debug().Int("count", len(descriptors)).Msg("MCP 도구 등록 완료")
}

// registerResources는 모든 MCP 리소스를 등록합니다.
func (s *Server) registerResources() {
	// 1. stuckbar://status - 서버 및 세션 상태
	statusResource := mcp.NewResource(
		StatusResourceURI,
		"Server Status",
		mcp.WithResourceDescription("Target process, call timeout and session counts of the stuckbar tool server"),
		mcp.WithMIMEType("application/json"),
	)
	s.mcpServer.AddResource(statusResource, s.handleStatusResource)

	// 2. stuckbar://metrics - 호출 통계
	metricsResource := mcp.NewResource(
		MetricsResourceURI,
		"Server Metrics",
		mcp.WithResourceDescription("Counters for sessions, tool calls and explorer operations"),
		mcp.WithMIMEType("application/json"),
	)
	s.mcpServer.AddResource(metricsResource, s.handleMetricsResource)

	s.logger.Debug().Msg("MCP 리소스 2개 등록 완료")
}

func (s *Server) countSession(info session.Info) {
	switch info.State {
	case session.Idle:
		s.metrics.SessionsOpened.Add(1)
	case session.Ready:
		s.metrics.SessionsReady.Add(1)
	case session.Closed:
		s.metrics.SessionsClosed.Add(1)
	}
}
