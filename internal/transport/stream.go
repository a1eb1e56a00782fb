package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/insajin/stuckbar/internal/logger"
	"github.com/insajin/stuckbar/internal/mcpserver"
	"github.com/insajin/stuckbar/internal/session"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// 기본 HTTP 설정
const (
	DefaultAddr        = "127.0.0.1:8080"
	DefaultSSEPath     = "/sse"
	DefaultMessagePath = "/message"
	HealthPath         = "/healthz"
)

// Stream은 HTTP + SSE 트랜스포트입니다.
// GET <sse_path>로 이벤트 스트림을 열면 메시지 엔드포인트가 안내되고,
// 클라이언트는 POST <message_path>?sessionId=<id>로 요청을 보냅니다.
type Stream struct {
	sse        *server.SSEServer
	httpServer *http.Server
	tracker    *session.Tracker
	opts       Options
	logger     zerolog.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewStream은 새 Stream을 생성합니다. 비어 있는 설정은 기본값을 사용합니다.
func NewStream(srv *mcpserver.Server, opts Options) *Stream {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.SSEPath == "" {
		opts.SSEPath = DefaultSSEPath
	}
	if opts.MessagePath == "" {
		opts.MessagePath = DefaultMessagePath
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Stream{
		tracker:    srv.Tracker(),
		opts:       opts,
		httpServer: &http.Server{},
		logger:     logger.WithComponent(opts.Logger, "transport").With().Str("transport", string(KindStream)).Logger(),
	}

	sseOpts := []server.SSEOption{
		server.WithSSEEndpoint(opts.SSEPath),
		server.WithMessageEndpoint(opts.MessagePath),
		// 바인드 주소(0.0.0.0 등)와 무관하게 클라이언트가 접속한 호스트 기준으로 해석되도록 상대 경로 사용
		server.WithUseFullURLForMessageEndpoint(false),
		server.WithHTTPServer(s.httpServer),
	}
	if opts.KeepAliveInterval > 0 {
		sseOpts = append(sseOpts,
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(opts.KeepAliveInterval),
		)
	}
	s.sse = server.NewSSEServer(srv.MCPServer(), sseOpts...)

	mux := http.NewServeMux()
	mux.Handle(opts.SSEPath, s.sse.SSEHandler())
	mux.Handle(opts.MessagePath, s.sse.MessageHandler())
	mux.HandleFunc(HealthPath, s.handleHealth)
	s.httpServer.Handler = mux

	return s
}

// Kind는 KindStream을 반환합니다.
func (s *Stream) Kind() Kind { return KindStream }

// Listen은 설정된 주소에 바인드합니다. Serve 전에 호출하면 실제 주소(포트 0 사용 시)를 알 수 있습니다.
func (s *Stream) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("%s 바인드 실패: %w", s.opts.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr는 실제 바인드 주소를 반환합니다. Listen 전에는 설정된 주소를 반환합니다.
func (s *Stream) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.opts.Addr
}

// URL은 SSE 엔드포인트 전체 URL을 반환합니다.
func (s *Stream) URL() string {
	return "http://" + s.Addr() + s.opts.SSEPath
}

// Serve는 ctx가 취소되거나 Close가 호출될 때까지 HTTP 요청을 처리합니다.
func (s *Stream) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("sse", s.opts.SSEPath).
		Str("message", s.opts.MessagePath).
		Msg("HTTP/SSE 트랜스포트 시작")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP 서버 에러: %w", err)
	case <-ctx.Done():
		s.logger.Info().Msg("HTTP/SSE 트랜스포트 종료 중")
		if err := s.shutdown(); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// Close는 열린 SSE 세션을 모두 닫고 HTTP 서버를 종료합니다.
func (s *Stream) Close() error {
	return s.shutdown()
}

func (s *Stream) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.sse.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP 서버 종료 실패: %w", err)
	}
	return nil
}

// handleHealth는 상태 확인 엔드포인트입니다.
func (s *Stream) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.tracker.Counts(),
	})
}
