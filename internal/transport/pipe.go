package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/insajin/stuckbar/internal/logger"
	"github.com/insajin/stuckbar/internal/mcpserver"
	"github.com/insajin/stuckbar/internal/metrics"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// MaxLineSize는 Pipe가 받아들이는 한 줄(메시지 1건)의 최대 크기입니다.
const MaxLineSize = 1 << 20

// ErrLineTooLong은 MaxLineSize를 넘는 줄을 받은 경우입니다. 세션이 종료됩니다.
var ErrLineTooLong = errors.New("pipe: message line exceeds 1 MiB")

// pipeSession은 stdio 연결 하나를 나타내는 mcp-go 세션입니다.
type pipeSession struct {
	id            string
	initialized   atomic.Bool
	notifications chan mcp.JSONRPCNotification
}

func (s *pipeSession) SessionID() string { return s.id }

func (s *pipeSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

func (s *pipeSession) Initialize()       { s.initialized.Store(true) }
func (s *pipeSession) Initialized() bool { return s.initialized.Load() }

// TransportName은 세션 추적기에 보고할 트랜스포트 이름입니다.
func (s *pipeSession) TransportName() string { return string(KindPipe) }

// Pipe는 줄 단위 JSON-RPC stdio 트랜스포트입니다.
// 요청을 한 줄 읽고, 처리하고, 응답을 쓴 다음에야 다음 줄을 읽습니다.
type Pipe struct {
	mcp     *server.MCPServer
	metrics *metrics.Metrics
	in      io.Reader
	out     io.Writer
	session *pipeSession
	logger  zerolog.Logger

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// NewPipe는 새 Pipe를 생성합니다. In/Out이 비어 있으면 os.Stdin/os.Stdout을 사용합니다.
func NewPipe(srv *mcpserver.Server, opts Options) *Pipe {
	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Pipe{
		mcp:     srv.MCPServer(),
		metrics: srv.Metrics(),
		in:      in,
		out:     out,
		session: &pipeSession{
			id:            uuid.NewString(),
			notifications: make(chan mcp.JSONRPCNotification, 100),
		},
		logger: logger.WithComponent(opts.Logger, "transport").With().Str("transport", string(KindPipe)).Logger(),
		closed: make(chan struct{}),
	}
}

// Kind는 KindPipe를 반환합니다.
func (p *Pipe) Kind() Kind { return KindPipe }

// SessionID는 이 Pipe의 세션 ID를 반환합니다.
func (p *Pipe) SessionID() string { return p.session.id }

// Close는 Serve 루프를 멈춥니다. 이미 읽기에 들어간 줄은 처리되지 않습니다.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

type readResult struct {
	line []byte
	err  error
}

// Serve는 입력이 끝나거나(EOF) ctx가 취소되거나 Close가 호출될 때까지 요청을 처리합니다.
// 처리 중인 요청이 있으면 응답을 쓴 다음 반환합니다. EOF와 취소는 정상 종료이며, 읽기/쓰기 에러와 너무 긴 줄은 에러로 반환됩니다.
func (p *Pipe) Serve(ctx context.Context) error {
	if err := p.mcp.RegisterSession(ctx, p.session); err != nil {
		return fmt.Errorf("세션 등록 실패: %w", err)
	}
	defer p.mcp.UnregisterSession(context.WithoutCancel(ctx), p.session.id)

	ctx, cancel := context.WithCancel(p.mcp.WithContext(ctx, p.session))
	defer cancel()

	log := p.logger.With().Str("session_id", p.session.id).Logger()
	log.Info().Msg("stdio 세션 시작")

	go p.forwardNotifications(ctx, log)

	results := make(chan readResult)
	ack := make(chan struct{})
	go p.readLines(ctx, results, ack)

	for {
		var res readResult
		select {
		case res = <-results:
		case <-ctx.Done():
			log.Info().Msg("stdio 세션 종료 (취소)")
			return nil
		case <-p.closed:
			log.Info().Msg("stdio 세션 종료")
			return nil
		}

		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				log.Info().Msg("stdio 세션 종료 (EOF)")
				return nil
			}
			if errors.Is(res.err, bufio.ErrTooLong) {
				log.Error().Int("max", MaxLineSize).Msg("메시지 줄이 너무 깁니다")
				return ErrLineTooLong
			}
			log.Error().Err(res.err).Msg("stdin 읽기 실패")
			return fmt.Errorf("stdin 읽기 실패: %w", res.err)
		}

		if err := p.handleLine(ctx, res.line); err != nil {
			log.Error().Err(err).Msg("stdout 쓰기 실패")
			return err
		}

		select {
		case ack <- struct{}{}:
		case <-ctx.Done():
			return nil
		case <-p.closed:
			return nil
		}
	}
}

// handleLine은 한 줄을 처리하고 응답이 있으면 씁니다.
func (p *Pipe) handleLine(ctx context.Context, line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	if !json.Valid(line) {
		p.metrics.ProtocolErrors.Add(1)
		p.logger.Warn().Int("bytes", len(line)).Msg("JSON 파싱 실패")
		return p.write(mcp.NewJSONRPCError(mcp.NewRequestId(nil), mcp.PARSE_ERROR, "Parse error", nil))
	}

	// 종료 시그널을 받아도 이미 읽은 요청은 끝까지 처리하고 응답
	resp := p.mcp.HandleMessage(context.WithoutCancel(ctx), json.RawMessage(line))
	if resp == nil {
		// 알림 또는 클라이언트 응답
		return nil
	}
	return p.write(resp)
}

// write는 메시지 하나를 한 줄로 씁니다.
func (p *Pipe) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("응답 직렬화 실패: %w", err)
	}
	data = append(data, '\n')

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.out.Write(data); err != nil {
		return fmt.Errorf("응답 쓰기 실패: %w", err)
	}
	return nil
}

// readLines는 ack를 받을 때마다 한 줄씩 읽어 results로 보냅니다.
func (p *Pipe) readLines(ctx context.Context, results chan<- readResult, ack <-chan struct{}) {
	scanner := bufio.NewScanner(p.in)
	// 개행 문자 1바이트 여유
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize+1)

	for {
		var res readResult
		if scanner.Scan() {
			res.line = append([]byte(nil), scanner.Bytes()...)
		} else if res.err = scanner.Err(); res.err == nil {
			res.err = io.EOF
		}

		select {
		case results <- res:
		case <-ctx.Done():
			return
		}
		if res.err != nil {
			return
		}

		select {
		case <-ack:
		case <-ctx.Done():
			return
		}
	}
}

// forwardNotifications는 세션에 쌓인 서버 알림을 응답 사이에 씁니다.
func (p *Pipe) forwardNotifications(ctx context.Context, log zerolog.Logger) {
	for {
		select {
		case n := <-p.session.notifications:
			if err := p.write(n); err != nil {
				log.Warn().Err(err).Msg("알림 쓰기 실패")
			}
		case <-ctx.Done():
			return
		}
	}
}
