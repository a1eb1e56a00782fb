// Package transport는 MCP 서버를 외부에 노출하는 두 가지 트랜스포트를 제공합니다.
// Pipe는 stdin/stdout 줄 단위 JSON-RPC, Stream은 HTTP + SSE입니다.
// 두 트랜스포트 모두 같은 mcpserver.Server(같은 Registry)를 사용합니다.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/insajin/stuckbar/internal/mcpserver"
	"github.com/rs/zerolog"
)

// Kind는 트랜스포트 종류입니다.
type Kind string

const (
	// KindPipe는 stdio 트랜스포트입니다.
	KindPipe Kind = "stdio"
	// KindStream은 HTTP/SSE 트랜스포트입니다.
	KindStream Kind = "http"
)

func (k Kind) String() string {
	return string(k)
}

// ErrUnknownKind는 지원하지 않는 트랜스포트 종류입니다.
var ErrUnknownKind = errors.New("unknown transport kind")

// ParseKind는 문자열을 Kind로 변환합니다.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPipe, KindStream:
		return Kind(s), nil
	case "sse":
		return KindStream, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Transport는 MCP 세션을 받아 서버로 전달합니다.
type Transport interface {
	// Kind는 트랜스포트 종류를 반환합니다.
	Kind() Kind
	// Serve는 ctx가 취소되거나 Close가 호출될 때까지 블로킹됩니다.
	Serve(ctx context.Context) error
	// Close는 트랜스포트를 종료합니다. 여러 번 호출해도 안전합니다.
	Close() error
}

// DefaultShutdownTimeout은 Stream의 graceful shutdown 제한 시간입니다.
const DefaultShutdownTimeout = 5 * time.Second

// Options는 트랜스포트 설정입니다.
type Options struct {
	// Pipe
	In  io.Reader
	Out io.Writer

	// Stream
	Addr              string
	SSEPath           string
	MessagePath       string
	KeepAliveInterval time.Duration
	ShutdownTimeout   time.Duration

	Logger zerolog.Logger
}

// New는 kind에 해당하는 트랜스포트를 생성합니다.
func New(kind Kind, srv *mcpserver.Server, opts Options) (Transport, error) {
	switch kind {
	case KindPipe:
		return NewPipe(srv, opts), nil
	case KindStream:
		return NewStream(srv, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
