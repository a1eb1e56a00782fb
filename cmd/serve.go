package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/insajin/stuckbar/internal/branding"
	"github.com/insajin/stuckbar/internal/config"
	"github.com/insajin/stuckbar/internal/mcpserver"
	"github.com/insajin/stuckbar/internal/metrics"
	"github.com/insajin/stuckbar/internal/session"
	"github.com/insajin/stuckbar/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serveStdio bool
	serveHTTP  bool
	serveHost  string
	servePort  int
)

// serveCmd는 MCP 도구 서버를 시작하는 Cobra 서브커맨드입니다.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an MCP server for AI agent integration",
	Long: `kill_explorer, start_explorer, restart_explorer 도구를 제공하는 MCP 서버를 시작합니다.
트랜스포트 플래그가 없으면 server.transport 설정을 따릅니다 (기본값: stdio).

사용 예시 (MCP 클라이언트 설정):
  {
    "mcpServers": {
      "stuckbar": {
        "command": "stuckbar",
        "args": ["serve", "--stdio"]
      }
    }
  }

HTTP/SSE 트랜스포트:
  stuckbar serve --http --host 127.0.0.1 --port 8080`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationOperation: "true"},
	RunE:        runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "Use STDIO transport (for direct process communication)")
	serveCmd.Flags().BoolVar(&serveHTTP, "http", false, "Use HTTP transport (for network-based communication)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host address to bind to (only used with --http, 기본값: server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port number to listen on (only used with --http, 기본값: server.port)")
	serveCmd.MarkFlagsMutuallyExclusive("stdio", "http")
}

// serveKind는 플래그와 server.transport 설정에서 트랜스포트 종류를 결정하고
// host/port 오버라이드를 cfg에 반영합니다. 플래그가 설정보다 우선합니다.
func serveKind(cmd *cobra.Command, cfg *config.Config) (transport.Kind, error) {
	if serveStdio && serveHTTP {
		return "", errors.New("--stdio와 --http는 함께 사용할 수 없습니다")
	}

	var kind transport.Kind
	switch {
	case serveStdio:
		kind = transport.KindPipe
	case serveHTTP:
		kind = transport.KindStream
	default:
		k, err := transport.ParseKind(cfg.Server.Transport)
		if err != nil {
			return "", fmt.Errorf("유효하지 않은 server.transport: %w", err)
		}
		kind = k
	}

	hostSet := cmd.Flags().Changed("host")
	portSet := cmd.Flags().Changed("port")
	if kind != transport.KindStream {
		if hostSet || portSet {
			return "", errors.New("--host와 --port는 --http와 함께 사용해야 합니다")
		}
		return kind, nil
	}

	if hostSet {
		cfg.Server.Host = serveHost
	}
	if portSet {
		if servePort < 0 || servePort > 65535 {
			return "", fmt.Errorf("유효하지 않은 포트: %d (0-65535)", servePort)
		}
		cfg.Server.Port = servePort
	}
	return kind, nil
}

// newMCPServer는 설정으로 컨트롤러, Registry, MCP 서버를 조립합니다.
func newMCPServer(cfg *config.Config) *mcpserver.Server {
	m := metrics.NewMetrics()
	registry := mcpserver.NewRegistry(newController(cfg),
		mcpserver.WithCallTimeout(cfg.Server.GetCallTimeout()),
		mcpserver.WithMetrics(m),
		mcpserver.WithRegistryLogger(log.Logger),
	)
	tracker := session.NewTracker(log.Logger)
	return mcpserver.NewServer(registry, tracker, m, log.Logger, mcpserver.WithVersion(appVersion))
}

// runServe는 MCP 서버를 시작하고 종료 시그널을 받을 때까지 블로킹됩니다.
func runServe(cmd *cobra.Command, args []string) error {
	cfg := *appConfig
	kind, err := serveKind(cmd, &cfg)
	if err != nil {
		return err
	}

	srv := newMCPServer(&cfg)

	tr, err := transport.New(kind, srv, transport.Options{
		Addr:              cfg.Server.Addr(),
		SSEPath:           cfg.Server.SSEPath,
		MessagePath:       cfg.Server.MessagePath,
		KeepAliveInterval: cfg.Server.GetKeepAliveInterval(),
		Logger:            log.Logger,
	})
	if err != nil {
		return err
	}

	// stdout은 stdio 트랜스포트가 사용하므로 안내 메시지는 stderr로 출력
	stderr := cmd.ErrOrStderr()
	fmt.Fprint(stderr, accentStyle.Render(branding.StartupBanner()))
	fmt.Fprintln(stderr)

	if st, ok := tr.(*transport.Stream); ok {
		if err := st.Listen(); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Starting %s MCP server on %s\n", branding.AppName, st.URL())
		fmt.Fprintln(stderr, mutedStyle.Render("Press Ctrl+C to stop the server"))
	}

	// 시그널 핸들링 (graceful shutdown)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("transport", kind.String()).
		Str("target", cfg.Target.Process).
		Str("call_timeout", cfg.Server.GetCallTimeout().String()).
		Msg("MCP 서버 준비 완료")

	return serveAndDrain(ctx, tr, srv.Registry(), stderr, stop)
}

// serveAndDrain은 tr을 실행하고, 끝나면 진행 중인 작업이 마무리될 때까지 기다린 뒤 tr을 닫습니다.
// stop은 시그널 처리를 해제해 대기 중 두 번째 시그널이 프로세스를 바로 종료하게 합니다.
func serveAndDrain(ctx context.Context, tr transport.Transport, reg *mcpserver.Registry, stderr io.Writer, stop func()) error {
	serveErr := tr.Serve(ctx)
	stop()

	if ctx.Err() != nil {
		fmt.Fprintln(stderr, mutedStyle.Render("Shutting down... waiting for the running operation to finish"))
	}
	if err := reg.Drain(context.Background()); err != nil {
		log.Warn().Err(err).Msg("작업 종료 대기 실패")
	}

	closeErr := tr.Close()
	if serveErr != nil {
		return fmt.Errorf("MCP %s 서버 실행 실패: %w", tr.Kind(), serveErr)
	}
	return closeErr
}
