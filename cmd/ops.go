package cmd

import (
	"fmt"
	"io"

	"github.com/insajin/stuckbar/internal/config"
	"github.com/insajin/stuckbar/internal/explorer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// newRunner는 OS 명령을 실행할 Runner를 생성합니다. 테스트에서 교체할 수 있습니다.
var newRunner = func() explorer.Runner {
	return explorer.SystemRunner{}
}

var killCmd = &cobra.Command{
	Use:         "kill",
	Short:       "Terminate explorer.exe process",
	Long:        `explorer.exe를 강제 종료합니다. 이미 종료되어 있으면 성공으로 처리합니다.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationOperation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, explorer.OpKill)
	},
}

var startCmd = &cobra.Command{
	Use:         "start",
	Short:       "Start explorer.exe process",
	Long:        `explorer.exe를 새로 실행합니다. 이미 실행 중인지는 확인하지 않습니다.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationOperation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, explorer.OpStart)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart explorer.exe (kill then start)",
	Long: `explorer.exe를 종료하고 잠시 기다린 뒤 다시 실행합니다.
대기 시간은 target.settle_delay_ms 설정으로 조정합니다 (기본값: 500ms).`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationOperation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, explorer.OpRestart)
	},
}

func init() {
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(restartCmd)
}

// newController는 설정으로 컨트롤러를 생성합니다.
func newController(cfg *config.Config, opts ...explorer.Option) *explorer.Controller {
	base := []explorer.Option{
		explorer.WithSettleDelay(cfg.Target.SettleDelay()),
		explorer.WithLogger(log.Logger),
	}
	return explorer.New(newRunner(), cfg.Target.Process, append(base, opts...)...)
}

// runOperation은 작업 하나를 실행하고 결과를 출력합니다.
func runOperation(cmd *cobra.Command, op explorer.Operation) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	printer := &stepPrinter{out: out, errOut: errOut}
	ctrl := newController(appConfig, explorer.WithProgress(printer))
	printer.target = ctrl.Target()
	return performOperation(out, errOut, ctrl, op)
}

// performOperation은 진행 메시지와 결과를 출력합니다.
// 성공 메시지는 out, 실패 메시지는 errOut에 씁니다.
func performOperation(out, errOut io.Writer, ctrl *explorer.Controller, op explorer.Operation) error {
	target := ctrl.Target()

	var outcome explorer.Outcome
	switch op {
	case explorer.OpKill:
		fmt.Fprintln(out, progressStyle.Render(fmt.Sprintf("Terminating %s...", target)))
		outcome = ctrl.Kill()
	case explorer.OpStart:
		fmt.Fprintln(out, progressStyle.Render(fmt.Sprintf("Starting %s...", target)))
		outcome = ctrl.Start()
	case explorer.OpRestart:
		fmt.Fprintln(out, accentStyle.Render(fmt.Sprintf("Restarting %s...", target)))
		outcome = ctrl.Restart()
	default:
		return fmt.Errorf("알 수 없는 작업: %s", op)
	}

	switch {
	case !outcome.Success:
		fmt.Fprintln(errOut, errorStyle.Render(outcome.Message))
		return fmt.Errorf("%w: %s", errOperationFailed, op)
	case outcome.Degraded:
		fmt.Fprintln(out, progressStyle.Render(outcome.Message))
	case op == explorer.OpRestart:
		fmt.Fprintln(out, doneStyle.Render(fmt.Sprintf("%s restarted successfully!", target)))
	default:
		fmt.Fprintln(out, successStyle.Render(outcome.Message))
	}

	log.Debug().
		Str("operation", string(op)).
		Str("operation_id", outcome.ID).
		Dur("duration", outcome.Duration()).
		Msg("CLI 작업 완료")
	return nil
}

// stepPrinter는 restart 하위 단계를 실행되는 즉시 출력합니다.
type stepPrinter struct {
	out, errOut io.Writer
	target      string
}

func (p *stepPrinter) StepStarted(op explorer.Operation) {
	switch op {
	case explorer.OpKill:
		fmt.Fprintln(p.out, progressStyle.Render(fmt.Sprintf("Terminating %s...", p.target)))
	case explorer.OpStart:
		fmt.Fprintln(p.out, progressStyle.Render(fmt.Sprintf("Starting %s...", p.target)))
	}
}

func (p *stepPrinter) StepFinished(step explorer.Outcome) {
	if step.Success {
		fmt.Fprintln(p.out, successStyle.Render(step.Message))
	} else {
		fmt.Fprintln(p.errOut, errorStyle.Render(step.Message))
	}
}
