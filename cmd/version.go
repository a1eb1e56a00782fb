package cmd

import (
	"fmt"
	"runtime"

	"github.com/insajin/stuckbar/internal/branding"
	"github.com/spf13/cobra"
)

// versionCmd는 버전 정보를 출력하는 명령어입니다.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "버전 정보를 출력합니다",
	Long:  `stuckbar의 버전, 커밋 해시, 빌드 날짜를 출력합니다.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		version, commit, buildDate := GetVersionInfo()
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, accentStyle.Render(branding.CLIName))
		fmt.Fprintf(out, "  Version:    %s\n", version)
		fmt.Fprintf(out, "  Commit:     %s\n", commit)
		fmt.Fprintf(out, "  Built:      %s\n", buildDate)
		fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
		fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
