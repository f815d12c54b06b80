package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ueba",
	Short: "UEBA 위험 점수 시스템",
	Long:  "이벤트를 엔티티/일 단위 위험 점수로 롤업하는 분석기와 수집/조회 서비스",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(analyzerCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(ingestCmd)
}
