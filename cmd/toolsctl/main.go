// Package main は変換ツールをコマンドラインから実行する toolsctl のエントリーポイントです。
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yourusername/toolshub/internal/config"
	"github.com/yourusername/toolshub/internal/logging"
	"github.com/yourusername/toolshub/internal/pdf"
)

// version はビルド時に ldflags で設定します。
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "toolsctl",
	Short: "Run PDF tools against the remote transform API",
	Long: `toolsctl uploads PDF files to the remote transform API, waits for the
result and writes the returned artifact to disk. Each tool uses the same
request format and output naming as the web API.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./toolsctl.yaml or ~/.config/toolsctl/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("toolsctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "toolsctl"))
		}
	}

	viper.SetEnvPrefix("TOOLSCTL")
	viper.AutomaticEnv()

	// サーバーと同じ <TOOL>_API_URL もツールごとの既定値として読む
	for _, op := range pdf.Operations() {
		_ = viper.BindEnv(endpointKey(op.Type), config.EndpointEnvKey(op.Type))
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func endpointKey(op pdf.OperationType) string {
	return "endpoints." + string(op)
}

func newLogger() *zap.Logger {
	logger, err := logging.New(logging.Options{
		Level:   viper.GetString("log-level"),
		Console: true,
		// 標準出力は成果物のパス専用
		Output: os.Stderr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return zap.NewNop()
	}
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
