package cmd

import (
	"fmt"
	"os"

	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "casectl",
	Short: "Operator tooling for the CaseForAI backend",
	Long: `casectl runs database migrations, seeds the EB-1A catalog and
gives quick local access to the chunker and the PDF toolkit.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "casectl: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath(), "path to the backend config.yaml")
}

func defaultConfigPath() string {
	if p := os.Getenv("CASEFORAI_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// loadConfig 读取配置并初始化日志，只有访问数据库的子命令需要。
func loadConfig() (*config.AppConfig, *logger.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", cfgFile, err)
	}
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	return cfg, logger.New("casectl", "", ""), nil
}
