package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPClient/global/config"
	"PPClient/logger"
	"PPClient/service/nacos"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// 全局参数
	configPath string
	baseURL    string
	token      string
	logLevel   string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "ppchat",
	Short: "ppchat - cache-coherent messaging client",
	Long: `ppchat talks to the messaging REST API through a local query cache.

Reads are served from the cache while fresh, sends are applied optimistically
and reconciled with the server once they complete.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == devapiCmd.Name() {
			return nil
		}
		return loadClientConfig(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("PPCHAT_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "access token (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout")
	// glog 的 -v / -logtostderr 等参数
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

// loadClientConfig 默认值 <- 配置文件 <- Nacos <- 环境变量 <- 命令行
func loadClientConfig(cmd *cobra.Command) error {
	c := &config.Client
	if configPath != "" {
		if err := config.Load(configPath, c); err != nil {
			return err
		}
	}
	if c.Nacos.Enabled {
		if err := loadFromNacos(c.Nacos.Server, c); err != nil {
			return err
		}
	}
	c.ApplyEnv()
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	if token != "" {
		c.Token = token
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if timeout > 0 {
		c.Timeout = timeout
	}
	logger.SetLevel(c.LogLevel)
	logger.Debug("client config", zap.String("baseUrl", c.BaseURL), zap.Bool("hintWs", c.Hint.WebSocket), zap.Bool("hintNats", c.Hint.NATS))
	return nil
}

func loadFromNacos(nc nacos.Config, out any) error {
	cli, err := nacos.NewConfigClient(nc)
	if err != nil {
		return err
	}
	return config.LoadNacos(nacos.NewWatcher(cli, nc.DataID, nc.Group, nil), out)
}

// signalContext 收到 Ctrl-C / SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
