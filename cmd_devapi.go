package main

import (
	"PPClient/global/config"
	"PPClient/logger"
	"PPClient/module/devapi"
	"PPClient/service/nacos"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serverConfigPath string

var devapiCmd = &cobra.Command{
	Use:   "devapi",
	Short: "Run the development REST server",
	Long: `Serves /conversations, /conversations/:otherUserId and /messages/send
backed by the configured store (memory, redis, mongo or postgres), plus
/auth/token for development tokens and /ws for invalidation hints.`,
	Args: cobra.NoArgs,
	RunE: runDevapi,
}

func init() {
	devapiCmd.Flags().StringVar(&serverConfigPath, "server-config", "", "server YAML config file")
	rootCmd.AddCommand(devapiCmd)
}

func runDevapi(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c := &config.Server
	var updates chan config.ServerConfig
	path := serverConfigPath
	if path == "" {
		path = configPath
	}
	if path != "" {
		if err := config.Load(path, c); err != nil {
			return err
		}
	}
	if c.Nacos.Enabled {
		cli, err := nacos.NewConfigClient(c.Nacos.Server)
		if err != nil {
			return err
		}
		updates = make(chan config.ServerConfig, 1)
		w := nacos.NewWatcher(cli, c.Nacos.Server.DataID, c.Nacos.Server.Group, func(content string) {
			next := *c
			if err := config.Decode([]byte(content), &next); err != nil {
				logger.Warn("nacos config", zap.Error(err))
				return
			}
			// 只保留最新一份
			select {
			case <-updates:
			default:
			}
			updates <- next
		})
		if err := config.LoadNacos(w, c); err != nil {
			return err
		}
		go func() {
			if err := w.Watch(ctx); err != nil {
				logger.Warn("nacos watch", zap.Error(err))
			}
		}()
	}
	c.ApplyEnv()
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	return devapi.Run(ctx, *c, updates)
}
