package nacos

import (
	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

// Config Nacos 连接参数；DataID/Group 指向远端 YAML 配置
type Config struct {
	Host      string `yaml:"host"`
	Port      uint64 `yaml:"port"`
	Namespace string `yaml:"namespace"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TimeoutMs uint64 `yaml:"timeoutMs"`
	LogLevel  string `yaml:"logLevel"`
	CacheDir  string `yaml:"cacheDir"`
	LogDir    string `yaml:"logDir"`
	DataID    string `yaml:"dataId"`
	Group     string `yaml:"group"`
}

func DefaultConfig() Config {
	return Config{
		Host:      "127.0.0.1",
		Port:      8848,
		Namespace: "public",
		TimeoutMs: 5000,
		LogLevel:  "warn",
		CacheDir:  "nacos/cache",
		LogDir:    "nacos/log",
		DataID:    "ppchat.yaml",
		Group:     "DEFAULT_GROUP",
	}
}

func NewConfigClient(c Config) (config_client.IConfigClient, error) {
	return clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig(c),
		ServerConfigs: serverConfig(c),
	})
}

func NewNamingClient(c Config) (naming_client.INamingClient, error) {
	return clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  clientConfig(c),
		ServerConfigs: serverConfig(c),
	})
}

func serverConfig(c Config) []constant.ServerConfig {
	return []constant.ServerConfig{
		*constant.NewServerConfig(c.Host, c.Port),
	}
}

func clientConfig(c Config) *constant.ClientConfig {
	opts := []constant.ClientOption{
		constant.WithNamespaceId(c.Namespace),
		constant.WithTimeoutMs(c.TimeoutMs),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel(c.LogLevel),
		constant.WithCacheDir(c.CacheDir),
		constant.WithLogDir(c.LogDir),
	}
	if c.Username != "" {
		opts = append(opts, constant.WithUsername(c.Username), constant.WithPassword(c.Password))
	}
	return constant.NewClientConfig(opts...)
}
