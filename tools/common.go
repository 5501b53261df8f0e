package tools

import (
	"PPClient/service/natsx"
	"os"
	"strconv"
	"strings"
)

// 环境变量读取；空值走默认值。配置覆盖统一使用 PPCHAT_ 前缀：
// PPCHAT_API_BASE_URL / PPCHAT_TOKEN / PPCHAT_LOG_LEVEL
// PPCHAT_HINT_NATS_SERVERS（逗号分隔） / PPCHAT_HINT_NATS_MODE (core | js_push)

func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
func GetEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
func GetEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

func ParseMode(s string) natsx.NatsxMode {
	switch strings.ToLower(s) {
	case "core":
		return natsx.Core
	case "js_push":
		return natsx.JetStreamPush
	default:
		return natsx.Core
	}
}

func GetEnvList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	out := make([]string, 0, 4)
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func ParseHdr(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	parts := strings.Split(s, ",")
	for _, p := range parts {
		kv := strings.SplitN(strings.TrimSpace(p), "=", 2)
		if len(kv) == 2 && kv[0] != "" {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
