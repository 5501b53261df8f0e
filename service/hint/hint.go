package hint

import (
	"encoding/json"

	"PPClient/module/chat/model"
	"PPClient/module/messenger"

	"go.uber.org/zap"
)

// Invalidator 提示来源只能标记失效，不能写缓存数据
type Invalidator interface {
	Invalidate(keys ...messenger.CacheKey)
}

// Decode 解析一帧 {keys:[...]}
func Decode(data []byte) (model.Hint, error) {
	var h model.Hint
	err := json.Unmarshal(data, &h)
	return h, err
}

// Apply 把提示中的合法键交给 inv；无法识别的键跳过。返回生效的键数。
func Apply(inv Invalidator, h model.Hint, log *zap.Logger) int {
	keys := make([]messenger.CacheKey, 0, len(h.Keys))
	for _, s := range h.Keys {
		k, err := messenger.ParseCacheKey(s)
		if err != nil {
			log.Debug("skip hint key", zap.String("key", s), zap.Error(err))
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) > 0 {
		inv.Invalidate(keys...)
	}
	return len(keys)
}
