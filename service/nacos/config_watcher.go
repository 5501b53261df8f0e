package nacos

import (
	"context"
	"sync"

	"PPClient/logger"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// Watcher 读取并监听一份远端配置；内容变化时回调 onChange
type Watcher struct {
	client   config_client.IConfigClient
	dataID   string
	group    string
	onChange func(content string)

	mu      sync.RWMutex
	current string
}

func NewWatcher(client config_client.IConfigClient, dataID, group string, onChange func(string)) *Watcher {
	return &Watcher{client: client, dataID: dataID, group: group, onChange: onChange}
}

// Load 读取一次当前内容
func (w *Watcher) Load() (string, error) {
	content, err := w.client.GetConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
	if err != nil {
		return "", err
	}
	w.update(content)
	return content, nil
}

// Watch 首次读取后开始监听，ctx 结束时取消监听
func (w *Watcher) Watch(ctx context.Context) error {
	if _, err := w.Load(); err != nil {
		return err
	}
	err := w.client.ListenConfig(vo.ConfigParam{
		DataId: w.dataID,
		Group:  w.group,
		OnChange: func(namespace, group, dataId, data string) {
			logger.Info("nacos config changed", zap.String("dataId", dataId), zap.String("group", group))
			w.update(data)
		},
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = w.client.CancelListenConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
	}()
	return nil
}

func (w *Watcher) update(data string) {
	w.mu.Lock()
	changed := w.current != data
	w.current = data
	w.mu.Unlock()
	if changed && w.onChange != nil {
		w.onChange(data)
	}
}

func (w *Watcher) Current() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
