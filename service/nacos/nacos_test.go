package nacos

import (
	"context"
	"errors"
	"testing"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfigClient struct {
	config_client.IConfigClient
	content  string
	err      error
	onChange func(namespace, group, dataId, data string)
	canceled chan struct{}
}

func (f *fakeConfigClient) GetConfig(p vo.ConfigParam) (string, error) { return f.content, f.err }
func (f *fakeConfigClient) ListenConfig(p vo.ConfigParam) error {
	f.onChange = p.OnChange
	return nil
}
func (f *fakeConfigClient) CancelListenConfig(p vo.ConfigParam) error {
	close(f.canceled)
	return nil
}

func TestWatcherLoadsAndFollowsChanges(t *testing.T) {
	fc := &fakeConfigClient{content: "a: 1", canceled: make(chan struct{})}
	var seen []string
	w := NewWatcher(fc, "ppchat.yaml", "DEFAULT_GROUP", func(s string) { seen = append(seen, s) })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Watch(ctx))
	assert.Equal(t, "a: 1", w.Current())

	fc.onChange("public", "DEFAULT_GROUP", "ppchat.yaml", "a: 2")
	fc.onChange("public", "DEFAULT_GROUP", "ppchat.yaml", "a: 2")
	assert.Equal(t, "a: 2", w.Current())
	assert.Equal(t, []string{"a: 1", "a: 2"}, seen)

	cancel()
	<-fc.canceled
}

func TestWatcherLoadError(t *testing.T) {
	fc := &fakeConfigClient{err: errors.New("down")}
	w := NewWatcher(fc, "x", "g", nil)
	require.Error(t, w.Watch(context.Background()))
	assert.Empty(t, w.Current())
}

type fakeNaming struct {
	naming_client.INamingClient
	registered   []vo.RegisterInstanceParam
	deregistered int
}

func (f *fakeNaming) RegisterInstance(p vo.RegisterInstanceParam) (bool, error) {
	f.registered = append(f.registered, p)
	return true, nil
}

func (f *fakeNaming) DeregisterInstance(p vo.DeregisterInstanceParam) (bool, error) {
	f.deregistered++
	return true, nil
}

func TestRegistry(t *testing.T) {
	fn := &fakeNaming{}
	r := NewRegistry(fn, "ppchat-devapi", "10.0.0.1", 8080)
	require.NoError(t, r.Register())
	require.Len(t, fn.registered, 1)
	assert.Equal(t, "ppchat-devapi", fn.registered[0].ServiceName)
	assert.True(t, fn.registered[0].Ephemeral)
	assert.Equal(t, "http", fn.registered[0].Metadata["protocol"])

	require.NoError(t, r.Deregister())
	assert.Equal(t, 1, fn.deregistered)
}
