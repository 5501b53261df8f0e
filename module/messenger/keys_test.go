package messenger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyStrings(t *testing.T) {
	assert.Equal(t, "conversations", ConversationsKey().String())
	assert.Equal(t, "conversation:42", ThreadKey(42).String())
	assert.Equal(t, int64(42), ThreadKey(42).OtherUserID())
	assert.Equal(t, int64(0), ConversationsKey().OtherUserID())
	assert.True(t, CacheKey{}.IsZero())
}

func TestParseCacheKey(t *testing.T) {
	for _, k := range []CacheKey{ConversationsKey(), ThreadKey(1), ThreadKey(987654321)} {
		got, err := ParseCacheKey(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	for _, bad := range []string{"", "conversation", "conversation:", "conversation:x", "conversation:-1", "threads"} {
		_, err := ParseCacheKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestCacheKeyJSON(t *testing.T) {
	var frame struct {
		Keys []CacheKey `json:"keys"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"keys":["conversations","conversation:9"]}`), &frame))
	assert.Equal(t, []CacheKey{ConversationsKey(), ThreadKey(9)}, frame.Keys)

	b, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"keys":["conversations","conversation:9"]}`, string(b))

	assert.Equal(t, []string{"conversations"}, keyStrings([]CacheKey{{}, ConversationsKey()}))
}
