package mongoutil

import (
	"context"
	"testing"

	"PPClient/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestValidateAndSetDefaults(t *testing.T) {
	c := &Config{Address: []string{"h1:27017", "h2:27017"}, Database: "ppchat", Username: "u", Password: "p"}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, defaultMaxPoolSize, c.MaxPoolSize)
	assert.Equal(t, defaultMaxRetry, c.MaxRetry)
	assert.Equal(t, "mongodb://u:p@h1:27017,h2:27017/ppchat?authSource=ppchat&maxPoolSize=100", c.Uri)

	c = &Config{Address: []string{"h"}, Database: "d", AuthSource: "admin", MaxPoolSize: 5}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, "mongodb://h/d?authSource=admin&maxPoolSize=5", c.Uri)

	assert.ErrorIs(t, (&Config{Database: "d"}).ValidateAndSetDefaults(), errs.ErrArgs)
	assert.ErrorIs(t, (&Config{Uri: "mongodb://x"}).ValidateAndSetDefaults(), errs.ErrArgs)
}

func TestRetryable(t *testing.T) {
	ctx := context.Background()
	assert.False(t, retryable(ctx, mongo.CommandError{Code: 18}))
	assert.True(t, retryable(ctx, mongo.CommandError{Code: 11600}))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, retryable(cctx, assert.AnError))
}
