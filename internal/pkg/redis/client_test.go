package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RunScript(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.LoadScriptFromContent("incr_twice", `
		redis.call('incr', KEYS[1])
		return redis.call('incrby', KEYS[1], ARGV[1])
	`))

	res, err := client.RunScript(context.Background(), "incr_twice", []string{"counter"}, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), res)

	// 模拟 Redis 重启后脚本缓存丢失
	mr.FlushAll()
	mr.Set("counter", "10")
	res, err = client.RunScript(context.Background(), "incr_twice", []string{"counter"}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), res)
}

func TestClient_RunUnknownScript(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.RunScript(context.Background(), "missing", nil)
	assert.Error(t, err)
}

func TestNewClient_NoAddress(t *testing.T) {
	_, err := NewClient(" , ")
	assert.Error(t, err)
}
