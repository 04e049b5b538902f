// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 的 UniversalClient，并统一管理 Lua 脚本。
// 传入多个地址时使用集群模式，单个地址时使用单机模式。
type Client struct {
	client goredis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// Options 是创建客户端时可选的连接参数
type Options struct {
	Password string
	DB       int
}

// NewClient 根据逗号分隔的地址创建客户端，并立即 PING 验证连通性。
func NewClient(addrs string, opts ...Options) (*Client, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}

	var addrList []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrList = append(addrList, a)
		}
	}
	if len(addrList) == 0 {
		return nil, errors.New("redis: no address configured")
	}

	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    addrList,
		Password: opt.Password,
		DB:       opt.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis: ping %v", addrList)
	}

	return NewClientFromUniversal(rdb), nil
}

// NewClientFromUniversal 使用已有的 go-redis 客户端（测试中直接注入 miniredis 连接）。
func NewClientFromUniversal(rdb goredis.UniversalClient) *Client {
	return &Client{
		client:  rdb,
		scripts: make(map[string]*goredis.Script),
	}
}

// GetClient 暴露底层客户端，用于 pipeline 等脚本以外的操作
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

// LoadScriptFromContent 注册一个 Lua 脚本并预先加载到 Redis。
// 同名脚本重复注册会覆盖旧的脚本。
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := goredis.NewScript(content)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return errors.Wrapf(err, "redis: load script %q", name)
	}

	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行一个已注册的脚本。
// 底层使用 EVALSHA，遇到 NOSCRIPT 时自动回退到 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("redis: script %q is not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

// Close 关闭底层连接
func (c *Client) Close() error {
	return c.client.Close()
}
