package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"snapvault/pkg/core"
	"snapvault/pkg/storage"
	"snapvault/pkg/types"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 存在性缓存
// 每次快照都会重新写入所有 blob，命中缓存时可以跳过远端的 Has 请求
type CachedStore struct {
	backend   storage.Store // 被装饰的底层存储 (如 S3)
	client    *redis.Client // Redis 客户端
	ttl       time.Duration // 缓存过期时间 (例如 24h)
	keyPrefix string
}

const defaultKeyPrefix = "sv:obj:"

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
	// KeyPrefix 默认 "sv:obj:"
	// 多个后端共用一个 Redis 时必须各自不同，否则 A 的缓存会让 B 跳过真实写入
	KeyPrefix string
}

// NamespacedPrefix 按后端标识 (磁盘绝对路径、bucket+prefix 等) 生成独立的 Key 前缀
func NamespacedPrefix(identity string) string {
	if identity == "" {
		return defaultKeyPrefix
	}
	sum := sha256.Sum256([]byte(identity))
	return defaultKeyPrefix + hex.EncodeToString(sum[:8]) + ":"
}

// NewCachedStore 连接 Redis 并包装 backend
func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	// 解析 URL
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &CachedStore{
		backend:   backend,
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: prefix,
	}, nil
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(hash types.Hash) string {
	return s.keyPrefix + string(hash)
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, hash types.Hash) (bool, error) {
	key := s.cacheKey(hash)

	// 1. 查 Redis
	// Exists 返回 1 表示存在，0 表示不存在
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// Redis 故障时退化为无缓存模式，直接查底层存储
		slog.Warn("redis exists failed, falling back to backend",
			slog.String("hash", hash.Short()),
			slog.String("err", err.Error()),
		)
	} else if val > 0 {
		// Cache Hit
		return true, nil
	}

	// 2. 缓存未命中 (Cache Miss)，查底层存储
	found, err := s.backend.Has(ctx, hash)
	if err != nil {
		return false, err
	}

	// 3. 缓存回填 (Cache Fill)
	if found {
		// 异步回填，不阻塞主流程
		// 使用 context.Background()，上层 ctx 取消也能完成回填
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, key, "1", s.ttl)
		}()
	}

	return found, nil
}

// Put 上传对象。利用 Has 的缓存能力进行预检。
func (s *CachedStore) Put(ctx context.Context, obj core.Object) error {
	// 1. 利用上面的 Has 方法检查存在性
	exists, err := s.Has(ctx, obj.ID())
	if err != nil {
		return err
	}
	if exists {
		return nil // 幂等性：已存在
	}

	// 2. 穿透到底层存储
	if err := s.backend.Put(ctx, obj); err != nil {
		return err
	}

	// 3. 写入缓存，只有底层写成功了才写 Redis
	key := s.cacheKey(obj.ID())
	if err := s.client.Set(ctx, key, "1", s.ttl).Err(); err != nil {
		slog.Debug("redis set failed", slog.String("key", key), slog.String("err", err.Error()))
	}

	return nil
}

// Get 透传，只缓存存在性，不缓存对象内容
func (s *CachedStore) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	return s.backend.Get(ctx, hash)
}

// ExpandHash 透传
func (s *CachedStore) ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error) {
	return s.backend.ExpandHash(ctx, short)
}

// Close 关闭 Redis 连接，不关闭 backend
func (s *CachedStore) Close() error {
	return s.client.Close()
}
