package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"snapvault/pkg/exporter"
	"snapvault/pkg/history"
	"snapvault/pkg/ignore"
	"snapvault/pkg/meta"
	"snapvault/pkg/refs"
	"snapvault/pkg/storage"
	"snapvault/pkg/storage/cache"
	"snapvault/pkg/storage/disk"
	"snapvault/pkg/storage/s3"
	"snapvault/pkg/treebuilder"

	"github.com/spf13/viper"
)

var (
	ErrNotARepository = errors.New("not a snapvault repository (run 'sv init')")
	// ErrBookkeepingIsRoot 对象库或元数据库被配置成了工作区根目录本身
	ErrBookkeepingIsRoot = errors.New("storage path must not be the working tree root")
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	// Root 是工作区根目录，MetaPath 是其中的 .sv
	Root     string
	MetaPath string

	Store    storage.Store
	DB       *storage.ObjectDB
	Matcher  *ignore.Matcher
	Builder  *treebuilder.Builder
	Exporter *exporter.Exporter
	Heads    refs.HeadStore
	History  *history.Manager

	// Repo 仅在 refs.backend 为数据库时非 nil
	Repo *meta.Repository

	// bookkeeping 是对象库、元数据库等系统自有的绝对路径
	bookkeeping []string
	closers     []func() error
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context, root string) (*App, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	metaPath := filepath.Join(root, ignore.MetaDir)
	if info, err := os.Stat(metaPath); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotARepository, root)
	}

	a := &App{Root: root, MetaPath: metaPath}

	store, err := a.initStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if c, ok := store.(*cache.CachedStore); ok {
		a.closers = append(a.closers, c.Close)
	}

	heads, repo, err := a.initHeads(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Heads = heads
	a.Repo = repo

	matcher, err := ignore.NewMatcher(root)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load %s: %w", ignore.FileName, err)
	}

	// 配置到工作区里面的簿记路径同样不能被快照或清空
	for _, p := range a.bookkeeping {
		rel, inside := relWithin(root, p)
		if !inside {
			continue
		}
		if rel == "." {
			a.Close()
			return nil, fmt.Errorf("%w: %s", ErrBookkeepingIsRoot, p)
		}
		slog.Debug("protecting bookkeeping path inside working tree", "path", rel)
		matcher.Protect(rel)
	}

	a.Matcher = matcher
	a.DB = storage.NewObjectDB(store)
	a.Builder = treebuilder.NewBuilder(a.DB, matcher, treebuilder.Options{
		Canonical: viper.GetBool("tree.canonical"),
	})
	a.Exporter = exporter.NewExporter(a.DB, matcher)
	a.History = history.NewManager(a.DB, a.Builder, a.Exporter, a.Heads, a.Repo)

	return a, nil
}

// Close 释放 Redis / 数据库连接
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// initStore 根据 storage.type 选择存储后端，cache.redis_url 非空时在外面包一层缓存
func (a *App) initStore(ctx context.Context) (storage.Store, error) {
	var (
		store storage.Store
		err   error
		// identity 唯一标识这个后端，用来隔离 Redis 里的存在性缓存
		identity string
	)

	storeType := viper.GetString("storage.type")
	switch storeType {
	case "", "disk":
		path := resolvePath(a.Root, viper.GetString("storage.path"), filepath.Join(ignore.MetaDir, "objects"))
		store, err = disk.NewAdapter(path, disk.WithCompression(viper.GetBool("storage.compress")))
		if err != nil {
			return nil, fmt.Errorf("failed to init disk storage: %w", err)
		}
		a.bookkeeping = append(a.bookkeeping, path)
		identity = "disk:" + path

	case "s3":
		cfg := s3.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			Prefix:          viper.GetString("s3.prefix"),
			AccessKeyID:     viper.GetString("s3.access_key"),
			SecretAccessKey: viper.GetString("s3.secret_key"),
			Compress:        viper.GetBool("storage.compress"),
		}
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required (set s3.bucket)")
		}
		store, err = s3.NewAdapter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 storage: %w", err)
		}
		identity = "s3:" + cfg.Endpoint + "/" + cfg.Bucket + "/" + strings.Trim(cfg.Prefix, "/")

	default:
		return nil, fmt.Errorf("unsupported storage type: %q", storeType)
	}

	if url := viper.GetString("cache.redis_url"); url != "" {
		cached, err := cache.NewCachedStore(store, cache.Config{
			RedisURL:  url,
			TTL:       viper.GetDuration("cache.ttl"),
			KeyPrefix: cache.NamespacedPrefix(identity),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init redis cache: %w", err)
		}
		slog.Debug("redis cache enabled", "backend", identity)
		return cached, nil
	}
	return store, nil
}

// initHeads 根据 refs.backend 选择 HEAD 的存放位置
// 数据库后端同时返回 Repository，供提交索引使用
func (a *App) initHeads(ctx context.Context) (refs.HeadStore, *meta.Repository, error) {
	var (
		db  *meta.DB
		err error
	)

	backend := viper.GetString("refs.backend")
	switch backend {
	case "", "file":
		return refs.NewFileStore(a.MetaPath), nil, nil

	case "sqlite":
		path := resolvePath(a.Root, viper.GetString("sqlite.path"), filepath.Join(ignore.MetaDir, "meta.db"))
		db, err = meta.NewSQLite(ctx, path)
		// SQLite 会在数据库旁边生成日志文件
		a.bookkeeping = append(a.bookkeeping, path, path+"-journal", path+"-wal", path+"-shm")

	case "postgres":
		db, err = meta.NewDB(ctx, meta.Config{
			Host:     viper.GetString("database.host"),
			Port:     viper.GetInt("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.dbname"),
			SSLMode:  viper.GetString("database.sslmode"),
		})

	default:
		return nil, nil, fmt.Errorf("unsupported refs backend: %q", backend)
	}
	if err != nil {
		return nil, nil, err
	}

	a.closers = append(a.closers, db.Close)
	repo := meta.NewRepository(db)
	return refs.NewDBStore(repo), repo, nil
}

// resolvePath 空值取默认，相对路径以 root 为基准
func resolvePath(root, configured, fallback string) string {
	if configured == "" {
		configured = fallback
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(root, configured)
}

// relWithin 返回 p 相对 root 的路径，p 不在 root 之内时 inside 为 false
func relWithin(root, p string) (rel string, inside bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
