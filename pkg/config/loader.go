package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 SV_STORAGE_TYPE
const EnvPrefix = "SV"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
// rootPath: 仓库根目录 (-C)，它的 .sv 优先于当前目录
func Load(cfgFile, rootPath string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：<root>/.sv -> 当前目录 -> ./.sv -> ~/.sv
		if rootPath != "" && rootPath != "." {
			viper.AddConfigPath(filepath.Join(rootPath, ".sv"))
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath(".sv")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".sv"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (SV_STORAGE_TYPE, SV_CACHE_REDIS_URL 等)
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，格式错才是错
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		slog.Debug("no config file found, using defaults/env vars")
	} else {
		slog.Debug("using config file", "path", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// 存储默认值；storage.path 为空表示 <root>/.sv/objects
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", "")
	viper.SetDefault("storage.compress", false)

	// S3 / MinIO
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.prefix", "")

	// 缓存：redis_url 为空表示不启用
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	// HEAD 存储后端：file | sqlite | postgres
	viper.SetDefault("refs.backend", "file")
	viper.SetDefault("sqlite.path", "")

	// 数据库默认值
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.dbname", "snapvault")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("tree.canonical", false)
	viper.SetDefault("log.level", "warn")
}

// ParseLevel 把配置里的字符串转成 slog.Level，未知值回退到 warn
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// SetupLogger 安装全局 slog，日志一律走 stderr，stdout 留给命令输出
func SetupLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}
