package commands

import (
	"context"
	"fmt"
	"os"

	"snapvault/pkg/app"
	"snapvault/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	rootPath string
	// 全局应用实例，供子命令使用
	SV *app.App
)

var rootCmd = &cobra.Command{
	Use:           "sv",
	Short:         "SnapVault: content-addressed snapshots of a directory",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init 就是去创建环境的，跳过依赖检查
		switch cmd.Name() {
		case "init", "help", "completion":
			return nil
		}
		// 测试里可能已经注入了 SV
		if SV != nil {
			return nil
		}

		var err error
		SV, err = app.NewApp(cmd.Context(), rootPath)
		if err != nil {
			return fmt.Errorf("failed to initialize snapvault: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if SV == nil {
			return nil
		}
		err := SV.Close()
		SV = nil
		return err
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.sv/config.yaml or $HOME/.sv/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootPath, "root", "C", ".", "repository root directory")

	// 既可以在 yaml 里写，也可以用 flag 覆盖
	rootCmd.PersistentFlags().String("storage-path", "", "directory to store objects")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	for key, flag := range map[string]string{
		"storage.path": "storage-path",
		"log.level":    "log-level",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile, rootPath); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
	config.SetupLogger(viper.GetString("log.level"))
}
