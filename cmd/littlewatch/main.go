package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Maryclair03/Latest-LittleWatch/internal/cli"
	"github.com/Maryclair03/Latest-LittleWatch/internal/config"
	logpkg "github.com/Maryclair03/Latest-LittleWatch/internal/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(cli.ExitFailure)
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "littlewatch")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(cli.ExitFailure)
	}

	ctx := context.Background()
	root := cli.NewRootCommand(func() (*cli.App, error) {
		return cli.NewApp(ctx, cfg, log)
	})

	err = root.ExecuteContext(ctx)
	log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
