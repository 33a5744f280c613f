package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pair-regress-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	dryRun := flag.Bool("dryRun", false, "使用内存存储，不连接数据库")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置文件")
	watchCfg := flag.Bool("watchConfig", true, "配置文件变更时热更新阈值与日志级别")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(container.Options{
		ConfigPath:  *cfgPath,
		DryRun:      *dryRun,
		MetricsAddr: *metricsAddr,
		WatchConfig: *watchCfg,
	})
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}

	runErr := c.Run(ctx)
	if err := c.Stop(); err != nil {
		log.Printf("停止时出错: %v", err)
	}
	if runErr != nil {
		log.Fatalf("运行失败: %v", runErr)
	}
}
