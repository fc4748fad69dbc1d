package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"adhunter/internal/app"
	"adhunter/internal/config"
	"adhunter/internal/pkg/logger"
)

const usage = `usage: adhunter [-config PATH] <command> [flags]

commands:
  add          save a new search query
  list         list saved search queries
  delete       delete search queries and their listings
  enable       enable search queries
  disable      disable search queries
  run          crawl every enabled search query once
  maintenance  lock and notification maintenance
  config       update stored credentials
`

// exitAlreadyRunning 另一个实例持有运行锁时的退出码。
const exitAlreadyRunning = 3

// command 是一个子命令的入口。
type command func(ctx context.Context, env *env, args []string) error

var commands = map[string]command{
	"add":         runAdd,
	"list":        runList,
	"delete":      runDelete,
	"enable":      runEnable,
	"disable":     runDisable,
	"run":         runRun,
	"maintenance": runMaintenance,
	"config":      runConfig,
}

// env 是子命令共享的运行环境。服务按需初始化，config 子命令不需要连接任何后端。
type env struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger
	out     io.Writer

	svc     *app.Service
	closeFn func() error
}

func (e *env) service(ctx context.Context) (*app.Service, error) {
	if e.svc != nil {
		return e.svc, nil
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	svc, closeFn, err := app.Bootstrap(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.svc = svc
	e.closeFn = closeFn
	return svc, nil
}

func (e *env) close() {
	if e.closeFn == nil {
		return
	}
	if err := e.closeFn(); err != nil {
		e.logger.Error("close resources failed", slog.String("error", err.Error()))
	}
}

// main 是命令行入口。
//
// 它负责：
// 1. 解析全局参数并加载配置
// 2. 初始化日志
// 3. 分发子命令，收到中断信号时取消上下文
func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("adhunter", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	cfgPath := global.String("config", "", "config file path (default $ADHUNTER_CONFIG or configs/config.json)")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}
	name, rest := global.Arg(0), global.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		global.Usage()
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	e := &env{
		cfg:     cfg,
		cfgPath: config.ResolvePath(*cfgPath),
		logger:  logger.New(os.Stderr, cfg.App.LogLevel, cfg.App.LogFormat),
		out:     os.Stdout,
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, e, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, app.ErrAlreadyRunning) {
			return exitAlreadyRunning
		}
		return 1
	}
	return 0
}
