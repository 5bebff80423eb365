// Command packedseriald pairs with packed serial boards and serves their things over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-packedserial/board"
	"github.com/arloliu/go-packedserial/directory"
	"github.com/arloliu/go-packedserial/directory/redismirror"
	"github.com/arloliu/go-packedserial/internal/config"
	"github.com/arloliu/go-packedserial/internal/httpapi"
	"github.com/arloliu/go-packedserial/internal/logging"
	"github.com/arloliu/go-packedserial/internal/metrics"
	"github.com/arloliu/go-packedserial/logger"
	"github.com/arloliu/go-packedserial/registry"
	"github.com/arloliu/go-packedserial/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "", "config file (yaml, toml or json)")
	dump := pflag.Bool("dump", false, "pair once, print the board and thing tree as YAML and exit")
	listPorts := pflag.Bool("list-ports", false, "print the serial ports found on this host and exit")
	pflag.Parse()

	if err := run(*configPath, *dump, *listPorts); err != nil {
		fmt.Fprintln(os.Stderr, "packedseriald:", err)
		os.Exit(1)
	}
}

func run(configPath string, dump bool, listPorts bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// keep stdout clean for YAML output
	logOut := io.Writer(os.Stdout)
	if dump || listPorts {
		logOut = os.Stderr
	}
	log, closer := logging.NewWithWriter(cfg.Logging, logOut)
	defer func() { _ = closer.Close() }()
	logger.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if listPorts {
		return printPorts(ctx, os.Stdout)
	}

	dirOpts := []directory.Option{directory.WithLogger(log)}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}

		dirOpts = append(dirOpts,
			directory.WithMirror(redismirror.New(rdb, cfg.Redis.Prefix)),
			directory.WithMirrorTimeout(cfg.Redis.MirrorTimeout),
		)
		log.Info("mirroring directory to redis", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	}

	dir := directory.New(ctx, dirOpts...)
	defer func() { _ = dir.Close() }()

	regOpts := []registry.Option{
		registry.WithLogger(log),
		registry.WithSelectors(cfg.Pairing.Selectors...),
		registry.WithBoardOptions(
			board.WithLogger(log),
			board.WithSettleDelay(cfg.Board.SettleDelay),
			board.WithResponseTimeout(cfg.Board.ResponseTimeout),
			board.WithSendTimeout(cfg.Board.SendTimeout),
		),
	}
	if !dump && cfg.Pairing.Rescan > 0 {
		regOpts = append(regOpts, registry.WithRescanInterval(cfg.Pairing.Rescan))
	}

	reg, err := registry.New(ctx, dir, regOpts...)
	if err != nil {
		return err
	}
	defer reg.Unload()

	if dump {
		return pairAndDump(ctx, reg, dir, cfg.Pairing.Timeout, os.Stdout)
	}

	if cfg.Pairing.OnStart {
		if err := reg.StartPairing(ctx, cfg.Pairing.Timeout); err != nil {
			log.Error("pairing failed", "error", err)
		}
	}

	deps := httpapi.Deps{
		Gateway:               reg,
		Directory:             dir,
		Logger:                log,
		DefaultPairingTimeout: cfg.Pairing.Timeout,
	}
	if cfg.Metrics.Enable {
		promReg := metrics.NewRegistry()
		promReg.MustRegister(metrics.NewCollector(reg, dir))
		deps.Metrics = metrics.NewHTTPMetrics(promReg)
		deps.MetricsHandler = metrics.Handler(promReg)
		deps.MetricsPath = cfg.Metrics.Path
	}

	srv := httpapi.New(cfg.HTTP, deps)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	log.Info("http api listening", "addr", cfg.HTTP.Addr)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func printPorts(ctx context.Context, w io.Writer) error {
	ports, err := transport.SerialLister{}.List(ctx)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"ports": ports}); err != nil {
		return err
	}

	return enc.Close()
}

// pairAndDump pairs once, waits until every board is Ready or Disconnected or the timeout
// elapses, then writes the boards and the directory.
func pairAndDump(ctx context.Context, reg *registry.Registry, dir *directory.Directory, timeout time.Duration, w io.Writer) error {
	if err := reg.StartPairing(ctx, 0); err != nil {
		return err
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reg.Range(func(b *board.Board) bool {
		state, err := b.WaitAnyState(waitCtx, board.Ready, board.Disconnected)
		switch {
		case err != nil && !errors.Is(err, context.DeadlineExceeded):
			logger.Warn("board not ready", "board", b.ID(), "error", err)
		case state == board.Disconnected:
			logger.Warn("board disconnected during pairing", "board", b.ID(), "error", b.LastError())
		}

		return waitCtx.Err() == nil
	})

	if err := reg.Dump(w); err != nil {
		return err
	}

	return dir.Dump(w)
}
