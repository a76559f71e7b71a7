package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docsearch/docsearch/internal/app"
	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/internal/logging"
	"github.com/docsearch/docsearch/internal/transport"
	"github.com/docsearch/docsearch/internal/transport/jsonrpc"
	"github.com/docsearch/docsearch/internal/transport/rest"
	"github.com/docsearch/docsearch/internal/watcher"
)

func newServerCmd() *cobra.Command {
	var stdio bool
	var start, stopFlag, statusFlag bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run or control the docsearch REST and JSON-RPC server",
		Long: `Runs the indexing watcher plus the REST and JSON-RPC transports over a
single application container. --status probes a running server's health;
--stop signals it to shut down.`,
		RunE: func(c *cobra.Command, args []string) error {
			switch {
			case statusFlag:
				return runServerStatus(c)
			case stopFlag:
				return runServerStop(c)
			default:
				_ = start // --start is the default action
				return runServer(c.Context(), stdio)
			}
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "also serve the JSON-RPC dispatcher on stdin/stdout")
	cmd.Flags().BoolVar(&start, "start", false, "run the server in the foreground (default)")
	cmd.Flags().BoolVar(&stopFlag, "stop", false, "signal the running server to shut down")
	cmd.Flags().BoolVar(&statusFlag, "status", false, "report whether a server is running and healthy")
	cmd.MarkFlagsMutuallyExclusive("start", "stop", "status")
	return cmd
}

// pidFilePath is where a foreground server records its pid so `server
// --stop` can find it.
func pidFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".docsearch", "server.pid")
}

func writePIDFile() error {
	path := pidFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePIDFile() { _ = os.Remove(pidFilePath()) }

func runServerStatus(c *cobra.Command) error {
	cfg := loadCLIConfig()
	client := newClient(cfg)
	resp, err := client.Health(c.Context())
	if err != nil {
		printErr(err)
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "server is %s\n", resp.Status)
	return nil
}

func runServerStop(c *cobra.Command) error {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		err = core.NotFound("server", "no pid file found; is the server running?")
		printErr(err)
		return err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		err = core.Internal("malformed pid file", err)
		printErr(err)
		return err
	}
	proc, err := os.FindProcess(pid)
	if err == nil {
		err = proc.Signal(syscall.SIGTERM)
	}
	if err != nil {
		err = core.Internal(fmt.Sprintf("signal server pid %d", pid), err)
		printErr(err)
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "sent SIGTERM to server pid %d\n", pid)
	return nil
}

func runServer(ctx context.Context, stdio bool) error {
	cfg := loadCLIConfig()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		logger = slog.Default()
	} else {
		defer cleanup()
	}

	if !cfg.Server.AllowNonLocalBind && !isLoopback(cfg.Server.ListenAddr) {
		return fmt.Errorf("refusing to bind %s: set allow_non_local_bind to bind a non-loopback address", cfg.Server.ListenAddr)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := writePIDFile(); err != nil {
		logger.Warn("failed to write pid file", "error", err)
	} else {
		defer removePIDFile()
	}

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer container.Close()

	for _, root := range cfg.Paths.DocsRoots {
		if _, err := container.Indexing.IndexPath(ctx, root); err != nil {
			logger.Warn("startup bulk index failed", "root", root, "error", err)
		}
	}

	// One watcher per configured root; each feeds its own RunWatch loop so
	// relative paths stay scoped to the root that produced them.
	var watchers []*watcher.HybridWatcher
	watcherHealthy := false
	for _, root := range container.Indexing.Roots() {
		w, err := watcher.NewHybridWatcher(watcher.Options{
			DebounceWindow:  time.Duration(cfg.Performance.DebounceMS) * time.Millisecond,
			IgnorePatterns:  cfg.Paths.Exclude,
			AllowExtensions: app.AllowedExtensions,
		})
		if err != nil {
			return fmt.Errorf("build watcher: %w", err)
		}
		if err := w.Start(ctx, root); err != nil {
			container.Health.SetWatcherHealth(false, err.Error())
			logger.Warn("watcher failed to start, continuing without live reindexing", "root", root, "error", err)
			continue
		}
		watcherHealthy = true
		watchers = append(watchers, w)
		go watchWatcherErrors(ctx, w, logger)
		events := flattenEvents(ctx, w.Events())
		go func(root string, events <-chan watcher.FileEvent) {
			if err := container.Indexing.RunWatch(ctx, root, events); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watch loop exited", "root", root, "error", err)
			}
		}(root, events)
	}
	if watcherHealthy {
		container.Health.SetWatcherHealth(true, "")
	}

	h := transport.New(container)

	router := rest.New(h, logger)
	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: router.Handler()}

	dispatcher := jsonrpc.NewDispatcher(logger)
	h.RegisterRPC(dispatcher)
	rpcMux := http.NewServeMux()
	rpcMux.Handle(cfg.Server.JSONRPCPath, dispatcher.HTTPHandler())
	rpcServer := &http.Server{Addr: addRPCPort(cfg.Server.ListenAddr), Handler: rpcMux}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("REST server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("REST server: %w", err)
		}
	}()
	go func() {
		logger.Info("JSON-RPC HTTP server listening", "addr", rpcServer.Addr, "path", cfg.Server.JSONRPCPath)
		if err := rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("JSON-RPC server: %w", err)
		}
	}()

	if stdio {
		go func() {
			if err := dispatcher.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
				logger.Warn("stdio JSON-RPC framing ended", "error", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		return err
	}

	// Shutdown order: stop the watchers first so no new events arrive, then
	// close the transports with a bounded timeout. The watch loops end with
	// ctx; runServer does not wait for them or for queued indexing events.
	for _, w := range watchers {
		_ = w.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = rpcServer.Shutdown(shutdownCtx)
	return nil
}

// flattenEvents adapts the watcher's debounced-batch channel to the single-
// event channel internal/indexer.Indexer.RunWatch consumes.
func flattenEvents(ctx context.Context, batches <-chan []watcher.FileEvent) <-chan watcher.FileEvent {
	out := make(chan watcher.FileEvent, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-batches:
				if !ok {
					return
				}
				for _, ev := range batch {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

func watchWatcherErrors(ctx context.Context, w *watcher.HybridWatcher, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// isLoopback reports whether addr's host portion is a loopback address.
// Binding to any other interface requires allow_non_local_bind.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	// An empty host (addr of the form ":8080") means "all interfaces", not
	// loopback, and must fall through to the allow_non_local_bind gate.
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

// addRPCPort derives the JSON-RPC HTTP server's bind address by shifting
// the REST server's port by one, keeping both transports on loopback
// without requiring a second listen_addr configuration key.
func addRPCPort(restAddr string) string {
	host, port, err := net.SplitHostPort(restAddr)
	if err != nil {
		return restAddr
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return restAddr
	}
	return fmt.Sprintf("%s:%d", host, p+1)
}
