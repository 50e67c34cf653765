package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marcus/daybreak/internal/config"
	"github.com/marcus/daybreak/internal/history"
	"github.com/marcus/daybreak/internal/logging"
	"github.com/marcus/daybreak/internal/metrics"
	"github.com/marcus/daybreak/internal/provider"
	"github.com/marcus/daybreak/internal/scheduler"
)

const pidFileName = "daybreak.pid"

// daemonState holds the live config shared between the scheduler's run
// function and the config watcher.
type daemonState struct {
	mu  sync.Mutex
	cfg *config.Config
}

func (s *daemonState) current() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *daemonState) swap(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background daemon",
	Long:  `Start, stop, or check status of the daybreak background daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start background daemon",
	Long: `Start the daybreak daemon as a background process.

The daemon runs the configured jobs on their cron schedules, reloads
the config when its file changes, and serves Prometheus metrics when
enabled.`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop background daemon",
	Long:  `Stop the running daybreak daemon by sending SIGTERM.`,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	RunE:  runDaemonStatus,
}

var daemonForegroundFlag bool

func init() {
	daemonStartCmd.Flags().BoolVarP(&daemonForegroundFlag, "foreground", "f", false, "Run in foreground (don't daemonize)")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func pidFilePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "daybreak", pidFileName)
}

func writePidFile() error {
	if err := os.MkdirAll(filepath.Dir(pidFilePath()), 0755); err != nil {
		return fmt.Errorf("creating pid dir: %w", err)
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0644)
}

func readPidFile() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

func removePidFile() error {
	return os.Remove(pidFilePath())
}

// isProcessRunning checks liveness with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func isDaemonRunning() (bool, int) {
	pid, err := readPidFile()
	if err != nil {
		return false, 0
	}
	return isProcessRunning(pid), pid
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if running, pid := isDaemonRunning(); running {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Jobs) == 0 {
		return fmt.Errorf("no jobs configured (add a jobs section to the config)")
	}

	if daemonForegroundFlag {
		return runDaemonLoop(cfg)
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("getting executable: %w", err)
	}

	daemonArgs := []string{"daemon", "start", "--foreground"}
	if configPathFlag != "" {
		daemonArgs = append(daemonArgs, "--config", configPathFlag)
	}
	daemon := exec.Command(executable, daemonArgs...)
	daemon.Stdout = nil
	daemon.Stderr = nil
	daemon.Stdin = nil
	daemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := daemon.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	fmt.Printf("daemon started (pid %d)\n", daemon.Process.Pid)
	return nil
}

func runDaemonLoop(cfg *config.Config) error {
	log := logging.Component("daemon")

	if err := writePidFile(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = removePidFile() }()

	log.Info("daemon starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	state := &daemonState{cfg: cfg}
	sched := scheduler.New(func(jobCtx context.Context, job config.JobConfig) error {
		return runScheduledJob(jobCtx, state.current(), job)
	})
	if err := sched.Load(cfg.Jobs); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = sched.Stop() }()

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics.Listen, log)
	}

	watchConfig(ctx, state, sched, log)

	<-ctx.Done()
	log.Info("daemon stopped")
	return nil
}

// runScheduledJob executes one configured job and records it in history.
func runScheduledJob(ctx context.Context, cfg *config.Config, job config.JobConfig) error {
	p, err := buildProvider(cfg, job.Provider)
	if err != nil {
		return err
	}

	result, err := p.Run(ctx, job.Prompt, provider.RunOptions{})
	if err != nil {
		return err
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryPath())
		if err == nil {
			defer store.Close()
			rec := history.Record{
				Provider:   job.Provider,
				Kind:       string(p.Descriptor().Kind),
				Model:      p.Descriptor().Model,
				Prompt:     job.Prompt,
				ExitCode:   result.ExitCode,
				Cost:       result.Cost,
				DurationMs: result.Duration.Milliseconds(),
				Error:      result.Error,
			}
			if result.TokenUsage != nil {
				rec.InputTokens = result.TokenUsage.Input
				rec.OutputTokens = result.TokenUsage.Output
			}
			_, _ = store.Append(ctx, rec)
		}
	}

	if !result.IsSuccess() {
		return fmt.Errorf("job %s: exit %d: %s", job.Name, result.ExitCode, result.Error)
	}
	return nil
}

func startMetricsServer(ctx context.Context, listen string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: listen, Handler: mux}

	go func() {
		log.Infof("metrics listening on %s", listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// reloadConfig loads the config file and applies it to the running daemon.
// The scheduler picks up the new job set; the shared state picks up the new
// providers, defaults, and history path. A failed load or reload leaves the
// previous config fully in effect.
func reloadConfig(ctx context.Context, path string, state *daemonState, sched *scheduler.Scheduler) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := sched.Reload(ctx, cfg.Jobs); err != nil {
		return nil, err
	}
	state.swap(cfg)
	return cfg, nil
}

// watchConfig applies the config file to the running daemon when it changes.
func watchConfig(ctx context.Context, state *daemonState, sched *scheduler.Scheduler, log *logging.Logger) {
	path := configPathFlag
	if path == "" {
		path = config.DefaultPath()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warnf("config watch unavailable: %v", err)
		return
	}
	// Watch the directory so editor rename-and-replace saves are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Warnf("watch config dir: %v", err)
		_ = watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := reloadConfig(ctx, path, state, sched)
				if err != nil {
					log.Warnf("config reload failed: %v", err)
					continue
				}
				log.Infof("config reloaded, %d providers, %d jobs", len(cfg.Providers), len(cfg.Jobs))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("config watch: %v", err)
			}
		}
	}()
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	running, pid := isDaemonRunning()
	if !running {
		return fmt.Errorf("daemon not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}

	fmt.Printf("daemon stopped (pid %d)\n", pid)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	running, pid := isDaemonRunning()
	if !running {
		fmt.Println("daemon: not running")
		return nil
	}
	fmt.Printf("daemon: running (pid %d)\n", pid)
	return nil
}
