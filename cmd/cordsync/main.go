// Package main implements the cordsync daemon, which mirrors the presence
// feed written by editor plugins into Discord Rich Presence.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/spf13/afero"

	rootpkg "tools.zach/dev/cordsync"
	"tools.zach/dev/cordsync/internal/atomicfile"
	"tools.zach/dev/cordsync/internal/config"
	"tools.zach/dev/cordsync/internal/diagnose"
	"tools.zach/dev/cordsync/internal/discord"
	"tools.zach/dev/cordsync/internal/feed"
	"tools.zach/dev/cordsync/internal/logger"
	"tools.zach/dev/cordsync/internal/paths"
	"tools.zach/dev/cordsync/internal/presence"
	"tools.zach/dev/cordsync/internal/update"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//   - goreleaser: -X main.version={{.Version}}  -> "0.1.0"
//   - make build: -X main.version=$(VERSION)    -> "0.0.0-dev+05ffee5"
//
// Bare go builds fall back to the VCS info embedded by the toolchain.
var version = "dev"

// resolveVersion returns [version] when set via ldflags, else a
// "dev+<hash>" tag built from the embedded VCS revision.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Setup
// ///////////////////////////////////////////////

// options are the parsed command-line flags.
type options struct {
	dataDir     string
	diagnose    bool
	foreground  bool
	logLines    int
	showVersion bool
}

func parseFlags(args []string, defaultDir string) (options, error) {
	var o options
	fs := flag.NewFlagSet(paths.BinaryName, flag.ContinueOnError)
	fs.StringVar(&o.dataDir, "data-dir", defaultDir, "Data directory for config, feed, and logs")
	fs.BoolVar(&o.diagnose, "diagnose", false, "Explain why Rich Presence may not appear, then exit")
	fs.BoolVar(&o.foreground, "foreground", false, "Also write logs to stderr")
	fs.IntVar(&o.logLines, "logs", 0, "Print the last `n` log lines, then exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print the version, then exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.dataDir == "" {
		return o, fmt.Errorf("no data directory: set -data-dir or %s", paths.DataDirEnv)
	}
	return o, nil
}

// seedConfig writes the embedded default config on first run.
func seedConfig(fsys afero.Fs, dir paths.DataDir) error {
	exists, err := afero.Exists(fsys, dir.Config())
	if err != nil || exists {
		return err
	}
	return atomicfile.Write(fsys, dir.Config(), rootpkg.DefaultConfigTOML, 0o644)
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	defaultDir := ""
	if d, err := paths.Default(); err == nil {
		defaultDir = d.Root
	}
	opts, err := parseFlags(os.Args[1:], defaultDir)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	os.Exit(run(opts, os.Stdout, os.Stderr))
}

// run executes the selected mode and returns the exit code.
func run(opts options, stdout, stderr io.Writer) int {
	ver := resolveVersion()
	if opts.showVersion {
		fmt.Fprintln(stdout, paths.BinaryName, ver)
		return 0
	}

	dir := paths.DataDir{Root: opts.dataDir}
	fsys := afero.NewOsFs()

	if opts.logLines > 0 {
		tail, err := logger.ReadTail(fsys, dir.Log(), opts.logLines)
		if err != nil {
			fmt.Fprintf(stderr, "read log: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, tail)
		return 0
	}

	if err := fsys.MkdirAll(dir.Root, 0o755); err != nil {
		fmt.Fprintf(stderr, "fatal: create data dir: %v\n", err)
		return 1
	}
	if err := seedConfig(fsys, dir); err != nil {
		fmt.Fprintf(stderr, "warning: failed to write default config: %v\n", err)
	}

	cfg, err := config.Loader{Fs: fsys}.Load(dir.Root)
	if err != nil {
		fmt.Fprintf(stderr, "fatal: load config: %v\n", err)
		return 1
	}

	logOpts := logger.Options{MaxSizeMB: cfg.Log.MaxSizeMB}
	if opts.foreground || opts.diagnose {
		logOpts.Tee = stderr
	}
	log, logCloser, err := logger.NewLogger(dir.Log(), logger.ParseLevel(cfg.Log.Level), logOpts)
	if err != nil {
		fmt.Fprintf(stderr, "fatal: init logger: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	home, _ := os.UserHomeDir()

	if opts.diagnose {
		return runDiagnose(cfg, home, log, stdout)
	}

	if alive, pid := runningPID(dir); alive {
		fmt.Fprintf(stderr, "daemon already running (pid %d)\n", pid)
		return 1
	}

	slog.Info("cordsync starting", "version", ver, "data_dir", dir.Root)

	lock, err := acquirePID(dir)
	if err != nil {
		slog.Error("failed to write PID file", "error", err)
		return 1
	}
	defer lock.release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Update.Check {
		checker := update.NewChecker(cfg.Update.ManifestURL, logger.ForComponent(log, "update"))
		go checker.Check(ctx, ver)
	}

	if cfg.Diagnose.Enabled {
		svc := diagnose.NewService(diagnoseEnv(cfg, home, log),
			diagnose.WithLogger(logger.ForComponent(log, "diagnose")))
		go logReport(ctx, svc, cfg.Host.Name, log)
	}

	syncer := presence.NewSyncer(
		discord.Dialer(logger.ForComponent(log, "discord")),
		presence.WithSendTimeout(cfg.SendTimeout()),
		presence.WithCheckInterval(cfg.LivenessInterval()),
		presence.WithLogger(logger.ForComponent(log, "presence")),
	)
	defer syncer.Dispose()

	watcher := feed.NewWatcher(dir.Feed(), cfg.PollInterval(), logger.ForComponent(log, "watcher"))
	defer watcher.Close()
	if watcher.Polling() {
		slog.Info("using polling mode for file watching")
	}

	signals, stop := shutdownSignals()
	defer stop()

	d := newDaemon(cfg, fsys, dir.Feed(), syncer, logger.ForComponent(log, "daemon"))
	d.run(ctx, watcher.Events(), signals)
	slog.Info("cordsync stopped")
	return 0
}

// runDiagnose prints the environment report. It exits 1 when an issue was
// found so scripts can branch on the result.
func runDiagnose(cfg *config.Config, home string, log *slog.Logger, stdout io.Writer) int {
	svc := diagnose.NewService(diagnoseEnv(cfg, home, log),
		diagnose.WithLogger(logger.ForComponent(log, "diagnose")))

	ctx, cancel := context.WithTimeout(context.Background(), diagnose.DefaultProbeTimeout+time.Second)
	defer cancel()

	report, err := svc.Report(ctx)
	if err != nil {
		log.Warn("diagnosis incomplete", "error", err)
	}
	fmt.Fprintln(stdout, renderReport(report, cfg.Host.Name))
	if report.Healthy() {
		return 0
	}
	return 1
}
