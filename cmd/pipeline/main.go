// Command pipeline is IsoCrates' CLI entry point (spec.md §6): a single
// "pipeline --repo <url> [--crate <prefix>]" invocation drives one
// end-to-end orchestrator run and exits 0 on any outcome that produced
// documents (including "nothing changed, skipped") or non-zero on a fatal
// configuration error. Two auxiliary subcommands, "serve" and "worker",
// start the content-store HTTP surface and the job-queue worker loop
// respectively — neither is part of spec.md's CLI contract verbatim, but
// both are the processes that surround a single pipeline run in the rest
// of the system, so they live next to it the way codeNERD's direct-action
// verbs live next to its interactive entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/isocrates/isocrates/internal/audit"
	"github.com/isocrates/isocrates/internal/breaker"
	"github.com/isocrates/isocrates/internal/cliui"
	"github.com/isocrates/isocrates/internal/config"
	"github.com/isocrates/isocrates/internal/httpapi"
	"github.com/isocrates/isocrates/internal/jobqueue"
	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/orchestrator"
	"github.com/isocrates/isocrates/internal/store"
	"github.com/isocrates/isocrates/internal/webhook"
)

var (
	repoURL     string
	cratePrefix string
	configPath  string
	workDir     string
	trigger     string
	httpAddr    string
)

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "IsoCrates documentation generation pipeline",
	Long: `pipeline drives one end-to-end IsoCrates run over a repository:
clone/pull, analyze, partition, scout, plan, write, and reconcile the
content store against what survived. Run without a subcommand to execute
a single pipeline run against --repo.`,
	RunE: runPipeline,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the content store's HTTP API and GitHub webhook endpoint",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job queue worker loop",
	RunE:  runWorker,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	rootCmd.Flags().StringVar(&repoURL, "repo", "", "repository URL to generate documentation for (required)")
	rootCmd.Flags().StringVar(&cratePrefix, "crate", "", "restrict generation to one crate path prefix")
	rootCmd.Flags().StringVar(&workDir, "workdir", ".isocrates/repos", "local directory under which repositories are cloned")
	rootCmd.Flags().StringVar(&trigger, "trigger", "manual", "generation trigger recorded in version author metadata")
	_ = rootCmd.MarkFlagRequired("repo")

	serveCmd.Flags().StringVar(&httpAddr, "addr", ":8080", "address to listen on")

	rootCmd.AddCommand(serveCmd, workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pipeline:", err)
		os.Exit(1)
	}
}

// loadConfigOrExit loads configuration, exiting with a fatal configuration
// error message per spec.md §7 ("Configuration error ... Fatal at startup;
// pipeline exits with a specific message") rather than returning a generic
// cobra error.
func loadConfigOrExit() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeline: configuration error:", err)
		os.Exit(1)
	}
	return cfg
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg := loadConfigOrExit()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Store.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening content store: %w", err)
	}
	defer st.Close()
	defer logging.Sync()

	var auditLog *audit.Logger
	if cfg.Logging.AuditPath != "" {
		auditLog, err = audit.Open(cfg.Logging.AuditPath, time.Now().UTC().Format("20060102T150405Z"))
		if err == nil {
			defer auditLog.Close()
		} else {
			fmt.Fprintln(os.Stderr, "pipeline: warning: audit log disabled:", err)
		}
	}

	breakers := breaker.NewRegistry(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown)
	runner := orchestrator.New(st, breakers, auditLog)

	runCfg := orchestrator.Config{
		WorkDir:     workDir,
		CratePrefix: cratePrefix,
		Trigger:     trigger,
		LLM:         cfg.LLM,
		Scout:       cfg.Scout,
		Writer:      cfg.Writer,
		Partitioner: cfg.Partitioner,
	}

	fmt.Println(cliui.Stage(fmt.Sprintf("starting run for %s", repoURL)))
	stats, err := runner.Run(ctx, repoURL, runCfg)
	if err != nil {
		fmt.Println(cliui.Failure("run failed: " + err.Error()))
		return fmt.Errorf("run failed: %w", err)
	}

	if stats.Skipped {
		fmt.Println(cliui.Success("skipped: " + stats.SkipReason))
		return nil
	}
	fmt.Println(cliui.Success(fmt.Sprintf("done (commit %s)", stats.CommitSHA)))
	fmt.Println(cliui.Stat("areas processed", cliui.Count(stats.AreasProcessed)))
	fmt.Println(cliui.Stat("documents generated", cliui.Count(len(stats.GeneratedIDs))))
	fmt.Println(cliui.Stat("documents failed", cliui.Count(len(stats.FailedIDs))))
	fmt.Println(cliui.Stat("orphans cleaned", cliui.Count(stats.OrphansCleaned)))
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadConfigOrExit()

	st, err := store.Open(cfg.Store.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening content store: %w", err)
	}
	defer st.Close()
	defer logging.Sync()

	queue, err := jobqueue.Open(cfg.Store.DatabaseURL + ".jobs")
	if err != nil {
		return fmt.Errorf("opening job queue: %w", err)
	}
	defer queue.Close()

	wh := webhook.NewHandler(cfg.Webhook.Secret, queue)
	srv := httpapi.New(st, wh)

	httpServer := &http.Server{Addr: httpAddr, Handler: srv.Router()}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	fmt.Println(cliui.Stage(fmt.Sprintf("serving on %s", httpAddr)))
	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg := loadConfigOrExit()

	queue, err := jobqueue.Open(cfg.Store.DatabaseURL + ".jobs")
	if err != nil {
		return fmt.Errorf("opening job queue: %w", err)
	}
	defer queue.Close()
	defer logging.Sync()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own executable path: %w", err)
	}

	w := jobqueue.NewWorker(queue, jobqueue.WorkerConfig{
		PipelineBinary: self,
		PollInterval:   cfg.JobQueue.PollInterval,
		JobTimeout:     cfg.JobQueue.JobTimeout,
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println(cliui.Stage("worker loop started"))
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}
