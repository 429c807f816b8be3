package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ciroach/ciroach/internal/cancel"
	"github.com/ciroach/ciroach/internal/configerr"
	"github.com/ciroach/ciroach/internal/driver"
	"github.com/ciroach/ciroach/internal/logger"
	"github.com/ciroach/ciroach/internal/orchestrator"
	"github.com/ciroach/ciroach/internal/pipeline"
	"github.com/ciroach/ciroach/internal/rawpipeline"
	"github.com/ciroach/ciroach/internal/reportrender"
	"github.com/ciroach/ciroach/internal/ui"
)

const (
	exitSuccess          = 0
	exitStepFailure      = 1
	exitConfigOrDeadlock = 2
)

var (
	configPath string
	userFlag   string
)

func main() {
	root := &cobra.Command{
		Use:   "ciroach",
		Short: "A local CI pipeline executor",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "pipeline.toml", "path to the pipeline description")
	root.Flags().StringVar(&userFlag, "user", "", "container user mapping uid:gid (defaults to the working directory owner)")

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	ctx := logger.WithContext(context.Background(), logger.Logrus(log))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("%w: reading %q: %v", configerr.ErrConfig, configPath, err)
	}

	raw, order, err := rawpipeline.Parse(data)
	if err != nil {
		return fmt.Errorf("%w: %v", configerr.ErrConfig, err)
	}

	pipe, err := pipeline.Compile(ctx, raw, order)
	if err != nil {
		return err
	}

	drv, err := driver.NewDockerDriver()
	if err != nil {
		return fmt.Errorf("%w: %v", configerr.ErrConfig, err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("%w: determining working directory: %v", configerr.ErrConfig, err)
	}
	user := userFlag
	if user == "" {
		user = containerUser(cwd)
	}

	token := cancel.New()
	go func() {
		<-ctx.Done()
		token.Cancel()
	}()

	reporter, stopReporter := newReporter(pipe)
	rep, err := orchestrator.Run(ctx, pipe, drv, cwd, user, token, reporter)
	stopReporter()
	if err != nil {
		return err
	}

	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("creating logs directory: %w", err)
	}
	logPath := filepath.Join("logs", fmt.Sprintf("build_%s.log", time.Now().Format("2006-01-02_15-04-05")))
	if err := reportrender.File(logPath, rep); err != nil {
		return err
	}

	reportrender.Console(os.Stdout, rep)

	if !rep.Success() {
		os.Exit(exitStepFailure)
	}
	return nil
}

// newReporter drives the bubbletea pre-pull UI when stdout is a
// terminal, the way original_source/src/main.rs only ever constructs
// its PreFlightUI for an interactive run. It returns a no-op reporter
// for a non-TTY invocation (redirected output, CI), plus a stop func
// that must run once the orchestrator has returned so the UI program's
// terminal state is always restored.
func newReporter(pipe *pipeline.Pipeline) (ui.Reporter, func()) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return ui.Noop{}, func() {}
	}

	pf := ui.New(pipelineImages(pipe))
	done := make(chan error, 1)
	go func() { done <- pf.Run() }()
	return pf, func() {
		pf.Quit()
		<-done
	}
}

func pipelineImages(pipe *pipeline.Pipeline) []string {
	seen := map[string]bool{}
	var images []string
	for _, stage := range pipe.Stages {
		for _, step := range stage.Steps {
			if !seen[step.Image] {
				seen[step.Image] = true
				images = append(images, step.Image)
			}
		}
	}
	return images
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	switch {
	case isConfigOrDeadlock(err):
		return exitConfigOrDeadlock
	default:
		return exitStepFailure
	}
}

func isConfigOrDeadlock(err error) bool {
	return errors.Is(err, configerr.ErrConfig) || errors.Is(err, configerr.ErrDeadlock)
}
