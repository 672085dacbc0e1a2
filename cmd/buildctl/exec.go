package main

import (
	"errors"
	"fmt"

	"github.com/nixpig/buildworker/internal/buildconfig"
	"github.com/nixpig/buildworker/internal/compiler"
	"github.com/nixpig/buildworker/internal/jobmanager"
	"github.com/nixpig/buildworker/internal/logging"
	"github.com/nixpig/buildworker/internal/viewer"
	"github.com/spf13/cobra"
)

type execConfig struct {
	presetsPath string
	verb        string
	log         logging.Options
}

// execCmd runs a build in-process, without a server.
func execCmd() *cobra.Command {
	cfg := &execConfig{}

	command := &cobra.Command{
		Use:     "exec [flags] TARGET",
		Short:   "Run a build locally and show its output",
		Example: "  buildctl exec windows --presets buildworker.yaml",
		Args:    cobra.ExactArgs(1),
		// Overrides the root hook: exec doesn't talk to a server.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, cfg, args[0])
		},
	}

	command.Flags().StringVar(
		&cfg.presetsPath,
		"presets",
		"buildworker.yaml",
		"Path to build preset file",
	)

	command.Flags().StringVar(&cfg.verb, "verb", "", "Override the target's verb")

	cfg.log.AddFlags(command.Flags())

	return command
}

func runLocal(cmd *cobra.Command, cfg *execConfig, target string) error {
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.log)
	if err != nil {
		return err
	}

	presets, err := buildconfig.Load(cfg.presetsPath)
	if err != nil {
		return err
	}

	jobCfg, err := presets.Configuration(target)
	if err != nil {
		return err
	}

	if cfg.verb != "" {
		jobCfg.Verb = compiler.Verb(cfg.verb)
	}

	log := viewer.NewLog(cmd.OutOrStdout())
	defer log.Close()

	controller := jobmanager.NewController(logger, log)

	job, err := controller.Run(
		presets.ProjectRef(),
		presets.RuntimeRef(),
		presets.UserPath,
		jobCfg,
	)
	if err != nil {
		var runErr *jobmanager.Error
		if errors.As(err, &runErr) && runErr.Hint != "" {
			return fmt.Errorf("%w (%s)", err, runErr.Hint)
		}

		return err
	}

	if err := controller.OpenEditor(job, true); err != nil {
		logger.Warn("open viewer", "id", job.ID(), "err", err)
	}

	st, err := job.AwaitCompletion(cmd.Context())
	if err != nil {
		controller.Shutdown()
		<-job.Done()

		return fmt.Errorf("build interrupted: %w", err)
	}

	// The footer is written by the stop observer.
	<-job.Done()

	if st.Display() == jobmanager.DisplayFailed {
		return fmt.Errorf("build failed with exit code %d", st.ExitCode)
	}

	return nil
}
