package main

import (
	"github.com/spf13/cobra"

	"github.com/fmuoria/CV-Analyzer/internal/config"
	"github.com/fmuoria/CV-Analyzer/internal/logging"
)

var version = "dev"

// rootOptions carries the persistent flags and the loaded configuration to
// subcommands
type rootOptions struct {
	configPath string
	debug      bool
	cfg        *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cv-analyzer",
		Short: "CV Analyzer - weigh job requirements and rank CVs",
		Long: `CV Analyzer turns a job description into a weighted list of skill
requirements and ranks candidate CVs against it.

Analysis and scoring run either through an external analysis service
(api_url / CV_ANALYZER_API_URL) or directly against Gemini on Vertex AI.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config.json (default: user config directory)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return opts.load()
	}

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newGUICommand(opts))
	cmd.AddCommand(newParseCommand())
	cmd.AddCommand(newRankCommand(opts))
	cmd.AddCommand(newExportCommand())

	return cmd
}

func (o *rootOptions) load() error {
	var err error
	if o.configPath != "" {
		o.cfg, err = config.LoadFrom(o.configPath)
	} else {
		o.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	level := o.cfg.LogLevel
	if o.debug {
		level = "debug"
	}
	return logging.Init(level, o.debug)
}

func execute() error {
	return newRootCommand().Execute()
}
