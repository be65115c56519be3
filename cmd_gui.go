package main

import (
	"github.com/spf13/cobra"

	"github.com/fmuoria/CV-Analyzer/internal/gui"
)

func newGUICommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Open the desktop application",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, files, closeBackend, err := newSession(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			gui.NewApp(opts.cfg, session, files).Run()
			return nil
		},
	}
}
