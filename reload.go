package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/fissurewatch/internal/config"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make a running watcher re-read its config file",
		Long: `Send SIGHUP to the running "fissurewatch watch". The watcher re-reads
its config file and applies the new filter. An invalid file is rejected and
the previous config stays in force.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := sendSIGHUP(config.DefaultPIDPath()); err != nil {
				return err
			}

			statusf(flagQuiet, "Reload signal sent.\n")

			return nil
		},
	}
}
