package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
	isync "github.com/tonimelisma/fissurewatch/internal/sync"
)

var flagLive bool

func newMissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "missions",
		Short: "List the mission types available to the filter",
		Long: `List the built-in mission type catalog. With --live, the types of the
fissures currently reported by the service are merged in.`,
		RunE: runMissions,
	}

	cmd.Flags().BoolVar(&flagLive, "live", false, "merge mission types from the current fissures")

	return cmd
}

func runMissions(cmd *cobra.Command, _ []string) error {
	registry := isync.NewMissionTypeRegistry(isync.DefaultMissionTypes)

	if flagLive {
		logger := buildLogger()

		// Unfiltered, so every type in play is seen.
		snap, err := newFissureClient(logger).Immediate(cmd.Context(), fissure.Criteria{})
		if err != nil {
			return fmt.Errorf("fetching fissures: %w", err)
		}

		registry.Observe(snap.MissionTypes())
	}

	types := registry.Types()

	if flagJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string][]string{"missionTypes": types})
	}

	for _, mt := range types {
		marker := " "
		if resolvedCfg.Criteria.Has(mt) {
			marker = "*"
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, mt)
	}

	return nil
}
