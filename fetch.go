package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
	"github.com/tonimelisma/fissurewatch/internal/viewapi"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Print the current fissures once",
		Long: `Fetch the fissures matching the filter with a single immediate request
and print them. No long-poll is started.`,
		RunE: runFetch,
	}

	addFilterFlags(cmd)

	return cmd
}

// fetchJSON is the --json output of fetch.
type fetchJSON struct {
	Criteria viewapi.CriteriaJSON `json:"criteria"`
	IDs      []string             `json:"ids"`
	Fissures []fissure.Fissure    `json:"fissures"`
}

func runFetch(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	client := newFissureClient(logger)

	snap, err := client.Immediate(cmd.Context(), resolvedCfg.Criteria)
	if err != nil {
		return fmt.Errorf("fetching fissures: %w", err)
	}

	if flagJSON {
		out := fetchJSON{
			Criteria: viewapi.NewCriteriaJSON(resolvedCfg.Criteria),
			IDs:      nonNilStrings(snap.IDs),
			Fissures: snap.Fissures,
		}

		if out.Fissures == nil {
			out.Fissures = []fissure.Fissure{}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	statusf(flagQuiet, "Fissures for %s (%d)\n", resolvedCfg.Criteria, snap.Len())
	printFissures(cmd.OutOrStdout(), snap.Fissures)

	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
