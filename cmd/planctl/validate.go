package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/switchyard/flow/internal/plan"
)

func newValidateCmd() *cobra.Command {
	var stencilPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse a plan stencil and verify its station graph without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(stencilPath)
			if err != nil {
				return fmt.Errorf("read stencil: %w", err)
			}
			st, err := plan.ParseStencil(string(raw))
			if err != nil {
				return fmt.Errorf("parse stencil: %w", err)
			}

			log.Info().
				Int("stations", len(st.Stations)).
				Int("edges", len(st.Edges)).
				Int("sources", len(st.Sources)).
				Int("destinations", len(st.Destinations)).
				Int("transforms", len(st.Transforms)).
				Msg("stencil parsed")

			for _, stop := range st.StopOrder {
				s := st.Stations[stop]
				log.Debug().
					Int("stop", s.Stop).
					Str("window", s.WindowRaw).
					Str("language", s.Language).
					Str("layout", s.LayoutRaw).
					Msg("station")
			}
			fmt.Printf("ok: %d stations, %d edges\n", len(st.Stations), len(st.Edges))
			return nil
		},
	}

	cmd.Flags().StringVar(&stencilPath, "stencil", "", "path to the plan stencil file (required)")
	_ = cmd.MarkFlagRequired("stencil")

	return cmd
}
