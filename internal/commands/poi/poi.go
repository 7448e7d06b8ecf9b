// Package poi implements fleetctl's "poi" command tree: pinning a
// symbolic (kind, ref) pair to a concrete vendor POI id, bypassing the
// engine's name-based resolver, and inspecting or removing those pins.
package poi

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetcore/engine/internal/cliapp"
	"github.com/fleetcore/engine/pkg/engine"
)

// AppFunc lazily builds (or returns a cached) *cliapp.App.
type AppFunc func() (*cliapp.App, error)

// NewCommand builds the "poi" command tree.
func NewCommand(getApp AppFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poi",
		Short: "Pin, list, and remove (kind, ref) to POI mappings",
	}
	cmd.AddCommand(newMapCommand(getApp))
	cmd.AddCommand(newListCommand(getApp))
	cmd.AddCommand(newUnmapCommand(getApp))
	return cmd
}

func newMapCommand(getApp AppFunc) *cobra.Command {
	var (
		kind   string
		ref    string
		poiID  string
		areaID string
		label  string
	)
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Pin a (kind, ref) pair to a vendor POI id",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp()
			if err != nil {
				return err
			}
			defer app.Close()

			m := &engine.PoiMapping{Kind: kind, Ref: ref, PoiID: poiID}
			if areaID != "" {
				m.AreaID = &areaID
			}
			if label != "" {
				m.Label = &label
			}
			if err := app.Store.UpsertMapping(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mapped %s/%s -> %s\n", kind, ref, poiID)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Target kind, e.g. TABLE, KITCHEN")
	cmd.Flags().StringVar(&ref, "ref", "", "Target reference, e.g. a table number")
	cmd.Flags().StringVar(&poiID, "poi-id", "", "Vendor POI id to pin to")
	cmd.Flags().StringVar(&areaID, "area-id", "", "Vendor area id, if known")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("ref")
	cmd.MarkFlagRequired("poi-id")
	return cmd
}

func newListCommand(getApp AppFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all (kind, ref) to POI mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp()
			if err != nil {
				return err
			}
			defer app.Close()

			mappings, err := app.Store.ListMappings(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range mappings {
				areaID := ""
				if m.AreaID != nil {
					areaID = *m.AreaID
				}
				label := ""
				if m.Label != nil {
					label = *m.Label
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\n", m.Kind, m.Ref, m.PoiID, areaID, label)
			}
			return nil
		},
	}
}

func newUnmapCommand(getApp AppFunc) *cobra.Command {
	var (
		kind string
		ref  string
	)
	cmd := &cobra.Command{
		Use:   "unmap",
		Short: "Remove a (kind, ref) mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.DeleteMapping(cmd.Context(), kind, ref); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unmapped %s/%s\n", kind, ref)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Target kind")
	cmd.Flags().StringVar(&ref, "ref", "", "Target reference")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("ref")
	return cmd
}
