package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/worksplit/internal/core"
)

func newSplitCmd(c *cli) *cobra.Command {
	var req core.SplitRequest

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Create one sheet per key value of the source sheet",
		Long: `Split reads the source sheet and creates a sheet named prefix+value for
every distinct value of the key column. In filter mode each sheet keeps a
text-equals filter on the key column; in group mode rows are grouped in one
pass. Sheets created before a failure are kept and listed.`,
		Args: cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			res, err := c.service().Split(cmd.Context(), req)
			if res != nil && (err == nil || len(res.Sheets) > 0) {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		}),
	}

	f := cmd.Flags()
	f.StringVar(&req.Source, "source", "", "source sheet (default from SOURCE_SHEET_NAME)")
	f.StringVar(&req.KeyColumn, "key", "", "key column label (default from KEY_COLUMN_LABEL)")
	f.StringVar(&req.Prefix, "prefix", "", "partition sheet prefix (default from PARTITION_PREFIX)")
	f.StringVar(&req.Mode, "mode", "", "filter or group (default from SPLIT_MODE)")
	f.StringSliceVar(&req.Values, "values", nil, "split only these key values, in this order")
	return cmd
}

func newMergeCmd(c *cli) *cobra.Command {
	var req core.MergeRequest
	var requireMatches bool

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Concatenate every partition sheet into one sheet",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("require-matches") {
				req.RequireMatches = &requireMatches
			}
			res, err := c.service().Merge(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}

	f := cmd.Flags()
	f.StringVar(&req.Source, "source", "", "sheet whose header the merge uses (default from SOURCE_SHEET_NAME)")
	f.StringVar(&req.Prefix, "prefix", "", "partition sheet prefix (default from PARTITION_PREFIX)")
	f.StringVar(&req.Destination, "dest", "", "destination sheet (default from MERGED_SHEET_NAME)")
	f.BoolVar(&requireMatches, "require-matches", false, "fail when no partition sheet exists")
	return cmd
}

var errNotConfirmed = errors.New("cleanup deletes sheets; pass --yes to confirm")

func newCleanupCmd(c *cli) *cobra.Command {
	var prefix string
	var yes bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every partition sheet",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errNotConfirmed
			}
			res, err := c.service().Cleanup(cmd.Context(), prefix)
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		}),
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "partition sheet prefix (default from PARTITION_PREFIX)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func newDashboardCmd(c *cli) *cobra.Command {
	var export string
	var formulas bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Rebuild the progress dashboard sheet",
		Long: `Dashboard rebuilds the overview sheet listing every partition sheet
with its target and done counts. With --export the overview is written as
CSV instead of stored; --formulas exports the spreadsheet formulas.`,
		Args: cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			if export != "" {
				return writeOutput(cmd, []string{export}, func(w io.Writer) error {
					return c.service().DashboardExport(cmd.Context(), w, formulas)
				})
			}
			if formulas {
				return fmt.Errorf("--formulas needs --export")
			}

			res, err := c.service().Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	cmd.Flags().StringVar(&export, "export", "", "write the overview as CSV to this file (- for stdout)")
	cmd.Flags().BoolVar(&formulas, "formulas", false, "export formulas instead of values")
	return cmd
}
