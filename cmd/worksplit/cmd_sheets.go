package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/worksplit/internal/core"
)

func newSheetsCmd(c *cli) *cobra.Command {
	var prefix string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "List sheets in workbook order",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			sheets, err := c.service().ListSheets(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), sheets)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GID\tNAME\tROWS")
			for _, s := range sheets {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", s.GID, s.Name, s.RowCount)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only sheets whose name starts with prefix")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	var opts core.ImportOptions

	cmd := &cobra.Command{
		Use:   "import SHEET [FILE]",
		Short: "Create a sheet from a CSV file (stdin when FILE is - or missing)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			res, err := c.service().ImportCSV(cmd.Context(), args[0], in, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "replace an existing sheet of the same name")
	cmd.Flags().BoolVar(&opts.First, "first", false, "place the sheet before all others")
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export SHEET [FILE]",
		Short: "Write a sheet as CSV (stdout when FILE is - or missing)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			return writeOutput(cmd, args[1:], func(w io.Writer) error {
				return c.service().ExportCSV(cmd.Context(), args[0], w)
			})
		}),
	}
}

// writeOutput runs write against the named file, or stdout.
func writeOutput(cmd *cobra.Command, args []string, write func(io.Writer) error) error {
	if len(args) == 0 || args[0] == "-" {
		return write(cmd.OutOrStdout())
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(args[0])
		return err
	}
	return f.Close()
}

func newAuditCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			entries, err := c.service().AuditLog(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", core.DefaultAuditLimit, "number of entries")
	return cmd
}
