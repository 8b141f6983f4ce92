package main

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/worksplit/internal/registration"
)

func newRegisterCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Process registration form responses",
	}
	cmd.AddCommand(newRegisterEventCmd(c), newRegisterPendingCmd(c))
	return cmd
}

func newRegisterEventCmd(c *cli) *cobra.Command {
	ev := registration.Event{NumRows: 1}

	cmd := &cobra.Command{
		Use:   "event",
		Short: "Process one submitted row",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			res, err := c.service().HandleRegistrationEvent(cmd.Context(), ev)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}

	f := cmd.Flags()
	f.StringVar(&ev.Sheet, "sheet", "", "registration sheet (default from REGISTRATION_SHEET_NAME)")
	f.IntVar(&ev.Row, "row", 0, "1-based sheet row of the submission; the header is row 1")
	f.IntVar(&ev.NumRows, "num-rows", 1, "rows covered by the event")
	_ = cmd.MarkFlagRequired("row")
	return cmd
}

func newRegisterPendingCmd(c *cli) *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Process every row without a status",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			batch, err := c.service().ProcessPending(cmd.Context(), sheet)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), batch)
		}),
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "registration sheet (default from REGISTRATION_SHEET_NAME)")
	return cmd
}
