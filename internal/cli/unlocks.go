package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/utils"
)

// UnlocksResult is the JSON output of the unlocks command.
type UnlocksResult struct {
	UserID  string                `json:"user_id"`
	Unlocks []models.UnlockRecord `json:"unlocks"`
	Total   uint64                `json:"total_lamports"`
}

// NewUnlocksCommand creates the unlocks command.
func NewUnlocksCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlocks <userId>",
		Short: "List a user's unlock records",
		Long: `Print every ledger record for a user, oldest first.

Examples:
  paywall unlocks u1
  paywall unlocks 4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T --format json`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := db.Open(cmd.Context(), cfg.Storage)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open store", err)
			}
			defer st.Close()

			recs, err := st.ListPurchasesByUser(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read ledger", err)
			}

			res := UnlocksResult{UserID: args[0], Unlocks: recs}
			if res.Unlocks == nil {
				res.Unlocks = []models.UnlockRecord{}
			}
			for _, r := range recs {
				res.Total += r.AmountLamports
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			if len(recs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No unlocks for %s.\n", args[0])
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "POST\tAMOUNT\tSIGNATURE\tUNLOCKED AT")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.PostID, utils.FormatLamports(r.AmountLamports), r.TxnSignature, r.CreatedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(tw, "TOTAL\t%s\t\t\n", utils.FormatLamports(res.Total))
			return tw.Flush()
		},
	}
}
