package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harrylevesque/qrpay/internal/app"
)

func historyCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List payments made from this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app.App) error {
				receipts, err := a.Receipts.List()
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(receipts)
				}
				if len(receipts) == 0 {
					fmt.Println("No payments yet")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DATE\tMERCHANT\tAMOUNT\tSTATUS\tTRANSACTION")
				for _, r := range receipts {
					fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n",
						r.CreatedAt.Local().Format("2006-01-02 15:04"), r.MerchantName, r.Amount, r.Status, r.TransactionID)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}
