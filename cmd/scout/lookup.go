package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

func lookupCmd() *cobra.Command {
	var (
		parcel string
		save   bool
	)
	cmd := &cobra.Command{
		Use:   "lookup [address]",
		Short: "Show everything known about one property",
		Long: `Look a property up by street address, or by assessor parcel number
in the parcel snapshot.

Examples:
  scout lookup 927 N Perry Ave
  scout lookup --parcel 115-01-001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := strings.TrimSpace(strings.Join(args, " "))
			if (addr == "") == (parcel == "") {
				return errors.New("give either an address or --parcel")
			}
			ctx := cmd.Context()
			rt, _, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			var found []types.Lead
			if parcel != "" {
				l, err := rt.Service.LookupParcel(ctx, parcel)
				if err != nil {
					return err
				}
				if l != nil {
					found = append(found, *l)
				}
			} else {
				resp, err := rt.Service.Search(ctx, types.SearchFilters{Address: addr, Limit: 5})
				if err != nil {
					return err
				}
				found = resp.Leads
			}

			if len(found) == 0 {
				fmt.Printf("No property found for: %s\n", firstNonEmpty(addr, parcel))
				return nil
			}
			for _, l := range found {
				renderLead(os.Stdout, l)
			}
			if save {
				res, err := rt.Service.Import(ctx, found)
				if err != nil {
					return err
				}
				fmt.Printf("Saved: %d added, %d merged\n", res.Added, res.Merged)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&parcel, "parcel", "p", "", "assessor parcel number")
	cmd.Flags().BoolVarP(&save, "save", "s", false, "save the result to the lead book")
	return cmd
}
