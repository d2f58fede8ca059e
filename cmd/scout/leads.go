package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func leadsCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "List the saved leads",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, _, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			leads := rt.Service.SavedLeads()
			if len(leads) == 0 {
				fmt.Println("No leads saved yet. Use search or lookup --save to add properties to your leads list.")
				return nil
			}
			if interactive {
				browse(ctx, rt.Service, leads, false)
				return nil
			}
			printTable(leads)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse with the arrow keys")
	return cmd
}
