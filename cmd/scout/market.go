package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func marketCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Score the Tucson metro market 0-100",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, _, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			rep, err := rt.Service.Market(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			names := make([]string, 0, len(rep.Components))
			for name := range rep.Components {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				c := rep.Components[name]
				rows = append(rows, []string{
					name,
					fmt.Sprintf("%.2f", c.Value),
					fmt.Sprint(c.Year),
					fmt.Sprintf("%.1f", c.Score),
					fmt.Sprintf("%.0f%%", c.Weight*100),
				})
			}
			for _, line := range tableLines([]string{"Component", "Value", "Year", "Score", "Weight"}, rows) {
				fmt.Println(line)
			}
			for _, m := range rep.Missing {
				fmt.Printf("%s%s unavailable%s\n", colorYellow, m, colorReset)
			}
			fmt.Printf("Market score: %.1f\n", rep.Score)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print the report as JSON")
	return cmd
}
