package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/scout"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

func searchCmd() *cobra.Command {
	var (
		f           types.SearchFilters
		distress    []string
		hot         []string
		propTypes   []string
		subtypes    []string
		statuses    []string
		pool        bool
		garage      bool
		guest       bool
		asJSON      bool
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search for leads",
		Long: `Search for leads in a zip code, city, neighborhood or street address.

Examples:
  scout search --zip 85705 --distress "code violations" --distress absentee
  scout search --city Tucson --hot fsbo --limit 20 --interactive
  scout search --address "927 N Perry Ave"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.DistressType = distress
			f.HotList = hot
			f.PropertyTypes = propTypes
			f.PropertySubtypes = subtypes
			f.ListingStatuses = statuses
			if cmd.Flags().Changed("pool") {
				f.HasPool = types.Bool(pool)
			}
			if cmd.Flags().Changed("garage") {
				f.HasGarage = types.Bool(garage)
			}
			if cmd.Flags().Changed("guest-house") {
				f.HasGuestHouse = types.Bool(guest)
			}

			ctx := cmd.Context()
			rt, _, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			resp, err := rt.Service.Search(ctx, f)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			if resp.Warning != "" {
				fmt.Fprintf(os.Stderr, "%s%s%s\n", colorYellow, resp.Warning, colorReset)
			}
			if len(resp.Leads) == 0 {
				fmt.Println("No leads found.")
				return nil
			}
			if interactive {
				browse(ctx, rt.Service, resp.Leads, true)
				return nil
			}
			printTable(resp.Leads)
			fmt.Printf("%d leads\n", len(resp.Leads))
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.ZipCode, "zip", "z", "", "five-digit zip code")
	fl.StringVar(&f.City, "city", "", "city name")
	fl.StringVar(&f.Neighborhood, "neighborhood", "", "neighborhood or subdivision name")
	fl.StringVarP(&f.Address, "address", "a", "", "street address")
	fl.StringArrayVarP(&distress, "distress", "d", nil, "distress type (repeatable)")
	fl.StringArrayVar(&hot, "hot", nil, "hot-list filter (repeatable)")
	fl.StringArrayVarP(&propTypes, "type", "t", nil, "property type (repeatable)")
	fl.StringArrayVar(&subtypes, "subtype", nil, "property subtype (repeatable)")
	fl.StringArrayVar(&statuses, "status", nil, "listing status (repeatable)")
	fl.BoolVar(&pool, "pool", false, "require (or with =false exclude) a pool")
	fl.BoolVar(&garage, "garage", false, "require (or with =false exclude) a garage")
	fl.BoolVar(&guest, "guest-house", false, "require (or with =false exclude) a guest house")
	fl.IntVarP(&f.Limit, "limit", "n", 0, "maximum leads (default from settings)")
	fl.BoolVar(&f.SkipHomeharvest, "skip-listings", false, "do not query the listing provider")
	fl.BoolVar(&f.SkipEnrichment, "skip-enrichment", false, "return candidates without enrichment")
	fl.BoolVarP(&asJSON, "json", "j", false, "print the response as JSON")
	fl.BoolVarP(&interactive, "interactive", "i", false, "browse results with the arrow keys")
	return cmd
}

func printTable(leads []types.Lead) {
	rows := make([][]string, len(leads))
	for i, l := range leads {
		rows[i] = leadRow(l)
	}
	for _, line := range tableLines(tableHeader, rows) {
		fmt.Println(line)
	}
}

// browse opens the picker over leads. With askSave the detail view offers
// to save the lead to the lead book.
func browse(ctx context.Context, svc *scout.Service, leads []types.Lead, askSave bool) {
	rows := make([][]string, len(leads))
	for i, l := range leads {
		rows[i] = leadRow(l)
	}
	lines := tableLines(tableHeader, rows)
	pick(lines[:2], lines[2:], func(i int) {
		renderLead(os.Stdout, leads[i])
		if askSave {
			offerSave(ctx, svc, leads[i])
		}
	})
}

func offerSave(ctx context.Context, svc *scout.Service, l types.Lead) {
	fmt.Print("Save to leads? (y/N): ")
	resp, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp != "y" && resp != "yes" {
		return
	}
	if _, err := svc.Import(ctx, []types.Lead{l}); err != nil {
		fmt.Printf("Failed to save lead: %v\n", err)
		return
	}
	fmt.Println("Lead saved.")
}
