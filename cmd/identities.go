package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/pawtrail/internal/identity"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities",
	Long: `List all enrolled pet identities with their keys, versions and
enrollment timestamps. The name filter is case- and diacritic-insensitive.

Examples:
  pawtrail identities
  pawtrail identities --name fluffy`,
	RunE: runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)

	identitiesCmd.Flags().String("name", "", "Filter by pet name substring")
}

func runIdentities(cmd *cobra.Command, args []string) error {
	filter := mustGetString(cmd, "name")

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.identities.List(ctx)
	if err != nil {
		return fmt.Errorf("listing identities: %w", err)
	}

	if filter != "" {
		needle := identity.NormalizeName(filter)
		var filtered []identity.Record
		for _, rec := range records {
			if strings.Contains(identity.NormalizeName(rec.Name), needle) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	if len(records) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}

	fmt.Printf("%-12s %-20s %-16s %-8s %s\n", "KEY", "NAME", "EXTERNAL ID", "VERSION", "ENROLLED")
	for _, rec := range records {
		fmt.Printf("%-12s %-20s %-16s %-8d %s\n",
			rec.Key, rec.Name, rec.ExternalID, rec.Version,
			rec.EnrolledAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("\n%d identities\n", len(records))
	return nil
}
