package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/pawtrail/internal/recognize"
)

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Identify the pet in an image",
	Long: `Identify the pet in an image against the enrolled corpus.
Prints the best match with its confidence trail and the ranked candidates.

Examples:
  pawtrail search ./query.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.engine.SearchByImage(ctx, data)
	if err != nil {
		if errors.Is(err, recognize.ErrNoFaceDetected) {
			return fmt.Errorf("no pet face detected in %s", args[0])
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if result.Matched {
		fmt.Printf("%s %s (%s)\n", result.TrailIcon, result.Name, result.IdentityKey)
		fmt.Printf("  Trail: %s, score %.4f\n", result.Trail, result.Score)
	} else {
		fmt.Printf("No match (%s)\n", result.Reason)
	}
	fmt.Printf("  %s\n", result.Message)

	if len(result.Matches) > 0 {
		fmt.Println("\nCandidates:")
		for i, m := range result.Matches {
			name := m.Name
			if name == "" {
				name = "(unknown)"
			}
			fmt.Printf("  %d. %-20s %s  %.4f\n", i+1, name, m.IdentityKey, m.Score)
		}
	}
	count, _ := a.identities.Count(ctx)
	fmt.Printf("\nSearched %d identities in %d ms\n", count, result.ElapsedMS)
	return nil
}
