package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pawtrail",
	Short: "Pet face identification service",
	Long: `PawTrail enrolls pets from multi-frame face captures and identifies them
by similarity search. Each enrollment session aggregates quality-gated face
embeddings into one canonical vector; searches rank a query face against the
enrolled corpus and classify the best match into confidence trails.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
