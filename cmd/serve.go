package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/pawtrail/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the PawTrail API server.
The server exposes enrollment sessions, similarity search, identity listing
and statistics over HTTP. Identities are stored in PostgreSQL when
DATABASE_URL is set, otherwise in memory.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Server.Port
	if flagPort := mustGetInt(cmd, "port"); flagPort > 0 {
		port = flagPort
	}

	server := web.NewServer(port, a.manager, a.engine, a.identities, a.searchLog, a.log)

	// Expired sessions are also detected lazily on access; the sweeper just
	// keeps the session map from growing between requests.
	pruneDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := a.manager.PruneExpired(); n > 0 {
					a.log.WithField("sessions", n).Debug("pruned expired enrollment sessions")
				}
			case <-pruneDone:
				return
			}
		}
	}()
	defer close(pruneDone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting PawTrail API on http://localhost:%d\n", port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
