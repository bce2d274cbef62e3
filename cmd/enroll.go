package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/pawtrail/internal/enroll"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a pet from a directory of face images",
	Long: `Enroll a pet identity from a directory of captured frames.
Frames are submitted in filename order through the same pipeline the API
uses: face detection, quality gating and embedding. Enrollment completes
as soon as enough frames pass the quality gate.

Examples:
  # Enroll a new pet from captured frames
  pawtrail enroll --dir ./captures/fluffy --id CHIP-4711 --name Fluffy

  # Re-enroll an existing pet, replacing its stored embedding
  pawtrail enroll --dir ./captures/fluffy --id CHIP-4711 --name Fluffy --replace`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Directory with frame images (required)")
	enrollCmd.Flags().String("id", "", "External identifier, e.g. a chip number (required)")
	enrollCmd.Flags().String("name", "", "Pet name (required)")
	enrollCmd.Flags().Bool("replace", false, "Replace an existing identity with the same key")
}

// listFrameFiles returns image files in the directory, sorted by name so
// frame order is deterministic.
func listFrameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	externalID := mustGetString(cmd, "id")
	name := mustGetString(cmd, "name")
	replace := mustGetBool(cmd, "replace")

	if dir == "" || externalID == "" || name == "" {
		return errors.New("--dir, --id and --name are required")
	}

	files, err := listFrameFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files found in %s", dir)
	}

	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.manager.Start(ctx, externalID, name, replace)
	if err != nil {
		return fmt.Errorf("starting enrollment: %w", err)
	}

	fmt.Printf("Enrolling %s as %s (%d frames available, %d required)\n",
		name, snap.IdentityKey, len(files), snap.FramesRequired)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Submitting frames"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var accepted, rejected int
	rejections := map[string]int{}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}

		result, err := a.manager.SubmitFrame(ctx, snap.Token, data)
		if err != nil {
			// The session aggregates automatically once enough frames pass,
			// leftover files are simply not needed.
			if errors.Is(err, enroll.ErrSessionNotActive) {
				break
			}
			return fmt.Errorf("submitting %s: %w", file, err)
		}
		bar.Add(1)

		if result.Accepted {
			accepted = result.FramesAccepted
		} else {
			rejected++
			rejections[result.Reason]++
		}
		if result.State == enroll.StateCompleted {
			break
		}
	}
	fmt.Println()

	record, err := a.manager.Complete(ctx, snap.Token)
	if err != nil {
		if errors.Is(err, enroll.ErrInsufficientFrames) {
			fmt.Printf("Accepted frames: %d, rejected: %d\n", accepted, rejected)
			for reason, count := range rejections {
				fmt.Printf("  %s: %d\n", reason, count)
			}
			return fmt.Errorf("not enough usable frames in %s", dir)
		}
		return fmt.Errorf("completing enrollment: %w", err)
	}

	fmt.Printf("Enrolled %s (key %s, version %d, %d frames aggregated, %d rejected)\n",
		record.Name, record.Key, record.Version, record.FrameCount, rejected)
	return nil
}
