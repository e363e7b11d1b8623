package main

import (
	"fmt"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/facegift/internal/face"
)

var (
	knownName   string
	knownNoCopy bool
)

var knownCmd = &cobra.Command{
	Use:   "known",
	Short: "Manage the labelled reference faces",
	Long: `Known faces live under <data_dir>/known_faces/<person name>/<photo>.
Their encodings are cached so serve starts quickly.`,
}

var knownRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-encode every known face photo",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirs(); err != nil {
			return err
		}
		models, err := openFaceModels(cfg, false, log)
		if err != nil {
			return err
		}
		defer models.Close()

		paths, err := models.known.ImagePaths()
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Printf("No photos found in %s\n", cfg.KnownFacesDir())
			return nil
		}

		bar := progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Encoding known faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		var failed int
		n, err := models.known.Rebuild(func(path string, err error) {
			if err != nil {
				failed++
			}
			bar.Add(1)
		})
		bar.Finish()
		fmt.Println()
		if err != nil {
			return err
		}

		fmt.Printf("Encoded %d faces for %d people (%d photos skipped)\n", n, len(models.known.People()), failed)
		return nil
	},
}

var knownAddCmd = &cobra.Command{
	Use:   "add <photo>",
	Short: "Add a reference photo for a person",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := knownName
		if name == "" {
			return fmt.Errorf("--name is required")
		}
		if !face.IsSupportedImage(args[0]) {
			return fmt.Errorf("unsupported image type: %s", filepath.Ext(args[0]))
		}

		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirs(); err != nil {
			return err
		}
		models, err := openFaceModels(cfg, true, log)
		if err != nil {
			return err
		}
		defer models.Close()

		if err := models.known.Add(args[0], name, !knownNoCopy); err != nil {
			return err
		}
		fmt.Printf("Added %s as %s (%d known faces)\n", args[0], name, models.known.Count())
		return nil
	},
}

func init() {
	knownAddCmd.Flags().StringVar(&knownName, "name", "", "Person name")
	knownAddCmd.Flags().BoolVar(&knownNoCopy, "no-copy", false, "Do not copy the photo into the known faces directory")
	knownCmd.AddCommand(knownRebuildCmd, knownAddCmd)
	rootCmd.AddCommand(knownCmd)
}
