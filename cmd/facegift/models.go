package main

import (
	"fmt"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ayusman/facegift/internal/face"
)

var modelsProxy string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the face detection and encoding models",
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download [model...]",
	Short: "Download models into the data directory",
	Long: fmt.Sprintf(`Download the named models, or all of them when none are given.

Available models: %s`, strings.Join(face.ModelKeys(), ", ")),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		keys := args
		if len(keys) == 0 {
			keys = face.ModelKeys()
		}
		for _, k := range keys {
			if _, ok := face.Models[k]; !ok {
				return fmt.Errorf("unknown model %q (available: %s)", k, strings.Join(face.ModelKeys(), ", "))
			}
		}

		md := face.NewModelDownloader(cfg.ModelsDir())
		md.Log = log
		md.ProxyURL = modelsProxy
		if md.ProxyURL == "" {
			md.ProxyURL = cfg.Face.ModelProxy
		}

		for _, k := range keys {
			var bar *progressbar.ProgressBar
			md.OnProgress = func(written, total int64) {
				if bar == nil {
					bar = progressbar.DefaultBytes(total, face.Models[k].Name)
				}
				bar.Set64(written)
			}

			path, err := md.Download(cmd.Context(), k)
			if bar != nil {
				bar.Finish()
				fmt.Println()
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", k, path)
		}
		return nil
	},
}

func init() {
	modelsDownloadCmd.Flags().StringVar(&modelsProxy, "proxy", "", "socks5:// or http(s):// proxy for the download")
	modelsCmd.AddCommand(modelsDownloadCmd)
	rootCmd.AddCommand(modelsCmd)
}
