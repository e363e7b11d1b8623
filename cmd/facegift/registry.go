package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/facegift/internal/tracker"
)

var errNotConfirmed = errors.New("refusing to reset without --yes")

var resetConfirmed bool

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and maintain the tracked face registry",
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked faces",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		records, err := tracker.ListFile(cfg.RegistryPath())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No tracked faces.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFIRST SEEN\tLAST SEEN\tDETECTIONS\tINFO")
		for _, r := range records {
			info := "-"
			if r.APICalled {
				info = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ID,
				r.FirstSeen.Local().Format(time.DateTime), r.LastSeen.Local().Format(time.DateTime),
				r.DetectionCount, info)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d tracked faces in %s\n", len(records), cfg.RegistryPath())
		return nil
	},
}

var registryBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the registry to a timestamped backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		path, err := tracker.Backup(cfg.RegistryPath(), time.Now())
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Println("No registry to back up.")
			return nil
		}
		fmt.Printf("Backed up to %s\n", path)
		return nil
	},
}

var registryResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Back up and empty the registry",
	Long: `Back up the registry and replace it with an empty one. Saved face crops
are kept. Do not run this while facegift serve is running; use the
dashboard's reset instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirmed {
			return errNotConfirmed
		}
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		backup, err := tracker.ResetFile(cfg.RegistryPath(), time.Now())
		if err != nil {
			return err
		}
		log.Infof("registry reset")
		if backup != "" {
			fmt.Printf("Previous registry saved to %s\n", backup)
		}
		return nil
	},
}

func init() {
	registryResetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "Confirm the reset")
	registryCmd.AddCommand(registryListCmd, registryBackupCmd, registryResetCmd)
	rootCmd.AddCommand(registryCmd)
}
