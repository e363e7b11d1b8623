package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayusman/facegift/internal/amount"
)

var amountNoLLM bool

var amountCmd = &cobra.Command{
	Use:   "amount",
	Short: "Debug spoken amount parsing",
}

var amountParseCmd = &cobra.Command{
	Use:   "parse <text>",
	Short: "Show the SUI amount a snap would send for text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if amountNoLLM {
			cfg.Ollama.URL = ""
		}
		parser := newAmountParser(cfg, log)

		text := strings.Join(args, " ")
		sui, src, err := parser.Resolve(cmd.Context(), text)
		if errors.Is(err, amount.ErrInvalid) {
			fmt.Printf("invalid amount: %v\n", err)
			return nil
		}
		if err != nil {
			return err
		}
		if src == amount.SourceNone {
			src = "default"
		}
		fmt.Printf("%g SUI (%d MIST) from %s\n", sui, amount.ToMist(sui), src)
		return nil
	},
}

func init() {
	amountParseCmd.Flags().BoolVar(&amountNoLLM, "no-llm", false, "Skip the Ollama fallback")
	amountCmd.AddCommand(amountParseCmd)
	rootCmd.AddCommand(amountCmd)
}
