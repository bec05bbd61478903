package main

import (
	"encoding/json"
	"fmt"
	"os"

	"PersonaGen/backend/go/internal/memory/store"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [profile-id]",
	Short: "Print the chat history of a profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		messages, err := st.GetHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(messages)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset [profile-id]",
	Short: "Clear the chat history of a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ClearHistory(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Chat history cleared for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(resetCmd)
}
