package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/tether/internal/config"
)

// --- connect ---

var connectCmd = &cobra.Command{
	Use:   "connect <channel-id>",
	Short: "Connect to a voice channel",
	Long: `Record a connection to a voice channel, superseding any previous connection.

Examples:
  tether connect 123456789
  tether connect 123456789 --guild 987654321`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guildID, _ := cmd.Flags().GetString("guild")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{"channel_id": args[0]}
		if guildID != "" {
			body["guild_id"] = guildID
		}

		resp, err := client.post(cmd.Context(), "/connection", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Connected to channel %s", result["channel_id"])
		return nil
	},
}

func init() {
	connectCmd.Flags().String("guild", "", "guild (server) identifier")
}

// --- disconnect ---

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect from the current voice channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/connection")
		if err != nil {
			return err
		}

		var result struct {
			Disconnected bool `json:"disconnected"`
			Connection   *struct {
				ChannelID string `json:"channel_id"`
			} `json:"connection"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Disconnected {
			printWarning("No active connection")
			return nil
		}
		printSuccess("Disconnected from channel %s", result.Connection.ChannelID)
		return nil
	},
}

// --- history ---

type historyEvent struct {
	ID           int64  `json:"id"`
	ChannelID    string `json:"channel_id"`
	GuildID      string `json:"guild_id,omitempty"`
	Action       string `json:"action"`
	Timestamp    string `json:"timestamp"`
	ErrorMessage string `json:"error_message,omitempty"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent connection history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var events []historyEvent
		if err := decodeJSON(resp, &events); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}

		if len(events) == 0 {
			fmt.Println("No history events.")
			return nil
		}

		for _, ev := range events {
			line := fmt.Sprintf("%s  %-10s  %s", ev.Timestamp, actionColor(ev.Action), ev.ChannelID)
			if ev.GuildID != "" {
				line += fmt.Sprintf("  (guild %s)", ev.GuildID)
			}
			if ev.ErrorMessage != "" {
				line += fmt.Sprintf("  %s", colorize(colorRed, ev.ErrorMessage))
			}
			fmt.Println(line)
		}
		return nil
	},
}

func actionColor(action string) string {
	switch action {
	case "CONNECT":
		return colorize(colorGreen, action)
	case "DISCONNECT":
		return colorize(colorYellow, action)
	case "ERROR":
		return colorize(colorRed, action)
	}
	return action
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export connection history as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var events []historyEvent
		if err := decodeJSON(resp, &events); err != nil {
			return err
		}

		var writer *os.File
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		} else {
			writer = os.Stdout
		}

		enc := json.NewEncoder(writer)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}

		if output != "" {
			printSuccess("Exported %d events to %s", len(events), output)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 50, "maximum number of events")
	historyCmd.Flags().Bool("json", false, "output as JSON")
	historyExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	historyExportCmd.Flags().Int("limit", 500, "maximum number of events")
	historyCmd.AddCommand(historyExportCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
