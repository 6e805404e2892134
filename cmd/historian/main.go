package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtga-tools/historian/internal/cards"
	"github.com/mtga-tools/historian/internal/config"
	"github.com/mtga-tools/historian/internal/daemon"
	"github.com/mtga-tools/historian/internal/history"
	"github.com/mtga-tools/historian/internal/ipc"
	"github.com/mtga-tools/historian/internal/report"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "historian",
		Short: "Watch MTG Arena's Player.log and record your matches",
		Long:  "historian tails the MTG Arena log, announces plays to a Discord webhook, and keeps a local match history.",
	}

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(importCardsCmd())
	rootCmd.AddCommand(repairHistoryCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Start the watcher daemon (foreground)",
		Long: `Tail Player.log and process matches until interrupted.

Runs in the foreground; use your service manager or a terminal
multiplexer to keep it running in the background.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Check if daemon is already running.
			client := ipc.NewClient(cfg.SocketPath)
			if err := client.Ping(); err == nil {
				fmt.Println("historian is already running")
				return nil
			}

			// Remove stale socket file (from a prior crash).
			if _, err := os.Stat(cfg.SocketPath); err == nil {
				log.Println("removing stale socket file")
				_ = os.Remove(cfg.SocketPath)
			}

			// Create IPC server first; the daemon fills in its
			// collaborators once they exist.
			ipcServer := ipc.NewServer(nil, nil, nil, cfg.LogPath)

			d := daemon.New(cfg, ipcServer)
			ipcServer.SetDaemon(d)

			// Start blocks until signal or error.
			return d.Start()
		},
	}

	return cmd
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the watcher daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			if err := client.RequestStop(); err != nil {
				return fmt.Errorf("stop daemon: %w", err)
			}

			fmt.Println("historian stopping")
			return nil
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check if the daemon is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			if err := client.Ping(); err != nil {
				fmt.Println("historian is not running")
				return err
			}

			fmt.Println("historian is alive")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and the live match",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			status, err := client.Status()
			if err != nil {
				return fmt.Errorf("daemon not running or unreachable: %w", err)
			}

			if jsonOutput {
				fmt.Println(report.FormatJSON(status))
			} else {
				fmt.Print(report.FormatStatus(status))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func historyCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded match history",
		Long: `Read matches.json and print the recorded matches.

Reads the file directly -- the daemon does not need to be running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			matches := history.NewStore(cfg.HistoryPath).Load()

			if jsonOutput {
				fmt.Println(report.FormatJSON(matches))
			} else {
				fmt.Print(report.FormatHistory(matches, limit))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "Show at most this many recent matches (0 = all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func importCardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-cards",
		Short: "Bulk-import card names into the local cache",
		Long: `Download the MTGJSON and Scryfall bulk card datasets and merge
every Arena card name into the local cache, plus any manual overrides.

Run this once after install to avoid per-card lookups during matches.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDataDir(); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}

			resolver := cards.Load(cfg.CardMapPath)
			before := resolver.Count()

			added, err := cards.NewImporter().Run(resolver, cfg.OverridesPath)
			if err != nil {
				return fmt.Errorf("import cards: %w", err)
			}

			fmt.Printf("imported %d new names (%d before, %d now)\n",
				added, before, resolver.Count())
			return nil
		},
	}
}

func repairHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair-history",
		Short: "Re-resolve Unknown(<id>) card names in matches.json",
		Long: `Scan the recorded match history for Unknown(<id>) placeholders,
resolve them against the (possibly newly imported) card cache and
Scryfall, and rewrite the history file in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			resolver := cards.Load(cfg.CardMapPath)
			store := history.NewStore(cfg.HistoryPath)

			n, err := history.Repair(store, resolver, cards.UnknownIDs)
			if err != nil {
				return fmt.Errorf("repair history: %w", err)
			}

			fmt.Printf("re-resolved %d card names\n", n)
			return nil
		},
	}
}
