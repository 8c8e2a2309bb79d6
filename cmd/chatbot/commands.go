package main

import (
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/bootstrap"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/config"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// --- Global Command Variables ---
var (
	username  string
	email     string
	role      string
	sessionID string
	limit     int
	days      int
	outPath   string

	container *bootstrap.Container

	rootCmd = &cobra.Command{
		Use:   "chatbot",
		Short: "Ask questions over the record catalog and manage conversation memory",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			var db *gorm.DB
			if cfg.Database.Connection != "" {
				conn, err := database.NewGormDBFromDSN(cfg.Database.Connection)
				if err != nil {
					return err
				}
				db = conn
			}
			container = bootstrap.NewContainer(db, cfg)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if container != nil {
				container.Close()
			}
		},
	}

	// --- Questions ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Runs one question through the pipeline and prints the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk, // Defined in cmd_ask.go
	}

	// --- Conversation memory ---
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Lists the user's conversations of the last 24h",
		RunE:  runHistory,
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Shows conversation counts for the user",
		RunE:  runStats,
	}
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Writes every stored conversation of the user as JSON",
		RunE:  runExport,
	}
	forgetCmd = &cobra.Command{
		Use:   "forget",
		Short: "Deletes every stored conversation of the user",
		RunE:  runForget,
	}

	// --- Maintenance ---
	pruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Deletes conversations older than the retention period",
		RunE:  runPrune, // Defined in cmd_admin.go
	}
	usersCmd = &cobra.Command{
		Use:   "users",
		Short: "Lists every user with stored conversations",
		RunE:  runUsers,
	}
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Reports the state of the conversation memory",
		RunE:  runHealth,
	}
)

func init() {
	for _, cmd := range []*cobra.Command{askCmd, historyCmd, statsCmd, exportCmd, forgetCmd} {
		cmd.Flags().StringVarP(&username, "user", "u", "", "username")
		cmd.Flags().StringVarP(&email, "email", "e", "", "email")
	}
	askCmd.Flags().StringVarP(&role, "role", "r", "public", "role: public, employee or admin")
	askCmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (generated when empty)")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of conversations")
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (stdout when empty)")
	pruneCmd.Flags().IntVar(&days, "days", 0, "age in days (retention period when 0)")

	rootCmd.AddCommand(askCmd, historyCmd, statsCmd, exportCmd, forgetCmd, pruneCmd, usersCmd, healthCmd)
}
