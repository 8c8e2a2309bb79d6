package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func userKey() entity.UserKey {
	return entity.UserKey{Username: username, Email: email}
}

func runHistory(cmd *cobra.Command, args []string) error {
	items, err := container.HistoryService.List(cmd.Context(), userKey(), limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		color.Yellow("No conversations in the last 24h.")
		return nil
	}
	for _, c := range items {
		color.HiBlack("%s  session %s", c.Timestamp.Format("2006-01-02 15:04"), c.SessionId)
		color.Cyan("Q: %s", c.Question)
		fmt.Printf("A: %s\n\n", c.Response)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := container.HistoryService.Stats(cmd.Context(), userKey())
	if err != nil {
		return err
	}
	fmt.Printf("Total conversations: %d\n", stats.Total)
	fmt.Printf("Last 24h:            %d\n", stats.Last24h)
	if stats.LastTimestamp != nil {
		fmt.Printf("Last question:       %s (%s)\n", stats.LastQuestion, stats.LastTimestamp.Format("2006-01-02 15:04"))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	export, err := container.HistoryService.Export(cmd.Context(), userKey())
	if err != nil {
		return err
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return err
	}
	if outPath != "" {
		color.Green("Exported %d conversations to %s", len(export.Conversations), outPath)
	}
	return nil
}

func runForget(cmd *cobra.Command, args []string) error {
	res, err := container.HistoryService.Delete(cmd.Context(), userKey())
	if err != nil {
		return err
	}
	color.Green("Deleted %d conversations.", res.Deleted)
	return nil
}
