package main

import (
	"fmt"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/dto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func runPrune(cmd *cobra.Command, args []string) error {
	var req *dto.PruneRequest
	if days > 0 {
		req = &dto.PruneRequest{OlderThanDays: days}
	}
	res, err := container.AdminService.Prune(cmd.Context(), req)
	if err != nil {
		return err
	}
	color.Green("Deleted %d conversations older than %s.", res.Deleted, res.OlderThan)
	return nil
}

func runUsers(cmd *cobra.Command, args []string) error {
	users, err := container.AdminService.MemoryUsers(cmd.Context())
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Printf("%-24s %s\n", u.Username, u.Email)
	}
	color.HiBlack("%d users", len(users))
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	h := container.AdminService.MemoryHealth(cmd.Context())
	if h.Status != "healthy" {
		color.Red("Status: %s %s", h.Status, h.Error)
	} else {
		color.Green("Status: %s", h.Status)
	}
	fmt.Printf("Conversations: %d\nUsers:         %d\nLast 24h:      %d\n", h.TotalConversations, h.UniqueUsers, h.Last24h)
	return nil
}
