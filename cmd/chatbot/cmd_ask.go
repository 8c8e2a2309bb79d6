package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/service"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func runAsk(cmd *cobra.Command, args []string) error {
	if sessionID == "" {
		sessionID = "cli-" + uuid.NewString()
	}
	req := service.StartRequest{
		Question:  strings.Join(args, " "),
		SessionID: sessionID,
		Username:  username,
		Email:     email,
		Role:      role,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ctrl-C cancels the run through its session, the same way the HTTP cancel route does.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_, _ = container.ChatbotService.Cancel(context.Background(), req.Caller(), req.SessionID)
		case <-done:
		}
	}()

	color.Cyan("Question: %s", req.Question)
	res, err := container.ChatbotService.Ask(context.Background(), req)
	switch {
	case errors.Is(err, service.ErrInvalidQuestion):
		return errors.New(service.InvalidQuestionMessage)
	case errors.Is(err, service.ErrExecutionCancelled):
		color.Yellow("Canceled.")
		return nil
	case err != nil:
		return err
	}

	if res.Status != "completed" {
		color.Yellow("Status: %s", res.Status)
	}
	fmt.Println()
	color.Green("%s", res.Answer)
	fmt.Println()

	if len(res.Sources) > 0 {
		color.New(color.Bold).Println("Sources:")
		for _, s := range res.Sources {
			fmt.Printf("  - %s [%s] %s\n", s.Title, s.AccessLevel, color.HiBlackString(s.Source))
		}
	}
	color.HiBlack("session %s, %d ms", res.SessionId, res.ElapsedMs)
	return nil
}
