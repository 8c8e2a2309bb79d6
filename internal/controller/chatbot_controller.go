package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/dto"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/serverutils"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatbotController interface {
	RegisterRoutes(r fiber.Router)
	Start(ctx *fiber.Ctx) error
	Ask(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
	Messages(ctx *fiber.Ctx) error
	ClearMessages(ctx *fiber.Ctx) error
	Stream(ctx *fiber.Ctx) error
	Executions(ctx *fiber.Ctx) error
	SessionExecutions(ctx *fiber.Ctx) error
}

type chatbotController struct {
	service service.IChatbotService
}

func NewChatbotController(service service.IChatbotService) IChatbotController {
	return &chatbotController{service: service}
}

func (c *chatbotController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("/start", c.Start)
	h.Post("/ask", c.Ask)
	h.Get("/executions", c.Executions)
	h.Get("/executions/:sessionId", c.SessionExecutions)
	h.Post("/:sessionId/cancel", c.Cancel)
	h.Get("/:sessionId/messages", c.Messages)
	h.Delete("/:sessionId/messages", c.ClearMessages)
	h.Get("/:sessionId/stream", c.Stream)
}

func (c *chatbotController) startRequest(ctx *fiber.Ctx) (service.StartRequest, error) {
	var req dto.StartChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return service.StartRequest{}, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return service.StartRequest{}, err
	}

	id := serverutils.IdentityFrom(ctx)
	return service.StartRequest{
		Question:    req.Question,
		SessionID:   req.SessionId,
		Username:    id.Username,
		Email:       id.Email,
		Role:        id.Role,
		Permissions: id.Permissions,
	}, nil
}

func callerFrom(ctx *fiber.Ctx) service.Caller {
	id := serverutils.IdentityFrom(ctx)
	return service.Caller{
		Username:    id.Username,
		Email:       id.Email,
		Role:        id.Role,
		Permissions: id.Permissions,
	}
}

func (c *chatbotController) Start(ctx *fiber.Ctx) error {
	req, err := c.startRequest(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Start(ctx.UserContext(), req)
	if err != nil {
		return chatbotError(err)
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Processing started", res))
}

func (c *chatbotController) Ask(ctx *fiber.Ctx) error {
	req, err := c.startRequest(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Ask(ctx.UserContext(), req)
	if err != nil {
		return chatbotError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Answer ready", res))
}

func (c *chatbotController) Cancel(ctx *fiber.Ctx) error {
	res, err := c.service.Cancel(ctx.UserContext(), callerFrom(ctx), ctx.Params("sessionId"))
	if err != nil {
		return chatbotError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Processing canceled", res))
}

func (c *chatbotController) Messages(ctx *fiber.Ctx) error {
	res, err := c.service.Messages(ctx.UserContext(), callerFrom(ctx), ctx.Params("sessionId"))
	if err != nil {
		return chatbotError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Session messages", res))
}

func (c *chatbotController) ClearMessages(ctx *fiber.Ctx) error {
	res, err := c.service.ClearMessages(ctx.UserContext(), callerFrom(ctx), ctx.Params("sessionId"))
	if err != nil {
		return chatbotError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Session messages deleted", res))
}

// Stream sends the session's new messages as server-sent events.
func (c *chatbotController) Stream(ctx *fiber.Ctx) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	messages, err := c.service.Stream(streamCtx, callerFrom(ctx), ctx.Params("sessionId"))
	if err != nil {
		cancel()
		return chatbotError(err)
	}

	ctx.Set("Content-Type", "text/event-stream")
	ctx.Set("Cache-Control", "no-cache")
	ctx.Set("Connection", "keep-alive")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for m := range messages {
			payload, err := json.Marshal(m)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Type, payload)
			if err := w.Flush(); err != nil {
				// client went away
				return
			}
		}
	})
	return nil
}

func (c *chatbotController) Executions(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Executions", c.service.Status(ctx.UserContext(), callerFrom(ctx))))
}

func (c *chatbotController) SessionExecutions(ctx *fiber.Ctx) error {
	res, err := c.service.StatusOf(ctx.UserContext(), callerFrom(ctx), ctx.Params("sessionId"))
	if err != nil {
		return chatbotError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Session executions", res))
}

func chatbotError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidQuestion):
		return serverutils.NewStatusError(fiber.StatusBadRequest, errors.New(service.InvalidQuestionMessage))
	case errors.Is(err, service.ErrPermissionDenied), errors.Is(err, service.ErrSessionForbidden):
		return serverutils.NewStatusError(fiber.StatusForbidden, err)
	case errors.Is(err, service.ErrExecutionNotFound):
		return serverutils.NewStatusError(fiber.StatusNotFound, err)
	case errors.Is(err, service.ErrExecutionCancelled):
		return serverutils.NewStatusError(fiber.StatusConflict, err)
	case errors.Is(err, service.ErrStreamUnavailable):
		return serverutils.NewStatusError(fiber.StatusNotImplemented, err)
	default:
		return err
	}
}
