package controller

import (
	"errors"
	"strconv"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/serverutils"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IHistoryController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
	Context(ctx *fiber.Ctx) error
	Stats(ctx *fiber.Ctx) error
	Export(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type historyController struct {
	service service.IHistoryService
}

func NewHistoryController(service service.IHistoryService) IHistoryController {
	return &historyController{service: service}
}

func (c *historyController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/history/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Get("", c.List)
	h.Get("/context", c.Context)
	h.Get("/stats", c.Stats)
	h.Get("/export", c.Export)
	h.Delete("", c.Delete)
}

func userKey(ctx *fiber.Ctx) entity.UserKey {
	id := serverutils.IdentityFrom(ctx)
	return entity.UserKey{Username: id.Username, Email: id.Email}
}

func (c *historyController) List(ctx *fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "10"))

	res, err := c.service.List(ctx.UserContext(), userKey(ctx), limit)
	if err != nil {
		return historyError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Conversation history", res))
}

func (c *historyController) Context(ctx *fiber.Ctx) error {
	max, _ := strconv.Atoi(ctx.Query("max", "5"))

	res, err := c.service.Context(ctx.UserContext(), userKey(ctx), max)
	if err != nil {
		return historyError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("History context", res))
}

func (c *historyController) Stats(ctx *fiber.Ctx) error {
	res, err := c.service.Stats(ctx.UserContext(), userKey(ctx))
	if err != nil {
		return historyError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("History stats", res))
}

func (c *historyController) Export(ctx *fiber.Ctx) error {
	res, err := c.service.Export(ctx.UserContext(), userKey(ctx))
	if err != nil {
		return historyError(err)
	}
	ctx.Set(fiber.HeaderContentDisposition, `attachment; filename="history.json"`)
	return ctx.JSON(serverutils.SuccessResponse("History export", res))
}

func (c *historyController) Delete(ctx *fiber.Ctx) error {
	res, err := c.service.Delete(ctx.UserContext(), userKey(ctx))
	if err != nil {
		return historyError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("History deleted", res))
}

func historyError(err error) error {
	if errors.Is(err, service.ErrIdentityRequired) {
		return serverutils.NewStatusError(fiber.StatusBadRequest, err)
	}
	return err
}
