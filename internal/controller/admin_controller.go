package controller

import (
	"strconv"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/dto"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/serverutils"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/service"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"

	"github.com/gofiber/fiber/v2"
)

type IAdminController interface {
	RegisterRoutes(r fiber.Router)
	MemoryHealth(ctx *fiber.Ctx) error
	MemoryUsers(ctx *fiber.Ctx) error
	Prune(ctx *fiber.Ctx) error
	GetLogs(ctx *fiber.Ctx) error
}

type adminController struct {
	service service.IAdminService
	policy  *access.Policy
}

func NewAdminController(service service.IAdminService, policy *access.Policy) IAdminController {
	return &adminController{service: service, policy: policy}
}

func (c *adminController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/admin/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Use(serverutils.RequirePermission(c.policy, access.PermissionAdminMaintenance))

	h.Get("/health", c.MemoryHealth)
	h.Get("/users", c.MemoryUsers)
	h.Post("/prune", c.Prune)
	h.Get("/logs", c.GetLogs)
}

func (c *adminController) MemoryHealth(ctx *fiber.Ctx) error {
	res := c.service.MemoryHealth(ctx.UserContext())
	if res.Status != "healthy" {
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(serverutils.SuccessResponse("Memory unhealthy", res))
	}
	return ctx.JSON(serverutils.SuccessResponse("Memory healthy", res))
}

func (c *adminController) MemoryUsers(ctx *fiber.Ctx) error {
	res, err := c.service.MemoryUsers(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Memory users", res))
}

func (c *adminController) Prune(ctx *fiber.Ctx) error {
	var req dto.PruneRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Prune(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Conversations pruned", res))
}

func (c *adminController) GetLogs(ctx *fiber.Ctx) error {
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	limit, _ := strconv.Atoi(ctx.Query("limit", "10"))
	level := ctx.Query("level", "")

	logs, err := c.service.GetSystemLogs(ctx.UserContext(), page, limit, level)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("System logs", logs))
}
