package pipeline

import (
	"errors"

	"github.com/yesser147/SafeRide/internal/accident"
	"github.com/yesser147/SafeRide/internal/auth"
	"github.com/yesser147/SafeRide/internal/motion"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, tokens *auth.Service, streamMiddleware fiber.Handler) {
	r.Post("/", func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		st, err := svc.Register(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		token, err := tokens.IssueToken(st.ID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"stream": st, "token": token})
	})

	r.Post("/:id/readings", streamMiddleware, func(c *fiber.Ctx) error {
		var req motion.Reading
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := svc.Ingest(c.Params("id"), req); err != nil {
			switch {
			case errors.Is(err, ErrUnknownStream):
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			case errors.Is(err, ErrQueueFull):
				return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Get("/:id/state", func(c *fiber.Ctx) error {
		st, err := svc.State(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(st)
	})

	r.Post("/:id/cancel", streamMiddleware, func(c *fiber.Ctx) error {
		evt, err := svc.CancelAccident(c.Context(), c.Params("id"))
		if err != nil {
			switch {
			case errors.Is(err, ErrUnknownStream):
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			case errors.Is(err, accident.ErrNoActive):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}
		return c.JSON(evt)
	})

	r.Put("/:id/vehicle", streamMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			VehicleType string `json:"vehicle_type"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if err := svc.ChangeVehicleType(c.Context(), c.Params("id"), req.VehicleType); err != nil {
			if errors.Is(err, ErrUnknownStream) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/:id", streamMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Stop(c.Context(), c.Params("id")); err != nil {
			if errors.Is(err, ErrUnknownStream) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
