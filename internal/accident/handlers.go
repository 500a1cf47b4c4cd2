package accident

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/stream/:streamID", func(c *fiber.Ctx) error {
		events, err := svc.List(c.Context(), c.Params("streamID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if events == nil {
			events = []Event{}
		}
		return c.JSON(events)
	})
}
