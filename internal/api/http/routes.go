package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/velowatch/velowatch/internal/bikes"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *bikes.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/locations", func(c *fiber.Ctx) error {
		locs, err := service.Locations(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "failed to list locations")
		}
		return c.JSON(locs)
	})

	v1.Get("/snapshots", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snaps, err := service.Snapshots(c.Context(), req.From, req.To)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "failed to query snapshots")
		}
		return c.JSON(fiber.Map{
			"from":      req.From,
			"to":        req.To,
			"snapshots": snaps,
		})
	})

	v1.Get("/stats", func(c *fiber.Ctx) error {
		monthStr := c.Query("month")
		if monthStr == "" {
			return fiber.NewError(fiber.StatusBadRequest, "month query parameter is required")
		}
		month, err := time.Parse("2006-01", monthStr)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid month format; use YYYY-MM")
		}

		stats, err := service.StatsForMonth(c.Context(), month)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "failed to query stats")
		}
		return c.JSON(fiber.Map{
			"month": month.Format("2006-01"),
			"stats": stats,
		})
	})
}

// rangeQuery holds query parameters for the snapshots endpoint.
type rangeQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (r *rangeQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	r.From = from
	r.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
