package handlers

import (
	"log"
	"net/url"

	"carsi/pkg/turkiye"

	"github.com/gofiber/fiber/v2"
)

// GeoHandler serves the Turkish province and district lookups used by the
// checkout address form.
type GeoHandler struct {
	geo turkiye.Lookup
}

// NewGeoHandler creates a new GeoHandler.
func NewGeoHandler(geo turkiye.Lookup) *GeoHandler {
	return &GeoHandler{geo: geo}
}

// RegisterRoutes registers the geography routes with the Fiber app.
func (h *GeoHandler) RegisterRoutes(router fiber.Router) {
	geoRoutes := router.Group("/geo")
	geoRoutes.Get("/provinces", h.HandleGetProvinces)
	geoRoutes.Get("/provinces/:city/districts", h.HandleGetDistricts)
}

// HandleGetProvinces returns the fixed list of Turkish provinces.
func (h *GeoHandler) HandleGetProvinces(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"provinces": turkiye.Provinces,
	})
}

// HandleGetDistricts returns the districts of a province. Unknown
// provinces get an empty list rather than an error so the address form
// can always render.
func (h *GeoHandler) HandleGetDistricts(c *fiber.Ctx) error {
	city, err := url.PathUnescape(c.Params("city"))
	if err != nil {
		city = c.Params("city")
	}

	districts, err := h.geo.Districts(c.UserContext(), city)
	if err != nil {
		log.Printf("Error fetching districts for %s: %v", city, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message": "Could not load districts",
			"error":   err.Error(),
		})
	}
	if districts == nil {
		districts = []string{}
	}
	return c.JSON(fiber.Map{
		"city":      city,
		"districts": districts,
	})
}
