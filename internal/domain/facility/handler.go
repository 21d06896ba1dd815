package facility

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medroute/medroute/internal/platform/auth"
	"github.com/medroute/medroute/pkg/geo"
	"github.com/medroute/medroute/pkg/pagination"
)

type Handler struct {
	dir      Directory
	resolver *Resolver
}

func NewHandler(dir Directory, resolver *Resolver) *Handler {
	return &Handler{dir: dir, resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Routing preview is open to every signed-in role.
	api.GET("/facilities/nearest", h.Nearest,
		auth.RequireRole(auth.RolePatient, auth.RoleStaff, auth.RoleAdmin))

	staff := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleAdmin))
	staff.GET("/facilities", h.List)
	staff.GET("/facilities/:id", h.Get)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.dir.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list facilities").SetInternal(err)
	}
	if items == nil {
		items = []*Facility{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := h.dir.GetByID(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "facility not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load facility").SetInternal(err)
	}
	return c.JSON(http.StatusOK, f)
}

// Nearest answers GET /facilities/nearest?lat=&lon= with the facility a
// request from that point would be routed to.
func (h *Handler) Nearest(c echo.Context) error {
	point, err := coordinateFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.resolver.Nearest(c.Request().Context(), point)
	if errors.Is(err, ErrNoFacility) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, ErrNoFacility.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve facility").SetInternal(err)
	}
	return c.JSON(http.StatusOK, m)
}

func coordinateFromQuery(c echo.Context) (geo.Coordinate, error) {
	latStr, lonStr := c.QueryParam("lat"), c.QueryParam("lon")
	if latStr == "" || lonStr == "" {
		return geo.Coordinate{}, errors.New("lat and lon are required")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return geo.Coordinate{}, errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return geo.Coordinate{}, errors.New("lon must be a number")
	}
	point := geo.Coordinate{Latitude: lat, Longitude: lon}
	if err := point.Validate(); err != nil {
		return geo.Coordinate{}, err
	}
	return point, nil
}
