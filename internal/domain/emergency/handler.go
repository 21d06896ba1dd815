package emergency

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medroute/medroute/internal/platform/auth"
	"github.com/medroute/medroute/pkg/pagination"
)

type Handler struct {
	svc *Service
	// showAll lets the queue list every facility when no facility is
	// selected. Debug deployments only.
	showAll bool
	logger  zerolog.Logger
}

func NewHandler(svc *Service, showAll bool, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, showAll: showAll, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/sos", h.CreateSOS)
	patient.POST("/doctor-connect", h.CreateDoctorConnect)

	staff := api.Group("", auth.RequireRole(auth.RoleStaff))
	staff.GET("/queue", h.ListQueue)
	staff.GET("/requests/:id", h.GetRequest)
	staff.PUT("/requests/:id/resolve", h.ResolveRequest)
	staff.GET("/prescriptions", h.ListPrescriptions)
}

// noFacilityBody tells the client to stop retrying and escalate.
var noFacilityBody = map[string]interface{}{
	"message": "no approved facility is available to take this request",
	"code":    "NO_FACILITY",
	"fatal":   true,
	"advice":  "contact local emergency services directly",
}

// toHTTPError maps service errors to responses. Unexpected errors are
// logged and reported without detail.
func (h *Handler) toHTTPError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrNoFacility):
		return echo.NewHTTPError(http.StatusServiceUnavailable, noFacilityBody)
	default:
		rid, _ := c.Get("request_id").(string)
		h.logger.Error().Err(err).Str("request_id", rid).Str("path", c.Path()).Msg("request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

// bindAndValidate decodes the body and runs the echo validator when one is
// installed.
func bindAndValidate(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(v); err != nil {
			return err
		}
	}
	return nil
}

// -- Dispatch --

func (h *Handler) CreateSOS(c echo.Context) error {
	ctx := c.Request().Context()
	// The token name is the default; a name in the body wins.
	in := SOSInput{RequesterName: auth.UserNameFromContext(ctx)}
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	in.RequesterID = auth.UserIDFromContext(ctx)

	res, err := h.svc.DispatchSOS(ctx, in)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) CreateDoctorConnect(c echo.Context) error {
	ctx := c.Request().Context()
	in := DoctorConnectInput{RequesterName: auth.UserNameFromContext(ctx)}
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	in.RequesterID = auth.UserIDFromContext(ctx)

	res, err := h.svc.DispatchDoctorConnect(ctx, in)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// -- Queue --

// queueScope decides which facility the caller is looking at. Staff are
// pinned to the facility in their token; admins choose with ?facility_id=.
func (h *Handler) queueScope(c echo.Context) (QueueScope, error) {
	ctx := c.Request().Context()
	if auth.IsAdmin(ctx) {
		if q := c.QueryParam("facility_id"); q != "" {
			id, err := uuid.Parse(q)
			if err != nil {
				return QueueScope{}, echo.NewHTTPError(http.StatusBadRequest, "invalid facility_id")
			}
			return QueueScope{FacilityID: id}, nil
		}
		if h.showAll {
			return QueueScope{All: true}, nil
		}
		return QueueScope{}, echo.NewHTTPError(http.StatusBadRequest, "facility_id is required")
	}

	if h.showAll {
		return QueueScope{All: true}, nil
	}
	fid := auth.FacilityIDFromContext(ctx)
	id, err := uuid.Parse(fid)
	if err != nil {
		return QueueScope{}, echo.NewHTTPError(http.StatusForbidden, "account is not linked to a facility")
	}
	return QueueScope{FacilityID: id}, nil
}

// facilityFilter returns the facility staff are restricted to, or uuid.Nil
// for admins.
func facilityFilter(c echo.Context) (uuid.UUID, error) {
	ctx := c.Request().Context()
	if auth.IsAdmin(ctx) {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(auth.FacilityIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "account is not linked to a facility")
	}
	return id, nil
}

func (h *Handler) ListQueue(c echo.Context) error {
	scope, err := h.queueScope(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListPending(c.Request().Context(), scope)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  items,
		"total": len(items),
	})
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	fid, err := facilityFilter(c)
	if err != nil {
		return err
	}
	req, err := h.svc.GetRequest(c.Request().Context(), id, fid)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// -- Resolution --

func (h *Handler) ResolveRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	fid, err := facilityFilter(c)
	if err != nil {
		return err
	}

	var in ResolveInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	in.RequestID = id
	in.FacilityID = fid
	if in.AuthorName == "" {
		in.AuthorName = auth.UserNameFromContext(c.Request().Context())
	}

	p, err := h.svc.Resolve(c.Request().Context(), in)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	rid, err := uuid.Parse(c.QueryParam("request_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request_id is required")
	}
	fid, err := facilityFilter(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.GetRequest(c.Request().Context(), rid, fid); err != nil {
		return h.toHTTPError(c, err)
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPrescriptions(c.Request().Context(), rid, pg.Limit, pg.Offset)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
