package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/synthline/corestation/pkg/builder"
	"github.com/synthline/corestation/pkg/chemical"
	"github.com/synthline/corestation/pkg/coordinator"
)

// mapCoreError maps a core-layer error to an HTTP error response, grounded
// on the teacher's pkg/api mapServiceError: typed validation faults become
// 400s, not-found faults become 404s, everything else is logged and
// collapsed to a generic 500 so internal detail never leaks to a client.
func mapCoreError(err error) *echo.HTTPError {
	var coordValErr *coordinator.ValidationError
	if errors.As(err, &coordValErr) {
		return echo.NewHTTPError(http.StatusBadRequest, coordValErr.Error())
	}

	var timeoutErr *coordinator.TimeoutError
	if errors.As(err, &timeoutErr) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, timeoutErr.Error())
	}

	var unknownChemErr *builder.UnknownChemicalError
	if errors.As(err, &unknownChemErr) {
		return echo.NewHTTPError(http.StatusBadRequest, unknownChemErr.Error())
	}
	var amountErr *builder.AmountError
	if errors.As(err, &amountErr) {
		return echo.NewHTTPError(http.StatusBadRequest, amountErr.Error())
	}
	var expCountErr *builder.ExperimentCountError
	if errors.As(err, &expCountErr) {
		return echo.NewHTTPError(http.StatusBadRequest, expCountErr.Error())
	}

	var notFoundErr *chemical.NotFoundError
	if errors.As(err, &notFoundErr) {
		return echo.NewHTTPError(http.StatusNotFound, notFoundErr.Error())
	}

	slog.Error("api: unexpected core error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
