package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"lendfact-backend/internal/asset"
	domain "lendfact-backend/internal/domain/loan"
	"lendfact-backend/internal/domain/manager"
	"lendfact-backend/internal/pricefeed"
)

// callerAccount extracts and validates the caller identity header.
func callerAccount(c echo.Context) (string, bool) {
	acct := strings.TrimSpace(c.Request().Header.Get("Ax-Account-Id"))
	return acct, reHex32.MatchString(acct)
}

func loanIDParam(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

// writeError maps domain failures onto HTTP statuses; every failure carries a
// tagged message identifying the violated condition.
func writeError(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidInterestRate),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidExpiry),
		errors.Is(err, domain.ErrInvalidProtocolFee),
		errors.Is(err, domain.ErrZeroPayment):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthorized),
		errors.Is(err, domain.ErrNotDebtor),
		errors.Is(err, manager.ErrNotManager):
		code = http.StatusForbidden
	case errors.Is(err, domain.ErrLoanNotPending),
		errors.Is(err, domain.ErrLoanNotActive),
		errors.Is(err, domain.ErrInvalidLoanStatus),
		errors.Is(err, domain.ErrLoanExpired),
		errors.Is(err, manager.ErrAlreadyManager),
		errors.Is(err, manager.ErrNotAManager),
		errors.Is(err, manager.ErrOwnerCannotBeManager):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrPaymentTooLarge),
		errors.Is(err, domain.ErrPaymentExceedsBuffer):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, asset.ErrTransferFailed),
		errors.Is(err, asset.ErrRefundFailed),
		errors.Is(err, pricefeed.ErrInvalidPrice):
		code = http.StatusBadGateway
	}
	return c.JSON(code, map[string]string{"error": err.Error()})
}
