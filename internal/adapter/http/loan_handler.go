package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"lendfact-backend/internal/domain/currency"
	"lendfact-backend/internal/usecase/loan"
)

type LoanHandler struct{ uc *loan.Usecase }

func NewLoanHandler(uc *loan.Usecase) *LoanHandler { return &LoanHandler{uc: uc} }

type requestLoanReq struct {
	DesignatedCreditor string `json:"designated_creditor" validate:"omitempty,hex32"`
	Asset              string `json:"asset" validate:"required"`
	Amount             string `json:"amount" validate:"required,wad"`
	RateBps            uint32 `json:"rate_bps" validate:"bps"`
	DurationSecs       uint64 `json:"duration_secs"`
	Expiry             string `json:"expiry" validate:"required"`
	Description        string `json:"description"`
}

func (h *LoanHandler) RequestLoan(c echo.Context) error {
	caller, ok := callerAccount(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing or invalid Ax-Account-Id"})
	}
	var req requestLoanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	amount, err := currency.Parse(req.Amount)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid amount"})
	}
	expiry, err := time.Parse(time.RFC3339, req.Expiry)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "expiry must be RFC3339"})
	}
	dto, err := h.uc.Request(c.Request().Context(), loan.RequestLoanInput{
		Debtor:             caller,
		DesignatedCreditor: req.DesignatedCreditor,
		Asset:              req.Asset,
		Amount:             amount,
		RateBps:            req.RateBps,
		DurationSecs:       req.DurationSecs,
		Expiry:             expiry,
		Description:        req.Description,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) AcceptLoan(c echo.Context) error {
	return h.callerIDAction(c, h.uc.Accept)
}

func (h *LoanHandler) RejectLoan(c echo.Context) error {
	return h.callerIDAction(c, h.uc.Reject)
}

type paymentReq struct {
	Amount string `json:"amount" validate:"required,wad"`
}

func (h *LoanHandler) PayLoan(c echo.Context) error {
	return h.paymentAction(c, h.uc.Pay)
}

func (h *LoanHandler) PayLoanNative(c echo.Context) error {
	return h.paymentAction(c, h.uc.PayNative)
}

func (h *LoanHandler) PayoffLoan(c echo.Context) error {
	return h.paymentAction(c, h.uc.Payoff)
}

func (h *LoanHandler) PayoffLoanNative(c echo.Context) error {
	return h.paymentAction(c, h.uc.PayoffNative)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	id, err := loanIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid loan id"})
	}
	dto, err := h.uc.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

// TotalDue reports the current amount owed; ?currency=native converts it.
func (h *LoanHandler) TotalDue(c echo.Context) error {
	return h.amountQuery(c, h.uc.TotalDue, h.uc.TotalDueNative)
}

// PayoffAmount reports the buffered payoff bound; ?currency=native converts it.
func (h *LoanHandler) PayoffAmount(c echo.Context) error {
	return h.amountQuery(c, h.uc.PayoffAmount, h.uc.PayoffAmountNative)
}

func (h *LoanHandler) PendingLoans(c echo.Context) error {
	ids, err := h.uc.PendingLoans(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_ids": ids})
}

func (h *LoanHandler) CurrentPrice(c echo.Context) error {
	price, decimals, err := h.uc.CurrentPrice(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"price": price.String(), "decimals": decimals})
}

// ---- shared handler plumbing ----

func (h *LoanHandler) callerIDAction(c echo.Context, fn func(ctx context.Context, id uint64, caller string) error) error {
	caller, ok := callerAccount(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing or invalid Ax-Account-Id"})
	}
	id, err := loanIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid loan id"})
	}
	if err := fn(c.Request().Context(), id, caller); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *LoanHandler) paymentAction(c echo.Context, fn func(ctx context.Context, id uint64, caller string, amount currency.Wad) error) error {
	caller, ok := callerAccount(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing or invalid Ax-Account-Id"})
	}
	id, err := loanIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid loan id"})
	}
	var req paymentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	amount, err := currency.Parse(req.Amount)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid amount"})
	}
	if err := fn(c.Request().Context(), id, caller, amount); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *LoanHandler) amountQuery(c echo.Context, stable func(ctx context.Context, id uint64) (currency.Wad, error), native func(ctx context.Context, id uint64) (currency.Wad, error)) error {
	id, err := loanIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid loan id"})
	}
	fn := stable
	unit := "stable"
	if c.QueryParam("currency") == "native" {
		fn = native
		unit = "native"
	}
	amount, err := fn(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"amount": amount.String(), "currency": unit})
}
