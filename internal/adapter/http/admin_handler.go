package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"lendfact-backend/internal/usecase/admin"
	"lendfact-backend/internal/usecase/loan"
)

type AdminHandler struct {
	uc     *admin.Usecase
	loanUC *loan.Usecase
}

func NewAdminHandler(uc *admin.Usecase, loanUC *loan.Usecase) *AdminHandler {
	return &AdminHandler{uc: uc, loanUC: loanUC}
}

type managerReq struct {
	Account string `json:"account" validate:"required,hex32"`
}

func (h *AdminHandler) AddManager(c echo.Context) error {
	caller, ok := callerAccount(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing or invalid Ax-Account-Id"})
	}
	var req managerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	if err := h.uc.AddManager(caller, req.Account); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *AdminHandler) RemoveManager(c echo.Context) error {
	caller, ok := callerAccount(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing or invalid Ax-Account-Id"})
	}
	account := c.Param("account")
	if !reHex32.MatchString(account) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid account"})
	}
	if err := h.uc.RemoveManager(caller, account); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AdminHandler) ListManagers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"managers": h.uc.Managers()})
}

func (h *AdminHandler) IsManager(c echo.Context) error {
	account := c.Param("account")
	return c.JSON(http.StatusOK, map[string]any{"account": account, "is_manager": h.uc.IsManager(account)})
}

func (h *AdminHandler) GetProtocolFee(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"fee_bps": h.uc.ProtocolFeeBps()})
}

type feeReq struct {
	FeeBps uint32 `json:"fee_bps" validate:"bps"`
}

func (h *AdminHandler) SetProtocolFee(c echo.Context) error {
	caller, ok := callerAccount(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing or invalid Ax-Account-Id"})
	}
	var req feeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if err := h.uc.SetProtocolFee(caller, req.FeeBps); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type withdrawReq struct {
	Asset string `json:"asset"`
	To    string `json:"to" validate:"required,hex32"`
}

func (h *AdminHandler) WithdrawFees(c echo.Context) error {
	caller, ok := callerAccount(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing or invalid Ax-Account-Id"})
	}
	var req withdrawReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	amount, err := h.uc.WithdrawFees(c.Request().Context(), caller, req.Asset, req.To)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"withdrawn": amount.String()})
}

func (h *AdminHandler) WithdrawNativeFees(c echo.Context) error {
	caller, ok := callerAccount(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing or invalid Ax-Account-Id"})
	}
	var req withdrawReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	amount, err := h.uc.WithdrawNativeFees(c.Request().Context(), caller, req.To)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"withdrawn": amount.String()})
}

type termsReq struct {
	RateBps      uint32 `json:"rate_bps" validate:"bps"`
	DurationSecs uint64 `json:"duration_secs"`
}

func (h *AdminHandler) UpdateLoanTerms(c echo.Context) error {
	caller, ok := callerAccount(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing or invalid Ax-Account-Id"})
	}
	id, err := loanIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid loan id"})
	}
	var req termsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if err := h.loanUC.UpdateTerms(c.Request().Context(), id, caller, req.RateBps, req.DurationSecs); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AdminHandler) CancelLoanRequest(c echo.Context) error {
	return h.adminIDAction(c, h.loanUC.CancelRequest)
}

func (h *AdminHandler) ForceCompleteLoan(c echo.Context) error {
	return h.adminIDAction(c, h.loanUC.ForceComplete)
}

func (h *AdminHandler) ForceDeleteLoan(c echo.Context) error {
	return h.adminIDAction(c, h.loanUC.ForceDelete)
}

func (h *AdminHandler) adminIDAction(c echo.Context, fn func(ctx context.Context, id uint64, caller string) error) error {
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
