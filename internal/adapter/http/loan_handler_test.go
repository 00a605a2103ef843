package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"lendfact-backend/internal/asset"
	"lendfact-backend/internal/domain/currency"
	"lendfact-backend/internal/domain/fees"
	domain "lendfact-backend/internal/domain/loan"
	"lendfact-backend/internal/domain/manager"
	"lendfact-backend/internal/pricefeed"
	"lendfact-backend/internal/testutil/memuow"
	"lendfact-backend/internal/token"
	adminUC "lendfact-backend/internal/usecase/admin"
	loanUC "lendfact-backend/internal/usecase/loan"
)

// -------- helpers --------

var (
	engineAcct   = strings.Repeat("f", 32)
	ownerAcct    = strings.Repeat("a", 32)
	debtorAcct   = strings.Repeat("d", 32)
	creditorAcct = strings.Repeat("c", 32)
	otherAcct    = strings.Repeat("e", 32)
)

type handlerFixture struct {
	e      *echo.Echo
	lh     *LoanHandler
	ah     *AdminHandler
	store  *memuow.Store
	tokens *asset.LedgerTransferor
	native *asset.NativeLedger
	clock  time.Time
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	policy, err := fees.NewPolicy(100)
	if err != nil {
		t.Fatal(err)
	}
	f := &handlerFixture{
		e:      echo.New(),
		store:  memuow.New(),
		tokens: asset.NewLedgerTransferor(engineAcct),
		native: asset.NewNativeLedger(engineAcct),
		clock:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	f.e.Validator = NewValidator()
	set := manager.NewSet(ownerAcct)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	luc := loanUC.NewUsecase(loanUC.Deps{
		Account:   engineAcct,
		Loans:     f.store.Loans(),
		UoW:       f.store,
		Converter: pricefeed.NewConverter(&pricefeed.FixedOracle{Price: big.NewInt(200_000_000), Scale: 8}),
		Tokens:    f.tokens,
		Native:    f.native,
		Receipts:  token.NewRegistry(),
		Managers:  set,
		FeePolicy: policy,
		Logger:    logger,
		Now:       func() time.Time { return f.clock },
	})
	auc := adminUC.NewUsecase(set, policy, f.store, f.tokens, f.native, logger)
	f.lh = NewLoanHandler(luc)
	f.ah = NewAdminHandler(auc, luc)
	return f
}

func mustJSON(v any) *bytes.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

// call builds an echo context for a handler and returns the recorder.
func (f *handlerFixture) call(t *testing.T, h echo.HandlerFunc, method, path, caller string, body *bytes.Reader, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		rd = body
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if caller != "" {
		req.Header.Set("Ax-Account-Id", caller)
	}
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	if len(params) > 0 {
		names := make([]string, 0, len(params)/2)
		values := make([]string, 0, len(params)/2)
		for i := 0; i+1 < len(params); i += 2 {
			names = append(names, params[i])
			values = append(values, params[i+1])
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func (f *handlerFixture) requestLoan(t *testing.T, amount string) uint64 {
	t.Helper()
	rec := f.call(t, f.lh.RequestLoan, stdhttp.MethodPost, "/loans", debtorAcct, mustJSON(map[string]any{
		"asset":         "usdx",
		"amount":        amount,
		"rate_bps":      1000,
		"duration_secs": 365 * 86400,
		"expiry":        f.clock.Add(24 * time.Hour).Format(time.RFC3339),
	}))
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("request loan status = %d body=%s", rec.Code, rec.Body.String())
	}
	var dto loanUC.LoanDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	return dto.ID
}

func (f *handlerFixture) fundLoan(t *testing.T, amount string) uint64 {
	t.Helper()
	id := f.requestLoan(t, amount)
	w, err := currency.Parse(amount)
	if err != nil {
		t.Fatal(err)
	}
	f.tokens.Credit("usdx", creditorAcct, w)
	rec := f.call(t, f.lh.AcceptLoan, stdhttp.MethodPost, "/loans/0/accept", creditorAcct, nil, "id", "0")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("accept status = %d body=%s", rec.Code, rec.Body.String())
	}
	return id
}

// -------- tests --------

func TestRequestLoan_Success(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.call(t, f.lh.RequestLoan, stdhttp.MethodPost, "/loans", debtorAcct, mustJSON(map[string]any{
		"asset":         "usdx",
		"amount":        "1000",
		"rate_bps":      1000,
		"duration_secs": 86400,
		"expiry":        f.clock.Add(time.Hour).Format(time.RFC3339),
		"description":   "first loan",
	}))
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var dto loanUC.LoanDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if dto.ID != 0 || dto.Debtor != debtorAcct || dto.Status != string(domain.StatusPending) {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	if dto.Amount.Cmp(currency.FromInt64(1000)) != 0 {
		t.Fatalf("amount = %s, want 1000", dto.Amount)
	}
}

func TestRequestLoan_MissingCaller(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.call(t, f.lh.RequestLoan, stdhttp.MethodPost, "/loans", "", mustJSON(map[string]any{}))
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRequestLoan_InvalidCallerHeader(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.call(t, f.lh.RequestLoan, stdhttp.MethodPost, "/loans", "NOT_HEX", mustJSON(map[string]any{}))
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRequestLoan_ValidationError(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.call(t, f.lh.RequestLoan, stdhttp.MethodPost, "/loans", debtorAcct, mustJSON(map[string]any{
		"asset":         "usdx",
		"amount":        "not-a-number",
		"rate_bps":      10_001,
		"duration_secs": 86400,
		"expiry":        f.clock.Add(time.Hour).Format(time.RFC3339),
	}))
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if !containsFieldMsg(er.Details, "Amount", "non-negative integer") {
		t.Fatalf("missing amount detail: %+v", er.Details)
	}
	if !containsFieldMsg(er.Details, "RateBps", "basis points") {
		t.Fatalf("missing rate detail: %+v", er.Details)
	}
}

func TestRequestLoan_BadExpiry(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.call(t, f.lh.RequestLoan, stdhttp.MethodPost, "/loans", debtorAcct, mustJSON(map[string]any{
		"asset":         "usdx",
		"amount":        "1000",
		"rate_bps":      1000,
		"duration_secs": 86400,
		"expiry":        "tomorrow",
	}))
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "RFC3339") {
		t.Fatalf("body = %s, want RFC3339 hint", rec.Body.String())
	}
}

func TestAcceptAndGetLoan(t *testing.T) {
	f := newHandlerFixture(t)
	id := f.fundLoan(t, "1000")

	rec := f.call(t, f.lh.GetLoan, stdhttp.MethodGet, "/loans/0", "", nil, "id", "0")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var dto loanUC.LoanDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if dto.ID != id || dto.Status != string(domain.StatusActive) || dto.Creditor != creditorAcct {
		t.Fatalf("unexpected dto: %+v", dto)
	}
}

func TestGetLoan_NotFound(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.call(t, f.lh.GetLoan, stdhttp.MethodGet, "/loans/99", "", nil, "id", "99")
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetLoan_BadID(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.call(t, f.lh.GetLoan, stdhttp.MethodGet, "/loans/abc", "", nil, "id", "abc")
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPayLoan_StatusMapping(t *testing.T) {
	f := newHandlerFixture(t)
	f.fundLoan(t, "1000")
	f.clock = f.clock.Add(365 * 24 * time.Hour)

	// stranger → 403
	rec := f.call(t, f.lh.PayLoan, stdhttp.MethodPost, "/loans/0/pay", otherAcct,
		mustJSON(map[string]any{"amount": "10"}), "id", "0")
	if rec.Code != stdhttp.StatusForbidden {
		t.Fatalf("stranger: status = %d, want 403", rec.Code)
	}

	// more than owed → 422
	rec = f.call(t, f.lh.PayLoan, stdhttp.MethodPost, "/loans/0/pay", debtorAcct,
		mustJSON(map[string]any{"amount": "99999"}), "id", "0")
	if rec.Code != stdhttp.StatusUnprocessableEntity {
		t.Fatalf("overpay: status = %d, want 422", rec.Code)
	}

	// unknown loan → 404
	rec = f.call(t, f.lh.PayLoan, stdhttp.MethodPost, "/loans/9/pay", debtorAcct,
		mustJSON(map[string]any{"amount": "10"}), "id", "9")
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("missing loan: status = %d, want 404", rec.Code)
	}

	// happy path
	rec = f.call(t, f.lh.PayLoan, stdhttp.MethodPost, "/loans/0/pay", debtorAcct,
		mustJSON(map[string]any{"amount": "150"}), "id", "0")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("pay: status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := f.store.Loan(0).AmountPaid; got.Cmp(currency.FromInt64(50)) != 0 {
		t.Fatalf("amount paid = %s, want 50", got)
	}
}

func TestPayoffLoan_OutsideBand(t *testing.T) {
	f := newHandlerFixture(t)
	f.fundLoan(t, "10000")
	f.clock = f.clock.Add(365 * 24 * time.Hour) // total due 11000, bound 11055

	rec := f.call(t, f.lh.PayoffLoan, stdhttp.MethodPost, "/loans/0/payoff", debtorAcct,
		mustJSON(map[string]any{"amount": "11056"}), "id", "0")
	if rec.Code != stdhttp.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	f.tokens.Credit("usdx", debtorAcct, currency.FromInt64(1055))
	rec = f.call(t, f.lh.PayoffLoan, stdhttp.MethodPost, "/loans/0/payoff", debtorAcct,
		mustJSON(map[string]any{"amount": "11000"}), "id", "0")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("payoff: status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := f.store.Loan(0).Status; got != domain.StatusPaidOff {
		t.Fatalf("status = %s, want paid_off", got)
	}
}

func TestTotalDue_CurrencyQuery(t *testing.T) {
	f := newHandlerFixture(t)
	f.fundLoan(t, "1000")
	f.clock = f.clock.Add(365 * 24 * time.Hour) // total due: 1100

	rec := f.call(t, f.lh.TotalDue, stdhttp.MethodGet, "/loans/0/total-due", "", nil, "id", "0")
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if out["amount"] != "1100" || out["currency"] != "stable" {
		t.Fatalf("stable due = %+v", out)
	}

	rec = f.call(t, f.lh.TotalDue, stdhttp.MethodGet, "/loans/0/total-due?currency=native", "", nil, "id", "0")
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if out["amount"] != "550" || out["currency"] != "native" {
		t.Fatalf("native due = %+v", out)
	}
}

func TestPendingLoans_EmptyIsArray(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.call(t, f.lh.PendingLoans, stdhttp.MethodGet, "/loans/pending", "", nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"loan_ids":[]`) {
		t.Fatalf("body = %s, want empty array", rec.Body.String())
	}
}

func TestCurrentPrice(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.call(t, f.lh.CurrentPrice, stdhttp.MethodGet, "/price", "", nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Price    string `json:"price"`
		Decimals uint8  `json:"decimals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if out.Price != "200000000" || out.Decimals != 8 {
		t.Fatalf("price = %+v", out)
	}
}
