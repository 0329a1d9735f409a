package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/rethread-erp/rethread-erp/internal/auth"
	"github.com/rethread-erp/rethread-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for accounts, journals and reports.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mappings MappingRepository
	validate *validator.Validate
	tbGroup  singleflight.Group
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, mappings MappingRepository, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, mappings: mappings, validate: validate}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts", h.listAccounts)
	r.Get("/accounts/{id}", h.getAccount)
	r.Post("/accounts/{id}/deactivate", h.deactivateAccount)
	r.Post("/ledger/journals", h.postJournal)
	r.Post("/ledger/opening-balance", h.postOpeningBalance)
	r.Get("/ledger/transactions/{id}", h.getTransaction)
	r.Post("/ledger/transactions/{id}/reverse", h.reverseTransaction)
	r.Get("/ledger/trial-balance", h.trialBalance)
	r.Get("/ledger/mappings", h.listMappings)
	r.Put("/ledger/mappings", h.setMapping)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrMappingNotFound):
		httpx.Error(w, http.StatusNotFound, err)
	case errors.Is(err, ErrDuplicateCode), errors.Is(err, ErrAlreadyReversed):
		httpx.Error(w, http.StatusConflict, err)
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewEntries), errors.Is(err, ErrAccountInactive):
		httpx.Error(w, http.StatusUnprocessableEntity, err)
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.DeactivateAccount(r.Context(), id, auth.ActorID(r.Context())); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "is_active": false})
}

type journalEntryRequest struct {
	AccountID int64           `json:"account_id" validate:"required"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Currency  string          `json:"currency" validate:"omitempty,len=3"`
	Rate      decimal.Decimal `json:"rate"`
	FCYAmount decimal.Decimal `json:"fcy_amount"`
	Narration string          `json:"narration" validate:"max=500"`
}

type journalRequest struct {
	Memo    string                `json:"memo" validate:"max=500"`
	Entries []journalEntryRequest `json:"entries" validate:"required,min=2,dive"`
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	var req journalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	input := PostingInput{
		Type:         TxnTypeJournal,
		SourceModule: "LEDGER.JOURNAL",
		SourceID:     uuid.New(),
		Memo:         req.Memo,
		PostedBy:     auth.ActorID(r.Context()),
	}
	for _, entry := range req.Entries {
		input.Entries = append(input.Entries, EntryInput{
			AccountID: entry.AccountID,
			Debit:     entry.Debit,
			Credit:    entry.Credit,
			Currency:  entry.Currency,
			Rate:      entry.Rate,
			FCYAmount: entry.FCYAmount,
			Narration: entry.Narration,
		})
	}
	txn, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

type openingLineRequest struct {
	AccountID int64           `json:"account_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type openingBalanceRequest struct {
	Lines           []openingLineRequest `json:"lines" validate:"required,min=1,dive"`
	OffsetAccountID int64                `json:"offset_account_id" validate:"required"`
	Memo            string               `json:"memo" validate:"max=500"`
}

func (h *Handler) postOpeningBalance(w http.ResponseWriter, r *http.Request) {
	var req openingBalanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	input := OpeningBalanceInput{
		OffsetAccountID: req.OffsetAccountID,
		Memo:            req.Memo,
		ActorID:         auth.ActorID(r.Context()),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, OpeningLine{AccountID: line.AccountID, Amount: line.Amount})
	}
	txn, err := h.service.PostOpeningBalance(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	txn, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) reverseTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	reversal, err := h.service.Reverse(r.Context(), ReverseInput{
		TransactionID: id,
		Reason:        req.Reason,
		ActorID:       auth.ActorID(r.Context()),
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

// trialBalance collapses concurrent report builds into one scan.
func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	result, err, _ := h.tbGroup.Do("trial-balance", func() (any, error) {
		return h.service.TrialBalance(r.Context())
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listMappings(w http.ResponseWriter, r *http.Request) {
	module := r.URL.Query().Get("module")
	if module == "" {
		httpx.Error(w, http.StatusBadRequest, errors.New("module query parameter required"))
		return
	}
	mappings, err := h.mappings.List(r.Context(), module)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mappings)
}

type mappingRequest struct {
	Module    string `json:"module" validate:"required,max=50"`
	Key       string `json:"key" validate:"required,max=100"`
	AccountID int64  `json:"account_id" validate:"required"`
}

func (h *Handler) setMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	mapping := AccountMapping{Module: req.Module, Key: req.Key, AccountID: req.AccountID}
	if err := h.mappings.Set(r.Context(), mapping); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mapping)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
