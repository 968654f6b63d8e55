package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/mr-tron/base58"

	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/ledger"
)

type initializeRequest struct {
	TierID              uint8  `json:"tier_id"`
	BaseFee             uint64 `json:"base_fee"`
	SettlementAuthority string `json:"settlement_authority"`
	JackpotDestination  string `json:"jackpot_destination"`
	TreasuryDestination string `json:"treasury_destination"`
}

type entryRequest struct {
	Payer      string `json:"payer"`
	Nonce      uint64 `json:"nonce"`
	AmountPaid uint64 `json:"amount_paid"`
}

type settlementRequest struct {
	Winner    string `json:"winner"`
	Payload   string `json:"payload"`   // base58-encoded decision payload
	Signature string `json:"signature"` // base58-encoded ed25519 signature
}

type recoveryRequest struct {
	Signature string `json:"signature"` // base58, over the canonical recover message
	IssuedAt  int64  `json:"issued_at"` // unix seconds the authorization was signed
}

type tierResponse struct {
	*ledger.Registry
	CurrentPrice uint64 `json:"current_price"`
}

type priceResponse struct {
	TierID       uint8  `json:"tier_id"`
	CurrentPrice uint64 `json:"current_price"`
	TotalEntries uint64 `json:"total_entries"`
}

type nonceResponse struct {
	Payer     string `json:"payer"`
	NextNonce uint64 `json:"next_nonce"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	authority, err := solana.PublicKeyFromBase58(req.SettlementAuthority)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid settlement authority: %w", err))
		return
	}
	jackpotDest, err := solana.PublicKeyFromBase58(req.JackpotDestination)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid jackpot destination: %w", err))
		return
	}
	treasuryDest, err := solana.PublicKeyFromBase58(req.TreasuryDestination)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid treasury destination: %w", err))
		return
	}

	reg, err := s.store.Initialize(r.Context(), req.TierID, req.BaseFee, authority, jackpotDest, treasuryDest)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) handleGetTier(w http.ResponseWriter, r *http.Request) {
	tierID, ok := tierParam(w, r)
	if !ok {
		return
	}
	reg, err := s.store.GetRegistry(r.Context(), tierID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	price, err := s.store.Price(r.Context(), tierID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tierResponse{Registry: reg, CurrentPrice: price})
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	tierID, ok := tierParam(w, r)
	if !ok {
		return
	}
	reg, err := s.store.GetRegistry(r.Context(), tierID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	price, err := s.store.Price(r.Context(), tierID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		TierID:       tierID,
		CurrentPrice: price,
		TotalEntries: reg.TotalEntries,
	})
}

func (s *Server) handleProcessEntry(w http.ResponseWriter, r *http.Request) {
	tierID, ok := tierParam(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	payer, err := solana.PublicKeyFromBase58(req.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payer: %w", err))
		return
	}

	entry, err := s.store.ProcessEntry(r.Context(), tierID, payer, req.Nonce, req.AmountPaid)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	// Advance the advisory counter only after the ledger confirmed the
	// entry. A failure here is harmless: Next reconciles from the ledger.
	if err := s.allocator.Confirm(r.Context(), payer, req.Nonce); err != nil {
		s.log.Warn("server: failed to confirm nonce", "payer", payer.String(), "nonce", req.Nonce, "error", err)
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	tierID, ok := tierParam(w, r)
	if !ok {
		return
	}
	payer, err := solana.PublicKeyFromBase58(chi.URLParam(r, "payer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payer: %w", err))
		return
	}
	n, err := strconv.ParseUint(chi.URLParam(r, "nonce"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid nonce: %w", err))
		return
	}
	entry, err := s.store.GetEntry(r.Context(), tierID, payer, n)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	tierID, ok := tierParam(w, r)
	if !ok {
		return
	}
	var req settlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	winner, err := solana.PublicKeyFromBase58(req.Winner)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid winner: %w", err))
		return
	}
	payload, err := base58.Decode(req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload encoding: %w", err))
		return
	}
	sig, err := base58.Decode(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid signature encoding: %w", err))
		return
	}

	receipt, err := s.store.Settle(r.Context(), tierID, winner, sig, payload)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	tierID, ok := tierParam(w, r)
	if !ok {
		return
	}
	var req recoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	sig, err := base58.Decode(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid signature encoding: %w", err))
		return
	}

	receipt, err := s.store.Recover(r.Context(), tierID, sig, time.Unix(req.IssuedAt, 0))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	tierID, ok := tierParam(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	receipts, err := s.store.ListReceipts(r.Context(), tierID, limit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

func (s *Server) handleNextNonce(w http.ResponseWriter, r *http.Request) {
	payer, err := solana.PublicKeyFromBase58(chi.URLParam(r, "payer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payer: %w", err))
		return
	}
	next, err := s.allocator.Next(r.Context(), payer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonceResponse{Payer: payer.String(), NextNonce: next})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	address, err := solana.PublicKeyFromBase58(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid address: %w", err))
		return
	}
	account, err := s.store.GetAccount(r.Context(), address)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func tierParam(w http.ResponseWriter, r *http.Request) (uint8, bool) {
	tier, err := strconv.ParseUint(chi.URLParam(r, "tierID"), 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid tier id: %w", err))
		return 0, false
	}
	return uint8(tier), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeLedgerError maps ledger sentinels onto HTTP statuses. Every one of
// these is non-retryable as-is: the client must re-fetch state (price, nonce)
// or escalate before trying again.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidTier):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ledger.ErrRegistryNotFound),
		errors.Is(err, ledger.ErrEntryNotFound),
		errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ledger.ErrRegistryExists),
		errors.Is(err, ledger.ErrDuplicateEntry),
		errors.Is(err, ledger.ErrStaleDecision),
		errors.Is(err, ledger.ErrEmptyJackpot),
		errors.Is(err, ledger.ErrRecoveryTooEarly):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, ledger.ErrInsufficientPayment),
		errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
