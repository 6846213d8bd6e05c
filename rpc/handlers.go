package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"genomarket/core/types"
	"genomarket/observability"
	"genomarket/runtime"
)

var errNotFound = errors.New("not found")

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string, retryable bool, message string) {
	writeJSON(w, status, ErrorBody{Code: code, Retryable: retryable, Message: message})
}

// httpStatus maps an error code to the HTTP status reported with it.
func httpStatus(code string) int {
	switch {
	case code == "InvalidArguments", code == "UnknownCall", code == "UnknownPallet", code == "WrongChain":
		return http.StatusBadRequest
	case code == "BadSignature":
		return http.StatusUnauthorized
	case code == "Unauthorized", code == "UnauthorizedCancellation", code == "BadOrigin":
		return http.StatusForbidden
	case strings.HasSuffix(code, "NotFound"), code == "OfferingDoesNotExist":
		return http.StatusNotFound
	case code == "BadNonce":
		return http.StatusConflict
	case code == "ModulePaused":
		return http.StatusServiceUnavailable
	case code == "Internal":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) writeRuntimeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", false, err.Error())
		return
	}
	code := runtime.Code(err)
	status := httpStatus(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		message = "internal error"
	}
	writeError(w, status, code, runtime.Retryable(err), message)
}

func badRequest(w http.ResponseWriter, format string, args ...interface{}) {
	writeError(w, http.StatusBadRequest, "InvalidArguments", false, fmt.Sprintf(format, args...))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var env runtime.Envelope
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "InvalidArguments", false, "request body too large")
			return
		}
		badRequest(w, "decode envelope: %v", err)
		return
	}
	key := clientIP(r)
	if !env.Caller.IsZero() {
		key = env.Caller.String()
	}
	if !s.limiter.Allow(key) {
		observability.ModuleMetrics().RecordThrottle("tx", "rate_limit")
		writeError(w, http.StatusTooManyRequests, "RateLimited", true, "rate limit exceeded")
		return
	}
	receipt, err := s.runtime.Submit(r.Context(), &env)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReceiptView(receipt))
}

func (s *Server) handleCalls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chainId": s.runtime.ChainID(),
		"calls":   s.runtime.Calls(),
	})
}

func (s *Server) handlePallets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runtime.Pallets())
}

func parseAddress(w http.ResponseWriter, r *http.Request) (types.Address, bool) {
	addr, err := types.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		badRequest(w, "address: %v", err)
		return types.Address{}, false
	}
	return addr, true
}

func parseHash(w http.ResponseWriter, r *http.Request) (types.Hash, bool) {
	id, err := types.ParseHash(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "id: %v", err)
		return types.Hash{}, false
	}
	return id, true
}

func (s *Server) handleSettlementConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.runtime.SettlementConfig(chi.URLParam(r, "pallet"))
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newConfigView(cfg))
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(w, r)
	if !ok {
		return
	}
	order, found, err := s.runtime.Order(chi.URLParam(r, "pallet"), id)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "OrderNotFound", false, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

func (s *Server) handleEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(w, r)
	if !ok {
		return
	}
	account, balance, err := s.runtime.EscrowBalance(chi.URLParam(r, "pallet"), id)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EscrowView{OrderID: id, Account: account, Balance: amount(balance)})
}

func (s *Server) handleCustomerOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	ids, err := s.runtime.OrdersByCustomer(chi.URLParam(r, "pallet"), addr)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hashList(ids))
}

func (s *Server) handleLastOrder(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	id, found, err := s.runtime.LastOrderByCustomer(chi.URLParam(r, "pallet"), addr)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "OrderNotFound", false, "customer has no orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]types.Hash{"orderId": id})
}

// handleSellerOrders lists every order of a seller, or only the pending ones
// with ?pending=true.
func (s *Server) handleSellerOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	pending := false
	if raw := r.URL.Query().Get("pending"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "pending: %v", err)
			return
		}
		pending = parsed
	}
	pallet := chi.URLParam(r, "pallet")
	var (
		ids []types.Hash
		err error
	)
	if pending {
		ids, err = s.runtime.PendingOrdersBySeller(pallet, addr)
	} else {
		ids, err = s.runtime.OrdersBySeller(pallet, addr)
	}
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hashList(ids))
}

func hashList(ids []types.Hash) []types.Hash {
	if ids == nil {
		return []types.Hash{}
	}
	return ids
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	acc, err := s.runtime.Account(addr)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountView{Address: addr, Nonce: acc.Nonce, Free: amount(acc.Free), Module: acc.Module})
}

func parseAssetID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		badRequest(w, "asset id: %v", err)
		return 0, false
	}
	return uint32(id), true
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAssetID(w, r)
	if !ok {
		return
	}
	meta, found, err := s.runtime.Asset(id)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	if !found {
		s.writeRuntimeError(w, fmt.Errorf("asset %d: %w", id, errNotFound))
		return
	}
	writeJSON(w, http.StatusOK, newAssetView(meta))
}

func (s *Server) handleAssetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAssetID(w, r)
	if !ok {
		return
	}
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	balance, err := s.runtime.AssetBalance(id, addr)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"assetId": id, "address": addr, "balance": amount(balance)})
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	rec, found, err := s.runtime.Tracking(chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "TrackingRecordNotFound", false, "tracking record not found")
		return
	}
	writeJSON(w, http.StatusOK, newRecordView(rec))
}

func (s *Server) handleSeller(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	seller, found, err := s.runtime.Seller(addr)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "SellerNotFound", false, "seller not found")
		return
	}
	writeJSON(w, http.StatusOK, newSellerView(seller))
}

func (s *Server) handleSellerOfferings(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	ids, err := s.runtime.OfferingsByOwner(addr)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hashList(ids))
}

func (s *Server) handleOffering(w http.ResponseWriter, r *http.Request) {
	id, ok := parseHash(w, r)
	if !ok {
		return
	}
	offering, found, err := s.runtime.Offering(id)
	if err != nil {
		s.writeRuntimeError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "OfferingNotFound", false, "offering not found")
		return
	}
	writeJSON(w, http.StatusOK, newOfferingView(offering))
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

func (s *Server) handleListPauses(w http.ResponseWriter, _ *http.Request) {
	if s.pauses == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, s.pauses.Paused())
}

func (s *Server) handleSetPause(w http.ResponseWriter, r *http.Request) {
	if s.pauses == nil {
		writeError(w, http.StatusNotImplemented, "Unsupported", false, "runtime pauses are static")
		return
	}
	module := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "module")))
	var req pauseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)).Decode(&req); err != nil {
		badRequest(w, "decode pause: %v", err)
		return
	}
	s.pauses.Set(module, req.Paused)
	s.logger.Warn("module pause changed", "module", module, "paused", req.Paused, "requestid", requestIDFrom(r.Context()))
	writeJSON(w, http.StatusOK, s.pauses.Paused())
}
