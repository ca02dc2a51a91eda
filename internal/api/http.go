// Package api is the inbound HTTP surface over a Directory: placing,
// cancelling, and querying orders, plus the websocket diff stream. Thin
// by design — each handler does nothing but decode, build an account
// message, Tell (or ask-and-wait) it, and encode the reply.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/dexmatcher/internal/account"
	"github.com/web3guy0/dexmatcher/internal/directory"
	"github.com/web3guy0/dexmatcher/internal/wshub"
	"github.com/web3guy0/dexmatcher/types"
)

const askTimeout = 5 * time.Second

// Server wires a Directory to net/http. No third-party router is pulled in
// for this: the pack's only router dependency (gin, in the arbitrage
// teacher's go.mod) is never actually imported by any example, so there is
// nothing to ground a choice of inbound router framework on; a handful of
// fixed routes over net/http.ServeMux needs nothing more.
type Server struct {
	dir *directory.Directory
	hub *wshub.Hub
	mux *http.ServeMux
}

func NewServer(dir *directory.Directory) *Server {
	s := &Server{dir: dir, hub: wshub.New(dir)}
	mux := http.NewServeMux()
	mux.HandleFunc("/orders", s.handleOrders)
	mux.HandleFunc("/orders/", s.handleOrderByID)
	mux.HandleFunc("/cancel-all", s.handleCancelAll)
	mux.HandleFunc("/balance", s.handleReservedBalance)
	mux.HandleFunc("/tradable-balance", s.handleTradableBalance)
	mux.HandleFunc("/ws", s.handleWs)
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type placeRequest struct {
	Sender     string `json:"sender"`
	AmountA    string `json:"amount_asset"`
	PriceA     string `json:"price_asset"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Amount     string `json:"amount"`
	MatcherFee string `json:"matcher_fee"`
	FeeAsset   string `json:"fee_asset"`
	Expiration int64  `json:"expiration_unix"`
	IsMarket   bool   `json:"is_market"`
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	order, err := req.toOrder()
	if err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	reply := make(chan account.PlaceResult, 1)
	s.dir.Get(order.Sender).Tell(&account.PlaceOrder{Order: order, IsMarket: req.IsMarket, Reply: reply})

	select {
	case res := <-reply:
		writePlaceResult(w, res)
	case <-time.After(askTimeout):
		http.Error(w, "timed out waiting for validation", http.StatusGatewayTimeout)
	}
}

func (req placeRequest) toOrder() (types.Order, error) {
	sender, err := parseAddressHex(req.Sender)
	if err != nil {
		return types.Order{}, err
	}
	side := types.Buy
	if req.Side == "SELL" {
		side = types.Sell
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return types.Order{}, err
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return types.Order{}, err
	}
	fee, err := decimal.NewFromString(req.MatcherFee)
	if err != nil {
		fee = decimal.Zero
	}
	return types.Order{
		ID:         randomOrderID(),
		Sender:     sender,
		Pair:       types.Pair{AmountAsset: parseAssetHex(req.AmountA), PriceAsset: parseAssetHex(req.PriceA)},
		Side:       side,
		Price:      price,
		Amount:     amount,
		MatcherFee: fee,
		FeeAsset:   parseAssetHex(req.FeeAsset),
		Timestamp:  timeNow(),
		Expiration: time.Unix(req.Expiration, 0),
	}, nil
}

func writePlaceResult(w http.ResponseWriter, res account.PlaceResult) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case res.Accepted != nil:
		json.NewEncoder(w).Encode(map[string]any{"status": "accepted", "order_id": res.Accepted.ID.Hex()})
	case res.WavesNodeUnavail != nil:
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"status": "unavailable", "error": res.WavesNodeUnavail.Error()})
	case res.CanNotPersist != nil:
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "error": res.CanNotPersist.Error()})
	case res.Rejected != nil:
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"status": "rejected", "error": res.Rejected.Error()})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "error": "no result"})
	}
}

func (s *Server) handleOrderByID(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressHex(r.URL.Query().Get("owner"))
	if err != nil {
		http.Error(w, "bad owner", http.StatusBadRequest)
		return
	}
	idHex := r.URL.Path[len("/orders/"):]
	id, err := types.OrderIdFromHex(idHex)
	if err != nil {
		http.Error(w, "bad order id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		reply := make(chan types.OrderStatus, 1)
		s.dir.Get(owner).Tell(&account.GetOrderStatus{ID: id, Reply: reply})
		select {
		case status := <-reply:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(status)
		case <-time.After(askTimeout):
			http.Error(w, "timed out", http.StatusGatewayTimeout)
		}
	case http.MethodDelete:
		reply := make(chan account.CancelResult, 1)
		s.dir.Get(owner).Tell(&account.CancelOrder{ID: id, Reply: reply})
		select {
		case res := <-reply:
			w.Header().Set("Content-Type", "application/json")
			if res.Canceled != nil {
				json.NewEncoder(w).Encode(map[string]any{"status": "canceled"})
			} else {
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]any{"status": "rejected", "error": res.Rejected.Error()})
			}
		case <-time.After(askTimeout):
			http.Error(w, "timed out", http.StatusGatewayTimeout)
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressHex(r.URL.Query().Get("owner"))
	if err != nil {
		http.Error(w, "bad owner", http.StatusBadRequest)
		return
	}
	reply := make(chan account.BatchCancelResult, 1)
	s.dir.Get(owner).Tell(&account.CancelAllOrders{Reply: reply})
	select {
	case res := <-reply:
		w.Header().Set("Content-Type", "application/json")
		out := make(map[string]string, len(res.Canceled))
		for id, err := range res.Canceled {
			if err != nil {
				out[id.Hex()] = err.Error()
			} else {
				out[id.Hex()] = "canceled"
			}
		}
		json.NewEncoder(w).Encode(out)
	case <-time.After(askTimeout + 20*time.Second):
		http.Error(w, "timed out", http.StatusGatewayTimeout)
	}
}

func (s *Server) handleReservedBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressHex(r.URL.Query().Get("owner"))
	if err != nil {
		http.Error(w, "bad owner", http.StatusBadRequest)
		return
	}
	reply := make(chan types.AssetMap, 1)
	s.dir.Get(owner).Tell(&account.GetReservedBalance{Reply: reply})
	select {
	case bal := <-reply:
		writeAssetMap(w, bal)
	case <-time.After(askTimeout):
		http.Error(w, "timed out", http.StatusGatewayTimeout)
	}
}

func (s *Server) handleTradableBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressHex(r.URL.Query().Get("owner"))
	if err != nil {
		http.Error(w, "bad owner", http.StatusBadRequest)
		return
	}
	assets := []types.Asset{types.NativeAsset}
	if a := r.URL.Query().Get("asset"); a != "" {
		assets = []types.Asset{parseAssetHex(a)}
	}
	reply := make(chan account.TradableBalanceResult, 1)
	s.dir.Get(owner).Tell(&account.GetTradableBalance{Assets: assets, Reply: reply})
	select {
	case res := <-reply:
		if res.Err != nil {
			log.Error().Err(res.Err).Msg("api: tradable balance lookup failed")
			http.Error(w, res.Err.Error(), http.StatusBadGateway)
			return
		}
		writeAssetMap(w, res.Balance)
	case <-time.After(askTimeout):
		http.Error(w, "timed out", http.StatusGatewayTimeout)
	}
}

func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddressHex(r.URL.Query().Get("owner"))
	if err != nil {
		http.Error(w, "bad owner", http.StatusBadRequest)
		return
	}
	s.hub.ServeAccount(w, r, owner)
}

// randomOrderID mints a 32-byte id from two concatenated UUIDs; the wire
// format reserves the full width, a single UUIDv4 would waste half of it.
func randomOrderID() types.OrderId {
	var id types.OrderId
	a, b := uuid.New(), uuid.New()
	copy(id[:16], a[:])
	copy(id[16:], b[:])
	return id
}

func timeNow() time.Time { return time.Now() }

func parseAddressHex(s string) (types.Address, error) {
	if !common.IsHexAddress(s) {
		return types.Address{}, fmt.Errorf("not a hex address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseAssetHex treats "" and "NATIVE" as the chain's native asset, anything
// else as an issued asset's address, defaulting silently to native on a
// malformed value the same way orderdb's column parser does.
func parseAssetHex(s string) types.Asset {
	if s == "" || s == "NATIVE" {
		return types.NativeAsset
	}
	if !common.IsHexAddress(s) {
		return types.NativeAsset
	}
	return types.IssuedAsset(common.HexToAddress(s))
}

func writeAssetMap(w http.ResponseWriter, m types.AssetMap) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k.String()] = v.String()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
