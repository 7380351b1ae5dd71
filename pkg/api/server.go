package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"swapbook/pkg/asset"
	"swapbook/pkg/book"
)

const channelOrders = "orders"

// Server exposes the settlement engine over REST plus a WebSocket event
// feed. It implements book.Emitter so the engine's lifecycle events land on
// the feed after commit.
type Server struct {
	engine *book.Engine
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
	cors   []string
}

func NewServer(engine *book.Engine, corsOrigins []string, logger *zap.SugaredLogger) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		log:    logger,
		cors:   corsOrigins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Lifecycle
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/fill", s.handleFillOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/cancel", s.handleCancelOrder).Methods("POST")

	// Queries
	api.HandleFunc("/orders/active", s.handleGetActiveOrders).Methods("GET")
	api.HandleFunc("/orders/pair", s.handleGetOrdersByPair).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/escrow/{asset}", s.handleGetEscrow).Methods("GET")

	// WebSocket event feed
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the WebSocket hub and serves HTTP until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cors,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Emit implements book.Emitter: completed lifecycle events go to every feed
// subscriber on the orders channel.
func (s *Server) Emit(ev book.Event) {
	s.hub.BroadcastToChannel(channelOrders, EventMessage{
		Type:  "event",
		Name:  ev.Name(),
		Topic: ev.Topic().Hex(),
		Data:  ev,
	})
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	maker, err := parseAddress(req.Maker)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid maker address", err.Error())
		return
	}
	tokenIn, err := parseAsset(req.TokenIn)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tokenIn", err.Error())
		return
	}
	tokenOut, err := parseAsset(req.TokenOut)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tokenOut", err.Error())
		return
	}
	amountIn, err := parseAmount(req.AmountIn)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amountIn", err.Error())
		return
	}
	amountOut, err := parseAmount(req.AmountOut)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amountOut", err.Error())
		return
	}
	value, err := parseOptionalAmount(req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid value", err.Error())
		return
	}

	o, err := s.engine.Create(r.Context(), maker, tokenIn, tokenOut, amountIn, amountOut, value)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req FillOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	taker, err := parseAddress(req.Taker)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid taker address", err.Error())
		return
	}
	value, err := parseOptionalAmount(req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid value", err.Error())
		return
	}

	if err := s.engine.Fill(r.Context(), id, taker, value); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{"status": "filled", "id": id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller address", err.Error())
		return
	}

	if err := s.engine.Cancel(r.Context(), id, caller); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{"status": "cancelled", "id": id})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	o, err := s.engine.GetOrder(id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleGetActiveOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, OrderIDList{Orders: s.engine.ActiveOrders()})
}

func (s *Server) handleGetOrdersByPair(w http.ResponseWriter, r *http.Request) {
	tokenIn, err := parseAsset(r.URL.Query().Get("tokenIn"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tokenIn", err.Error())
		return
	}
	tokenOut, err := parseAsset(r.URL.Query().Get("tokenOut"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tokenOut", err.Error())
		return
	}
	respondJSON(w, OrderIDList{Orders: s.engine.OrdersByPair(tokenIn, tokenOut)})
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	a, err := parseAsset(mux.Vars(r)["asset"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset", err.Error())
		return
	}
	respondJSON(w, EscrowInfo{
		Asset:  a.Address().Hex(),
		Amount: s.engine.Escrowed(a).String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func orderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return 0, false
	}
	return id, true
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.New("not a hex address: " + strconv.Quote(s))
	}
	return common.HexToAddress(s), nil
}

func parseAsset(s string) (asset.Asset, error) {
	addr, err := parseAddress(s)
	if err != nil {
		return asset.Asset{}, err
	}
	return asset.FromAddress(addr), nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("not a base-10 amount: " + strconv.Quote(s))
	}
	return v, nil
}

// parseOptionalAmount treats an absent field as zero attached value.
func parseOptionalAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	return parseAmount(s)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// respondEngineError maps the engine's error taxonomy to HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, book.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, book.ErrNotMaker):
		status = http.StatusForbidden
	case errors.Is(err, book.ErrOrderInactive),
		errors.Is(err, book.ErrTransferFailed),
		errors.Is(err, book.ErrReentrantCall):
		status = http.StatusConflict
	case errors.Is(err, book.ErrOverflow):
		status = http.StatusInternalServerError
	}
	respondError(w, status, "operation rejected", err.Error())
}
