// Package main wires the sharded front end (§4.J) behind a small HTTP
// surface: /order, /cancel, /book, /stats, /health. Adapted from the
// teacher's cmd/server/main.go (same handler shape and flag-driven
// config), ported from its single-instrument disruptor pipeline onto
// internal/sharding.Router -> internal/shard.TradingShard ->
// internal/engine.Engine and scaled-integer (internal/scale) wire types
// instead of dollar-denominated floats.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rishav/perpetual-matching-core/internal/book"
	"github.com/rishav/perpetual-matching-core/internal/engine"
	"github.com/rishav/perpetual-matching-core/internal/matching"
	"github.com/rishav/perpetual-matching-core/internal/orders"
	"github.com/rishav/perpetual-matching-core/internal/scale"
	"github.com/rishav/perpetual-matching-core/internal/shard"
	"github.com/rishav/perpetual-matching-core/internal/sharding"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config holds server configuration.
type Config struct {
	Port             int
	WalDir           string
	DurabilityMode   engine.DurabilityMode
	NumInstruments   uint32
	NumTradingShards uint32
	STPPolicy        matching.STPPolicy
	ShardConfig      shard.Config
	SyncInterval     time.Duration
}

// DefaultConfig returns reasonable defaults for a single-box deployment:
// one matching shard per instrument, four trading shards.
func DefaultConfig() Config {
	return Config{
		Port:             8080,
		WalDir:           "wal-data",
		DurabilityMode:   engine.ModeAsyncBatched,
		NumInstruments:   4,
		NumTradingShards: 4,
		STPPolicy:        matching.STPAllow,
		ShardConfig:      shard.DefaultConfig(),
		SyncInterval:     50 * time.Millisecond,
	}
}

// Server is the matching core's HTTP front end.
type Server struct {
	router  *sharding.Router
	engines []*engine.Engine
	log     zerolog.Logger

	httpServer *http.Server
}

// NewServer constructs every matching shard and trading shard named by
// config and wires them behind a sharding.Router.
func NewServer(config Config, log zerolog.Logger) (*Server, error) {
	if err := os.MkdirAll(config.WalDir, 0o755); err != nil {
		return nil, fmt.Errorf("create wal directory: %w", err)
	}

	engines := make([]*engine.Engine, config.NumInstruments)
	for i := uint32(0); i < config.NumInstruments; i++ {
		e, err := engine.New(engine.Config{
			InstrumentID:   scale.InstrumentId(i),
			WalPath:        filepath.Join(config.WalDir, fmt.Sprintf("instrument-%d.wal", i)),
			DurabilityMode: config.DurabilityMode,
			STPPolicy:      config.STPPolicy,
			SyncInterval:   config.SyncInterval,
			ShardKey:       int(i),
			Logger:         log,
		})
		if err != nil {
			return nil, fmt.Errorf("start matching shard %d: %w", i, err)
		}
		engines[i] = e
	}

	tradingShards := make([]*shard.TradingShard, config.NumTradingShards)
	for i := range tradingShards {
		tradingShards[i] = shard.New(config.ShardConfig)
	}

	router := sharding.New(tradingShards, engines)

	server := &Server{
		router:  router,
		engines: engines,
		log:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/order", server.handleOrder)
	mux.HandleFunc("/cancel", server.handleCancel)
	mux.HandleFunc("/book", server.handleBook)
	mux.HandleFunc("/stats", server.handleStats)
	mux.HandleFunc("/health", server.handleHealth)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server, nil
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Int("matching_shards", len(s.engines)).Msg("starting matching core")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting HTTP requests, then bounds-drains every
// matching shard's WAL queue before returning, per §5.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	for i, e := range s.engines {
		if err := e.Shutdown(5 * time.Second); err != nil {
			s.log.Error().Err(err).Int("matching_shard", i).Msg("error shutting down matching shard")
		}
	}
	return nil
}

// OrderRequest is the wire shape of a new order submission. Price and
// Quantity are decimal strings (e.g. "50000.125"), converted losslessly
// to scale.Price/scale.Quantity ticks by internal/scale.
type OrderRequest struct {
	UserID        uint64 `json:"user_id"`
	InstrumentID  uint32 `json:"instrument_id"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price,omitempty"`
	Quantity      string `json:"quantity"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	WaitDurable   bool   `json:"wait_for_durability,omitempty"`
}

// OrderResponse is the wire shape of an order submission's outcome.
type OrderResponse struct {
	Success             bool       `json:"success"`
	OrderID             uint64     `json:"order_id,omitempty"`
	ClientOrderID       string     `json:"client_order_id,omitempty"`
	Status              string     `json:"status,omitempty"`
	FilledQuantity      string     `json:"filled_quantity,omitempty"`
	RemainingQuantity   string     `json:"remaining_quantity,omitempty"`
	Fills               []FillInfo `json:"fills,omitempty"`
	SequenceID          uint64     `json:"sequence_id,omitempty"`
	DurabilityConfirmed bool       `json:"durability_confirmed,omitempty"`
	RejectReason        string     `json:"reject_reason,omitempty"`
	Error               string     `json:"error,omitempty"`
}

// FillInfo is the wire shape of a single execution within an
// OrderResponse.
type FillInfo struct {
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	TakerSide string `json:"taker_side"`
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	var side orders.Side
	switch req.Side {
	case "buy", "BUY":
		side = orders.SideBuy
	case "sell", "SELL":
		side = orders.SideSell
	default:
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: "invalid side: must be 'buy' or 'sell'"})
		return
	}

	var orderType orders.Type
	switch req.Type {
	case "market", "MARKET":
		orderType = orders.TypeMarket
	case "limit", "LIMIT":
		orderType = orders.TypeLimit
	case "ioc", "IOC":
		orderType = orders.TypeIOC
	case "fok", "FOK":
		orderType = orders.TypeFOK
	default:
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: "invalid type: must be 'market', 'limit', 'ioc', or 'fok'"})
		return
	}

	var price scale.Price
	if req.Price != "" {
		d, err := decimal.NewFromString(req.Price)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, OrderResponse{Error: fmt.Sprintf("invalid price: %v", err)})
			return
		}
		price, err = scale.PriceFromDecimal(d)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, OrderResponse{Error: fmt.Sprintf("price out of range: %v", err)})
			return
		}
	} else if orderType == orders.TypeLimit {
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: "price required for limit orders"})
		return
	}

	qd, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: fmt.Sprintf("invalid quantity: %v", err)})
		return
	}
	quantity, err := scale.QuantityFromDecimal(qd)
	if err != nil || quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, OrderResponse{Error: "quantity must be a positive, representable amount"})
		return
	}

	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}

	order := &orders.Order{
		UserID:           scale.UserId(req.UserID),
		InstrumentID:     scale.InstrumentId(req.InstrumentID),
		Side:             side,
		Type:             orderType,
		Price:            price,
		OriginalQuantity: quantity,
	}

	result, receipt, err := s.router.Submit(order, req.WaitDurable)
	switch {
	case errors.Is(err, sharding.ErrPreCheckFailed), errors.Is(err, engine.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, OrderResponse{
			Success:       false,
			ClientOrderID: clientOrderID,
			RejectReason:  result.RejectReason,
		})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, OrderResponse{Error: err.Error()})
		return
	}

	fills := make([]FillInfo, len(result.Fills))
	for i, f := range result.Fills {
		fills[i] = FillInfo{
			Price:     scale.DecimalFromPrice(f.Price).String(),
			Quantity:  scale.DecimalFromQuantity(f.Quantity).String(),
			TakerSide: f.TakerSide.String(),
		}
	}

	writeJSON(w, http.StatusOK, OrderResponse{
		Success:             result.Accepted,
		OrderID:             uint64(order.ID),
		ClientOrderID:       clientOrderID,
		Status:              order.Status.String(),
		FilledQuantity:      scale.DecimalFromQuantity(order.FilledQuantity).String(),
		RemainingQuantity:   scale.DecimalFromQuantity(order.RemainingQuantity()).String(),
		Fills:               fills,
		SequenceID:          uint64(receipt.SequenceID),
		DurabilityConfirmed: receipt.DurabilityConfirmed,
		RejectReason:        result.RejectReason,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, err := strconv.ParseUint(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id required"})
		return
	}
	instrumentID, err := strconv.ParseUint(r.URL.Query().Get("instrument_id"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "instrument_id required"})
		return
	}
	orderID, err := strconv.ParseUint(r.URL.Query().Get("order_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id required"})
		return
	}

	o, receipt, err := s.router.SubmitCancel(scale.UserId(userID), scale.InstrumentId(instrumentID), scale.OrderId(orderID))
	switch {
	case errors.Is(err, engine.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, engine.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"order_id":             uint64(o.ID),
		"remaining_quantity":   scale.DecimalFromQuantity(o.RemainingQuantity()).String(),
		"sequence_id":          uint64(receipt.SequenceID),
		"durability_confirmed": receipt.DurabilityConfirmed,
	})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	instrumentID, err := strconv.ParseUint(r.URL.Query().Get("instrument_id"), 10, 32)
	if err != nil || instrumentID >= uint64(len(s.engines)) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "valid instrument_id required"})
		return
	}

	levels := 10
	if l := r.URL.Query().Get("levels"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			levels = parsed
		}
	}

	bids, asks := s.engines[instrumentID].SnapshotDepth(levels)

	writeJSON(w, http.StatusOK, map[string]any{
		"instrument_id": instrumentID,
		"bids":          depthJSON(bids),
		"asks":          depthJSON(asks),
	})
}

func depthJSON(levels []book.DepthLevel) []map[string]any {
	out := make([]map[string]any, len(levels))
	for i, lvl := range levels {
		out[i] = map[string]any{
			"price":    scale.DecimalFromPrice(lvl.Price).String(),
			"quantity": scale.DecimalFromQuantity(lvl.TotalQuantity).String(),
			"orders":   lvl.OrderCount,
		}
	}
	return out
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	shards := make([]map[string]any, len(s.engines))
	for i, e := range s.engines {
		snap := e.Metrics().Snapshot()
		shards[i] = map[string]any{
			"instrument_id":          i,
			"orders_processed":       snap.OrdersProcessed,
			"trades_executed":        snap.TradesExecuted,
			"wal_bytes_written":      snap.WalBytesWritten,
			"fsync_count":            snap.FsyncCount,
			"fsync_total_ns":         snap.FsyncTotalNs,
			"degraded":               e.Degraded(),
			"process_order_latency": snap.ProcessOrderLatency,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matching_shards": shards})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	degraded := false
	for _, e := range s.engines {
		if e.Degraded() {
			degraded = true
			break
		}
	}
	status := http.StatusOK
	state := "healthy"
	if degraded {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]string{"status": state})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	port := flag.Int("port", 8080, "server port")
	walDir := flag.String("wal-dir", "wal-data", "directory for per-instrument WAL files")
	instruments := flag.Uint("instruments", 4, "number of matching shards (instruments)")
	tradingShards := flag.Uint("trading-shards", 4, "number of trading shards")
	durability := flag.String("durability", "async", "durability mode: async, sync-critical, or zero-loss")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	config := DefaultConfig()
	config.Port = *port
	config.WalDir = *walDir
	config.NumInstruments = uint32(*instruments)
	config.NumTradingShards = uint32(*tradingShards)
	switch *durability {
	case "async":
		config.DurabilityMode = engine.ModeAsyncBatched
	case "sync-critical":
		config.DurabilityMode = engine.ModeSyncCritical
	case "zero-loss":
		config.DurabilityMode = engine.ModeZeroLoss
	default:
		log.Fatal().Str("durability", *durability).Msg("unknown durability mode")
	}

	server, err := NewServer(config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info().Msg("received shutdown signal")
		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped")
}
