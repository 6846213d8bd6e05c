package runtime

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"genomarket/core/events"
	"genomarket/core/state"
	"genomarket/native/assets"
	"genomarket/native/bank"
	"genomarket/native/catalog"
	"genomarket/native/common"
	"genomarket/native/orders"
	"genomarket/native/tracking"
	"genomarket/observability"
	"genomarket/observability/otel"
	"genomarket/storage"
)

// Options configures a Runtime.
type Options struct {
	ChainID            uint64
	ExistentialDeposit *big.Int
	Pauses             common.PauseView
	// Emitter receives every committed event after metrics are recorded.
	Emitter events.Emitter
	Logger  *slog.Logger
	Now     func() int64
}

// Runtime owns the marketplace state and serialises every state transition.
// Queries may run concurrently with each other but never with a transition.
type Runtime struct {
	mu sync.RWMutex

	chainID  uint64
	pauses   common.PauseView
	state    *state.Manager
	bank     *bank.Ledger
	assets   *assets.Ledger
	catalog  *catalog.Registry
	tracking map[string]*tracking.Registry
	markets  map[string]*orders.Engine
	routes   map[string]handler
	logger   *slog.Logger
	metrics  *observability.SettlementMetrics
	tracer   trace.Tracer
	sink     *metricsSink
}

// New wires the ledgers, the catalog, one tracking registry per kind and one
// settlement engine per marketplace on top of db.
func New(db storage.Database, opts Options) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("runtime: database required")
	}
	if opts.ChainID == 0 {
		return nil, fmt.Errorf("runtime: chain id required")
	}
	ed := opts.ExistentialDeposit
	if ed == nil {
		ed = big.NewInt(1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	st := state.NewManager(db)
	sink := newMetricsSink(opts.Emitter)

	r := &Runtime{
		chainID:  opts.ChainID,
		pauses:   opts.Pauses,
		state:    st,
		bank:     bank.NewLedger(st, ed),
		catalog:  catalog.NewRegistry(st),
		tracking: make(map[string]*tracking.Registry),
		markets:  make(map[string]*orders.Engine),
		logger:   logger.With("component", "runtime"),
		metrics:  observability.Settlement(),
		tracer:   otel.Tracer("runtime"),
		sink:     sink,
	}
	r.assets = assets.NewLedger(st, r.bank)
	r.bank.SetEmitter(sink)
	r.assets.SetEmitter(sink)
	r.catalog.SetEmitter(sink)

	for _, variant := range orders.Variants() {
		reg := tracking.NewRegistry(st, variant.TrackingKind)
		reg.SetEmitter(sink)
		reg.SetNowFunc(opts.Now)
		r.tracking[variant.TrackingKind] = reg

		engine := orders.NewEngine(variant)
		engine.SetState(st)
		engine.SetLedgers(r.bank, r.assets)
		engine.SetCatalog(offeringSource{registry: r.catalog}, r.catalog)
		engine.SetTracking(trackingSource{registry: reg})
		engine.SetEmitter(sink)
		engine.SetPauses(opts.Pauses)
		engine.SetLogger(logger)
		if opts.Now != nil {
			engine.SetNowFunc(opts.Now)
		}
		r.markets[variant.Name] = engine

		reg.SetOrderObserver(engine)
		r.catalog.AddPendingView(engine)
	}
	r.routes = r.buildRoutes()
	return r, nil
}

// ChainID returns the chain the runtime accepts envelopes for.
func (r *Runtime) ChainID() uint64 { return r.chainID }

// Pallets lists the marketplace pallets in name order.
func (r *Runtime) Pallets() []string {
	names := make([]string, 0, len(r.markets))
	for name := range r.markets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Runtime) market(pallet string) (*orders.Engine, error) {
	engine, ok := r.markets[pallet]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPallet, pallet)
	}
	return engine, nil
}

func (r *Runtime) trackingRegistry(kind string) (*tracking.Registry, error) {
	reg, ok := r.tracking[kind]
	if !ok {
		return nil, fmt.Errorf("%w: tracking kind %s", ErrUnknownPallet, kind)
	}
	return reg, nil
}

// recordEscrow refreshes the escrow gauges of a pallet. Failures only cost a
// stale gauge.
func (r *Runtime) recordEscrow(pallet string) {
	engine, ok := r.markets[pallet]
	if !ok {
		return
	}
	custody, err := engine.Custody()
	if err != nil {
		return
	}
	for currency, held := range custody {
		r.metrics.SetEscrowBalance(pallet, currency.String(), held)
	}
}
