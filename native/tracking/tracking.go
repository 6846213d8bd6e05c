package tracking

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"genomarket/core/events"
	"genomarket/core/state"
	"genomarket/core/types"
)

// Kinds of tracked work, one per marketplace.
const (
	KindDNASample       = "dna-sample"
	KindGeneticAnalysis = "genetic-analysis"
	KindServiceRequest  = "service-request"
)

// IDLength is the length of a tracking id.
const IDLength = 21

var (
	ErrTrackingExists    = errors.New("tracking: order already tracked")
	ErrTrackingNotFound  = errors.New("tracking: record not found")
	ErrUnauthorized      = errors.New("tracking: caller is not the assigned seller")
	ErrInvalidTransition = errors.New("tracking: invalid status transition")
	ErrInvalidParty      = errors.New("tracking: seller and customer required")
	ErrNoOrderObserver   = errors.New("tracking: order observer not configured")
	ErrOrderNotPaid      = errors.New("tracking: linked order is not paid")
)

// Status is the lab-side workflow state of a tracked sample or analysis.
type Status uint8

const (
	StatusRegistered Status = iota
	StatusArrived
	StatusInProgress
	StatusResultReady
	StatusRejected
	// StatusFailed marks a hard failure such as a sample registration error.
	StatusFailed
)

var statusNames = map[Status]string{
	StatusRegistered:  "registered",
	StatusArrived:     "arrived",
	StatusInProgress:  "in_progress",
	StatusResultReady: "result_ready",
	StatusRejected:    "rejected",
	StatusFailed:      "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParseStatus accepts the lower-case status name.
func ParseStatus(raw string) (Status, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	for s, name := range statusNames {
		if name == trimmed {
			return s, nil
		}
	}
	return 0, fmt.Errorf("tracking: unknown status %q", raw)
}

var transitions = map[Status][]Status{
	StatusRegistered: {StatusArrived, StatusRejected},
	StatusArrived:    {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusResultReady, StatusRejected},
}

func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Record is the tracked unit of work linked 1:1 to an order.
type Record struct {
	ID        string
	Kind      string
	OrderID   types.Hash
	Seller    types.Address
	Customer  types.Address
	Status    Status
	CreatedAt uint64
	UpdatedAt uint64
}

// TrackingID returns the record id.
func (r *Record) TrackingID() string { return r.ID }

// IsRegistered reports that no work has started yet.
func (r *Record) IsRegistered() bool { return r.Status == StatusRegistered }

// ProcessSuccess reports that the lab produced a result.
func (r *Record) ProcessSuccess() bool { return r.Status == StatusResultReady }

// IsRejected reports that the lab rejected the sample.
func (r *Record) IsRejected() bool { return r.Status == StatusRejected }

// OrderObserver is the marketplace owning the tracked orders. Lab work only
// starts once the order is paid, and hard failures are reported back to it.
type OrderObserver interface {
	IsOrderPaid(orderID types.Hash) (bool, error)
	UpdateStatusFailed(orderID types.Hash) error
}

// Registry stores tracking records of one kind.
type Registry struct {
	kind     string
	state    *state.Manager
	emitter  events.Emitter
	observer OrderObserver
	nowFn    func() int64
}

// NewRegistry creates a registry for the given kind of work.
func NewRegistry(st *state.Manager, kind string) *Registry {
	return &Registry{
		kind:    kind,
		state:   st,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Kind returns the kind of work tracked by the registry.
func (r *Registry) Kind() string { return r.kind }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the clock used for timestamps.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// SetOrderObserver wires the marketplace consulted by UpdateStatus and
// notified by Fail.
func (r *Registry) SetOrderObserver(observer OrderObserver) { r.observer = observer }

func (r *Registry) now() uint64 {
	if ts := r.nowFn(); ts > 0 {
		return uint64(ts)
	}
	return 0
}

func (r *Registry) emit(eventType string, rec *Record) {
	evt := newRecordEvent(eventType, rec)
	r.state.AfterCommit(func() { r.emitter.Emit(trackingEvent{evt: evt}) })
}

// NewID derives the tracking id for an order: the first 21 base32 characters
// of keccak256(kind || orderID).
func NewID(kind string, orderID types.Hash) string {
	digest := ethcrypto.Keccak256([]byte(kind), orderID[:])
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(digest)
	return encoded[:IDLength]
}

// Register opens a tracking record for the order.
func (r *Registry) Register(seller, customer types.Address, orderID types.Hash) (*Record, error) {
	if r == nil || r.state == nil {
		return nil, fmt.Errorf("tracking: state not configured")
	}
	if seller.IsZero() || customer.IsZero() {
		return nil, ErrInvalidParty
	}
	if ok, err := r.state.KVHas(state.TrackingByOrderKey(r.kind, orderID)); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrTrackingExists
	}
	now := r.now()
	rec := &Record{
		ID:        NewID(r.kind, orderID),
		Kind:      r.kind,
		OrderID:   orderID,
		Seller:    seller,
		Customer:  customer,
		Status:    StatusRegistered,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ok, err := r.state.KVHas(state.TrackingKey(r.kind, rec.ID)); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrTrackingExists
	}
	if err := r.state.KVPut(state.TrackingKey(r.kind, rec.ID), rec); err != nil {
		return nil, err
	}
	if err := r.state.KVPut(state.TrackingByOrderKey(r.kind, orderID), rec.ID); err != nil {
		return nil, err
	}
	r.emit(EventTypeRegistered, rec)
	return rec, nil
}

// ByTrackingID loads a record.
func (r *Registry) ByTrackingID(id string) (*Record, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, fmt.Errorf("tracking: state not configured")
	}
	rec := new(Record)
	ok, err := r.state.KVGet(state.TrackingKey(r.kind, id), rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec, true, nil
}

// ByOrderID loads the record linked to an order.
func (r *Registry) ByOrderID(orderID types.Hash) (*Record, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, fmt.Errorf("tracking: state not configured")
	}
	var id string
	ok, err := r.state.KVGet(state.TrackingByOrderKey(r.kind, orderID), &id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return r.ByTrackingID(id)
}

// Delete removes a record and its order link.
func (r *Registry) Delete(id string) error {
	rec, ok, err := r.ByTrackingID(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTrackingNotFound
	}
	if err := r.state.KVDelete(state.TrackingKey(r.kind, id)); err != nil {
		return err
	}
	if err := r.state.KVDelete(state.TrackingByOrderKey(r.kind, rec.OrderID)); err != nil {
		return err
	}
	r.emit(EventTypeDeleted, rec)
	return nil
}

// UpdateStatus advances the lab workflow. Only the assigned seller may report
// progress, and a record leaves Registered only once its order is paid so an
// unpaid order stays cancellable by the customer.
func (r *Registry) UpdateStatus(caller types.Address, id string, next Status) (*Record, error) {
	rec, ok, err := r.ByTrackingID(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTrackingNotFound
	}
	if caller != rec.Seller {
		return nil, ErrUnauthorized
	}
	if !canTransition(rec.Status, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, next)
	}
	if rec.Status == StatusRegistered && r.observer != nil {
		paid, err := r.observer.IsOrderPaid(rec.OrderID)
		if err != nil {
			return nil, err
		}
		if !paid {
			return nil, ErrOrderNotPaid
		}
	}
	rec.Status = next
	rec.UpdatedAt = r.now()
	if err := r.state.KVPut(state.TrackingKey(r.kind, id), rec); err != nil {
		return nil, err
	}
	r.emit(EventTypeStatusUpdated, rec)
	return rec, nil
}

// Fail records a hard failure before work started and notifies the failure
// observer. The observer's error aborts the call.
func (r *Registry) Fail(caller types.Address, id string) (*Record, error) {
	rec, ok, err := r.ByTrackingID(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTrackingNotFound
	}
	if caller != rec.Seller {
		return nil, ErrUnauthorized
	}
	if rec.Status != StatusRegistered {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, StatusFailed)
	}
	if r.observer == nil {
		return nil, ErrNoOrderObserver
	}
	if err := r.observer.UpdateStatusFailed(rec.OrderID); err != nil {
		return nil, err
	}
	rec.Status = StatusFailed
	rec.UpdatedAt = r.now()
	if err := r.state.KVPut(state.TrackingKey(r.kind, id), rec); err != nil {
		return nil, err
	}
	r.emit(EventTypeStatusUpdated, rec)
	return rec, nil
}
