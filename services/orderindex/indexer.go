package orderindex

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"lukechampine.com/blake3"

	"genomarket/core/events"
	"genomarket/core/types"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("orderindex: not found")

// Indexer persists committed runtime events. It implements events.Emitter so
// it can sit next to the other runtime subscribers; write failures are logged
// and never reach the runtime.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func New(db *gorm.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger.With("component", "orderindex"), now: time.Now}
}

// Emit implements events.Emitter.
func (i *Indexer) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	if err := i.Record(payload.Event()); err != nil {
		i.logger.Error("index event failed", "type", evt.EventType(), "error", err)
	}
}

// Fingerprint hashes the event type and its sorted attributes. Runtime events
// carry their source call and index as attributes, so only a true replay of
// the same event produces the same fingerprint.
func Fingerprint(evt *types.Event) string {
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(evt.Type)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(evt.Attributes[k])
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Record stores evt and folds it into the order and tracking tables. Replaying
// an already recorded event is a no-op.
func (i *Indexer) Record(evt *types.Event) error {
	if evt == nil || evt.Type == "" {
		return nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	now := i.now().UTC()
	row := Event{
		Fingerprint: Fingerprint(evt),
		Type:        evt.Type,
		Pallet:      evt.Attr("pallet"),
		OrderID:     evt.Attr("orderId"),
		Source:      evt.Attr(events.AttrSource),
		EventIndex:  int(parseDecimal(evt.Attr(events.AttrEventIndex))),
		Attributes:  string(attrs),
		RecordedAt:  now,
	}
	return i.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		switch {
		case isOrderEvent(evt.Type):
			return upsertOrder(tx, evt, now)
		case strings.HasPrefix(evt.Type, "tracking."):
			return upsertTracking(tx, evt, now)
		}
		return nil
	})
}

// isOrderEvent reports whether the event carries a full order snapshot.
func isOrderEvent(eventType string) bool {
	switch eventType {
	case "orders.created", "orders.paid", "orders.fulfilled", "orders.refunded", "orders.cancelled", "orders.failed":
		return true
	}
	return false
}

// parseDecimal reads a decimal attribute, returning 0 when it is absent.
func parseDecimal(raw string) int64 {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func upsertOrder(tx *gorm.DB, evt *types.Event, now time.Time) error {
	order := Order{
		Pallet:         evt.Attr("pallet"),
		OrderID:        evt.Attr("orderId"),
		OfferingID:     evt.Attr("offeringId"),
		Customer:       evt.Attr("customer"),
		Seller:         evt.Attr("seller"),
		TrackingID:     evt.Attr("trackingId"),
		Currency:       evt.Attr("currency"),
		Total:          evt.Attr("total"),
		Escrow:         evt.Attr("escrow"),
		Status:         evt.Attr("status"),
		ChainUpdatedAt: parseDecimal(evt.Attr("updatedAt")),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if raw := evt.Attr("assetId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("orderindex: asset id %q: %w", raw, err)
		}
		asset := uint32(id)
		order.AssetID = &asset
	}
	if order.Pallet == "" || order.OrderID == "" {
		return fmt.Errorf("orderindex: %s without order key", evt.Type)
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pallet"}, {Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "escrow", "chain_updated_at", "updated_at"}),
	}).Create(&order).Error
}

func upsertTracking(tx *gorm.DB, evt *types.Event, now time.Time) error {
	rec := Tracking{
		Kind:           evt.Attr("kind"),
		TrackingID:     evt.Attr("trackingId"),
		OrderID:        evt.Attr("orderId"),
		Seller:         evt.Attr("seller"),
		Status:         evt.Attr("status"),
		ChainUpdatedAt: parseDecimal(evt.Attr("updatedAt")),
		UpdatedAt:      now,
	}
	if rec.Kind == "" || rec.TrackingID == "" {
		return fmt.Errorf("orderindex: %s without tracking key", evt.Type)
	}
	if evt.Type == "tracking.deleted" {
		return tx.Delete(&Tracking{}, "kind = ? AND tracking_id = ?", rec.Kind, rec.TrackingID).Error
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "tracking_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "chain_updated_at", "updated_at"}),
	}).Create(&rec).Error
}

// Order loads the indexed state of one order.
func (i *Indexer) Order(pallet, orderID string) (*Order, error) {
	var out Order
	err := i.db.Where("pallet = ? AND order_id = ?", pallet, orderID).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Query narrows Orders. Empty fields match everything.
type Query struct {
	Pallet   string
	Status   string
	Seller   string
	Customer string
	Limit    int
}

// Orders lists indexed orders, most recently changed first.
func (i *Indexer) Orders(q Query) ([]Order, error) {
	tx := i.db.Model(&Order{})
	if q.Pallet != "" {
		tx = tx.Where("pallet = ?", q.Pallet)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Seller != "" {
		tx = tx.Where("seller = ?", q.Seller)
	}
	if q.Customer != "" {
		tx = tx.Where("customer = ?", q.Customer)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var out []Order
	if err := tx.Order("chain_updated_at DESC").Order("order_id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Tracking loads an indexed tracking record.
func (i *Indexer) Tracking(kind, trackingID string) (*Tracking, error) {
	var out Tracking
	err := i.db.Where("kind = ? AND tracking_id = ?", kind, trackingID).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns every event recorded for an order in arrival order.
func (i *Indexer) History(orderID string) ([]Event, error) {
	var out []Event
	if err := i.db.Where("order_id = ?", orderID).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
