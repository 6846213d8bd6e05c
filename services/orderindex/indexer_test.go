package orderindex

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genomarket/core/events"
	"genomarket/core/types"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	idx := New(db, nil)
	idx.now = func() time.Time { return time.Unix(1700000000, 0) }
	return idx
}

func orderEvent(eventType, orderID, status string, updatedAt int64) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"pallet":     "orders",
		"orderId":    orderID,
		"offeringId": "0xoffer",
		"customer":   "dbio1customer",
		"seller":     "dbio1seller",
		"trackingId": "DNA-" + orderID,
		"currency":   "DBIO",
		"total":      "1000",
		"escrow":     "dbio1escrow",
		"status":     status,
		"updatedAt":  fmt.Sprint(updatedAt),
	}}
}

type payload struct{ evt *types.Event }

func (p payload) EventType() string   { return p.evt.Type }
func (p payload) Event() *types.Event { return p.evt }

func TestIndexerFoldsOrderLifecycle(t *testing.T) {
	idx := newTestIndexer(t)
	idx.Emit(payload{orderEvent("orders.created", "0x01", "unpaid", 10)})
	idx.Emit(payload{orderEvent("orders.paid", "0x01", "paid", 20)})

	order, err := idx.Order("orders", "0x01")
	require.NoError(t, err)
	require.Equal(t, "paid", order.Status)
	require.Equal(t, int64(20), order.ChainUpdatedAt)
	require.Equal(t, "1000", order.Total)
	require.Nil(t, order.AssetID)

	history, err := idx.History("0x01")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "orders.created", history[0].Type)

	_, err = idx.Order("orders", "0x02")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIndexerIgnoresReplays(t *testing.T) {
	idx := newTestIndexer(t)
	evt := orderEvent("orders.created", "0x01", "unpaid", 10)
	require.NoError(t, idx.Record(evt))
	require.NoError(t, idx.Record(evt))

	history, err := idx.History("0x01")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, Fingerprint(evt), history[0].Fingerprint)
}

func TestIndexerKeepsDistinctIdenticalTransfers(t *testing.T) {
	idx := newTestIndexer(t)
	transfer := payload{&types.Event{Type: "transfer.native", Attributes: map[string]string{
		"from":   "dbio1customer",
		"to":     "dbio1escrow",
		"asset":  "DBIO",
		"amount": "1000",
	}}}
	for _, source := range []string{"0x01", "0x02", "0x01"} {
		idx.Emit(events.Positioned{Payload: transfer, Source: source})
	}

	var rows []Event
	require.NoError(t, idx.db.Where("type = ?", "transfer.native").Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, "0x01", rows[0].Source)
	require.Equal(t, "0x02", rows[1].Source)
	require.NotEqual(t, rows[0].Fingerprint, rows[1].Fingerprint)
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	a := &types.Event{Type: "orders.paid", Attributes: map[string]string{"a": "1", "b": "2"}}
	b := &types.Event{Type: "orders.paid", Attributes: map[string]string{"b": "2", "a": "1"}}
	c := &types.Event{Type: "orders.refunded", Attributes: map[string]string{"a": "1", "b": "2"}}
	require.Equal(t, Fingerprint(a), Fingerprint(b))
	require.NotEqual(t, Fingerprint(a), Fingerprint(c))
	require.Len(t, Fingerprint(a), 64)
}

func TestIndexerTracksRecords(t *testing.T) {
	idx := newTestIndexer(t)
	rec := func(eventType, status string) *types.Event {
		return &types.Event{Type: eventType, Attributes: map[string]string{
			"trackingId": "DNA-1",
			"kind":       "dna-sample",
			"orderId":    "0x01",
			"seller":     "dbio1seller",
			"status":     status,
			"updatedAt":  "5",
		}}
	}
	require.NoError(t, idx.Record(rec("tracking.registered", "registered")))
	require.NoError(t, idx.Record(rec("tracking.status_updated", "arrived")))

	got, err := idx.Tracking("dna-sample", "DNA-1")
	require.NoError(t, err)
	require.Equal(t, "arrived", got.Status)

	require.NoError(t, idx.Record(rec("tracking.deleted", "arrived")))
	_, err = idx.Tracking("dna-sample", "DNA-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOrdersQueryFilters(t *testing.T) {
	idx := newTestIndexer(t)
	require.NoError(t, idx.Record(orderEvent("orders.created", "0x01", "unpaid", 10)))
	require.NoError(t, idx.Record(orderEvent("orders.created", "0x02", "unpaid", 11)))
	require.NoError(t, idx.Record(orderEvent("orders.cancelled", "0x02", "cancelled", 12)))
	withAsset := orderEvent("orders.created", "0x03", "unpaid", 13)
	withAsset.Attributes["assetId"] = "1"
	withAsset.Attributes["pallet"] = "service-request"
	require.NoError(t, idx.Record(withAsset))

	unpaid, err := idx.Orders(Query{Pallet: "orders", Status: "unpaid"})
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	require.Equal(t, "0x01", unpaid[0].OrderID)

	all, err := idx.Orders(Query{Seller: "dbio1seller"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "0x03", all[0].OrderID)
	require.NotNil(t, all[0].AssetID)
	require.Equal(t, uint32(1), *all[0].AssetID)

	limited, err := idx.Orders(Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestRecordRejectsEventsWithoutKeys(t *testing.T) {
	idx := newTestIndexer(t)
	require.Error(t, idx.Record(&types.Event{Type: "orders.paid", Attributes: map[string]string{"status": "paid"}}))
	require.NoError(t, idx.Record(nil))
	require.NoError(t, idx.Record(&types.Event{Type: "orders.config_updated", Attributes: map[string]string{"pallet": "orders"}}))
}

func TestExportParquet(t *testing.T) {
	idx := newTestIndexer(t)
	require.NoError(t, idx.Record(orderEvent("orders.created", "0x01", "unpaid", 10)))
	require.NoError(t, idx.Record(orderEvent("orders.created", "0x02", "unpaid", 11)))

	path := filepath.Join(t.TempDir(), "orders.parquet")
	n, err := idx.ExportParquet(path, Query{Pallet: "orders"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("PAR1")))
	require.True(t, bytes.HasSuffix(data, []byte("PAR1")))
}
