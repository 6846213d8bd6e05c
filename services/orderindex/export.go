package orderindex

import (
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetOrder struct {
	Pallet         string `parquet:"name=pallet, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderID        string `parquet:"name=order_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	OfferingID     string `parquet:"name=offering_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Customer       string `parquet:"name=customer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seller         string `parquet:"name=seller, type=BYTE_ARRAY, convertedtype=UTF8"`
	TrackingID     string `parquet:"name=tracking_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Currency       string `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	AssetID        int64  `parquet:"name=asset_id, type=INT64"`
	Total          string `parquet:"name=total, type=BYTE_ARRAY, convertedtype=UTF8"`
	Escrow         string `parquet:"name=escrow, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status         string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	ChainUpdatedAt int64  `parquet:"name=chain_updated_at, type=INT64"`
}

// ExportParquet writes the orders matching q to a snappy-compressed parquet
// file at path. Orders in the native currency carry asset_id -1. It returns
// the number of rows written.
func (i *Indexer) ExportParquet(path string, q Query) (int, error) {
	rows, err := i.Orders(q)
	if err != nil {
		return 0, err
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("orderindex: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetOrder), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("orderindex: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		assetID := int64(-1)
		if row.AssetID != nil {
			assetID = int64(*row.AssetID)
		}
		record := &parquetOrder{
			Pallet:         row.Pallet,
			OrderID:        row.OrderID,
			OfferingID:     row.OfferingID,
			Customer:       row.Customer,
			Seller:         row.Seller,
			TrackingID:     row.TrackingID,
			Currency:       row.Currency,
			AssetID:        assetID,
			Total:          row.Total,
			Escrow:         row.Escrow,
			Status:         row.Status,
			ChainUpdatedAt: row.ChainUpdatedAt,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("orderindex: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("orderindex: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("orderindex: close parquet file: %w", err)
	}
	return len(rows), nil
}
