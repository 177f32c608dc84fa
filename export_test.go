package main

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeStore serves orders and FDA ids from memory.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[int64]*Order
	fdaIDs  map[int64]string
	fdaErrs map[int64]error
	numbers map[string]int64
	lookups map[int64]int
}

func (f *fakeStore) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, &APIError{Status: 404, URL: "/orders"}
	}
	return o, nil
}

func (f *fakeStore) FDAID(ctx context.Context, productID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookups == nil {
		f.lookups = make(map[int64]int)
	}
	f.lookups[productID]++
	if err := f.fdaErrs[productID]; err != nil {
		return "", err
	}
	return f.fdaIDs[productID], nil
}

func (f *fakeStore) FindOrderIDByNumber(ctx context.Context, number string) (int64, error) {
	id, ok := f.numbers[number]
	if !ok {
		return 0, ErrOrderNotFound
	}
	return id, nil
}

func int64p(v int64) *int64 { return &v }

func sampleOrder() *Order {
	return &Order{
		ID:          555,
		Name:        "#1001",
		OrderNumber: 1001,
		LineItems: []LineItem{
			{Title: "Green tea", Quantity: 2, Grams: 250, ProductID: int64p(1)},
			{Title: "Green tea, large", Quantity: 1, Grams: 500, ProductID: int64p(1)},
			{Title: "Mug", Quantity: 1, Grams: 400, ProductID: int64p(2)},
			{Title: "Gift card", Quantity: 1},
		},
		ShippingAddress: &Address{
			FirstName: "Ana",
			LastName:  "Diaz",
			Address1:  "1 Main St",
			City:      "Nashville",
			Zip:       "37201",
			Province:  "Tennessee",
			Country:   "United States",
		},
	}
}

func newTestExporter(t *testing.T, store *fakeStore) *Exporter {
	t.Helper()
	config := DefaultConfig()
	config.OutputDir = t.TempDir()
	e := NewExporter(store, config, zap.NewNop())
	e.now = func() time.Time { return time.Date(2024, 2, 3, 4, 5, 6, 0, time.Local) }
	return e
}

func TestBuildRows(t *testing.T) {
	store := &fakeStore{
		fdaIDs:  map[int64]string{1: "11111111111"},
		fdaErrs: map[int64]error{2: errors.New("HTTP 500")},
	}
	e := newTestExporter(t, store)

	rows := e.BuildRows(context.Background(), sampleOrder())

	if len(rows) != 4 {
		t.Fatalf("Expected one row per line item, got %d", len(rows))
	}
	for _, r := range rows {
		if r.OrderNumber != "1001" || r.ShippingName != "Ana Diaz" || r.ShippingCity != "Nashville" || r.GuiaAerea != "01" {
			t.Errorf("Order-level fields differ between rows: %+v", r)
		}
	}
	if rows[0].FDAID != "11111111111" || rows[1].FDAID != "11111111111" {
		t.Error("Expected product 1 rows to carry its FDA id")
	}
	if rows[2].FDAID != "" {
		t.Error("A failed lookup should leave the FDA id empty")
	}
	if rows[3].FDAID != "" {
		t.Error("Items without a product should have no FDA id")
	}
	if store.lookups[1] != 1 {
		t.Errorf("Expected one lookup per product, got %d", store.lookups[1])
	}
}

func TestBuildRowsWithoutShippingAddress(t *testing.T) {
	e := newTestExporter(t, &fakeStore{})
	order := sampleOrder()
	order.ShippingAddress = nil

	rows := e.BuildRows(context.Background(), order)
	if rows[0].ShippingName != "" || rows[0].ShippingCountry != "" {
		t.Errorf("Expected empty shipping fields, got %+v", rows[0])
	}
}

func TestExportOrder(t *testing.T) {
	store := &fakeStore{
		orders: map[int64]*Order{555: sampleOrder()},
		fdaIDs: map[int64]string{1: "11111111111", 2: "22222222222"},
	}
	e := newTestExporter(t, store)

	path, err := e.ExportOrder(context.Background(), 555)
	if err != nil {
		t.Fatalf("ExportOrder failed: %v", err)
	}
	if filepath.Base(path) != "order_1001_20240203_040506.csv" {
		t.Errorf("Unexpected file name %s", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	if strings.Join(records[0], ",") != strings.Join(csvHeader, ",") {
		t.Errorf("Unexpected header %v", records[0])
	}
	if len(records) != 5 {
		t.Fatalf("Expected header and 4 rows, got %d records", len(records))
	}
	if records[3][2] != "Mug" || records[3][12] != "22222222222" {
		t.Errorf("Unexpected mug row %v", records[3])
	}
	if records[1][2] != "Green tea" || records[1][1] != "2" || records[1][3] != "250" {
		t.Errorf("Unexpected first row %v", records[1])
	}
}

func TestExportOrderErrors(t *testing.T) {
	empty := sampleOrder()
	empty.LineItems = nil
	store := &fakeStore{orders: map[int64]*Order{1: empty}}
	e := newTestExporter(t, store)

	if _, err := e.ExportOrder(context.Background(), 1); err == nil {
		t.Error("Expected an error for an order without line items")
	}

	_, err := e.ExportOrder(context.Background(), 2)
	if !errors.Is(err, ErrAPI) {
		t.Errorf("Expected the API error to be wrapped, got %v", err)
	}

	entries, _ := os.ReadDir(e.outputDir)
	if len(entries) != 0 {
		t.Errorf("No file should be written on failure, found %d", len(entries))
	}
}

func TestOrderFileName(t *testing.T) {
	at := time.Date(2025, 12, 31, 23, 59, 58, 0, time.UTC)
	if got := OrderFileName("1001", at); got != "order_1001_20251231_235958.csv" {
		t.Errorf("Unexpected name %s", got)
	}
}
