package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var csvHeader = []string{
	"order_number",
	"line_item_quantity",
	"line_item_name",
	"line_item_weight",
	"guia_aerea",
	"shipping_name",
	"shipping_address_1",
	"shipping_address_2",
	"shipping_city",
	"shipping_zip",
	"shipping_province",
	"shipping_country",
	"fda_id",
}

// OrderRow is one exported line item.
type OrderRow struct {
	OrderNumber      string
	Quantity         int
	Name             string
	WeightGrams      int
	GuiaAerea        string
	ShippingName     string
	ShippingAddress1 string
	ShippingAddress2 string
	ShippingCity     string
	ShippingZip      string
	ShippingProvince string
	ShippingCountry  string
	FDAID            string
}

func (r OrderRow) Record() []string {
	return []string{
		r.OrderNumber,
		strconv.Itoa(r.Quantity),
		r.Name,
		strconv.Itoa(r.WeightGrams),
		r.GuiaAerea,
		r.ShippingName,
		r.ShippingAddress1,
		r.ShippingAddress2,
		r.ShippingCity,
		r.ShippingZip,
		r.ShippingProvince,
		r.ShippingCountry,
		r.FDAID,
	}
}

// OrderSource is the part of the commerce API the exporter reads.
type OrderSource interface {
	GetOrder(ctx context.Context, id int64) (*Order, error)
	FDAID(ctx context.Context, productID int64) (string, error)
}

type Exporter struct {
	source    OrderSource
	outputDir string
	guia      string
	log       *zap.Logger
	now       func() time.Time
}

func NewExporter(source OrderSource, config *Config, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{
		source:    source,
		outputDir: config.OutputDir,
		guia:      config.DefaultGuia,
		log:       log.Named("export"),
		now:       time.Now,
	}
}

// BuildRows turns every line item into a row. A failed FDA id lookup leaves
// the id empty for that item instead of failing the order.
func (e *Exporter) BuildRows(ctx context.Context, order *Order) []OrderRow {
	var addr Address
	if order.ShippingAddress != nil {
		addr = *order.ShippingAddress
	}
	shippingName := strings.TrimSpace(addr.FirstName + " " + addr.LastName)

	fdaIDs := make(map[int64]string)
	rows := make([]OrderRow, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		fdaID := ""
		if item.ProductID != nil {
			pid := *item.ProductID
			cached, ok := fdaIDs[pid]
			if !ok {
				id, err := e.source.FDAID(ctx, pid)
				if err != nil {
					e.log.Warn("fda id lookup failed", zap.Int64("product_id", pid), zap.Error(err))
					fmt.Printf(T("export_fda_lookup_failed")+"\n", pid, err)
				}
				cached = id
				fdaIDs[pid] = id
			}
			fdaID = cached
		}

		rows = append(rows, OrderRow{
			OrderNumber:      strconv.FormatInt(order.OrderNumber, 10),
			Quantity:         item.Quantity,
			Name:             item.Title,
			WeightGrams:      item.Grams,
			GuiaAerea:        e.guia,
			ShippingName:     shippingName,
			ShippingAddress1: addr.Address1,
			ShippingAddress2: addr.Address2,
			ShippingCity:     addr.City,
			ShippingZip:      addr.Zip,
			ShippingProvince: addr.Province,
			ShippingCountry:  addr.Country,
			FDAID:            fdaID,
		})
	}
	return rows
}

// ExportOrder fetches the order and writes its CSV, returning the file path.
func (e *Exporter) ExportOrder(ctx context.Context, id int64) (string, error) {
	fmt.Printf(T("export_processing")+"\n", id)

	order, err := e.source.GetOrder(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to fetch order %d: %w", id, err)
	}
	if len(order.LineItems) == 0 {
		fmt.Printf(T("export_no_items")+"\n", id)
		return "", fmt.Errorf("order %d has no line items", id)
	}

	rows := e.BuildRows(ctx, order)
	number := strconv.FormatInt(order.OrderNumber, 10)
	if order.OrderNumber == 0 {
		number = strconv.FormatInt(id, 10)
	}

	path, err := WriteOrderCSV(e.outputDir, number, rows, e.now())
	if err != nil {
		return "", err
	}
	fmt.Printf(T("export_written")+"\n", path, len(rows))
	e.log.Info("order exported", zap.Int64("id", id), zap.String("number", number), zap.Int("rows", len(rows)), zap.String("path", path))
	return path, nil
}

func OrderFileName(number string, at time.Time) string {
	return fmt.Sprintf("order_%s_%s.csv", number, at.Format("20060102_150405"))
}

func WriteOrderCSV(dir, number string, rows []OrderRow, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, OrderFileName(number, at))

	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.Record())
	}
	if err := writeCSV(path, csvHeader, records); err != nil {
		return "", err
	}
	return path, nil
}

func writeCSV(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
