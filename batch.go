package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OrderResolver maps short order numbers to internal ids.
type OrderResolver interface {
	FindOrderIDByNumber(ctx context.Context, number string) (int64, error)
}

// BatchResult is the outcome for one requested order number.
type BatchResult struct {
	Number string
	ID     int64
	Path   string
	Err    error
}

// BatchExporter resolves and exports a list of order numbers. One failing
// order never stops the others.
type BatchExporter struct {
	resolver OrderResolver
	exporter *Exporter
	log      *zap.Logger

	// Workers bounds concurrent orders. Shopify allows two requests per
	// second on standard plans, so the default is one.
	Workers int
}

func NewBatchExporter(resolver OrderResolver, exporter *Exporter, log *zap.Logger) *BatchExporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchExporter{
		resolver: resolver,
		exporter: exporter,
		log:      log.Named("batch"),
		Workers:  1,
	}
}

// Run returns one result per input number, in input order.
func (b *BatchExporter) Run(ctx context.Context, numbers []string) []BatchResult {
	fmt.Printf(T("batch_start")+"\n", len(numbers))

	results := make([]BatchResult, len(numbers))
	var g errgroup.Group
	if b.Workers > 0 {
		g.SetLimit(b.Workers)
	}

	for i, n := range numbers {
		i, n := i, strings.TrimSpace(strings.ReplaceAll(n, "#", ""))
		g.Go(func() error {
			results[i] = b.exportOne(ctx, n)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	fmt.Printf(T("batch_done")+"\n", ok, len(numbers))
	b.log.Info("batch finished", zap.Int("requested", len(numbers)), zap.Int("exported", ok))
	return results
}

func (b *BatchExporter) exportOne(ctx context.Context, number string) BatchResult {
	res := BatchResult{Number: number}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	id, err := b.resolver.FindOrderIDByNumber(ctx, number)
	if err != nil {
		fmt.Printf(T("batch_not_found")+"\n", number, Kind(err))
		b.log.Warn("order not resolved", zap.String("number", number), zap.Error(err))
		res.Err = err
		return res
	}
	res.ID = id
	fmt.Printf(T("batch_resolved")+"\n", number, id)

	res.Path, res.Err = b.exporter.ExportOrder(ctx, id)
	if res.Err != nil {
		b.log.Warn("order export failed", zap.String("number", number), zap.Int64("id", id), zap.Error(res.Err))
	}
	return res
}
