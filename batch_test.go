package main

import (
	"context"
	"errors"
	"testing"
)

func TestBatchExporterRun(t *testing.T) {
	second := sampleOrder()
	second.ID, second.Name, second.OrderNumber = 556, "#1002", 1002

	store := &fakeStore{
		orders:  map[int64]*Order{555: sampleOrder(), 556: second},
		numbers: map[string]int64{"1001": 555, "1002": 556, "1003": 999},
	}
	e := newTestExporter(t, store)

	for _, workers := range []int{1, 3} {
		b := NewBatchExporter(store, e, nil)
		b.Workers = workers

		results := b.Run(context.Background(), []string{"#1001", "1004", "1002", "1003"})

		if len(results) != 4 {
			t.Fatalf("Expected one result per number, got %d", len(results))
		}
		wantNumbers := []string{"1001", "1004", "1002", "1003"}
		for i, r := range results {
			if r.Number != wantNumbers[i] {
				t.Errorf("workers=%d: result %d is for %s, want %s", workers, i, r.Number, wantNumbers[i])
			}
		}
		if results[0].Err != nil || results[0].ID != 555 || results[0].Path == "" {
			t.Errorf("workers=%d: expected #1001 to export, got %+v", workers, results[0])
		}
		if !errors.Is(results[1].Err, ErrOrderNotFound) {
			t.Errorf("workers=%d: expected #1004 not found, got %v", workers, results[1].Err)
		}
		if results[2].Err != nil {
			t.Errorf("workers=%d: a failure must not stop later orders, got %v", workers, results[2].Err)
		}
		if results[3].Err == nil || results[3].ID != 999 {
			t.Errorf("workers=%d: expected #1003 to resolve but fail export, got %+v", workers, results[3])
		}
	}
}

func TestBatchExporterCanceled(t *testing.T) {
	store := &fakeStore{numbers: map[string]int64{"1001": 555}}
	b := NewBatchExporter(store, newTestExporter(t, store), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := b.Run(ctx, []string{"1001"})
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", results[0].Err)
	}
}
