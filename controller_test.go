package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type stepRecorder struct {
	ran []StepID
}

func (r *stepRecorder) step(id StepID, err error) Step {
	return Step{
		ID:    id,
		Title: string(id),
		Run: func(ctx context.Context) error {
			r.ran = append(r.ran, id)
			return err
		},
	}
}

func TestStepControllerCompletes(t *testing.T) {
	env := newTestEnv(t)
	rec := &stepRecorder{}
	pauses := 0

	c := NewStepController(env, []Step{
		rec.step(StepLogin, nil),
		rec.step(StepNavigation, nil),
		rec.step(StepSelection, nil),
		rec.step(StepEdit, nil),
		rec.step(StepSave, nil),
	})
	c.pause = func(ctx context.Context, d time.Duration) error {
		pauses++
		return nil
	}

	report := c.Run(context.Background())

	if !report.Completed() || report.Final != StepCompleted {
		t.Fatalf("Expected COMPLETED, got %s (failed %s: %v)", report.Final, report.Failed, report.Err)
	}
	if len(rec.ran) != 5 || len(report.Outcomes) != 5 {
		t.Errorf("Expected 5 steps to run, got %v", rec.ran)
	}
	if pauses != 4 {
		t.Errorf("Expected a pause only between steps (4), got %d", pauses)
	}
	for _, o := range report.Outcomes {
		if !o.Success || o.Message != "ok" {
			t.Errorf("Unexpected outcome %+v", o)
		}
	}
}

func TestStepControllerStopsAtFirstFailure(t *testing.T) {
	env := newTestEnv(t)
	rec := &stepRecorder{}
	failure := fmt.Errorf("no food option: %w", ErrElementNotFound)

	var captured []StepID
	c := NewStepController(env, []Step{
		rec.step(StepLogin, nil),
		rec.step(StepNavigation, nil),
		rec.step(StepSelection, failure),
		rec.step(StepEdit, nil),
		rec.step(StepSave, nil),
	})
	c.capture = func(step StepID, err error) { captured = append(captured, step) }

	report := c.Run(context.Background())

	if report.Completed() {
		t.Fatal("Run should not complete")
	}
	if report.Failed != StepSelection {
		t.Errorf("Expected failure at %s, got %s", StepSelection, report.Failed)
	}
	if report.Final != StepNavigation {
		t.Errorf("Expected last success %s, got %s", StepNavigation, report.Final)
	}
	if !errors.Is(report.Err, ErrElementNotFound) {
		t.Errorf("Expected element_not_found, got %v", report.Err)
	}
	for _, id := range rec.ran {
		if id == StepEdit || id == StepSave {
			t.Errorf("%s must not run after a failed selection", id)
		}
	}
	if len(captured) != 1 || captured[0] != StepSelection {
		t.Errorf("Expected one error screenshot for %s, got %v", StepSelection, captured)
	}

	last := report.Outcomes[len(report.Outcomes)-1]
	if last.Success || last.Message != "element_not_found: no food option: element not found" {
		t.Errorf("Unexpected failure outcome %+v", last)
	}
}

func TestStepControllerEditFailureSkipsFinalSave(t *testing.T) {
	env := newTestEnv(t)
	rec := &stepRecorder{}
	failure := fmt.Errorf("save and continue: %w", ErrElementNotFound)

	report := NewStepController(env, []Step{
		rec.step(StepLogin, nil),
		rec.step(StepNavigation, nil),
		rec.step(StepSelection, nil),
		rec.step(StepEdit, failure),
		rec.step(StepSave, nil),
	}).Run(context.Background())

	if report.Completed() {
		t.Fatal("Run should not complete")
	}
	if report.Failed != StepEdit || report.Final != StepSelection {
		t.Errorf("Expected failure at %s after %s, got %s after %s", StepEdit, StepSelection, report.Failed, report.Final)
	}
	want := []StepID{StepLogin, StepNavigation, StepSelection, StepEdit}
	if len(rec.ran) != len(want) {
		t.Fatalf("Expected steps %v, got %v", want, rec.ran)
	}
	for i, id := range want {
		if rec.ran[i] != id {
			t.Errorf("Expected step %d to be %s, got %s", i, id, rec.ran[i])
		}
	}
	if len(report.Outcomes) != 4 {
		t.Errorf("Expected 4 outcomes, got %d", len(report.Outcomes))
	}
}

func TestStepControllerCanceledBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	rec := &stepRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := NewStepController(env, []Step{rec.step(StepLogin, nil)}).Run(ctx)

	if len(rec.ran) != 0 {
		t.Errorf("No step should run on a canceled context, ran %v", rec.ran)
	}
	if report.Failed != StepLogin || !errors.Is(report.Err, ErrAborted) {
		t.Errorf("Expected aborted at LOGIN, got %s (%v)", report.Failed, report.Err)
	}
}

func TestStepControllerCanceledDuringPause(t *testing.T) {
	env := newTestEnv(t)
	rec := &stepRecorder{}
	ctx, cancel := context.WithCancel(context.Background())

	c := NewStepController(env, []Step{
		rec.step(StepLogin, nil),
		rec.step(StepNavigation, nil),
	})
	c.pause = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	report := c.Run(ctx)

	if len(rec.ran) != 1 {
		t.Errorf("Expected only LOGIN to run, got %v", rec.ran)
	}
	if report.Failed != StepNavigation || Kind(report.Err) != "aborted" {
		t.Errorf("Expected aborted before NAVIGATION, got %s (%v)", report.Failed, report.Err)
	}
}

func TestStepControllerNoScreenshotOnCancel(t *testing.T) {
	env := newTestEnv(t)
	captured := 0

	c := NewStepController(env, []Step{{
		ID:  StepEdit,
		Run: func(ctx context.Context) error { return fmt.Errorf("prompt: %w", context.Canceled) },
	}})
	c.capture = func(StepID, error) { captured++ }

	report := c.Run(context.Background())
	if report.Failed != StepEdit {
		t.Errorf("Expected failure at %s, got %s", StepEdit, report.Failed)
	}
	if captured != 0 {
		t.Errorf("Expected no screenshot for a canceled step, got %d", captured)
	}
}

func TestStepControllerRecordsMetrics(t *testing.T) {
	env := newTestEnv(t)
	rec := &stepRecorder{}

	NewStepController(env, []Step{
		rec.step(StepLogin, nil),
		rec.step(StepNavigation, errors.New("boom")),
	}).Run(context.Background())

	summary := env.Perf.Summary()
	if summary.Operations != 2 || summary.Failures != 1 {
		t.Errorf("Expected 2 operations and 1 failure, got %+v", summary)
	}
}
