package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type StepID string

const (
	StepLogin      StepID = "LOGIN"
	StepNavigation StepID = "NAVIGATION"
	StepSelection  StepID = "STEP_01_SELECTION"
	StepEdit       StepID = "STEP_02_EDIT"
	StepSave       StepID = "STEP_03_SAVE"
	StepCompleted  StepID = "COMPLETED"
)

// StepOutcome is the result of running one step.
type StepOutcome struct {
	Step     StepID
	Success  bool
	Message  string
	Err      error
	Duration time.Duration
}

// Step is one gated unit of the prior notice flow.
type Step struct {
	ID    StepID
	Title string
	Run   func(ctx context.Context) error
}

// RunReport summarizes a controller run. Failed is empty when every step
// succeeded.
type RunReport struct {
	Outcomes []StepOutcome
	Final    StepID
	Failed   StepID
	Err      error
	Elapsed  time.Duration
}

func (r RunReport) Completed() bool {
	return r.Final == StepCompleted
}

// StepController runs steps in order and stops at the first failure.
type StepController struct {
	env   *RunEnv
	log   *zap.Logger
	steps []Step

	// capture is called with the failing step; nil disables screenshots.
	capture func(step StepID, err error)
	pause   func(ctx context.Context, d time.Duration) error
}

func NewStepController(env *RunEnv, steps []Step) *StepController {
	return &StepController{
		env:   env,
		log:   env.Log.Named("controller"),
		steps: steps,
		pause: sleepCtx,
	}
}

func (c *StepController) Run(ctx context.Context) RunReport {
	start := time.Now()
	report := RunReport{}

	ctx, span := tracer().Start(ctx, "prior_notice.run")
	defer span.End()

	for i, step := range c.steps {
		if err := ctx.Err(); err != nil {
			report.Failed, report.Err = step.ID, fmt.Errorf("%w before %s: %v", ErrAborted, step.ID, err)
			break
		}

		fmt.Printf(T("step_header")+"\n", i+1, len(c.steps), step.Title)
		outcome := c.runStep(ctx, step)
		report.Outcomes = append(report.Outcomes, outcome)

		if !outcome.Success {
			report.Failed, report.Err = step.ID, outcome.Err
			fmt.Printf(T("step_failed")+"\n", step.Title, outcome.Message)
			if c.capture != nil && !errors.Is(outcome.Err, context.Canceled) {
				c.capture(step.ID, outcome.Err)
			}
			break
		}

		report.Final = step.ID
		fmt.Printf(T("step_completed")+"\n", step.Title, outcome.Duration.Round(time.Millisecond))

		if i < len(c.steps)-1 {
			if err := c.pause(ctx, c.env.Timeouts.BetweenSteps); err != nil {
				report.Failed, report.Err = c.steps[i+1].ID, fmt.Errorf("%w: %v", ErrAborted, err)
				break
			}
		}
	}

	if report.Failed == "" {
		report.Final = StepCompleted
	} else {
		span.SetStatus(codes.Error, Kind(report.Err))
	}
	report.Elapsed = time.Since(start)
	span.SetAttributes(attribute.String("final_step", string(report.Final)))

	c.log.Info("run finished",
		zap.String("final", string(report.Final)),
		zap.String("failed", string(report.Failed)),
		zap.String("kind", Kind(report.Err)),
		zap.Duration("elapsed", report.Elapsed),
		zap.Error(report.Err))
	return report
}

func (c *StepController) runStep(ctx context.Context, step Step) StepOutcome {
	ctx, span := tracer().Start(ctx, "step."+string(step.ID))
	defer span.End()

	metric := c.env.Perf.StartMetric(string(step.ID))
	err := step.Run(ctx)
	c.env.Perf.FinishMetric(metric, err)

	outcome := StepOutcome{
		Step:     step.ID,
		Success:  err == nil,
		Err:      err,
		Duration: metric.Duration,
		Message:  "ok",
	}
	if err != nil {
		outcome.Message = fmt.Sprintf("%s: %v", Kind(err), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err))
		c.log.Error("step failed", zap.String("step", string(step.ID)), zap.String("kind", Kind(err)), zap.Error(err))
	} else {
		c.log.Info("step succeeded", zap.String("step", string(step.ID)), zap.Duration("duration", outcome.Duration))
	}
	return outcome
}

// PriorNoticeFlow wires the browser pieces into the gated step list.
func PriorNoticeFlow(env *RunEnv, browser *BrowserSession, opts StepOptions) *StepController {
	loc := NewLocator(browser.Page(), env)
	ui := NewInteractor(browser.Page(), env)

	auth := NewAuthenticator(env, browser, loc, ui)
	nav := NewNavigator(env, browser, loc, ui)
	steps := NewPriorNoticeSteps(env, browser, loc, ui, opts)

	c := NewStepController(env, []Step{
		{ID: StepLogin, Title: T("title_login"), Run: auth.Login},
		{ID: StepNavigation, Title: T("title_navigation"), Run: nav.OpenLatestCopy},
		{ID: StepSelection, Title: T("title_selection"), Run: steps.SelectNoFoodCopy},
		{ID: StepEdit, Title: T("title_edit"), Run: steps.EditInformation},
		{ID: StepSave, Title: T("title_save"), Run: steps.FinalSave},
	})
	c.capture = func(step StepID, err error) {
		env.Shots.Error(browser.Capturable(), string(step), err)
	}
	return c
}
