package tools

import (
	"context"
	"log/slog"
	"time"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// CalibratorArgs is the input of calibrator.
type CalibratorArgs struct {
	Action     string         `json:"action" jsonschema:"description=Action to perform (click or test),enum=click,enum=test"`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"description=Additional parameters for the action"`
}

// CalibratorResult always reports success or failure in-band.
type CalibratorResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// CalibratorOption configures the calibrator tool.
type CalibratorOption func(*calibrator)

type calibrator struct {
	log        *slog.Logger
	now        func() time.Time
	clickDelay time.Duration
	testDelay  time.Duration
}

// WithCalibratorLogger sets the logger used for action tracing.
func WithCalibratorLogger(l *slog.Logger) CalibratorOption {
	return func(c *calibrator) { c.log = l }
}

// WithCalibratorClock overrides the timestamp source.
func WithCalibratorClock(now func() time.Time) CalibratorOption {
	return func(c *calibrator) { c.now = now }
}

// WithCalibratorDelays overrides the simulated processing times.
func WithCalibratorDelays(click, test time.Duration) CalibratorOption {
	return func(c *calibrator) { c.clickDelay, c.testDelay = click, test }
}

// NewCalibrator returns the calibrator tool. It never fails: problems,
// including cancellation during the simulated delay, are reported with
// success=false.
func NewCalibrator(opts ...CalibratorOption) Definition {
	c := &calibrator{
		log:        slog.New(slog.DiscardHandler),
		now:        time.Now,
		clickDelay: 100 * time.Millisecond,
		testDelay:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return New("calibrator", "Tool for calibrator actions", c.run)
}

func (c *calibrator) timestamp() string {
	return c.now().UTC().Format(isoMillis)
}

func (c *calibrator) run(ctx context.Context, in CalibratorArgs) (CalibratorResult, error) {
	ts := c.timestamp()
	c.log.InfoContext(ctx, "calibrator.action.start", slog.String("action", in.Action), slog.Any("parameters", in.Parameters))

	var (
		delay time.Duration
		msg   string
	)
	switch in.Action {
	case "click":
		delay, msg = c.clickDelay, "Calibrator clicked successfully"
	case "test":
		delay, msg = c.testDelay, "Calibrator test completed successfully"
	default:
		c.log.ErrorContext(ctx, "calibrator.action.unknown", slog.String("action", in.Action))
		return CalibratorResult{Success: false, Message: "Unknown calibrator action: " + in.Action, Timestamp: c.timestamp()}, nil
	}

	if err := sleep(ctx, delay); err != nil {
		c.log.ErrorContext(ctx, "calibrator.action.fail", slog.String("action", in.Action), slog.String("err", err.Error()))
		return CalibratorResult{Success: false, Message: err.Error(), Timestamp: c.timestamp()}, nil
	}

	c.log.InfoContext(ctx, "calibrator.action.ok", slog.String("action", in.Action))
	return CalibratorResult{Success: true, Message: msg, Timestamp: ts}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
