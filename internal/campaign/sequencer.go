package campaign

import (
	"context"
	"log/slog"
	"time"

	"mailmerge/internal/render"
	"mailmerge/internal/types"
)

// defaultInterSendDelay is the fixed pacing delay between send attempts.
// It bounds the outbound rate; total dispatch latency scales linearly with
// row count as a consequence.
const defaultInterSendDelay = 500 * time.Millisecond

// Sender is the narrow send boundary consumed by the sequencer. A non-nil
// error covers both transport failures and payload-level failures reported
// by the remote endpoint; implementations normalize the two.
type Sender interface {
	Send(ctx context.Context, input types.SendInput) error
}

// Sequencer drives batch sends against a campaign: one in-flight send at a
// time, strictly in the given index order, with a fixed delay after every
// attempt. A row's failure never aborts the batch; every requested index is
// processed to completion and there is no retry and no cancellation path.
type Sequencer struct {
	sender Sender
	delay  time.Duration
	sleep  func(time.Duration)
	logger *slog.Logger
}

// SequencerConfig holds the dependencies needed to create a Sequencer.
type SequencerConfig struct {
	Sender Sender
	Delay  time.Duration       // defaults to 500ms
	Sleep  func(time.Duration) // injected for tests; defaults to time.Sleep
	Logger *slog.Logger
}

// NewSequencer creates a Sequencer with the given dependencies.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	delay := cfg.Delay
	if delay <= 0 {
		delay = defaultInterSendDelay
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		sender: cfg.Sender,
		delay:  delay,
		sleep:  sleep,
		logger: logger,
	}
}

// Dispatch processes the given row indices in order against the template,
// recording a terminal per-row status after each attempt and returning the
// end-of-batch tally. Only one dispatch per campaign may be in flight; a
// concurrent trigger fails with conflict_dispatch_active.
//
// The pacing delay runs unconditionally after every attempt, including the
// last one, matching the reference loop.
func (s *Sequencer) Dispatch(ctx context.Context, c *Campaign, indices []int, tmpl types.ActiveTemplate) (types.DispatchSummary, error) {
	if !c.inFlight.TryAcquire(1) {
		return types.DispatchSummary{}, types.NewAppError(
			types.ErrCodeConflictDispatchActive,
			"a dispatch is already in progress",
			nil,
		)
	}
	defer c.inFlight.Release(1)

	var summary types.DispatchSummary
	for _, idx := range indices {
		if err := s.sendRow(ctx, c, idx, tmpl); err != nil {
			c.setStatus(idx, types.SendStatus{State: types.StatusFailed, Message: err.Error()})
			summary.FailedCount++
			s.logger.Warn("send failed", "campaign_id", c.ID, "row", idx, "error", err)
		} else {
			c.setStatus(idx, types.SendStatus{State: types.StatusSent})
			summary.SentCount++
		}
		s.sleep(s.delay)
	}

	c.recordSummary(summary)
	s.logger.Info("dispatch complete",
		"campaign_id", c.ID,
		"sent", summary.SentCount,
		"failed", summary.FailedCount,
	)
	return summary, nil
}

// sendRow renders and transmits the email for a single row index.
func (s *Sequencer) sendRow(ctx context.Context, c *Campaign, idx int, tmpl types.ActiveTemplate) error {
	row := c.Row(idx)
	subject, body := render.RenderTemplate(tmpl, row)
	return s.sender.Send(ctx, types.SendInput{
		To:      row.EmailAddress(),
		Subject: subject,
		Body:    body,
	})
}

// DispatchSelected sends to the current selection set in ascending index
// order. An empty selection is a validation error and performs no sends.
func (s *Sequencer) DispatchSelected(ctx context.Context, c *Campaign, tmpl types.ActiveTemplate) (types.DispatchSummary, error) {
	indices := c.SelectedIndices()
	if len(indices) == 0 {
		return types.DispatchSummary{}, types.NewAppError(
			types.ErrCodeValidationEmptySelection,
			"select at least one row to send",
			nil,
		)
	}
	return s.Dispatch(ctx, c, indices, tmpl)
}

// DispatchAll sends to every loaded row in storage order, regardless of the
// current selection.
func (s *Sequencer) DispatchAll(ctx context.Context, c *Campaign, tmpl types.ActiveTemplate) (types.DispatchSummary, error) {
	n := c.RowCount()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return s.Dispatch(ctx, c, indices, tmpl)
}

// SendTest performs the one-shot test variant: row 0 of the campaign (or an
// empty row when none are loaded) with its address overridden by testAddr.
// It touches no row status and no tally, and takes the same single-dispatch
// guard so a test cannot interleave with a running batch.
func (s *Sequencer) SendTest(ctx context.Context, c *Campaign, tmpl types.ActiveTemplate, testAddr string) error {
	if testAddr == "" {
		return types.NewAppError(
			types.ErrCodeValidationMissingAddress,
			"enter a test email address",
			nil,
		)
	}

	if !c.inFlight.TryAcquire(1) {
		return types.NewAppError(
			types.ErrCodeConflictDispatchActive,
			"a dispatch is already in progress",
			nil,
		)
	}
	defer c.inFlight.Release(1)

	row := c.Row(0)
	if row == nil {
		row = types.Row{}
	}
	row = row.WithEmailAddress(testAddr)

	subject, body := render.RenderTemplate(tmpl, row)
	return s.sender.Send(ctx, types.SendInput{
		To:      testAddr,
		Subject: subject,
		Body:    body,
	})
}
