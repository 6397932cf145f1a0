package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/core/ports/driving"
	"github.com/custodia-labs/triage/internal/logger"
)

// Ensure Poller implements the interface.
var _ driving.Poller = (*Poller)(nil)

// PollerConfig tunes which messages get drafts.
type PollerConfig struct {
	// MinWords is the reply length a draft must exceed to be saved.
	MinWords int

	// Label is applied to messages that received a draft.
	Label string

	// TodayOnly skips messages not received on the current UTC day.
	TodayOnly bool
}

// Poller runs one triage cycle: sync history, then draft replies to new
// messages one at a time. A failure on one message never stops the cycle.
type Poller struct {
	source    driven.MessageSource
	sink      driven.DraftSink
	processed driven.ProcessedStore
	history   driving.HistoryService
	pipeline  driving.ResponsePipeline
	cfg       PollerConfig
	now       func() time.Time
}

// NewPoller creates a poller. history may be nil to skip the sync step.
func NewPoller(
	source driven.MessageSource,
	sink driven.DraftSink,
	processed driven.ProcessedStore,
	history driving.HistoryService,
	pipeline driving.ResponsePipeline,
	cfg PollerConfig,
) *Poller {
	return &Poller{
		source:    source,
		sink:      sink,
		processed: processed,
		history:   history,
		pipeline:  pipeline,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RunCycle syncs the history ledger and handles every candidate message.
// A sync failure is recorded in the result and the cycle continues; failing
// to list candidates ends the cycle with an error.
func (p *Poller) RunCycle(ctx context.Context) (*domain.CycleResult, error) {
	logger.Section("Triage Cycle")

	result := &domain.CycleResult{StartedAt: p.now()}
	defer func() { result.EndedAt = p.now() }()

	if p.history != nil {
		report, err := p.history.SyncFromWatermark(ctx)
		if err != nil {
			result.SyncError = err.Error()
			logger.Warn("history sync failed, retrying next cycle", "error", err)
		}
		if report != nil {
			result.Synced = report.Inserted
		}
	}

	summaries, err := p.source.ListUnprocessed(ctx)
	if err != nil {
		return result, domain.NewError(domain.ErrSync, "poller.list", err)
	}
	result.Listed = len(summaries)
	logger.Info("checking messages", "candidates", len(summaries))

	for _, s := range summaries {
		if ctx.Err() != nil {
			break
		}
		outcome, err := p.HandleMessage(ctx, s.ID)
		switch outcome {
		case domain.OutcomeDrafted:
			result.Drafted++
		case domain.OutcomeFailed:
			result.Failed++
			logger.Error("message failed", "message_id", s.ID, "error", err)
		default:
			result.Skipped++
		}
		if err != nil && outcome != domain.OutcomeFailed {
			logger.Warn("message handled with errors", "message_id", s.ID, "outcome", outcome, "error", err)
		}
	}

	logger.Info("cycle done", "synced", result.Synced, "drafted", result.Drafted,
		"skipped", result.Skipped, "failed", result.Failed)
	return result, ctx.Err()
}

// HandleMessage runs the pipeline for one message and stores the draft.
// The message is marked processed once a draft is saved or the reply is too
// short to keep; failures leave it unmarked so a later cycle retries it.
func (p *Poller) HandleMessage(ctx context.Context, id string) (domain.MessageOutcome, error) {
	done, err := p.processed.Contains(ctx, id)
	if err != nil {
		return domain.OutcomeFailed, domain.NewError(domain.ErrPersistence, "poller.processed", err)
	}
	if done {
		return domain.OutcomeAlreadyHandled, nil
	}

	msg, err := p.source.Get(ctx, id)
	if err != nil {
		return domain.OutcomeFailed, domain.NewError(domain.ErrSync, "poller.get", err)
	}

	if p.cfg.TodayOnly && !sameUTCDay(msg.ReceivedAt, p.now()) {
		logger.Debug("skipping message not received today", "message_id", id, "received", msg.ReceivedAt)
		return domain.OutcomeNotToday, nil
	}

	sender := SenderAddress(msg.From)
	logger.Info("processing message", "message_id", id, "subject", msg.Subject)

	state, err := p.pipeline.Run(ctx, domain.PipelineInput{
		Subject: msg.Subject,
		Body:    msg.Body,
		Sender:  sender,
	})
	if err != nil {
		return domain.OutcomeFailed, err
	}

	if words := state.FinalDraft.WordCount(); words <= p.cfg.MinWords {
		logger.Warn("reply too short, not drafting", "message_id", id, "words", words)
		return domain.OutcomeTooShort, p.markProcessed(ctx, id)
	}

	reply := msg.Reply(sender, ReplySubject(msg.Subject), state.FinalDraft.Render())
	draftID, err := p.sink.CreateDraft(ctx, reply)
	if err != nil {
		return domain.OutcomeFailed, domain.NewError(domain.ErrPersistence, "poller.create_draft", err)
	}
	logger.Info("draft created", "message_id", id, "draft_id", draftID)

	var errs []error
	if p.cfg.Label != "" {
		if err := p.sink.ApplyLabel(ctx, id, p.cfg.Label); err != nil {
			errs = append(errs, domain.NewError(domain.ErrPersistence, "poller.apply_label", err))
		}
	}
	if err := p.markProcessed(ctx, id); err != nil {
		errs = append(errs, err)
	}
	return domain.OutcomeDrafted, errors.Join(errs...)
}

func (p *Poller) markProcessed(ctx context.Context, id string) error {
	if err := p.processed.Add(ctx, id); err != nil {
		return domain.NewError(domain.ErrPersistence, "poller.mark_processed", err)
	}
	return nil
}

// SenderAddress extracts the bare address from a From header such as
// "Jane Doe <jane@example.com>".
func SenderAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(from[i+1:]), ">"))
	}
	return strings.TrimSpace(from)
}

// ReplySubject prefixes subject with "Re: " unless it already has one.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return fmt.Sprintf("Re: %s", subject)
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
