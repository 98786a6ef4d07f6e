package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"MarketLedger/internal/core"
	"MarketLedger/internal/observability"
)

// Processor is the single-goroutine loop between NATS and the engine:
// dedup, parse, round-check, apply, ACK. One goroutine keeps driver
// commands in arrival order; the engine's own mutex makes concurrent HTTP
// callers safe alongside it.
type Processor struct {
	engine      *core.Engine
	dedup       *Deduper
	rounds      *RoundTracker
	messageChan <-chan RawMessage
	subjects    map[string]string // subject -> command type
	metrics     *observability.Metrics
	log         zerolog.Logger
}

func NewProcessor(engine *core.Engine, dedup *Deduper, rounds *RoundTracker,
	messageChan <-chan RawMessage, subjects []SubjectConfig,
	metrics *observability.Metrics, log zerolog.Logger) *Processor {

	bySubject := make(map[string]string, len(subjects))
	for _, cfg := range subjects {
		bySubject[cfg.Subject] = cfg.CommandType
	}
	return &Processor{
		engine:      engine,
		dedup:       dedup,
		rounds:      rounds,
		messageChan: messageChan,
		subjects:    bySubject,
		metrics:     metrics,
		log:         log,
	}
}

// Run drains the message channel until the context is cancelled or the
// channel closes.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-p.messageChan:
			if !ok {
				return nil
			}
			p.handle(raw)
		}
	}
}

func (p *Processor) handle(raw RawMessage) {
	commandType, ok := p.subjects[raw.Subject]
	if !ok {
		p.log.Warn().Str("subject", raw.Subject).Msg("message on unmapped subject, acking")
		raw.AckFunc()
		return
	}

	cmd, err := ParseRawMessage(raw, commandType)
	if err != nil {
		// Permanent: redelivery cannot fix a malformed payload.
		p.log.Error().Str("subject", raw.Subject).Err(err).Msg("unparseable message, acking")
		raw.AckFunc()
		return
	}

	var applyErr error
	switch c := cmd.(type) {
	case *EnvSyncCommand:
		applyErr = p.applyEnvSync(raw, c)
	case *PriceBatchCommand:
		applyErr = p.applyPriceBatch(raw, c)
	default:
		applyErr = fmt.Errorf("unhandled command type %T", cmd)
	}

	if applyErr != nil {
		// Transient (dedup DB unreachable): NAK and let JetStream redeliver.
		p.log.Warn().Str("subject", raw.Subject).Err(applyErr).Msg("processing failed, nacking")
		raw.NakFunc()
		return
	}

	if p.metrics != nil {
		p.metrics.IngestToApply.WithLabelValues(raw.Subject).Observe(time.Since(raw.ReceivedAt).Seconds())
	}
	raw.AckFunc()
}

func (p *Processor) applyEnvSync(raw RawMessage, cmd *EnvSyncCommand) error {
	key := cmd.IdempotencyKey
	if key == "" {
		key = fmt.Sprintf("%s:%d", raw.Subject, cmd.Round)
	}

	dup, err := p.dedup.IsDuplicate(CommandEnvSync, key)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}
	if !p.rounds.Observe(raw.Subject, cmd.Round) {
		return nil
	}

	// Driver commands run as the ledger owner; the subjects are not
	// reachable by untrusted producers.
	if err := p.engine.SyncEnvironmentState(p.engine.Owner(), cmd.Round, cmd.MarketIDs, cmd.States); err != nil {
		// Deterministic rejection: retrying the same batch cannot succeed.
		p.log.Error().
			Int64("round", cmd.Round).
			Err(err).
			Msg("environment sync rejected")
	}

	p.dedup.MarkProcessed(CommandEnvSync, key)
	return nil
}

func (p *Processor) applyPriceBatch(raw RawMessage, cmd *PriceBatchCommand) error {
	key := cmd.IdempotencyKey
	if key == "" {
		key = fmt.Sprintf("%s:%d", raw.Subject, cmd.Round)
	}

	dup, err := p.dedup.IsDuplicate(CommandPriceBatch, key)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}
	if !p.rounds.Observe(raw.Subject, cmd.Round) {
		return nil
	}

	if err := p.engine.SetPriceBatch(p.engine.Owner(), cmd.Tokens, cmd.Prices); err != nil {
		p.log.Error().
			Int64("round", cmd.Round).
			Err(err).
			Msg("oracle price batch rejected")
	}

	p.dedup.MarkProcessed(CommandPriceBatch, key)
	return nil
}
