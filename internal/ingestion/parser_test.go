package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"MarketLedger/internal/ingestion"
	"MarketLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Prometheus metrics register globally, so the test binary shares one set.
var testMetrics = observability.NewMetrics()

func rawFromJSON(t *testing.T, subject string, v interface{}) ingestion.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawMessage{
		Subject:    subject,
		Data:       data,
		ReceivedAt: time.Now(),
		AckFunc:    func() {},
		NakFunc:    func() {},
	}
}

// ==== Environment sync parsing ====

func TestParseEnvSync(t *testing.T) {
	payload := map[string]interface{}{
		"round": int64(7),
		"markets": []map[string]interface{}{
			{
				"market_id":       int64(0),
				"description":     "Will it rain tomorrow?",
				"current_price":   "650000000000000000",
				"total_liquidity": "12000000000000000000",
				"resolved":        false,
				"outcome":         "",
			},
			{
				"market_id":       int64(3),
				"description":     "Election winner",
				"current_price":   "1000000000000000000",
				"total_liquidity": "0",
				"resolved":        true,
				"outcome":         "Yes",
			},
		},
		"idempotency_key": "round-7-batch-1",
	}

	cmd, err := ingestion.ParseRawMessage(rawFromJSON(t, "market.env.sync", payload), ingestion.CommandEnvSync)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sync, ok := cmd.(*ingestion.EnvSyncCommand)
	if !ok {
		t.Fatalf("expected *EnvSyncCommand, got %T", cmd)
	}

	if sync.Round != 7 {
		t.Errorf("round: got %d, want 7", sync.Round)
	}
	if sync.IdempotencyKey != "round-7-batch-1" {
		t.Errorf("idempotency_key: got %q", sync.IdempotencyKey)
	}
	if len(sync.MarketIDs) != 2 || len(sync.States) != 2 {
		t.Fatalf("got %d ids, %d states, want 2/2", len(sync.MarketIDs), len(sync.States))
	}
	if sync.MarketIDs[1] != 3 {
		t.Errorf("market_ids[1]: got %d, want 3", sync.MarketIDs[1])
	}
	if sync.States[0].CurrentPrice.String() != "650000000000000000" {
		t.Errorf("current_price: got %s", sync.States[0].CurrentPrice)
	}
	if !sync.States[1].Resolved || sync.States[1].Outcome != "Yes" {
		t.Errorf("resolved state: got %+v", sync.States[1])
	}
}

func TestParseEnvSync_BadAmountFails(t *testing.T) {
	payload := map[string]interface{}{
		"round": int64(1),
		"markets": []map[string]interface{}{
			{
				"market_id":       int64(0),
				"current_price":   "not-a-number",
				"total_liquidity": "0",
			},
		},
	}

	_, err := ingestion.ParseRawMessage(rawFromJSON(t, "market.env.sync", payload), ingestion.CommandEnvSync)
	if err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
}

func TestParseEnvSync_NegativeAmountFails(t *testing.T) {
	payload := map[string]interface{}{
		"round": int64(1),
		"markets": []map[string]interface{}{
			{
				"market_id":       int64(0),
				"current_price":   "500000000000000000",
				"total_liquidity": "-1",
			},
		},
	}

	_, err := ingestion.ParseRawMessage(rawFromJSON(t, "market.env.sync", payload), ingestion.CommandEnvSync)
	if err == nil {
		t.Fatal("expected error for negative amount")
	}
}

// ==== Oracle price batch parsing ====

func TestParsePriceBatch(t *testing.T) {
	payload := map[string]interface{}{
		"round":  int64(12),
		"tokens": []string{"0x00000000000000000000000000000000000000aa", "0x00000000000000000000000000000000000000bb"},
		"prices": []string{"2000000000000000000", "500000000000000000"},
	}

	cmd, err := ingestion.ParseRawMessage(rawFromJSON(t, "market.oracle.prices", payload), ingestion.CommandPriceBatch)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	batch, ok := cmd.(*ingestion.PriceBatchCommand)
	if !ok {
		t.Fatalf("expected *PriceBatchCommand, got %T", cmd)
	}

	if batch.Round != 12 {
		t.Errorf("round: got %d, want 12", batch.Round)
	}
	if len(batch.Tokens) != 2 || len(batch.Prices) != 2 {
		t.Fatalf("got %d tokens, %d prices, want 2/2", len(batch.Tokens), len(batch.Prices))
	}
	if batch.Prices[1].String() != "500000000000000000" {
		t.Errorf("prices[1]: got %s", batch.Prices[1])
	}
}

func TestParsePriceBatch_LengthMismatchPreserved(t *testing.T) {
	// Unequal arrays parse fine; the engine rejects them so the mismatch
	// shows up in metrics as a rejected op, not a silent parse repair.
	payload := map[string]interface{}{
		"round":  int64(1),
		"tokens": []string{"0x00000000000000000000000000000000000000aa"},
		"prices": []string{"1", "2"},
	}

	cmd, err := ingestion.ParseRawMessage(rawFromJSON(t, "market.oracle.prices", payload), ingestion.CommandPriceBatch)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	batch := cmd.(*ingestion.PriceBatchCommand)
	if len(batch.Tokens) != 1 || len(batch.Prices) != 2 {
		t.Errorf("arrays repaired: %d tokens, %d prices", len(batch.Tokens), len(batch.Prices))
	}
}

func TestParsePriceBatch_BadAddressFails(t *testing.T) {
	payload := map[string]interface{}{
		"round":  int64(1),
		"tokens": []string{"not-an-address"},
		"prices": []string{"1"},
	}

	_, err := ingestion.ParseRawMessage(rawFromJSON(t, "market.oracle.prices", payload), ingestion.CommandPriceBatch)
	if err == nil {
		t.Fatal("expected error for malformed address")
	}
}

func TestParseUnknownCommandType_Fails(t *testing.T) {
	raw := ingestion.RawMessage{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawMessage(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown command type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawMessage{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawMessage(raw, ingestion.CommandEnvSync)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// ==== Dedup ====

type staticChecker struct {
	dup bool
}

func (s staticChecker) IsDuplicate(string) (bool, error) { return s.dup, nil }

func TestDeduper_LRUCatchesRedelivery(t *testing.T) {
	d := ingestion.NewDeduper(8, nil, testMetrics)

	dup, err := d.IsDuplicate(ingestion.CommandEnvSync, "k1")
	if err != nil || dup {
		t.Fatalf("fresh key: dup=%v err=%v", dup, err)
	}
	d.MarkProcessed(ingestion.CommandEnvSync, "k1")

	dup, err = d.IsDuplicate(ingestion.CommandEnvSync, "k1")
	if err != nil {
		t.Fatalf("redelivered key: %v", err)
	}
	if !dup {
		t.Error("redelivered key not caught")
	}
}

func TestDeduper_CommandTypeScopesKeys(t *testing.T) {
	d := ingestion.NewDeduper(8, nil, testMetrics)
	d.MarkProcessed(ingestion.CommandEnvSync, "round-1")

	dup, err := d.IsDuplicate(ingestion.CommandPriceBatch, "round-1")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup {
		t.Error("same key on a different command type treated as duplicate")
	}
}

func TestDeduper_EvictionForgetsOldest(t *testing.T) {
	d := ingestion.NewDeduper(2, nil, testMetrics)
	d.MarkProcessed(ingestion.CommandEnvSync, "a")
	d.MarkProcessed(ingestion.CommandEnvSync, "b")
	d.MarkProcessed(ingestion.CommandEnvSync, "c") // evicts "a"

	dup, _ := d.IsDuplicate(ingestion.CommandEnvSync, "a")
	if dup {
		t.Error("evicted key still reported as duplicate")
	}
	dup, _ = d.IsDuplicate(ingestion.CommandEnvSync, "c")
	if !dup {
		t.Error("recent key lost")
	}
}

func TestDeduper_StoredTierConsulted(t *testing.T) {
	d := ingestion.NewDeduper(8, staticChecker{dup: true}, testMetrics)

	dup, err := d.IsDuplicate(ingestion.CommandEnvSync, "persisted-key")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("durable duplicate not caught")
	}
}

// ==== Round tracking ====

func TestRoundTracker_StaleRoundDropped(t *testing.T) {
	rt := ingestion.NewRoundTracker(testMetrics, zerolog.Nop())

	if !rt.Observe("market.env.sync", 5) {
		t.Fatal("first round rejected")
	}
	if rt.Observe("market.env.sync", 4) {
		t.Error("stale round accepted")
	}
	if !rt.Observe("market.env.sync", 5) {
		t.Error("idempotent re-push of current round rejected")
	}
	if !rt.Observe("market.env.sync", 9) {
		t.Error("gap rejected, gaps should be tolerated")
	}
}

func TestRoundTracker_SubjectsIndependent(t *testing.T) {
	rt := ingestion.NewRoundTracker(testMetrics, zerolog.Nop())

	rt.Resume("market.env.sync", 10)
	if rt.Observe("market.env.sync", 3) {
		t.Error("round below resumed mark accepted")
	}
	if !rt.Observe("market.oracle.prices", 3) {
		t.Error("other subject affected by resumed mark")
	}
}
