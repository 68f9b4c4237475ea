package ledger

import (
	"context"
	"time"

	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/solana/staking"
)

const (
	transitionEventName     = "StakeLedgerTransition"
	transitionLatencyMetric = "Custom/StakeLedger/TransitionLatency/"
)

var transitionRecorder = recordTransitionEvent

func recordTransitionEvent(ctx context.Context, transition staking.InstructionType, started time.Time, receipt *Receipt, err error) {
	metrics.RecordDuration(ctx, transitionLatencyMetric+transition.String(), time.Since(started))

	kvPairs := map[string]any{
		"transition": transition.String(),
		"success":    err == nil,
	}

	if receipt != nil {
		kvPairs["signer"] = receipt.Signer
		kvPairs["amount"] = receipt.Amount
	}
	if err != nil {
		kvPairs["error"] = err.Error()
	}

	metrics.RecordEvent(ctx, transitionEventName, kvPairs)
}
