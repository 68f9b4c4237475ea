package audit

import (
	"context"

	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/stake/data/account"
)

const (
	auditEventName      = "StakeConservationAudit"
	positionCountMetric = "Custom/StakeAudit/PositionCount"
)

func recordAuditEvent(ctx context.Context, summary *account.StakeSummary, err error) {
	kvPairs := map[string]any{
		"success": err == nil,
	}

	if err != nil {
		kvPairs["error"] = err.Error()
	}

	if summary != nil {
		kvPairs["conserved"] = summary.IsConserved()
		kvPairs["vault_balance"] = summary.VaultBalance
		kvPairs["total_staked"] = summary.TotalStaked
		kvPairs["position_sum"] = summary.PositionSum
		kvPairs["position_count"] = summary.PositionCount

		metrics.RecordCount(ctx, positionCountMetric, summary.PositionCount)
	}

	metrics.RecordEvent(ctx, auditEventName, kvPairs)
}
