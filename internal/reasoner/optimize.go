package reasoner

import (
	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/platform/config"
)

// optimize trims a JobContext per §4.2 step 1: at most maxMessages total,
// keeping the last minRecentMessages non-system messages, and capping
// endpointUsage to maxEndpointUsageEntries. It is lossless with respect to
// schema — it only ever drops entries — and returns ctx unchanged when
// optimization is disabled.
func optimize(ctx domain.JobContext, cfg config.PromptOptimization) domain.JobContext {
	if !cfg.Enabled {
		return ctx
	}
	out := ctx
	out.RecentMessages = trimMessages(ctx.RecentMessages, cfg.MaxMessages, cfg.MinRecentMessages)
	out.EndpointUsage = capEndpointUsage(ctx.EndpointUsage, cfg.MaxEndpointUsageEntries)
	return out
}

// trimMessages keeps at most maxMessages total messages, always preserving
// the last minRecent non-system messages even at the expense of older
// messages (system or otherwise), then backfilling remaining budget with
// the most recent of whatever is left, all returned in original order.
func trimMessages(msgs []domain.Message, maxMessages, minRecent int) []domain.Message {
	if maxMessages <= 0 || len(msgs) <= maxMessages {
		return msgs
	}

	keep := make([]bool, len(msgs))
	kept := 0
	for i := len(msgs) - 1; i >= 0 && kept < minRecent; i-- {
		if msgs[i].Role != "system" {
			keep[i] = true
			kept++
		}
	}

	budget := maxMessages - kept
	for i := len(msgs) - 1; i >= 0 && budget > 0; i-- {
		if keep[i] {
			continue
		}
		keep[i] = true
		budget--
	}

	out := make([]domain.Message, 0, maxMessages)
	for i, m := range msgs {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out
}

// capEndpointUsage keeps the most recent maxEntries usage records.
func capEndpointUsage(usage []domain.EndpointUsage, maxEntries int) []domain.EndpointUsage {
	if maxEntries <= 0 || len(usage) <= maxEntries {
		return usage
	}
	return usage[len(usage)-maxEntries:]
}
