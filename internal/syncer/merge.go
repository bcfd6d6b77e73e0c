package syncer

import (
	"sort"

	"github.com/spec-kit/support-chat/internal/domain"
)

// MergeMessages folds fetched messages into the existing log. Both the
// poller and the composer append through this one function; nothing
// mutates the log directly. The result is strictly ascending by
// created_at (id as tiebreak) with duplicates collapsed, the fetched
// copy winning so read-state transitions propagate.
func MergeMessages(existing, fetched []domain.Message) []domain.Message {
	if len(fetched) == 0 {
		return existing
	}

	merged := make([]domain.Message, 0, len(existing)+len(fetched))
	seen := make(map[string]int, len(existing)+len(fetched))

	for _, msg := range existing {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = len(merged)
		merged = append(merged, msg)
	}
	for _, msg := range fetched {
		if idx, dup := seen[msg.ID]; dup {
			merged[idx] = msg
			continue
		}
		seen[msg.ID] = len(merged)
		merged = append(merged, msg)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Before(merged[j])
	})
	return merged
}
