package events

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/pkg/domain/entities"
)

const (
	RollupCompletedEvent         = "rollup.completed"
	MRPCompletedEvent            = "mrp.completed"
	ReconciliationCompletedEvent = "reconciliation.completed"
	BatchCommittedEvent          = "batch.committed"
	SuggestionConsumedEvent      = "suggestion.consumed"
	InventoryLoadedEvent         = "inventory.loaded"
)

// Stream ids
const (
	RunsStream      = "runs"
	InventoryStream = "inventory"
)

// BatchStream is the stream of one purchase batch
func BatchStream(batchID string) string {
	return "batch-" + batchID
}

type RollupCompleted struct {
	Run        entities.RunMeta `json:"run"`
	ModelRef   string           `json:"model_ref"`
	RevisionID string           `json:"revision_id"`
	Total      decimal.Decimal  `json:"total"`
	Problems   int              `json:"problems"`
}

type MRPCompleted struct {
	Run         entities.RunMeta `json:"run"`
	Components  int              `json:"components"`
	Suggestions int              `json:"suggestions"`
	Problems    int              `json:"problems"`
}

type ReconciliationCompleted struct {
	Run           entities.RunMeta `json:"run"`
	Models        int              `json:"models"`
	Discrepancies int              `json:"discrepancies"`
	Problems      int              `json:"problems"`
}

type BatchCommitted struct {
	Batch entities.PurchaseBatch `json:"batch"`
	// NewVersion is the snapshot version after the commit
	NewVersion entities.SnapshotVersion `json:"new_version"`
}

type SuggestionConsumed struct {
	SuggestionID string                 `json:"suggestion_id"`
	ComponentRef entities.ComponentCode `json:"component_ref"`
	BatchID      string                 `json:"batch_id"`
}

type InventoryLoaded struct {
	Positions  int                      `json:"positions"`
	NewVersion entities.SnapshotVersion `json:"new_version"`
}

// PlanningEventTypes lists every event the planning services publish
var PlanningEventTypes = []string{
	RollupCompletedEvent,
	MRPCompletedEvent,
	ReconciliationCompletedEvent,
	BatchCommittedEvent,
	SuggestionConsumedEvent,
	InventoryLoadedEvent,
}

// NewLogSubscriber returns a handler that writes each planning event to
// the logger
func NewLogSubscriber(logger *zap.Logger) *HandlerFunc {
	return &HandlerFunc{
		Types: PlanningEventTypes,
		Fn: func(e Event) error {
			logger.Info("events: "+e.Type(),
				zap.String("stream", e.StreamID()),
				zap.Int("version", e.Version()),
				zap.Time("timestamp", e.Timestamp()),
				zap.Any("data", e.Data()),
			)
			return nil
		},
	}
}
