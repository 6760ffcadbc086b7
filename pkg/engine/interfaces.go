package engine

import (
	"context"
)

// BlueprintProvider resolves blueprint ids to component graphs.
type BlueprintProvider interface {
	// GetBlueprint returns the graph for id, or an error matching ErrNotFound.
	GetBlueprint(ctx context.Context, id string) (*ComponentGraph, error)
}

// ResultStore persists evaluation results and compliance history.
type ResultStore interface {
	// SaveEvaluation stores a result keyed by its id.
	SaveEvaluation(ctx context.Context, result *EvaluationResult) error

	// GetEvaluation returns a stored result, or an error matching ErrNotFound.
	GetEvaluation(ctx context.Context, id string) (*EvaluationResult, error)

	// ListEvaluations returns results newest first. An empty blueprintID
	// matches all results; limit <= 0 means no limit.
	ListEvaluations(ctx context.Context, blueprintID string, limit int) ([]*EvaluationResult, error)

	// AppendHistory appends a compliance history point.
	AppendHistory(ctx context.Context, point ComplianceHistoryPoint) error

	// History returns the most recent points for a blueprint, oldest first.
	// Evaluations without a blueprint share the "" series. limit <= 0 means
	// no limit.
	History(ctx context.Context, blueprintID string, limit int) ([]ComplianceHistoryPoint, error)
}

// BaselineStore holds exactly one drift baseline per resource id.
type BaselineStore interface {
	// LoadOrStoreBaseline returns the existing baseline for
	// baseline.ResourceID if there is one (loaded=true); otherwise it stores
	// baseline and returns it (loaded=false). It is atomic per resource id.
	LoadOrStoreBaseline(ctx context.Context, baseline DriftBaseline) (stored DriftBaseline, loaded bool, err error)

	// PutBaseline replaces the baseline for baseline.ResourceID.
	PutBaseline(ctx context.Context, baseline DriftBaseline) error

	// GetBaseline returns the baseline, or an error matching ErrNotFound.
	GetBaseline(ctx context.Context, resourceID string) (*DriftBaseline, error)
}

// AuditSink receives audit records for remediation actions.
type AuditSink interface {
	RecordAudit(ctx context.Context, entry AuditEntry) error
}
