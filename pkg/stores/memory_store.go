package stores

import (
	"context"
	"sync"

	"github.com/openfroyo/guardrails/pkg/engine"
)

// MemoryStore keeps everything in process memory. A single RWMutex guards
// all state; critical sections cover only map and slice operations. Results
// and baselines are copied on the way in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	evaluations map[string]*engine.EvaluationResult
	order       []string
	history     []engine.ComplianceHistoryPoint
	baselines   map[string]engine.DriftBaseline
	audit       []engine.AuditEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evaluations: make(map[string]*engine.EvaluationResult),
		baselines:   make(map[string]engine.DriftBaseline),
	}
}

// SaveEvaluation stores a result keyed by its id.
func (m *MemoryStore) SaveEvaluation(_ context.Context, result *engine.EvaluationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.evaluations[result.ID]; !exists {
		m.order = append(m.order, result.ID)
	}
	m.evaluations[result.ID] = cloneEvaluation(result)
	return nil
}

// GetEvaluation returns a stored result.
func (m *MemoryStore) GetEvaluation(_ context.Context, id string) (*engine.EvaluationResult, error) {
	m.mu.RLock()
	result, ok := m.evaluations[id]
	m.mu.RUnlock()

	if !ok {
		return nil, engine.NewNotFoundError("evaluation", id)
	}
	return cloneEvaluation(result), nil
}

// ListEvaluations returns results newest first.
func (m *MemoryStore) ListEvaluations(_ context.Context, blueprintID string, limit int) ([]*engine.EvaluationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := []*engine.EvaluationResult{}
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.evaluations[m.order[i]]
		if blueprintID != "" && r.BlueprintID != blueprintID {
			continue
		}
		results = append(results, cloneEvaluation(r))
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

// AppendHistory appends a compliance history point.
func (m *MemoryStore) AppendHistory(_ context.Context, point engine.ComplianceHistoryPoint) error {
	m.mu.Lock()
	m.history = append(m.history, point)
	m.mu.Unlock()
	return nil
}

// History returns the most recent points for a blueprint, oldest first.
func (m *MemoryStore) History(_ context.Context, blueprintID string, limit int) ([]engine.ComplianceHistoryPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	points := []engine.ComplianceHistoryPoint{}
	for _, p := range m.history {
		if p.BlueprintID == blueprintID {
			points = append(points, p)
		}
	}
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points, nil
}

// LoadOrStoreBaseline returns the existing baseline or stores the given one.
func (m *MemoryStore) LoadOrStoreBaseline(_ context.Context, baseline engine.DriftBaseline) (engine.DriftBaseline, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.baselines[baseline.ResourceID]; ok {
		return cloneBaseline(existing), true, nil
	}
	m.baselines[baseline.ResourceID] = cloneBaseline(baseline)
	return cloneBaseline(baseline), false, nil
}

// PutBaseline replaces the baseline for a resource.
func (m *MemoryStore) PutBaseline(_ context.Context, baseline engine.DriftBaseline) error {
	m.mu.Lock()
	m.baselines[baseline.ResourceID] = cloneBaseline(baseline)
	m.mu.Unlock()
	return nil
}

// GetBaseline returns the baseline for a resource.
func (m *MemoryStore) GetBaseline(_ context.Context, resourceID string) (*engine.DriftBaseline, error) {
	m.mu.RLock()
	baseline, ok := m.baselines[resourceID]
	m.mu.RUnlock()

	if !ok {
		return nil, engine.NewNotFoundError("baseline", resourceID)
	}
	baseline = cloneBaseline(baseline)
	return &baseline, nil
}

// RecordAudit appends an audit entry.
func (m *MemoryStore) RecordAudit(_ context.Context, entry engine.AuditEntry) error {
	m.mu.Lock()
	m.audit = append(m.audit, entry)
	m.mu.Unlock()
	return nil
}

// ListAudit returns audit entries oldest first.
func (m *MemoryStore) ListAudit(_ context.Context, evaluationID string, limit int) ([]engine.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := []engine.AuditEntry{}
	for _, e := range m.audit {
		if evaluationID != "" && e.EvaluationID != evaluationID {
			continue
		}
		entries = append(entries, e)
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

// HealthCheck always succeeds.
func (m *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
