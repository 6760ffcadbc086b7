// Package drift compares a resource's observed state against a captured baseline.
package drift

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/wI2L/jsondiff"

	"github.com/openfroyo/guardrails/pkg/engine"
)

// Options holds the risk grading constants.
type Options struct {
	// CriticalProperties are keys whose change is always critical.
	CriticalProperties []string `mapstructure:"critical_properties"`

	// Percentage thresholds; drift strictly above a threshold reaches that level.
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
	HighThreshold     float64 `mapstructure:"high_threshold"`
	MediumThreshold   float64 `mapstructure:"medium_threshold"`
}

// DefaultOptions returns the default grading constants.
func DefaultOptions() Options {
	return Options{
		CriticalProperties: []string{"security_groups", "iam_roles", "encryption", "public_access"},
		CriticalThreshold:  50,
		HighThreshold:      25,
		MediumThreshold:    10,
	}
}

// RiskLevel grades a drift percentage and the set of changed keys.
func (o Options) RiskLevel(percentage float64, changed []string) engine.RiskLevel {
	if percentage > o.CriticalThreshold {
		return engine.RiskCritical
	}
	for _, key := range changed {
		for _, critical := range o.CriticalProperties {
			if key == critical {
				return engine.RiskCritical
			}
		}
	}
	switch {
	case percentage > o.HighThreshold:
		return engine.RiskHigh
	case percentage > o.MediumThreshold:
		return engine.RiskMedium
	default:
		return engine.RiskLow
	}
}

// Detector tracks baselines in a BaselineStore and reports drift against them.
type Detector struct {
	store  engine.BaselineStore
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// NewDetector creates a drift detector.
func NewDetector(store engine.BaselineStore, logger zerolog.Logger, opts Options) *Detector {
	return &Detector{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "drift-detector").Logger(),
		now:    time.Now,
	}
}

// Detect compares current against the resource's baseline. The first call
// for a resource stores current as the baseline and reports no drift.
func (d *Detector) Detect(ctx context.Context, resourceID string, current map[string]interface{}) (*engine.DriftResult, error) {
	if resourceID == "" {
		return nil, engine.NewValidationError("resource id is required", nil)
	}
	if current == nil {
		current = map[string]interface{}{}
	}

	baseline, loaded, err := d.store.LoadOrStoreBaseline(ctx, engine.DriftBaseline{
		ResourceID: resourceID,
		State:      current,
		CapturedAt: d.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}

	if !loaded {
		d.logger.Info().Str("resource_id", resourceID).Msg("Baseline captured")
		return &engine.DriftResult{
			ResourceID:         resourceID,
			ChangedProperties:  []string{},
			RiskLevel:          engine.RiskLow,
			BaselineCapturedAt: baseline.CapturedAt,
		}, nil
	}

	changed := ChangedKeys(baseline.State, current)
	percentage := Percentage(len(changed), len(baseline.State))

	result := &engine.DriftResult{
		ResourceID:         resourceID,
		HasDrift:           len(changed) > 0,
		DriftPercentage:    percentage,
		ChangedProperties:  changed,
		RiskLevel:          d.opts.RiskLevel(percentage, changed),
		BaselineCapturedAt: baseline.CapturedAt,
	}

	if result.HasDrift {
		patch, err := jsondiff.Compare(baseline.State, current)
		if err != nil {
			d.logger.Warn().Err(err).Str("resource_id", resourceID).Msg("Failed to build drift patch")
		} else {
			result.Changes = patch
		}

		d.logger.Info().
			Str("resource_id", resourceID).
			Float64("drift_percentage", percentage).
			Str("risk_level", string(result.RiskLevel)).
			Strs("changed", changed).
			Msg("Drift detected")
	}

	return result, nil
}

// Rebaseline replaces the resource's baseline with state.
func (d *Detector) Rebaseline(ctx context.Context, resourceID string, state map[string]interface{}) (*engine.DriftBaseline, error) {
	if resourceID == "" {
		return nil, engine.NewValidationError("resource id is required", nil)
	}
	if state == nil {
		state = map[string]interface{}{}
	}

	baseline := engine.DriftBaseline{
		ResourceID: resourceID,
		State:      state,
		CapturedAt: d.now().UTC(),
	}
	if err := d.store.PutBaseline(ctx, baseline); err != nil {
		return nil, fmt.Errorf("failed to replace baseline: %w", err)
	}

	d.logger.Info().Str("resource_id", resourceID).Msg("Baseline replaced")
	return &baseline, nil
}

// ChangedKeys returns the sorted keys, over both maps, whose JSON
// serialization differs. A key present on one side only counts as changed.
func ChangedKeys(baseline, current map[string]interface{}) []string {
	changed := []string{}
	for key, before := range baseline {
		after, ok := current[key]
		if !ok || !sameJSON(before, after) {
			changed = append(changed, key)
		}
	}
	for key := range current {
		if _, ok := baseline[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

// Percentage is 100*changed/baselineKeys capped at 100. With an empty
// baseline any change is 100%.
func Percentage(changed, baselineKeys int) float64 {
	if changed == 0 {
		return 0
	}
	if baselineKeys == 0 {
		return 100
	}
	p := 100 * float64(changed) / float64(baselineKeys)
	if p > 100 {
		return 100
	}
	return p
}

func sameJSON(a, b interface{}) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
	}
	return bytes.Equal(ja, jb)
}
