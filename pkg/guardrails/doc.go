// Package guardrails is the evaluation orchestrator.
//
// An Engine owns a policy catalog, a rule evaluator, the result, baseline and
// audit stores, a drift detector and a trend predictor. Evaluate accepts a
// component graph, a raw code blob, or a blueprint id resolved through an
// engine.BlueprintProvider:
//
//	eng, err := guardrails.NewEngine(catalog, logger, guardrails.DefaultOptions())
//	result, err := eng.Evaluate(ctx, guardrails.Request{Graph: graph})
//
// Components are fanned out over a bounded worker pool. Each component writes
// into its own slot, so violations always come back ordered by component and
// then by policy load order, whatever the parallelism.
//
// Scoring deducts severity weights against a cap proportional to the number
// of evaluated policies. A result passes when it has no critical or high
// violations. Remediation suggestions are synthesized from small tables keyed
// by message keywords, severity and policy name.
package guardrails
