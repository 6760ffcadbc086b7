// Package engine provides the core domain types and collaborator interfaces
// shared by the guardrails evaluation engine, its stores, and its transports.
//
// # Core Domain Types
//
//   - Component, ComponentGraph, CodeBlob: evaluation targets
//   - Violation: one policy failing against one target
//   - EvaluationResult: the stored, immutable outcome of an evaluation
//   - RemediationSuggestion: a corrective action for a violation
//   - DriftBaseline, DriftResult: per-resource drift tracking
//   - ComplianceHistoryPoint, Prediction, ComplianceScore: trend inputs and outputs
//
// # Collaborators
//
// The engine does no I/O of its own. It depends on:
//
//   - BlueprintProvider: resolves a blueprint id to a ComponentGraph
//   - ResultStore: evaluation results and compliance history
//   - BaselineStore: drift baselines, one per resource id
//   - AuditSink: remediation audit trail
//
// Implementations live in pkg/stores and pkg/blueprint.
//
// # Errors
//
// Errors are classified with EngineError. Not-found and invalid-request
// conditions are matched with errors.Is against ErrNotFound and
// ErrInvalidRequest, or with the IsNotFound and IsInvalidRequest helpers.
package engine
