// Package stores provides persistence implementations for the guardrails
// engine: an in-memory store for tests and single-process use, and a SQLite
// store (WAL mode, embedded migrations) for durable evaluation results,
// compliance history, drift baselines and the remediation audit trail.
package stores
