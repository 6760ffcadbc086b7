// Package policy defines guardrail policies and the pieces that evaluate them.
//
// A policy is a single declarative rule: one condition path, one operator, one
// expected value, and an optional scope of component types. There is no policy
// language; rules cannot express anything beyond that shape.
//
// # Components
//
//  1. Catalog - the validated, immutable policy set built once at startup
//  2. Guard - the regular expression safety check (IsSafe, CompilePattern)
//  3. Evaluator - applies one operator to one resolved value
//  4. Loader - reads JSON or YAML definition files and bundles
//  5. Built-in policies - the default definition table
//
// # Loading
//
//	defs := policy.GetBuiltinPolicies()
//	extra, err := policy.NewLoader(logger).LoadFromPaths(ctx, []string{"/etc/guardrails/policies"})
//	if err != nil {
//	    return err
//	}
//	catalog, err := policy.LoadCatalog(logger, append(defs, extra...))
//	if err != nil {
//	    return err // duplicate id
//	}
//
// Definitions that fail validation or carry an unsafe pattern are skipped and
// reported by Catalog.Rejected. A duplicate id aborts loading with
// ErrDuplicatePolicy.
//
// # Pattern safety
//
// Every matches rule passes IsSafe before it is admitted and again before each
// compilation. IsSafe is a heuristic denylist: a length cap plus a handful of
// shapes known to backtrack badly (nested quantifiers, stacked quantifiers,
// quantified alternation with overlapping branches). Compiled patterns run on
// Go's regexp package, which is RE2 based and matches in linear time, so the
// denylist is a second line rather than the only one.
//
// # Value resolution
//
// Resolve walks a dot path through a properties map. A leading "properties."
// segment is optional. Missing keys resolve to Missing, which equals nothing.
// As a result notEquals against a missing property always holds, which is how
// "must be set to X" rules flag absent settings.
package policy
