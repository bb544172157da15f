/*
Package observability turns engine lifecycle hooks into Prometheus metrics and
structured audit logs.

Both are exposed as domain.Hooks values, so callers combine them with
domain.Hooks.Merge and hand the result to the engine.
*/
package observability
