/*
Package observability provides monitoring for the Turnstile engine.

Everything here plugs in through domain.LifecycleHooks: Prometheus metrics
for transitions, rejections, conflicts and failures, and structured log
lines for the same events. Hooks compose with LifecycleHooks.Merge.
*/
package observability
