/*
Package notify delivers the notification jobs derived from applied transitions.

Delivery is best-effort: failures are captured in a Report, logged and passed
to the OnDispatchFailure hook, but never returned to the transition caller.
Jobs addressed to the same (recipient, source entity, source id) within one
dispatch are deduplicated, first one wins.
*/
package notify
