/*
Package domain contains the core domain models of the Turnstile lifecycle engine.

It defines what an entity is, which states it may occupy, which transitions between
those states are legal, and the records the engine produces when a transition is
applied. This package is kept pure and free of external dependencies like I/O or
persistence, following Hexagonal Architecture principles.

# Key Entities

  - Entity: A business record with a mutable Status owned by the engine.
  - StateDefinition: The finite set of states of a Kind, its initial and terminal states.
  - TransitionRule: A directed edge between two states, with its guard and side-effect hooks.
  - TransitionRequest: A caller's intent to move an entity to a new state.
  - AuditRecord: The immutable trace of an applied transition.
  - NotificationJob: A best-effort outbound message derived from a transition.
*/
package domain
