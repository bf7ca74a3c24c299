/*
Package turnstile is an entity lifecycle and approval engine.

Business records (purchase orders, payroll runs, leave requests, tickets...)
move through small declared state machines. Every move goes through the same
path: resolve the edge, evaluate its guard, write the new status with a
compare-and-set against the status that was read, then run cascades, fan out
notifications and append an audit record.

# Concept

Kind-specific behavior lives only in the rules of a registered machine:
guards, stamps, cascades and notification derivations. Storage, audit and
notification delivery are ports with in-memory, Redis and SQL adapters. The
storage compare-and-set is the only serialization point; the engine holds no
locks of its own.

# Key Features

  - Declarative machines with typed state enumerations, validated at registration.
  - Structured denial reasons (missing_precondition, wrong_actor_role, ...).
  - Exactly one winner under concurrent requests for the same edge.
  - Idempotent edges that return the existing entity instead of failing.
  - Best-effort, deduplicated, non-blocking notifications.
  - Append-only audit trail.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/turnstile"
		"github.com/aretw0/turnstile/pkg/domain"
	)

	func main() {
		// Built-in machines, in-memory storage.
		eng, err := turnstile.New()
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close()

		ctx := context.Background()
		leave := domain.NewEntity("lr-1", "leave_request", "")
		leave.Payload["employee_id"] = "emp-7"
		if _, err := eng.Create(ctx, leave); err != nil {
			log.Fatal(err)
		}

		res, err := eng.Act(ctx, "leave-requests", "lr-1", "reject", domain.TransitionRequest{
			ActorID:   "mgr-1",
			ActorRole: "manager",
			Payload:   map[string]any{"reason": "insufficient coverage"},
		})
		if err != nil {
			log.Fatal(err) // errors.Is(err, domain.ErrGuardFailed), ...
		}
		log.Println(res.Entity.Status) // rejected
	}
*/
package turnstile
