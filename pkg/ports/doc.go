/*
Package ports defines the driven ports (interfaces) for the Turnstile engine.

These interfaces decouple the lifecycle core from external implementations, allowing
the engine to work with various storage backends and notification providers.

# Key Interfaces

  - EntityStore: Loads entities and applies conditional (compare-and-set) status writes.
  - AuditLog: Append-only storage of AuditRecords, readable by audit-trail views.
  - Inbox: Storage of in-app notification rows, de-duplicated per recipient.
  - Sender: A channel provider (in-app, email, SMS, push) delivering NotificationJobs.
*/
package ports
