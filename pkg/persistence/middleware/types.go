package middleware

import "github.com/aretw0/turnstile/pkg/ports"

// Middleware allows wrapping an AuditLog to add behavior.
type Middleware func(ports.AuditLog) ports.AuditLog

// Chain applies middlewares so that the first one is outermost.
func Chain(log ports.AuditLog, mws ...Middleware) ports.AuditLog {
	for i := len(mws) - 1; i >= 0; i-- {
		log = mws[i](log)
	}
	return log
}
