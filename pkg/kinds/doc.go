/*
Package kinds declares the built-in entity machines: purchase orders, payroll
runs and their items, time entries, leave requests, event registrations, and
support tickets with their comments.

Each kind has its own state enumeration, so a guard written for one machine
cannot compare against another machine's states. RegisterAll adds every
machine to a registry.
*/
package kinds
