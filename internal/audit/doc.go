// Package audit records operator actions (device connect, command re-send,
// device delete, broker configuration change) in the audit_logs table and
// lists them newest first.
package audit
