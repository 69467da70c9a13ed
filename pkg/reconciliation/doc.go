// Package reconciliation tracks provider users that were created during
// registration but never received their realm role, and repairs them.
//
// The registration orchestrator saves a PendingUser whenever it leaves a user
// without a role. A Reconciler pass, run from cmd/reconcile, assigns the role
// and deletes the record. Three stores are available:
//
//   - InMemoryStore: the default, lost on restart
//   - PostgresStore: table gateway_pending_users, created by EnsureSchema
//   - RedisStore: one JSON value per record plus a set of ids
package reconciliation
