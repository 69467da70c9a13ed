// Package registration provisions a new user at the identity provider.
//
// Register runs five stages in order: acquire an admin credential, create the
// user, look up the default realm role, assign it, and log the user in. Each
// stage only starts after the previous one succeeded. A failure is reported as
// *Error naming the stage, with the provider's answer kept in the cause.
//
// The stages form a saga whose pivot is the role assignment. Before the
// pivot the created user can be deleted again (WithCompensation); after it
// the registration stands even if the implicit login fails. A user left
// without a role is saved to a reconciliation.Store (WithPendingStore).
package registration
