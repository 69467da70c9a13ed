// Package gateway is the facade in front of the identity provider: register,
// login, refresh and logout. Service composes the registration orchestrator
// and the token service and counts every operation.
package gateway
