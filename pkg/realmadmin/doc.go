// Package realmadmin wraps the parts of the realm admin REST API the gateway
// uses: user creation, lookup and deletion, realm role lookup and realm role
// assignment.
//
// Every call takes an administrative bearer token obtained by package
// admincred. Non-2xx answers become PROVIDER_REJECTED errors carrying the
// provider status and raw body.
package realmadmin
