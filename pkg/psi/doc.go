// Package psi exposes the shared plumbing for the two-party private
// intersection-sum protocol: roles, the transport contract, jobs, typed
// errors, configuration, and input validation.
//
// The protocol itself lives in package ddhpsi. Group and encryption backends
// live in packages group and he and are resolved once per session from a
// Config.
package psi
