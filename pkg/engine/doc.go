// Package engine reconciles a declared project against a Semaphore server.
//
// # Overview
//
// A DesiredState names one project and the records it should contain. A
// run proceeds in fixed phases:
//
//  1. Project - resolve the project by id, or find or create it by name
//  2. Prefetch - list keys, repositories, inventories, secrets and
//     environments concurrently
//  3. Write - SSH keys, repositories, inventories, secrets, environments
//     and templates, in that order
//  4. Report - one Outcome per declared record
//
// Each record is found by name and reused, or created. With
// Options.UpdateExisting set, repositories, inventories and template core
// fields are compared with the server and updated through sparse updates.
// Survey variables of existing templates are always reconciled: missing
// names are appended and existing entries are never touched (see
// MergeSurveyVars).
//
// # References
//
// Records refer to each other through Ref. An explicit id is sent as-is.
// A name resolves to a record handled earlier in the same run, then to a
// record already on the server. A reference that does not resolve fails the
// dependent record with a *DependencyMissingError and no request carrying
// the reference is sent. The templates collection is only listed once a
// template's references resolve.
//
// # Failures
//
// A failed record fails only the records that depend on it. An
// authentication failure aborts the run. Every failure is wrapped in a
// *ReconcileError that classifies it as transient, conflict or permanent;
// errors.As reaches the underlying *semaphore.APIError or
// *semaphore.AuthError.
//
// # Other operations
//
// Verify checks the server without writing. Destroy deletes the declared
// records in reverse order. Status reads a whole project. Trigger starts
// template runs.
//
// Runs against the same project must not overlap; the engine holds no lock.
package engine
