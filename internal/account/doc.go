// Package account builds composite account records from a directory and
// drives enable/disable transitions against it.
//
// Aggregation never fails outright. A failed primary lookup produces a record
// with Exists == false; failed manager and group lookups are logged as
// warnings and kept on Record.Failures in the order they happened. The manager
// degrades to its raw reference and Groups stays nil.
//
// Transitions are idempotent. An account already in the target state is not
// touched. Otherwise the account is mutated once and then re-read. If the
// re-read disagrees, the call fails with ErrVerificationFailed and is not
// retried.
//
// Per-call server and credential overrides travel in Options. SelectCallShape
// maps them to one of four call shapes.
package account
