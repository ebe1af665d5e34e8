// Package domain holds the core types of the pairing and relay model:
// sessions keyed by link code, the two identity slots per session, and the
// per-session pending notification queue. Rules that concern a single
// session (slot assignment, partner resolution, queue drain) live here as
// methods; cross-session orchestration lives in internal/relay.
package domain
