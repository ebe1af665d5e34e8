// Package relay implements the pairing and notification relay core: link
// code registration, partner resolution, the one-shot notification queue
// with drain-on-poll delivery, the delayed failsafe dispatch, the auxiliary
// payload cache, and the janitor that bounds queue growth.
//
// All session mutation goes through Service, which serializes every
// read-modify-write cycle under one lock. Contention is two watches polling
// every few seconds per session, so a single lock is plenty.
package relay
