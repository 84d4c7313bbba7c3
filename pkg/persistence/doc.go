// Package persistence stores mesh network documents and the secure
// properties that must survive restarts: the IV index, per-element sequence
// numbers, per-source SeqAuth history and the local provisioner UUID.
//
// NetworkStorage persists the network document as opaque bytes.
// SecureStorage persists the security-critical counters; its writes must be
// durable before the value they record is used.
package persistence
