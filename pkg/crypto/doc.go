// Package crypto provides the mesh security primitives consumed by the
// network engine: the virtual-address hash of a Label UUID and random key
// generation.
//
// Encryption of network and access PDUs belongs to the lower layers; the
// engine only hands them the selected key material.
package crypto
