// Package log captures mesh protocol events.
//
// Protocol capture is separate from operational logging (slog): it records
// every access message sent or received by the network manager, bearer
// state changes and protocol errors as machine-readable events.
//
// # Basic Usage
//
//	// Console output through slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// CBOR file
//	fl, _ := log.NewFileLogger("/var/log/mesh/network.mlog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Events
//
//   - Network: encrypted PDUs handed to or received from the bearer (PDUEvent)
//   - Access: decoded access messages with addressing and security material (MessageEvent)
//   - Service: bearer, IV index and proxy filter changes (StateChangeEvent)
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys, using
// the .mlog extension. Reader iterates a file with an optional Filter.
package log
