// Package seqauth allocates outgoing sequence numbers and rejects replayed
// incoming messages.
//
// A SeqAuth value is the IV index concatenated with the 24-bit sequence
// number of the first segment of a message. For each source address the last
// two accepted SeqAuth values are kept, which lets a message that was
// overtaken by a newer one still be accepted once.
package seqauth
