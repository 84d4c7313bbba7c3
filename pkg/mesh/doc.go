// Package mesh models a Bluetooth Mesh network: its key material, nodes,
// provisioners, groups, scenes and exclusion lists.
//
// [Network] is the aggregate root. It owns every other entity and exposes
// them through read-only accessors that return copies of the backing slices;
// all mutation goes through Network (or entity) methods, which enforce the
// cross-entity invariants and update the network timestamp.
//
// # Key Store
//
// Network and application keys are identified by a 12-bit index that is
// unique within the network. New keys receive the index following the
// highest one in use; gaps are never refilled.
//
// # Allocation
//
// Provisioners own disjoint ranges of unicast addresses, group addresses and
// scene numbers. [Network.NextAvailableUnicastAddress],
// [Network.NextAvailableGroup] and [Network.NextAvailableScene] share one
// first-fit sweep over the sorted values already in use.
//
// # Exclusion
//
// Removing a node adds its element addresses to an [ExclusionList] tagged
// with the current IV index. Those addresses stay unavailable while the IV
// index equals the tag or the tag plus one, so the SeqAuth seen by other nodes
// strictly increases if the address is later reused.
//
// The Mesh Configuration Database JSON document is produced by
// [Network.Export] and parsed by [Import].
package mesh
