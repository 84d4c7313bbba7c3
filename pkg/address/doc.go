// Package address provides the Bluetooth Mesh addressing model.
//
// Every 16-bit value belongs to at most one address range:
//
//   - 0x0000: unassigned
//   - 0x0001-0x7FFF: unicast (one per element)
//   - 0x8000-0xBFFF: virtual (derived from a 128-bit Label UUID)
//   - 0xC000-0xFEFF: group
//   - 0xFF00-0xFFFB: reserved for future use (invalid)
//   - 0xFFFC-0xFFFF: fixed groups (all-proxies, all-friends, all-relays, all-nodes)
//
// The [MeshAddress] variants are a closed set. Which variants may be used in a
// given role (publication, subscription, heartbeat, group hierarchy) is
// expressed by small capability interfaces such as [PublicationAddress] and
// [SubscriptionAddress]; one variant may satisfy several of them.
//
// [Range] and [RangeSet] implement interval arithmetic over unicast addresses,
// group addresses and scene numbers. A RangeSet is always kept minimal: no two
// of its ranges overlap or touch.
package address
