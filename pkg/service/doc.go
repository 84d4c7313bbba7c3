// Package service provides the NetworkManager, the facade through which
// applications load, create, import and export a mesh network and exchange
// messages with its nodes.
//
// # NetworkManager
//
// NetworkManager owns at most one network and one Transmitter. It resolves
// the source element, destination and security material of every outgoing
// message, takes a sequence number that is persisted before use, and hands
// the PDU to the Transmitter. Incoming PDUs pass replay protection, are
// decoded, update the network for configuration responses and are routed
// to pending requests, the local Configuration Server or registered model
// handlers.
//
// Example usage:
//
//	mgr, err := service.NewNetworkManager(storage, secure, service.DefaultConfig())
//	net, err := mgr.Create("Home", "Phone")
//	mgr.SetTransmitter(bearer)
//	mgr.BearerOpened(proxyAddress)
//
//	status, err := mgr.RequestConfig(ctx, &access.ConfigCompositionDataGet{}, node.PrimaryAddress())
//	if status == nil && err == nil {
//	    // no response within the acknowledgment timeout
//	}
//
// # Errors
//
// Precondition failures are returned synchronously as one of the sentinel
// errors of this package or of package mesh. Acknowledged requests that get
// no response return a nil message and a nil error.
//
// # Snapshots
//
// NetworkUpdates and ProxyFilterUpdates return feeds that replay the latest
// value to new subscribers.
package service
