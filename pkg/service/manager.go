package service

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/crypto"
	"github.com/blemesh/mesh-go/pkg/log"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/blemesh/mesh-go/pkg/persistence"
	"github.com/blemesh/mesh-go/pkg/proxy"
	"github.com/blemesh/mesh-go/pkg/seqauth"
	"github.com/google/uuid"
)

// Address ranges given to the provisioner of a new network.
var (
	DefaultUnicastRange = address.MustRange(0x0001, 0x199A)
	DefaultGroupRange   = address.MustRange(0xC000, 0xCC9A)
	DefaultSceneRange   = address.MustRange(0x0001, 0x3333)
)

// NetworkManager manages one mesh network. Graph mutations performed
// through the manager are serialized; callers that change the network
// directly must not do so concurrently with manager calls and should call
// Save afterwards.
type NetworkManager struct {
	mu sync.Mutex

	config Config
	logger *slog.Logger
	plog   log.Logger
	crypto crypto.Crypto

	storage persistence.NetworkStorage
	secure  persistence.SecureStorage

	network     *mesh.Network
	sequence    *seqauth.SequenceCounter
	replay      *seqauth.ReplayProtection
	transmitter Transmitter
	handlers    map[handlerKey]ModelHandler

	saveMu sync.Mutex

	filter      *proxy.Filter
	pending     *pendingTable
	networkFeed *Feed[*mesh.Network]
	filterFeed  *Feed[proxy.State]

	// timeNow returns the current time. Replaced in tests.
	timeNow func() time.Time
}

// NewNetworkManager creates a manager persisting the network to storage and
// its security state to secure.
func NewNetworkManager(storage persistence.NetworkStorage, secure persistence.SecureStorage, config Config) (*NetworkManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Crypto == nil {
		config.Crypto = crypto.New()
	}
	m := &NetworkManager{
		config:      config,
		logger:      config.Logger,
		plog:        log.OrNoop(config.ProtocolLogger),
		crypto:      config.Crypto,
		storage:     storage,
		secure:      secure,
		handlers:    make(map[handlerKey]ModelHandler),
		pending:     newPendingTable(),
		networkFeed: NewFeed[*mesh.Network](),
		filterFeed:  NewFeed[proxy.State](),
		timeNow:     time.Now,
	}
	m.filter = proxy.NewFilter(m.onFilterChange)
	return m, nil
}

// Network returns the current network, or nil.
func (m *NetworkManager) Network() *mesh.Network {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.network
}

// ProxyFilter returns the proxy filter of the current bearer.
func (m *NetworkManager) ProxyFilter() *proxy.Filter {
	return m.filter
}

// NetworkUpdates returns a feed of the network, published after every
// save.
func (m *NetworkManager) NetworkUpdates() *Feed[*mesh.Network] {
	return m.networkFeed
}

// ProxyFilterUpdates returns a feed of proxy filter states.
func (m *NetworkManager) ProxyFilterUpdates() *Feed[proxy.State] {
	return m.filterFeed
}

// Load restores the network from storage. It returns false if no network
// was stored.
func (m *NetworkManager) Load() (bool, error) {
	data, err := m.storage.Load()
	if err != nil {
		return false, fmt.Errorf("load network: %w", err)
	}
	if data == nil {
		return false, nil
	}
	net, err := mesh.Import(data, m.crypto)
	if err != nil {
		return false, err
	}

	id, ok, err := m.secure.LocalProvisioner(net.UUID())
	if err != nil {
		return false, fmt.Errorf("load local provisioner: %w", err)
	}
	if ok {
		if p := net.Provisioner(id); p != nil {
			if err := net.SetLocalProvisioner(p); err != nil {
				return false, err
			}
		}
	}

	m.mu.Lock()
	err = m.setNetwork(net)
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	m.networkFeed.Publish(net)
	return true, nil
}

// Create replaces the current network with a new one. The network gets a
// random primary network key and a local provisioner with a node at the
// first unicast address.
func (m *NetworkManager) Create(name, provisionerName string) (*mesh.Network, error) {
	net := mesh.New(name)

	key, err := m.crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate network key: %w", err)
	}
	if _, err := net.AddNetworkKey("Primary Network Key", key); err != nil {
		return nil, err
	}

	p := mesh.NewProvisioner(uuid.New(), provisionerName,
		address.NewRangeSet(DefaultUnicastRange),
		address.NewRangeSet(DefaultGroupRange),
		address.NewRangeSet(DefaultSceneRange))
	if err := net.AddProvisionerWithAddress(p, address.Address(DefaultUnicastRange.Low)); err != nil {
		return nil, err
	}

	if err := m.replaceNetwork(net); err != nil {
		return nil, err
	}
	return net, nil
}

// Import replaces the current network with the one in a Mesh
// Configuration Database document.
func (m *NetworkManager) Import(data []byte) (*mesh.Network, error) {
	net, err := mesh.Import(data, m.crypto)
	if err != nil {
		return nil, err
	}
	if err := m.replaceNetwork(net); err != nil {
		return nil, err
	}
	return net, nil
}

func (m *NetworkManager) replaceNetwork(net *mesh.Network) error {
	m.mu.Lock()
	err := m.setNetwork(net)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.Save()
}

// setNetwork installs net and its security state. m.mu must be held.
func (m *NetworkManager) setNetwork(net *mesh.Network) error {
	iv, ok, err := m.secure.IvIndex(net.UUID())
	if err != nil {
		return fmt.Errorf("load IV index: %w", err)
	}
	if ok {
		net.SetIvIndex(iv)
	}
	replay, err := seqauth.NewReplayProtection(net.UUID(), m.secure, m.config.ReplayCacheSize)
	if err != nil {
		return err
	}

	m.pending.closeAll()
	m.network = net
	m.sequence = seqauth.NewSequenceCounter(net.UUID(), m.secure)
	m.replay = replay
	m.handlers = make(map[handlerKey]ModelHandler)

	m.debugLog("network installed", "uuid", net.UUID(), "name", net.Name(), "ivIndex", net.IvIndex().Index)
	m.logState(net.UUID().String(), log.StateEntityNetwork, "", net.Name(), "")
	return nil
}

// Save writes the network to storage and publishes it to NetworkUpdates.
func (m *NetworkManager) Save() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	net := m.network
	if net == nil {
		m.mu.Unlock()
		return ErrNoNetwork
	}
	data, err := net.Export(mesh.ExportConfig{})
	var local uuid.UUID
	if p := net.LocalProvisioner(); p != nil {
		local = p.UUID()
	}
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("export network: %w", err)
	}

	if err := m.storage.Save(net.UUID(), data); err != nil {
		return fmt.Errorf("save network: %w", err)
	}
	if local != uuid.Nil {
		if err := m.secure.SetLocalProvisioner(net.UUID(), local); err != nil {
			return fmt.Errorf("save local provisioner: %w", err)
		}
	}
	m.networkFeed.Publish(net)
	return nil
}

// Export returns the network as a Mesh Configuration Database document.
func (m *NetworkManager) Export(cfg mesh.ExportConfig) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.network == nil {
		return nil, ErrNoNetwork
	}
	return m.network.Export(cfg)
}

// RemoveNode removes the node from the network, forgets the SeqAuth
// history of its addresses and saves the network. The addresses stay
// excluded until the IV index has advanced twice. The local node cannot be
// removed.
func (m *NetworkManager) RemoveNode(id uuid.UUID) (*mesh.Node, error) {
	m.mu.Lock()
	net := m.network
	if net == nil {
		m.mu.Unlock()
		return nil, ErrNoNetwork
	}
	if local := net.LocalNode(); local != nil && local.UUID() == id {
		m.mu.Unlock()
		return nil, mesh.ErrCannotRemove
	}
	node, err := m.removeNode(net, id)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return node, m.Save()
}

// removeNode removes a node and its replay history. m.mu must be held.
func (m *NetworkManager) removeNode(net *mesh.Network, id uuid.UUID) (*mesh.Node, error) {
	node, err := net.RemoveNode(id)
	if err != nil {
		return nil, err
	}
	if err := m.replay.RemoveNode(node); err != nil {
		return node, err
	}
	m.debugLog("node removed", "node", id, "address", node.PrimaryAddress())
	return node, nil
}

// SetTransmitter sets the bearer used for outgoing PDUs. Nil detaches it.
func (m *NetworkManager) SetTransmitter(t Transmitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transmitter = t
}

// BearerOpened records that a proxy connection to the node with the given
// unicast address is open. The proxy filter starts empty.
func (m *NetworkManager) BearerOpened(proxyAddress address.Address) {
	m.mu.Lock()
	var node *mesh.Node
	if m.network != nil {
		node = m.network.NodeWithAddress(proxyAddress)
	}
	m.mu.Unlock()

	m.filter.Connected(node)
	m.debugLog("bearer opened", "proxy", proxyAddress)
	m.logState(m.currentNetworkID(), log.StateEntityBearer, "CLOSED", "OPEN", proxyAddress.String())
}

// BearerClosed records that the bearer closed. Requests waiting for a
// response return without one.
func (m *NetworkManager) BearerClosed() {
	m.filter.Disconnected()
	m.pending.closeAll()
	m.debugLog("bearer closed")
	m.logState(m.currentNetworkID(), log.StateEntityBearer, "OPEN", "CLOSED", "")
}

// SetIvIndex stores a new IV index. When the index increments, the
// sequence numbers of the local node restart at 0 and stale exclusion
// lists are dropped.
func (m *NetworkManager) SetIvIndex(iv mesh.IvIndex) error {
	m.mu.Lock()
	net := m.network
	if net == nil {
		m.mu.Unlock()
		return ErrNoNetwork
	}
	old := net.IvIndex()
	if iv.Index < old.Index {
		m.mu.Unlock()
		return fmt.Errorf("IV index %d is lower than current %d", iv.Index, old.Index)
	}
	if err := m.secure.SetIvIndex(net.UUID(), iv); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("store IV index: %w", err)
	}
	if iv.Index > old.Index {
		if node := net.LocalNode(); node != nil {
			if err := m.sequence.ResetNode(node); err != nil {
				m.mu.Unlock()
				return err
			}
		}
	}
	net.SetIvIndex(iv)
	m.mu.Unlock()

	m.debugLog("IV index changed", "old", old.Index, "new", iv.Index, "updateActive", iv.UpdateActive)
	m.logState(net.UUID().String(), log.StateEntityIvIndex, fmt.Sprint(old.Index), fmt.Sprint(iv.Index), "")
	return m.Save()
}

func (m *NetworkManager) onFilterChange(s proxy.State) {
	m.filterFeed.Publish(s)
	m.logState(m.currentNetworkID(), log.StateEntityProxyFilter, "", fmt.Sprintf("%s %d addresses", s.Type, len(s.Addresses)), "")
}

func (m *NetworkManager) logState(networkID string, entity log.StateEntity, oldState, newState, reason string) {
	m.plog.Log(log.Event{
		Timestamp: m.timeNow(),
		NetworkID: networkID,
		Layer:     log.LayerService,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (m *NetworkManager) currentNetworkID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.network == nil {
		return ""
	}
	return m.network.UUID().String()
}

// debugLog logs a debug message if a logger is configured.
func (m *NetworkManager) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

// warnLog logs a warning if a logger is configured.
func (m *NetworkManager) warnLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}
