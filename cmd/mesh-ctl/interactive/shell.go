// Package interactive provides the interactive command-line interface of
// mesh-ctl.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blemesh/mesh-go/pkg/access"
	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/blemesh/mesh-go/pkg/crypto"
	"github.com/blemesh/mesh-go/pkg/mesh"
	"github.com/blemesh/mesh-go/pkg/service"
	"github.com/chzyer/readline"
)

// requestTimeout bounds a single command waiting for the local node.
const requestTimeout = 5 * time.Second

// Shell handles interactive mode for mesh-ctl.
type Shell struct {
	mgr    *service.NetworkManager
	crypto crypto.Crypto
	rl     *readline.Instance
	out    io.Writer
}

// New creates a shell. Attach must be called before Run.
func New() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mesh> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{crypto: crypto.New(), rl: rl, out: rl.Stdout()}, nil
}

// Attach sets the network manager the commands operate on.
func (s *Shell) Attach(mgr *service.NetworkManager) {
	s.mgr = mgr
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
		if s.Execute(ctx, line) {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns true when the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "status", "st":
		err = s.cmdStatus()
	case "nodes", "ls":
		err = s.cmdNodes()
	case "keys":
		err = s.cmdKeys()
	case "rmnode":
		err = s.cmdRemoveNode(args)
	case "netkey":
		err = s.cmdNetKey(ctx, args)
	case "appkey":
		err = s.cmdAppKey(ctx, args)
	case "ttl":
		err = s.cmdTTL(ctx, args)
	case "compose":
		err = s.cmdCompose(ctx)
	case "iv":
		err = s.cmdIvIndex(args)
	case "export":
		err = s.cmdExport(args)
	case "import":
		err = s.cmdImport(args)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Mesh Network Commands:
  Network:
    status                   - Show network and local node status
    nodes                    - List provisioned nodes
    keys                     - List network and application keys
    rmnode <address>         - Remove a node and exclude its addresses
    iv <index> [update]      - Set the IV index

  Local Node:
    netkey add [name]        - Generate a network key and add it to the local node
    netkey del <index>       - Remove a network key from the local node
    appkey add [name]        - Generate an application key bound to the primary network key
    appkey del <index>       - Remove an application key from the local node
    ttl [value]              - Read or set the default TTL
    compose                  - Show Composition Data page 0

  Database:
    export <file> [nodevkeys] - Write the network as a Mesh Configuration Database
    import <file>             - Replace the network with a Mesh Configuration Database

  Other:
    help                     - Show this help
    quit                     - Exit`)
}

func (s *Shell) network() (*mesh.Network, error) {
	net := s.mgr.Network()
	if net == nil {
		return nil, service.ErrNoNetwork
	}
	return net, nil
}

// request sends msg to the local node and checks the status it returns.
func (s *Shell) request(ctx context.Context, msg access.AcknowledgedConfigMessage) (access.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := s.mgr.SendToLocalNode(ctx, msg)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("no response from local node")
	}
	if st, ok := resp.(access.ConfigStatusMessage); ok && st.Status() != access.StatusSuccess {
		return resp, fmt.Errorf("local node answered %s", st.Status())
	}
	return resp, nil
}

func (s *Shell) cmdStatus() error {
	net, err := s.network()
	if err != nil {
		return err
	}
	iv := net.IvIndex()
	fmt.Fprintf(s.out, "Network:      %s (%s)\n", net.Name(), net.UUID())
	fmt.Fprintf(s.out, "IV Index:     %d", iv.Index)
	if iv.UpdateActive {
		fmt.Fprint(s.out, " (update in progress)")
	}
	fmt.Fprintln(s.out)
	if p := net.LocalProvisioner(); p != nil {
		fmt.Fprintf(s.out, "Provisioner:  %s\n", p.Name())
	}
	if node := net.LocalNode(); node != nil {
		fmt.Fprintf(s.out, "Local node:   %s (%d elements)\n", node.PrimaryAddress(), node.ElementCount())
	}
	fmt.Fprintf(s.out, "Nodes:        %d\n", len(net.Nodes()))
	fmt.Fprintf(s.out, "Network keys: %d\n", len(net.NetworkKeys()))
	fmt.Fprintf(s.out, "App keys:     %d\n", len(net.ApplicationKeys()))

	filter := s.mgr.ProxyFilter().State()
	if filter.Connected {
		fmt.Fprintf(s.out, "Proxy:        %s (%s, %d addresses)\n", filter.Proxy, filter.Type, len(filter.Addresses))
	} else {
		fmt.Fprintln(s.out, "Proxy:        not connected")
	}
	return nil
}

func (s *Shell) cmdNodes() error {
	net, err := s.network()
	if err != nil {
		return err
	}
	local := net.LocalNode()
	for _, node := range net.Nodes() {
		marker := " "
		if node == local {
			marker = "*"
		}
		composed := "no composition"
		if node.IsCompositionDataReceived() {
			composed = "composition received"
		}
		fmt.Fprintf(s.out, "%s %s  %-20s %d elements, %s\n",
			marker, node.PrimaryAddress(), node.Name(), node.ElementCount(), composed)
	}
	return nil
}

func (s *Shell) cmdRemoveNode(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: rmnode <address>")
	}
	a, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	net, err := s.network()
	if err != nil {
		return err
	}
	node := net.NodeWithAddress(a)
	if node == nil {
		return fmt.Errorf("no node with address %s", a)
	}
	if _, err := s.mgr.RemoveNode(node.UUID()); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Removed node %s\n", node.PrimaryAddress())
	return nil
}

func (s *Shell) cmdKeys() error {
	net, err := s.network()
	if err != nil {
		return err
	}
	local := net.LocalNode()
	fmt.Fprintln(s.out, "Network keys:")
	for _, k := range net.NetworkKeys() {
		fmt.Fprintf(s.out, "  [%d] %s%s\n", k.Index(), k.Name(), knownBy(local, local != nil && local.KnowsNetworkKey(k.Index())))
	}
	fmt.Fprintln(s.out, "Application keys:")
	for _, k := range net.ApplicationKeys() {
		fmt.Fprintf(s.out, "  [%d] %s (bound to %d)%s\n", k.Index(), k.Name(), k.BoundNetworkKeyIndex(),
			knownBy(local, local != nil && local.KnowsApplicationKey(k.Index())))
	}
	return nil
}

func knownBy(local *mesh.Node, known bool) string {
	if local == nil || known {
		return ""
	}
	return " (not on local node)"
}

func (s *Shell) cmdNetKey(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: netkey add [name] | netkey del <index>")
	}
	net, err := s.network()
	if err != nil {
		return err
	}
	switch args[0] {
	case "add":
		key, err := s.crypto.GenerateKey()
		if err != nil {
			return err
		}
		nk, err := net.AddNetworkKey(keyName(args[1:], "Network Key"), key)
		if err != nil {
			return err
		}
		if err := s.mgr.Save(); err != nil {
			return err
		}
		if _, err := s.request(ctx, access.NewConfigNetKeyAdd(nk)); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Added network key %d\n", nk.Index())
	case "del":
		index, err := parseKeyIndex(args[1:])
		if err != nil {
			return err
		}
		if _, err := s.request(ctx, &access.ConfigNetKeyDelete{NetKeyIndex: index}); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Removed network key %d from the local node\n", index)
	default:
		return fmt.Errorf("unknown netkey command: %s", args[0])
	}
	return nil
}

func (s *Shell) cmdAppKey(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: appkey add [name] | appkey del <index>")
	}
	net, err := s.network()
	if err != nil {
		return err
	}
	switch args[0] {
	case "add":
		netKeys := net.NetworkKeys()
		if len(netKeys) == 0 {
			return errors.New("network has no network key")
		}
		key, err := s.crypto.GenerateKey()
		if err != nil {
			return err
		}
		ak, err := net.AddApplicationKey(keyName(args[1:], "Application Key"), key, netKeys[0].Index())
		if err != nil {
			return err
		}
		if err := s.mgr.Save(); err != nil {
			return err
		}
		if _, err := s.request(ctx, access.NewConfigAppKeyAdd(ak)); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Added application key %d bound to network key %d\n", ak.Index(), ak.BoundNetworkKeyIndex())
	case "del":
		index, err := parseKeyIndex(args[1:])
		if err != nil {
			return err
		}
		ak := net.ApplicationKey(index)
		if ak == nil {
			return fmt.Errorf("no application key %d", index)
		}
		msg := &access.ConfigAppKeyDelete{NetKeyIndex: ak.BoundNetworkKeyIndex(), AppKeyIndex: index}
		if _, err := s.request(ctx, msg); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Removed application key %d from the local node\n", index)
	default:
		return fmt.Errorf("unknown appkey command: %s", args[0])
	}
	return nil
}

func keyName(args []string, fallback string) string {
	if len(args) == 0 {
		return fallback
	}
	return strings.Join(args, " ")
}

func parseKeyIndex(args []string) (mesh.KeyIndex, error) {
	if len(args) == 0 {
		return 0, errors.New("key index required")
	}
	v, err := strconv.ParseUint(args[0], 10, 12)
	if err != nil {
		return 0, fmt.Errorf("invalid key index: %s", args[0])
	}
	return mesh.KeyIndex(v), nil
}

func (s *Shell) cmdTTL(ctx context.Context, args []string) error {
	var msg access.AcknowledgedConfigMessage = &access.ConfigDefaultTtlGet{}
	if len(args) > 0 {
		v, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil || !access.IsValidDefaultTTL(uint8(v)) {
			return fmt.Errorf("invalid TTL: %s (use 0 or 2-127)", args[0])
		}
		msg = &access.ConfigDefaultTtlSet{TTL: uint8(v)}
	}
	resp, err := s.request(ctx, msg)
	if err != nil {
		return err
	}
	if st, ok := resp.(*access.ConfigDefaultTtlStatus); ok {
		fmt.Fprintf(s.out, "Default TTL: %d\n", st.TTL)
	}
	return nil
}

func (s *Shell) cmdCompose(ctx context.Context) error {
	resp, err := s.request(ctx, &access.ConfigCompositionDataGet{Page: 0})
	if err != nil {
		return err
	}
	c, ok := resp.(*access.ConfigCompositionDataStatus)
	if !ok {
		return fmt.Errorf("unexpected response %s", resp.Opcode())
	}
	fmt.Fprintf(s.out, "Company: %04X  Product: %04X  Version: %04X  RPL: %d  Features: %04X\n",
		c.CompanyID, c.ProductID, c.VersionID, c.ReplayProtectionCount, c.Features)
	for i, e := range c.Elements {
		fmt.Fprintf(s.out, "  Element %d (location %04X)\n", i, e.Location)
		for _, id := range e.SIGModels {
			fmt.Fprintf(s.out, "    SIG model %04X\n", id)
		}
		for _, id := range e.VendorModels {
			fmt.Fprintf(s.out, "    Vendor model %04X:%04X\n", id>>16, id&0xFFFF)
		}
	}
	return nil
}

func (s *Shell) cmdIvIndex(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: iv <index> [update]")
	}
	v, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid IV index: %s", args[0])
	}
	iv := mesh.IvIndex{Index: uint32(v), UpdateActive: len(args) > 1 && args[1] == "update"}
	if err := s.mgr.SetIvIndex(iv); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "IV index set to %d\n", iv.Index)
	return nil
}

func (s *Shell) cmdExport(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: export <file> [nodevkeys]")
	}
	cfg := mesh.ExportConfig{ExcludeDeviceKeys: len(args) > 1 && args[1] == "nodevkeys"}
	data, err := s.mgr.Export(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", args[0], err)
	}
	fmt.Fprintf(s.out, "Exported network to %s (%d bytes)\n", args[0], len(data))
	return nil
}

func (s *Shell) cmdImport(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: import <file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	net, err := s.mgr.Import(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Imported network %s with %d nodes\n", net.Name(), len(net.Nodes()))
	return nil
}
