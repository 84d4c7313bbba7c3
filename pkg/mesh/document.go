package mesh

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blemesh/mesh-go/pkg/address"
	"github.com/google/uuid"
)

// Mesh Configuration Database document identifiers.
const (
	documentSchema  = "http://json-schema.org/draft-04/schema#"
	documentID      = "http://www.bluetooth.com/specifications/assigned-numbers/mesh-profile/cdb-schema.json#"
	documentVersion = "1.0.1"
)

// ExportConfig selects what Export writes. The zero value exports the whole
// network.
type ExportConfig struct {
	// NetworkKeys limits the export to these network keys, the application
	// keys bound to them and the nodes that know at least one of them.
	NetworkKeys []KeyIndex
	// Provisioners limits the exported provisioners.
	Provisioners []uuid.UUID
	// ExcludeDeviceKeys omits node device keys.
	ExcludeDeviceKeys bool
}

// IsFull reports whether the configuration exports everything.
func (c ExportConfig) IsFull() bool {
	return len(c.NetworkKeys) == 0 && len(c.Provisioners) == 0 && !c.ExcludeDeviceKeys
}

// hex16 is a 16-bit value written as 4 uppercase hex digits.
type hex16 uint16

func (h hex16) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%04X", uint16(h))), nil
}

func (h *hex16) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 16, 16)
	if err != nil {
		return fmt.Errorf("parse %q: %w", b, err)
	}
	*h = hex16(v)
	return nil
}

// hexKey is key material written as uppercase hex.
type hexKey []byte

func (k hexKey) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(hex.EncodeToString(k))), nil
}

func (k *hexKey) UnmarshalText(b []byte) error {
	v, err := hex.DecodeString(string(b))
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}
	*k = v
	return nil
}

type document struct {
	Schema            string           `json:"$schema"`
	ID                string           `json:"id"`
	Version           string           `json:"version"`
	MeshUUID          uuid.UUID        `json:"meshUUID"`
	MeshName          string           `json:"meshName"`
	Timestamp         time.Time        `json:"timestamp"`
	Partial           bool             `json:"partial"`
	NetKeys           []netKeyDoc      `json:"netKeys"`
	AppKeys           []appKeyDoc      `json:"appKeys"`
	Provisioners      []provisionerDoc `json:"provisioners"`
	Nodes             []nodeDoc        `json:"nodes"`
	Groups            []groupDoc       `json:"groups"`
	Scenes            []sceneDoc       `json:"scenes"`
	NetworkExclusions []exclusionDoc   `json:"networkExclusions,omitempty"`
}

type netKeyDoc struct {
	Name        string          `json:"name"`
	Index       KeyIndex        `json:"index"`
	Key         hexKey          `json:"key"`
	OldKey      hexKey          `json:"oldKey,omitempty"`
	Phase       KeyRefreshPhase `json:"phase"`
	MinSecurity Security        `json:"minSecurity"`
	Timestamp   time.Time       `json:"timestamp"`
}

type appKeyDoc struct {
	Name        string   `json:"name"`
	Index       KeyIndex `json:"index"`
	BoundNetKey KeyIndex `json:"boundNetKey"`
	Key         hexKey   `json:"key"`
	OldKey      hexKey   `json:"oldKey,omitempty"`
}

type rangeDoc struct {
	Low  hex16 `json:"lowAddress"`
	High hex16 `json:"highAddress"`
}

type sceneRangeDoc struct {
	First hex16 `json:"firstScene"`
	Last  hex16 `json:"lastScene"`
}

type provisionerDoc struct {
	Name    string          `json:"provisionerName"`
	UUID    uuid.UUID       `json:"UUID"`
	Unicast []rangeDoc      `json:"allocatedUnicastRange"`
	Group   []rangeDoc      `json:"allocatedGroupRange"`
	Scene   []sceneRangeDoc `json:"allocatedSceneRange"`
}

type nodeDoc struct {
	UUID           uuid.UUID    `json:"UUID"`
	Name           string       `json:"name"`
	UnicastAddress hex16        `json:"unicastAddress"`
	DeviceKey      hexKey       `json:"deviceKey,omitempty"`
	Security       Security     `json:"security"`
	NetKeys        []NodeKey    `json:"netKeys"`
	AppKeys        []NodeKey    `json:"appKeys"`
	ConfigComplete bool         `json:"configComplete"`
	CID            *hex16       `json:"cid,omitempty"`
	PID            *hex16       `json:"pid,omitempty"`
	VID            *hex16       `json:"vid,omitempty"`
	CRPL           *hex16       `json:"crpl,omitempty"`
	Features       *Features    `json:"features,omitempty"`
	DefaultTTL     *uint8       `json:"defaultTTL,omitempty"`
	Excluded       bool         `json:"excluded"`
	Elements       []elementDoc `json:"elements"`
}

type elementDoc struct {
	Name     string     `json:"name,omitempty"`
	Index    int        `json:"index"`
	Location hex16      `json:"location"`
	Models   []modelDoc `json:"models"`
}

type modelDoc struct {
	ModelID   string      `json:"modelId"`
	Bind      []KeyIndex  `json:"bind"`
	Subscribe []string    `json:"subscribe"`
	Publish   *publishDoc `json:"publish,omitempty"`
}

type publishDoc struct {
	Address     string        `json:"address"`
	Index       KeyIndex      `json:"index"`
	TTL         uint8         `json:"ttl"`
	Period      periodDoc     `json:"period"`
	Credentials uint8         `json:"credentials"`
	Retransmit  retransmitDoc `json:"retransmit"`
}

type periodDoc struct {
	Steps      uint8  `json:"numberOfSteps"`
	Resolution uint32 `json:"resolution"`
}

type retransmitDoc struct {
	Count    uint8  `json:"count"`
	Interval uint16 `json:"interval"`
}

type groupDoc struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	ParentAddress string `json:"parentAddress"`
}

type sceneDoc struct {
	Name      string  `json:"name"`
	Number    hex16   `json:"number"`
	Addresses []hex16 `json:"addresses"`
}

type exclusionDoc struct {
	IvIndex   uint32  `json:"ivIndex"`
	Addresses []hex16 `json:"addresses"`
}

// Export serializes the network as a Mesh Configuration Database document.
func (n *Network) Export(cfg ExportConfig) ([]byte, error) {
	netKeys := func(i KeyIndex) bool { return len(cfg.NetworkKeys) == 0 || slices.Contains(cfg.NetworkKeys, i) }
	appKeys := func(i KeyIndex) bool {
		k := n.ApplicationKey(i)
		return k != nil && netKeys(k.boundNetKey)
	}

	doc := document{
		Schema:    documentSchema,
		ID:        documentID,
		Version:   documentVersion,
		MeshUUID:  n.uuid,
		MeshName:  n.name,
		Timestamp: n.timestamp,
		Partial:   n.partial || !cfg.IsFull(),
	}
	for _, k := range n.networkKeys {
		if !netKeys(k.index) {
			continue
		}
		doc.NetKeys = append(doc.NetKeys, netKeyDoc{
			Name: k.name, Index: k.index, Key: k.key, OldKey: k.oldKey,
			Phase: k.phase, MinSecurity: k.minSecurity, Timestamp: k.timestamp,
		})
	}
	for _, k := range n.applicationKeys {
		if !appKeys(k.index) {
			continue
		}
		doc.AppKeys = append(doc.AppKeys, appKeyDoc{
			Name: k.name, Index: k.index, BoundNetKey: k.boundNetKey, Key: k.key, OldKey: k.oldKey,
		})
	}
	for _, p := range n.provisioners {
		if len(cfg.Provisioners) > 0 && !slices.Contains(cfg.Provisioners, p.uuid) {
			continue
		}
		doc.Provisioners = append(doc.Provisioners, exportProvisioner(p))
	}
	for _, node := range n.nodes {
		if !slices.ContainsFunc(node.netKeys, func(k NodeKey) bool { return netKeys(k.Index) }) {
			continue
		}
		doc.Nodes = append(doc.Nodes, exportNode(node, netKeys, appKeys, cfg.ExcludeDeviceKeys))
	}
	for _, g := range n.groups {
		doc.Groups = append(doc.Groups, groupDoc{
			Name:          g.name,
			Address:       encodeAddress(g.address),
			ParentAddress: encodeAddress(g.parent),
		})
	}
	for _, s := range n.scenes {
		sd := sceneDoc{Name: s.name, Number: hex16(s.number), Addresses: []hex16{}}
		for _, a := range s.addresses {
			sd.Addresses = append(sd.Addresses, hex16(a))
		}
		doc.Scenes = append(doc.Scenes, sd)
	}
	for _, e := range n.exclusions {
		ed := exclusionDoc{IvIndex: e.IvIndex}
		for _, a := range e.Addresses {
			ed.Addresses = append(ed.Addresses, hex16(a))
		}
		doc.NetworkExclusions = append(doc.NetworkExclusions, ed)
	}
	doc.ensureLists()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal network: %w", err)
	}
	return data, nil
}

// ensureLists writes empty arrays instead of null for required lists.
func (d *document) ensureLists() {
	if d.NetKeys == nil {
		d.NetKeys = []netKeyDoc{}
	}
	if d.AppKeys == nil {
		d.AppKeys = []appKeyDoc{}
	}
	if d.Provisioners == nil {
		d.Provisioners = []provisionerDoc{}
	}
	if d.Nodes == nil {
		d.Nodes = []nodeDoc{}
	}
	if d.Groups == nil {
		d.Groups = []groupDoc{}
	}
	if d.Scenes == nil {
		d.Scenes = []sceneDoc{}
	}
}

func exportProvisioner(p *Provisioner) provisionerDoc {
	pd := provisionerDoc{
		Name:    p.name,
		UUID:    p.uuid,
		Unicast: []rangeDoc{},
		Group:   []rangeDoc{},
		Scene:   []sceneRangeDoc{},
	}
	for _, r := range p.unicast.Ranges() {
		pd.Unicast = append(pd.Unicast, rangeDoc{Low: hex16(r.Low), High: hex16(r.High)})
	}
	for _, r := range p.group.Ranges() {
		pd.Group = append(pd.Group, rangeDoc{Low: hex16(r.Low), High: hex16(r.High)})
	}
	for _, r := range p.scene.Ranges() {
		pd.Scene = append(pd.Scene, sceneRangeDoc{First: hex16(r.Low), Last: hex16(r.High)})
	}
	return pd
}

func exportNode(node *Node, netKeys, appKeys func(KeyIndex) bool, noDeviceKey bool) nodeDoc {
	nd := nodeDoc{
		UUID:           node.uuid,
		Name:           node.name,
		UnicastAddress: hex16(node.primary),
		Security:       node.security,
		NetKeys:        []NodeKey{},
		AppKeys:        []NodeKey{},
		ConfigComplete: node.configComplete,
		CID:            (*hex16)(node.companyID),
		PID:            (*hex16)(node.productID),
		VID:            (*hex16)(node.versionID),
		CRPL:           (*hex16)(node.crpl),
		DefaultTTL:     node.defaultTTL,
		Excluded:       node.excluded,
		Elements:       []elementDoc{},
	}
	if !noDeviceKey {
		nd.DeviceKey = node.deviceKey
	}
	if node.features != (Features{}) {
		f := node.features
		nd.Features = &f
	}
	for _, k := range node.netKeys {
		if netKeys(k.Index) {
			nd.NetKeys = append(nd.NetKeys, k)
		}
	}
	for _, k := range node.appKeys {
		if appKeys(k.Index) {
			nd.AppKeys = append(nd.AppKeys, k)
		}
	}
	for _, e := range node.elements {
		ed := elementDoc{Name: e.name, Index: e.index, Location: hex16(e.location), Models: []modelDoc{}}
		for _, m := range e.models {
			md := modelDoc{ModelID: m.String(), Bind: []KeyIndex{}, Subscribe: []string{}}
			for _, b := range m.bind {
				if appKeys(b) {
					md.Bind = append(md.Bind, b)
				}
			}
			for _, s := range m.subscribe {
				md.Subscribe = append(md.Subscribe, encodeAddress(s))
			}
			if p := m.publish; p != nil && appKeys(p.Index) {
				pd := &publishDoc{
					Address:     encodeAddress(p.Address),
					Index:       p.Index,
					TTL:         p.TTL,
					Credentials: p.Credentials,
				}
				pd.Period.Steps = p.PeriodSteps
				pd.Period.Resolution = p.PeriodResolution
				pd.Retransmit.Count = p.RetransmitCount
				pd.Retransmit.Interval = p.RetransmitInterval
				md.Publish = pd
			}
			ed.Models = append(ed.Models, md)
		}
		nd.Elements = append(nd.Elements, ed)
	}
	return nd
}

// encodeAddress writes virtual addresses as their label UUID and every
// other address as 4 hex digits.
func encodeAddress(a address.MeshAddress) string {
	if v, ok := a.(address.VirtualAddress); ok {
		return strings.ToUpper(strings.ReplaceAll(v.Label().String(), "-", ""))
	}
	if a == nil {
		return address.Unassigned.String()
	}
	return a.Address().String()
}

func decodeAddress(s string, h address.VirtualHasher) (address.MeshAddress, error) {
	if len(s) == 4 {
		a, err := address.Parse(s)
		if err != nil {
			return nil, err
		}
		return address.Create(a)
	}
	label, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("address %q: %w", s, address.ErrInvalidAddress)
	}
	return address.NewVirtual(label, h)
}

// Import parses a Mesh Configuration Database document. The hasher computes
// virtual addresses from their label UUIDs. Every failure is returned as an
// *ImportError.
func Import(data []byte, h address.VirtualHasher) (*Network, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ImportError{Err: err}
	}
	n, err := doc.network(h)
	if err != nil {
		return nil, &ImportError{Err: err}
	}
	if err := n.Validate(); err != nil {
		return nil, &ImportError{Err: err}
	}
	return n, nil
}

func (d *document) network(h address.VirtualHasher) (*Network, error) {
	n := &Network{
		uuid:      d.MeshUUID,
		name:      d.MeshName,
		timestamp: d.Timestamp,
		partial:   d.Partial,
		clock:     time.Now,
	}
	for _, kd := range d.NetKeys {
		if !kd.Index.IsValid() {
			return nil, fmt.Errorf("network key %d: %w", kd.Index, ErrKeyIndexOutOfRange)
		}
		if len(kd.Key) != 16 || (kd.OldKey != nil && len(kd.OldKey) != 16) {
			return nil, fmt.Errorf("network key %d: %w", kd.Index, ErrInvalidKeyLength)
		}
		if kd.Phase > PhaseUsingNewKeys {
			return nil, fmt.Errorf("network key %d phase %d: %w", kd.Index, kd.Phase, ErrInvalidPhase)
		}
		n.networkKeys = append(n.networkKeys, &NetworkKey{
			network: n, name: kd.Name, index: kd.Index, key: kd.Key, oldKey: kd.OldKey,
			phase: kd.Phase, minSecurity: kd.MinSecurity, timestamp: kd.Timestamp,
		})
	}
	sort.SliceStable(n.networkKeys, func(i, j int) bool { return n.networkKeys[i].index < n.networkKeys[j].index })

	for _, kd := range d.AppKeys {
		if !kd.Index.IsValid() {
			return nil, fmt.Errorf("application key %d: %w", kd.Index, ErrKeyIndexOutOfRange)
		}
		if len(kd.Key) != 16 || (kd.OldKey != nil && len(kd.OldKey) != 16) {
			return nil, fmt.Errorf("application key %d: %w", kd.Index, ErrInvalidKeyLength)
		}
		n.applicationKeys = append(n.applicationKeys, &ApplicationKey{
			network: n, name: kd.Name, index: kd.Index, boundNetKey: kd.BoundNetKey, key: kd.Key, oldKey: kd.OldKey,
		})
	}
	sort.SliceStable(n.applicationKeys, func(i, j int) bool { return n.applicationKeys[i].index < n.applicationKeys[j].index })

	for _, pd := range d.Provisioners {
		p, err := importProvisioner(pd)
		if err != nil {
			return nil, err
		}
		p.network = n
		n.provisioners = append(n.provisioners, p)
	}
	for _, nd := range d.Nodes {
		node, err := importNode(nd, h)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.UUID, err)
		}
		node.network = n
		n.nodes = append(n.nodes, node)
	}
	for _, gd := range d.Groups {
		a, err := decodeAddress(gd.Address, h)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", gd.Name, err)
		}
		primary, ok := a.(address.PrimaryGroupAddress)
		if !ok {
			return nil, fmt.Errorf("group %q address %s: %w", gd.Name, a.Address(), address.ErrInvalidAddress)
		}
		g := NewGroup(gd.Name, primary)
		if gd.ParentAddress != "" {
			pa, err := decodeAddress(gd.ParentAddress, h)
			if err != nil {
				return nil, fmt.Errorf("group %q parent: %w", gd.Name, err)
			}
			parent, ok := pa.(address.ParentGroupAddress)
			if !ok {
				return nil, fmt.Errorf("group %q parent %s: %w", gd.Name, pa.Address(), address.ErrInvalidAddress)
			}
			g.parent = parent
		}
		g.network = n
		n.groups = append(n.groups, g)
	}
	for _, sd := range d.Scenes {
		s := &Scene{network: n, name: sd.Name, number: uint16(sd.Number)}
		for _, a := range sd.Addresses {
			s.addresses = append(s.addresses, address.Address(a))
		}
		n.scenes = append(n.scenes, s)
	}
	for _, ed := range d.NetworkExclusions {
		e := ExclusionList{IvIndex: ed.IvIndex}
		for _, a := range ed.Addresses {
			e.Addresses = append(e.Addresses, address.Address(a))
		}
		n.exclusions = append(n.exclusions, e)
	}
	return n, nil
}

func importProvisioner(pd provisionerDoc) (*Provisioner, error) {
	var unicast, group, scene []address.Range
	for _, r := range pd.Unicast {
		ur, err := address.UnicastRange(address.Address(r.Low), address.Address(r.High))
		if err != nil {
			return nil, fmt.Errorf("provisioner %s: %w", pd.UUID, err)
		}
		unicast = append(unicast, ur)
	}
	for _, r := range pd.Group {
		gr, err := address.GroupRange(address.Address(r.Low), address.Address(r.High))
		if err != nil {
			return nil, fmt.Errorf("provisioner %s: %w", pd.UUID, err)
		}
		group = append(group, gr)
	}
	for _, r := range pd.Scene {
		sr, err := address.SceneRange(uint16(r.First), uint16(r.Last))
		if err != nil {
			return nil, fmt.Errorf("provisioner %s: %w", pd.UUID, err)
		}
		scene = append(scene, sr)
	}
	return NewProvisioner(pd.UUID, pd.Name,
		address.NewRangeSet(unicast...),
		address.NewRangeSet(group...),
		address.NewRangeSet(scene...)), nil
}

func importNode(nd nodeDoc, h address.VirtualHasher) (*Node, error) {
	primary := address.Address(nd.UnicastAddress)
	if !primary.IsUnicast() || int(primary)+max(len(nd.Elements), 1)-1 > int(address.MaxUnicast) {
		return nil, fmt.Errorf("unicast address %s: %w", primary, address.ErrInvalidAddress)
	}
	if nd.DeviceKey != nil && len(nd.DeviceKey) != 16 {
		return nil, ErrInvalidKeyLength
	}
	node := &Node{
		uuid:           nd.UUID,
		name:           nd.Name,
		primary:        primary,
		deviceKey:      nd.DeviceKey,
		security:       nd.Security,
		netKeys:        slices.Clone(nd.NetKeys),
		appKeys:        slices.Clone(nd.AppKeys),
		companyID:      (*uint16)(nd.CID),
		productID:      (*uint16)(nd.PID),
		versionID:      (*uint16)(nd.VID),
		crpl:           (*uint16)(nd.CRPL),
		defaultTTL:     nd.DefaultTTL,
		excluded:       nd.Excluded,
		configComplete: nd.ConfigComplete,
	}
	if nd.Features != nil {
		node.features = *nd.Features
	}
	// Element addresses follow from their position, so the indices must
	// count up from zero. Documents may list them in any order.
	docs := slices.Clone(nd.Elements)
	slices.SortStableFunc(docs, func(a, b elementDoc) int { return a.Index - b.Index })
	for i, ed := range docs {
		if ed.Index != i {
			return nil, fmt.Errorf("element %d: %w", ed.Index, ErrInvalidElementIndex)
		}
	}
	elements := make([]*Element, 0, len(docs))
	for _, ed := range docs {
		var models []*Model
		for _, md := range ed.Models {
			m, err := importModel(md, h)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", ed.Index, err)
			}
			models = append(models, m)
		}
		e := NewElement(uint16(ed.Location), models...)
		e.name = ed.Name
		elements = append(elements, e)
	}
	if len(elements) == 0 {
		elements = append(elements, NewElement(0))
	}
	node.setElements(elements)
	return node, nil
}

func importModel(md modelDoc, h address.VirtualHasher) (*Model, error) {
	if len(md.ModelID) != 4 && len(md.ModelID) != 8 {
		return nil, fmt.Errorf("model id %q: invalid length", md.ModelID)
	}
	id, err := strconv.ParseUint(md.ModelID, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("model id %q: %w", md.ModelID, err)
	}
	m := &Model{id: uint32(id), bind: slices.Clone(md.Bind)}
	for _, s := range md.Subscribe {
		a, err := decodeAddress(s, h)
		if err != nil {
			return nil, fmt.Errorf("model %s subscription: %w", md.ModelID, err)
		}
		sub, ok := a.(address.SubscriptionAddress)
		if !ok {
			return nil, fmt.Errorf("model %s subscription %s: %w", md.ModelID, a.Address(), address.ErrInvalidAddress)
		}
		m.subscribe = append(m.subscribe, sub)
	}
	if pd := md.Publish; pd != nil {
		a, err := decodeAddress(pd.Address, h)
		if err != nil {
			return nil, fmt.Errorf("model %s publication: %w", md.ModelID, err)
		}
		pub, ok := a.(address.PublicationAddress)
		if !ok {
			return nil, fmt.Errorf("model %s publication %s: %w", md.ModelID, a.Address(), address.ErrInvalidAddress)
		}
		m.publish = &Publish{
			Address:            pub,
			Index:              pd.Index,
			TTL:                pd.TTL,
			PeriodSteps:        pd.Period.Steps,
			PeriodResolution:   pd.Period.Resolution,
			Credentials:        pd.Credentials,
			RetransmitCount:    pd.Retransmit.Count,
			RetransmitInterval: pd.Retransmit.Interval,
		}
	}
	return m, nil
}
