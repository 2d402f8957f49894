package fantree

// net.go holds the run-time representation of the devices, interfaces,
// and links that make up a fanout tree

import (
	"fmt"
	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
)

// NodeRole is the base type for an enumerated type of parts a node
// plays in the traffic pattern
type NodeRole int

const (
	RoleUnset NodeRole = iota
	RoleResponder
	RoleInitiator
)

// NodeRoleFromStr returns the NodeRole corresponding to a string name for it
func NodeRoleFromStr(role string) NodeRole {
	switch role {
	case "responder", "Responder":
		return RoleResponder
	case "initiator", "Initiator":
		return RoleInitiator
	default:
		return RoleUnset
	}
}

// NodeRoleToStr returns a string corresponding to an input NodeRole
func NodeRoleToStr(role NodeRole) string {
	switch role {
	case RoleResponder:
		return "responder"
	case RoleInitiator:
		return "initiator"
	case RoleUnset:
		return "unset"
	}
	return "unset"
}

// DefaultNodeName returns a unique default name for a node in the named tree
func DefaultNodeName(treeName string, nodeNum int) string {
	return fmt.Sprintf("node(%s).%d", treeName, nodeNum)
}

// DefaultIntrfcName returns a unique default name for an interface on the named device
func DefaultIntrfcName(devName string, intrfcNum int) string {
	return fmt.Sprintf("intrfc@%s[.%d]", devName, intrfcNum)
}

// paramObj interface is satisfied by every tree object that can be
// configured at run-time with experiment parameters.  These are
// Node, Intrfc, Link, EchoResponder, EchoRequest, and EchoPortal
type paramObj interface {
	matchParam(string, string) bool
	setParam(string, valueStruct)
	paramObjName() string
}

// A Node is one participant in the tree.  Level counts the tiers left
// below it: the root carries the configured depth, the deepest tier
// carries zero.
type Node struct {
	Name    string
	ID      int
	Level   int
	Role    NodeRole
	Groups  []string
	Intrfcs []*Intrfc
	State   *NodeState

	// the tree that created the node, for id generation downstream
	tree *Tree
}

// A NodeState holds extra information used by the node at run-time
type NodeState struct {
	Rngstrm *rngstream.RngStream
	Trace   bool
	Apps    int
}

// createNodeState constructs the state block for a node
func createNodeState(name string) *NodeState {
	ns := new(NodeState)
	ns.Rngstrm = rngstream.New(name)
	ns.Trace = false
	ns.Apps = 0
	return ns
}

// AddGroup includes a group name in the node's group list, without duplication
func (nd *Node) AddGroup(group string) {
	if !slices.Contains(nd.Groups, group) {
		nd.Groups = append(nd.Groups, group)
	}
}

// addIntrfc appends the input interface to the list embedded in the node
func (nd *Node) addIntrfc(intrfc *Intrfc) {
	nd.Intrfcs = append(nd.Intrfcs, intrfc)
}

// DevRng returns the node's rng stream
func (nd *Node) DevRng() *rngstream.RngStream {
	return nd.State.Rngstrm
}

// matchParam determines whether the node has the attribute named with the value given
func (nd *Node) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return nd.Name == attrbValue
	case "group":
		return slices.Contains(nd.Groups, attrbValue)
	case "role":
		return NodeRoleToStr(nd.Role) == attrbValue
	}
	return false
}

// setParam gives a value to a node parameter
func (nd *Node) setParam(param string, value valueStruct) {
	switch param {
	case "trace":
		nd.State.Trace = value.boolValue
	}
}

// paramObjName helps Node satisfy the paramObj interface
func (nd *Node) paramObjName() string {
	return nd.Name
}

// An Intrfc is one end of a link, embedded in a device.  Addr is empty
// until the link's subnet is bound.
type Intrfc struct {
	Name   string
	ID     int
	Device *Node
	Cable  *Intrfc
	Subnet SubnetAddr
	Addr   string
	Bound  bool
	Trace  bool
}

// matchParam determines whether the interface has the attribute named with the value given
func (ifc *Intrfc) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return ifc.Name == attrbValue
	case "devname":
		return ifc.Device.Name == attrbValue
	case "addr":
		return ifc.Addr == attrbValue
	}
	return false
}

// setParam gives a value to an interface parameter
func (ifc *Intrfc) setParam(param string, value valueStruct) {
	switch param {
	case "trace":
		ifc.Trace = value.boolValue
	}
}

// paramObjName helps Intrfc satisfy the paramObj interface
func (ifc *Intrfc) paramObjName() string {
	return ifc.Name
}

// A Link is the point-to-point connection between a parent node and one
// of its children.  Level is the recursion level at which the link was
// made (deepest tier of links is level 1) and SiblingIdx the link's index
// among the parent's children.  Rate, Delay, and QueueDepth are carried
// for the engine that executes traffic; this module does not interpret them.
type Link struct {
	ID           int
	Parent       *Node
	Child        *Node
	ParentIntrfc *Intrfc
	ChildIntrfc  *Intrfc
	Subnet       SubnetAddr
	Bound        bool
	Level        int
	SiblingIdx   int
	Groups       []string
	Rate         string
	Delay        string
	QueueDepth   int
	Trace        bool
}

// matchParam determines whether the link has the attribute named with the value given
func (lnk *Link) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return lnk.paramObjName() == attrbValue
	case "group":
		return slices.Contains(lnk.Groups, attrbValue)
	case "subnet":
		return lnk.Bound && lnk.Subnet.String() == attrbValue
	}
	return false
}

// setParam gives a value to a link parameter
func (lnk *Link) setParam(param string, value valueStruct) {
	switch param {
	case "rate":
		lnk.Rate = value.stringValue
	case "delay":
		lnk.Delay = value.stringValue
	case "queue":
		lnk.QueueDepth = value.intValue
	case "trace":
		lnk.Trace = value.boolValue
	}
}

// paramObjName helps Link satisfy the paramObj interface.  Links are not
// named at creation, so the name is derived from the endpoints.
func (lnk *Link) paramObjName() string {
	return fmt.Sprintf("link(%s-%s)", lnk.Parent.Name, lnk.Child.Name)
}

// A Tree is the run-time product of one build: every node, link, and
// address minted during construction, with lookup maps used by the
// traffic layer.  Identifiers are scoped to the tree so that separate
// builds in one process do not interact.
type Tree struct {
	Name      string
	Branching int
	Depth     int
	Root      *Node

	Nodes []*Node
	Links []*Link

	// addresses gathered at the deepest level, in construction order
	LeafAddrs []LeafAddr

	NodeByID     map[int]*Node
	NodeByName   map[string]*Node
	IntrfcByID   map[int]*Intrfc
	IntrfcByAddr map[string]*Intrfc
	LinkByID     map[int]*Link

	idCounter int
}

// createTree initializes an empty tree with the given shape parameters
func createTree(name string, branching, depth int) *Tree {
	nt := new(Tree)
	nt.Name = name
	nt.Branching = branching
	nt.Depth = depth
	nt.Nodes = make([]*Node, 0)
	nt.Links = make([]*Link, 0)
	nt.LeafAddrs = make([]LeafAddr, 0)
	nt.NodeByID = make(map[int]*Node)
	nt.NodeByName = make(map[string]*Node)
	nt.IntrfcByID = make(map[int]*Intrfc)
	nt.IntrfcByAddr = make(map[string]*Intrfc)
	nt.LinkByID = make(map[int]*Link)
	return nt
}

// nxtID returns a unique-to-this-tree integer id
func (nt *Tree) nxtID() int {
	nt.idCounter += 1
	return nt.idCounter
}

// createNode builds a node at the given level, registers it in the
// tree's lookup maps, and returns it
func (nt *Tree) createNode(level int) *Node {
	nd := new(Node)
	nd.Name = DefaultNodeName(nt.Name, len(nt.Nodes))
	nd.ID = nt.nxtID()
	nd.Level = level
	nd.Role = RoleUnset
	nd.Groups = make([]string, 0)
	nd.Intrfcs = make([]*Intrfc, 0)
	nd.State = createNodeState(nd.Name)
	nd.tree = nt

	nt.Nodes = append(nt.Nodes, nd)
	nt.NodeByID[nd.ID] = nd
	nt.NodeByName[nd.Name] = nd
	return nd
}

// createIntrfc builds a fresh interface embedded in the named device
func (nt *Tree) createIntrfc(dev *Node) *Intrfc {
	ifc := new(Intrfc)
	ifc.Name = DefaultIntrfcName(dev.Name, len(dev.Intrfcs))
	ifc.ID = nt.nxtID()
	ifc.Device = dev
	dev.addIntrfc(ifc)
	nt.IntrfcByID[ifc.ID] = ifc
	return ifc
}

// connectNodes creates the link between a parent and one of its children,
// minting an interface on each side and cabling the pair together.  The
// link has no subnet until bindSubnet is called.
func (nt *Tree) connectNodes(parent, child *Node, level, siblingIdx int) *Link {
	pIfc := nt.createIntrfc(parent)
	cIfc := nt.createIntrfc(child)
	pIfc.Cable = cIfc
	cIfc.Cable = pIfc

	lnk := new(Link)
	lnk.ID = nt.nxtID()
	lnk.Parent = parent
	lnk.Child = child
	lnk.ParentIntrfc = pIfc
	lnk.ChildIntrfc = cIfc
	lnk.Level = level
	lnk.SiblingIdx = siblingIdx
	lnk.Groups = make([]string, 0)

	nt.Links = append(nt.Links, lnk)
	nt.LinkByID[lnk.ID] = lnk
	return lnk
}

// bindSubnet attaches a subnet to a link, minting the host addresses of
// its two ends: the parent side takes host 1 and the child side host 2.
// The address record of the binding is returned.
func (nt *Tree) bindSubnet(lnk *Link, sn SubnetAddr) AddrRecord {
	lnk.Subnet = sn
	lnk.Bound = true

	rec := AddrRecord{Subnet: sn, ParentAddr: sn.Host(1), ChildAddr: sn.Host(2)}

	lnk.ParentIntrfc.Subnet = sn
	lnk.ParentIntrfc.Addr = rec.ParentAddr
	lnk.ParentIntrfc.Bound = true
	nt.IntrfcByAddr[rec.ParentAddr] = lnk.ParentIntrfc

	lnk.ChildIntrfc.Subnet = sn
	lnk.ChildIntrfc.Addr = rec.ChildAddr
	lnk.ChildIntrfc.Bound = true
	nt.IntrfcByAddr[rec.ChildAddr] = lnk.ChildIntrfc

	return rec
}

// Subnets returns the subnet of every bound link, in construction order
func (nt *Tree) Subnets() []SubnetAddr {
	subnets := make([]SubnetAddr, 0, len(nt.Links))
	for _, lnk := range nt.Links {
		if lnk.Bound {
			subnets = append(subnets, lnk.Subnet)
		}
	}
	return subnets
}

// Leaves returns the nodes of the deepest tier, in creation order
func (nt *Tree) Leaves() []*Node {
	leaves := make([]*Node, 0)
	for _, nd := range nt.Nodes {
		if nd.Level == 0 && nd != nt.Root {
			leaves = append(leaves, nd)
		}
	}
	return leaves
}

// NodeByAddr returns the node holding the interface bound to the given
// host address, if there is one
func (nt *Tree) NodeByAddr(addr string) (*Node, bool) {
	ifc, present := nt.IntrfcByAddr[addr]
	if !present {
		return nil, false
	}
	return ifc.Device, true
}
