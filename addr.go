package fantree

// addr.go holds the subnet address encoding and the allocator that hands
// out one address block per link in the fanout tree

import (
	"fmt"
)

// DefaultBaseOffset is added to a link's tree level to form the first
// octet of its subnet address
const DefaultBaseOffset = 9

// SubnetMask is the mask shared by every subnet the allocator hands out
const SubnetMask = "255.255.255.0"

// SubnetAddr identifies the address block assigned to a single link.
// The octets encode the link's position in the tree: A is the base offset
// plus the link's level, B is the branch counter value when the link's
// address was assigned, and C is the link's index among its siblings plus
// one.  The host octet of the block identifier is always zero.
type SubnetAddr struct {
	A int `json:"a" yaml:"a"`
	B int `json:"b" yaml:"b"`
	C int `json:"c" yaml:"c"`
}

// String gives the dotted form of the block identifier, e.g. "10.1.2.0"
func (sn SubnetAddr) String() string {
	return fmt.Sprintf("%d.%d.%d.0", sn.A, sn.B, sn.C)
}

// Host gives the dotted form of host number h within the subnet
func (sn SubnetAddr) Host(h int) string {
	return fmt.Sprintf("%d.%d.%d.%d", sn.A, sn.B, sn.C, h)
}

// AddrSide tells which end of a link an address entry belongs to
type AddrSide int

const (
	ParentSide AddrSide = iota
	ChildSide
)

// AddrSideToStr returns the string name of an AddrSide value
func AddrSideToStr(side AddrSide) string {
	switch side {
	case ParentSide:
		return "parent"
	case ChildSide:
		return "child"
	}
	return "parent"
}

// AddrSideFromStr returns the AddrSide value named by the input string
func AddrSideFromStr(side string) AddrSide {
	switch side {
	case "child", "Child":
		return ChildSide
	default:
		return ParentSide
	}
}

// AddrRecord describes the binding of a subnet to a link: the parent-side
// interface receives host 1 and the child-side interface host 2
type AddrRecord struct {
	Subnet     SubnetAddr
	ParentAddr string
	ChildAddr  string
}

// LeafAddr is one entry in the ordered collection of addresses gathered
// when construction reaches the deepest level.  Pos is the entry's index
// in construction order.  Entries are appended in parent,child order, so
// Side and the parity of Pos always agree.
type LeafAddr struct {
	Addr string
	Pos  int
	Side AddrSide
	Dev  *Node
}

// AddrAllocator produces the subnet address for each link from the
// (level, branch, linkIndex) triple describing the link's position.
// The encoding is injective over inputs whose octets stay in range,
// and every block handed out is recorded, so a replayed triple panics.
type AddrAllocator struct {
	BaseOffset int
	assigned   map[SubnetAddr]bool
}

// CreateAddrAllocator is a constructor.  A non-positive baseOffset selects
// the default.
func CreateAddrAllocator(baseOffset int) *AddrAllocator {
	ala := new(AddrAllocator)
	if baseOffset <= 0 {
		baseOffset = DefaultBaseOffset
	}
	ala.BaseOffset = baseOffset
	ala.assigned = make(map[SubnetAddr]bool)
	return ala
}

// Allocate returns the subnet address encoding the (level, branch,
// linkIndex) triple.  An octet pushed outside 0..255 means the topology
// asked for more blocks than the encoding can represent.
func (ala *AddrAllocator) Allocate(level, branch, linkIndex int) (SubnetAddr, error) {
	sn := SubnetAddr{A: ala.BaseOffset + level, B: branch, C: linkIndex + 1}
	if sn.A > 255 || sn.B > 255 || sn.C > 255 {
		return SubnetAddr{}, fmt.Errorf("subnet %s overflows an address octet at (level %d, branch %d, link %d)",
			sn.String(), level, branch, linkIndex)
	}

	// the encoding guarantees this cannot trigger; a hit means the caller
	// replayed a triple
	if ala.assigned[sn] {
		panic(fmt.Errorf("subnet %s assigned twice", sn.String()))
	}
	ala.assigned[sn] = true
	return sn, nil
}

// Assigned reports the number of subnets handed out so far
func (ala *AddrAllocator) Assigned() int {
	return len(ala.assigned)
}
