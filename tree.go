package fantree

// tree.go holds the recursive construction of the fanout tree: node and
// link creation, address binding, responder installation at the deepest
// level, and the collection of leaf addresses handed to the traffic layer

import (
	"fmt"
)

// ResponderInstaller attaches the responder role to the nodes of the
// deepest tier as construction reaches them.  The engine-backed
// implementation lives in app.go; a role-only implementation below serves
// builds that never run.
type ResponderInstaller interface {
	InstallResponders(nodes []*Node, port int, window Window) error
}

// RoleInstaller marks nodes as responders without registering anything
// with an event engine
type RoleInstaller struct{}

// InstallResponders marks each node's role, satisfying ResponderInstaller
func (ri *RoleInstaller) InstallResponders(nodes []*Node, port int, window Window) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if err := window.check(); err != nil {
		return err
	}
	for _, nd := range nodes {
		nd.Role = RoleResponder
		nd.AddGroup("responders")
	}
	return nil
}

// checkPort validates a transport port number
func checkPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d outside the valid range 1..65535", port)
	}
	return nil
}

// TreeBuilder drives one construction.  It owns the allocator and the
// tree being built; the branch counter is not stored here, it threads
// through the recursion as an argument and return value.
type TreeBuilder struct {
	cfg       *FanoutCfg
	installer ResponderInstaller
	alloc     *AddrAllocator
	tm        *TraceManager
	tree      *Tree
}

// CreateTreeBuilder is a constructor.  A nil installer gets the role-only
// default, a nil trace manager an inactive one.
func CreateTreeBuilder(cfg *FanoutCfg, installer ResponderInstaller, tm *TraceManager) *TreeBuilder {
	tb := new(TreeBuilder)
	tb.cfg = cfg
	if installer == nil {
		installer = &RoleInstaller{}
	}
	tb.installer = installer
	if tm == nil {
		tm = CreateTraceManager(cfg.Name, false)
	}
	tb.tm = tm
	tb.alloc = CreateAddrAllocator(cfg.BaseOffset)
	return tb
}

// Build validates the configuration, creates the root, and recursively
// constructs the full tree.  On any error the partial tree is discarded
// and only the error returns; a tree with a half-assigned address space
// must never escape.
func (tb *TreeBuilder) Build() (*Tree, error) {
	err := tb.cfg.Validate()
	if err != nil {
		return nil, err
	}

	tb.tree = createTree(tb.cfg.Name, tb.cfg.Branching, tb.cfg.Depth)
	root := tb.tree.createNode(tb.cfg.Depth)
	tb.tree.Root = root
	tb.tm.AddName(root.ID, root.Name, "node")

	// the branch counter starts at 1 and threads through the recursion
	_, leaf, err := tb.subtree(root, tb.cfg.Depth, 1)
	if err != nil {
		tb.tree = nil
		return nil, err
	}

	// positions are final only once the full sequence is assembled
	for idx := range leaf {
		leaf[idx].Pos = idx
	}
	tb.tree.LeafAddrs = leaf
	return tb.tree, nil
}

// subtree grows one tier of children below parent and recurses below
// each of them, depth-first in sibling order.  It returns the branch
// counter value left after the subtree completes, and the leaf address
// entries gathered beneath parent in construction order.  A level of
// zero is the base case: nothing is created and the counter passes
// through untouched.
func (tb *TreeBuilder) subtree(parent *Node, level int, branch int) (int, []LeafAddr, error) {
	if level == 0 {
		return branch, nil, nil
	}

	// create this tier's nodes first, then the links to them,
	// so that ids and names group by tier
	children := make([]*Node, tb.cfg.Branching)
	links := make([]*Link, tb.cfg.Branching)
	for idx := 0; idx < tb.cfg.Branching; idx++ {
		children[idx] = tb.tree.createNode(level - 1)
		tb.tm.AddName(children[idx].ID, children[idx].Name, "node")
	}
	for idx := 0; idx < tb.cfg.Branching; idx++ {
		links[idx] = tb.tree.connectNodes(parent, children[idx], level, idx)
		links[idx].Rate = tb.cfg.LinkRate
		links[idx].Delay = tb.cfg.LinkDelay
		links[idx].QueueDepth = tb.cfg.LinkQueue
		tb.tm.AddName(links[idx].ID, links[idx].paramObjName(), "link")
	}

	// children of a level-1 invocation are the deepest tier; they take
	// the responder role before any of their addresses are bound
	if level == 1 && tb.cfg.Branching > 0 {
		err := tb.installer.InstallResponders(children, tb.cfg.Port, tb.cfg.RespWindow())
		if err != nil {
			return branch, nil, err
		}
	}

	leaf := make([]LeafAddr, 0)
	for idx, lnk := range links {
		sn, err := tb.alloc.Allocate(level, branch, idx)
		if err != nil {
			return branch, nil, err
		}
		rec := tb.tree.bindSubnet(lnk, sn)
		AddBuildTrace(tb.tm, lnk.ID, "subnet", level, branch, sn.String())

		if level == 1 {
			leaf = append(leaf,
				LeafAddr{Addr: rec.ParentAddr, Side: ParentSide, Dev: parent},
				LeafAddr{Addr: rec.ChildAddr, Side: ChildSide, Dev: children[idx]})
		}

		// the recursion below this child advances the counter, so the
		// next sibling's address sees the updated value
		var below []LeafAddr
		branch, below, err = tb.subtree(children[idx], level-1, branch)
		if err != nil {
			return branch, nil, err
		}
		leaf = append(leaf, below...)
	}

	// one increment per invocation that grew children, after all of them
	branch += 1
	return branch, leaf, nil
}

// BuildTree constructs a tree from the configuration without touching an
// event engine: responders are marked by role only.  Suited to tooling
// that wants the topology and address plan alone.
func BuildTree(cfg *FanoutCfg) (*Tree, error) {
	tb := CreateTreeBuilder(cfg, nil, nil)
	return tb.Build()
}
