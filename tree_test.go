package fantree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// the worked example: two children per node, two tiers of links
func workedExampleTree(t *testing.T) *Tree {
	t.Helper()
	cfg := CreateFanoutCfg("worked", 2, 2)
	tree, err := BuildTree(cfg)
	require.NoError(t, err)
	return tree
}

func TestWorkedExampleSubnets(t *testing.T) {
	tree := workedExampleTree(t)

	subnets := make([]string, 0)
	for _, sn := range tree.Subnets() {
		subnets = append(subnets, sn.String())
	}

	// the deepest links draw from 10.x.y.0, the tier above from 11.x.y.0,
	// with the branch counter advancing depth-first under each sibling
	require.ElementsMatch(t,
		[]string{"11.1.1.0", "11.2.2.0", "10.1.1.0", "10.1.2.0", "10.2.1.0", "10.2.2.0"},
		subnets)
}

func TestWorkedExampleLeafAddrOrder(t *testing.T) {
	tree := workedExampleTree(t)

	expected := []string{
		"10.1.1.1", "10.1.1.2",
		"10.1.2.1", "10.1.2.2",
		"10.2.1.1", "10.2.1.2",
		"10.2.2.1", "10.2.2.2",
	}

	require.Equal(t, len(expected), len(tree.LeafAddrs))
	for idx, entry := range tree.LeafAddrs {
		require.Equal(t, expected[idx], entry.Addr)
		require.Equal(t, idx, entry.Pos)

		// entries alternate parent,child starting with the parent side
		if idx%2 == 0 {
			require.Equal(t, ParentSide, entry.Side)
			require.Equal(t, 1, entry.Dev.Level)
		} else {
			require.Equal(t, ChildSide, entry.Side)
			require.Equal(t, 0, entry.Dev.Level)
		}
	}
}

func TestTreeShapeCounts(t *testing.T) {
	cfg := CreateFanoutCfg("shape", 3, 2)
	tree, err := BuildTree(cfg)
	require.NoError(t, err)

	// 1 root, 3 mid-tier nodes, 9 leaves
	require.Equal(t, 13, len(tree.Nodes))
	require.Equal(t, 12, len(tree.Links))
	require.Equal(t, 9, len(tree.Leaves()))

	// one leaf entry per link end at the deepest tier
	require.Equal(t, 18, len(tree.LeafAddrs))
}

func TestSubnetsUniqueAcrossTree(t *testing.T) {
	cfg := CreateFanoutCfg("unique", 4, 3)
	tree, err := BuildTree(cfg)
	require.NoError(t, err)

	// 4 + 16 + 64 links, each with its own block
	require.Equal(t, 84, len(tree.Links))

	seen := make(map[string]bool)
	for _, sn := range tree.Subnets() {
		s := sn.String()
		require.False(t, seen[s], "subnet %s assigned twice", s)
		seen[s] = true
	}
	require.Equal(t, 84, len(seen))

	// the two interface addresses of every link are distinct as well
	addrs := make(map[string]bool)
	for _, lnk := range tree.Links {
		for _, addr := range []string{lnk.ParentIntrfc.Addr, lnk.ChildIntrfc.Addr} {
			require.False(t, addrs[addr], "address %s assigned twice", addr)
			addrs[addr] = true
		}
	}
}

func TestRebuildIsDeterministic(t *testing.T) {
	cfg := CreateFanoutCfg("det", 3, 3)

	first, err := BuildTree(cfg)
	require.NoError(t, err)
	second, err := BuildTree(cfg)
	require.NoError(t, err)

	require.Equal(t, len(first.LeafAddrs), len(second.LeafAddrs))
	for idx := range first.LeafAddrs {
		require.Equal(t, first.LeafAddrs[idx].Addr, second.LeafAddrs[idx].Addr)
		require.Equal(t, first.LeafAddrs[idx].Side, second.LeafAddrs[idx].Side)
	}

	firstSubnets := first.Subnets()
	secondSubnets := second.Subnets()
	require.Equal(t, len(firstSubnets), len(secondSubnets))
	for idx := range firstSubnets {
		require.Equal(t, firstSubnets[idx], secondSubnets[idx])
	}
}

func TestDepthZeroBuildsLoneNode(t *testing.T) {
	cfg := CreateFanoutCfg("flat", 3, 0)
	tree, err := BuildTree(cfg)
	require.NoError(t, err)

	require.Equal(t, 1, len(tree.Nodes))
	require.Equal(t, 0, len(tree.Links))
	require.Empty(t, tree.LeafAddrs)
	require.Empty(t, tree.Leaves())
}

func TestBranchingZeroBuildsLoneNode(t *testing.T) {
	cfg := CreateFanoutCfg("skinny", 0, 3)
	tree, err := BuildTree(cfg)
	require.NoError(t, err)

	require.Equal(t, 1, len(tree.Nodes))
	require.Equal(t, 0, len(tree.Links))
	require.Empty(t, tree.LeafAddrs)
}

func TestLeavesCarryResponderRole(t *testing.T) {
	tree := workedExampleTree(t)

	for _, leaf := range tree.Leaves() {
		require.Equal(t, RoleResponder, leaf.Role)
		require.Contains(t, leaf.Groups, "responders")
	}
	require.Equal(t, RoleUnset, tree.Root.Role)
}

func TestBuildFailsWhenBranchCounterOverflows(t *testing.T) {
	// passes the eager octet checks (first octet up to 18, link octet 2)
	// but the depth-first branch counter passes 255 while the root's
	// second subtree is still to be addressed
	cfg := CreateFanoutCfg("overflow", 2, 9)

	tree, err := BuildTree(cfg)
	require.Error(t, err)
	require.Nil(t, tree)
}

func TestBuildRejectsInvalidCfg(t *testing.T) {
	cfg := CreateFanoutCfg("bad", -1, 2)
	_, err := BuildTree(cfg)
	require.Error(t, err)

	cfg = CreateFanoutCfg("bad", 2, 2)
	cfg.Port = 0
	_, err = BuildTree(cfg)
	require.Error(t, err)

	cfg = CreateFanoutCfg("bad", 2, 2)
	cfg.RespStart = 10.0
	cfg.RespEnd = 5.0
	_, err = BuildTree(cfg)
	require.Error(t, err)

	// first octet would leave the address range
	cfg = CreateFanoutCfg("bad", 2, 250)
	_, err = BuildTree(cfg)
	require.Error(t, err)
}

func TestBuildTraceRecordsSubnetAssignments(t *testing.T) {
	cfg := CreateFanoutCfg("traced", 2, 2)
	tm := CreateTraceManager("traced", true)
	tb := CreateTreeBuilder(cfg, nil, tm)

	tree, err := tb.Build()
	require.NoError(t, err)

	// one build record per bound link, all grouped under connection 0
	require.Equal(t, len(tree.Links), len(tm.Traces[0]))
	for _, trc := range tm.Traces[0] {
		require.Equal(t, "build", trc.TraceType)
	}

	// the name dictionary covers every node and link
	require.Equal(t, len(tree.Nodes)+len(tree.Links), len(tm.NameByID))
}

func TestNodeLookupByAddr(t *testing.T) {
	tree := workedExampleTree(t)

	nd, present := tree.NodeByAddr("10.1.1.2")
	require.True(t, present)
	require.Equal(t, 0, nd.Level)

	_, present = tree.NodeByAddr("192.168.0.1")
	require.False(t, present)
}
