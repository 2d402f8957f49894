package fantree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// a portal over the given tree with deterministic latency, for tests
// that never run the engine
func testPortal(t *testing.T, tree *Tree) *EchoPortal {
	t.Helper()
	routes := BuildRoutes(tree)
	ei := CreateEchoInstaller(nil)
	return CreateEchoPortal(tree, routes, ei, CreateTraceManager("test", false), 0.001, 0.0)
}

func TestStaggerOffset(t *testing.T) {
	// the first selected entry fires with the window, the rest follow
	// 1/delayUnit apart
	require.Equal(t, 0.0, StaggerOffset(1, 10000))
	require.Equal(t, 2.0/20000.0, StaggerOffset(3, 10000))
	require.Equal(t, 4.0/20000.0, StaggerOffset(5, 10000))

	require.Equal(t, 2.0/200.0, StaggerOffset(3, 100))
}

func TestSelectRespondersMatchesOddPositions(t *testing.T) {
	tree := workedExampleTree(t)

	sel := SelectResponders(tree.LeafAddrs)

	// alternation makes side selection and position parity the same filter
	byParity := make([]LeafAddr, 0)
	for idx := 1; idx < len(tree.LeafAddrs); idx += 2 {
		byParity = append(byParity, tree.LeafAddrs[idx])
	}

	require.Equal(t, len(byParity), len(sel))
	for idx := range sel {
		require.Equal(t, byParity[idx].Addr, sel[idx].Addr)
		require.Equal(t, ChildSide, sel[idx].Side)
		require.Equal(t, 1, sel[idx].Pos%2)
		require.Equal(t, 0, sel[idx].Dev.Level)
	}
}

func TestSelectRespondersOnePerLeafLink(t *testing.T) {
	cfg := CreateFanoutCfg("sel", 3, 2)
	tree, err := BuildTree(cfg)
	require.NoError(t, err)

	// every deepest-tier link contributes exactly one responder-side entry
	require.Equal(t, 9, len(SelectResponders(tree.LeafAddrs)))
}

func TestCreateEchoSweep(t *testing.T) {
	tree := workedExampleTree(t)
	ep := testPortal(t, tree)
	window := Window{Start: 2.0, End: 2000.0}

	reqs, err := CreateEchoSweep(ep, tree.Root, DefaultPort, tree.LeafAddrs, window, DefaultDelayUnit, DefaultPcktLen)
	require.NoError(t, err)
	require.Equal(t, 4, len(reqs))

	// the initiator role lands on the node the sweep was aimed from
	require.Equal(t, RoleInitiator, tree.Root.Role)
	require.Contains(t, tree.Root.Groups, "initiators")
	require.Equal(t, 4, tree.Root.State.Apps)

	sel := SelectResponders(tree.LeafAddrs)
	for idx, req := range reqs {
		require.Equal(t, sel[idx].Addr, req.DstAddr)
		require.Equal(t, fmt.Sprintf("echo->%s:%d", sel[idx].Addr, DefaultPort), req.Name)
		require.Equal(t, sel[idx].Pos, req.Pos)
		require.Equal(t, DefaultPort, req.Port)
		require.Equal(t, DefaultPcktLen, req.PcktLen)
		require.Equal(t, window, req.Window)
		require.Equal(t, StaggerOffset(req.Pos, DefaultDelayUnit), req.Stagger)
		require.Equal(t, window.Start+req.Stagger, req.Start)
		require.Same(t, tree.Root, req.Node)
		require.Same(t, ep, req.Portal)
	}

	// consecutive requests fire 1/delayUnit apart, strictly increasing
	for idx := 1; idx < len(reqs); idx++ {
		require.Greater(t, reqs[idx].Start, reqs[idx-1].Start)
		require.InDelta(t, 1.0/float64(DefaultDelayUnit), reqs[idx].Start-reqs[idx-1].Start, 1e-12)
	}
}

func TestCreateEchoSweepValidation(t *testing.T) {
	tree := workedExampleTree(t)
	ep := testPortal(t, tree)
	window := Window{Start: 2.0, End: 2000.0}

	_, err := CreateEchoSweep(ep, tree.Root, 0, tree.LeafAddrs, window, DefaultDelayUnit, DefaultPcktLen)
	require.Error(t, err)

	_, err = CreateEchoSweep(ep, tree.Root, DefaultPort, tree.LeafAddrs, Window{Start: 5.0, End: 1.0}, DefaultDelayUnit, DefaultPcktLen)
	require.Error(t, err)

	_, err = CreateEchoSweep(ep, tree.Root, DefaultPort, tree.LeafAddrs, window, 0, DefaultPcktLen)
	require.Error(t, err)

	_, err = CreateEchoSweep(ep, tree.Root, DefaultPort, tree.LeafAddrs, window, DefaultDelayUnit, 0)
	require.Error(t, err)
}

func TestCreateEchoSweepEmptyCollection(t *testing.T) {
	tree := workedExampleTree(t)
	ep := testPortal(t, tree)

	reqs, err := CreateEchoSweep(ep, tree.Root, DefaultPort, nil, Window{Start: 2.0, End: 2000.0},
		DefaultDelayUnit, DefaultPcktLen)
	require.NoError(t, err)
	require.Empty(t, reqs)

	// no targets means the would-be initiator keeps whatever role it had
	require.Equal(t, RoleUnset, tree.Root.Role)
}
