package fantree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeMatchParam(t *testing.T) {
	tree := workedExampleTree(t)
	root := tree.Root

	require.True(t, root.matchParam("name", root.Name))
	require.False(t, root.matchParam("name", "someone else"))
	require.True(t, root.matchParam("role", "unset"))

	leaf := tree.Leaves()[0]
	require.True(t, leaf.matchParam("role", "responder"))
	require.True(t, leaf.matchParam("group", "responders"))
	require.False(t, leaf.matchParam("group", "initiators"))

	// unknown attributes never match
	require.False(t, root.matchParam("color", "blue"))
}

func TestNodeAddGroupDedupes(t *testing.T) {
	tree := workedExampleTree(t)
	nd := tree.Root

	nd.AddGroup("observers")
	nd.AddGroup("observers")
	count := 0
	for _, grp := range nd.Groups {
		if grp == "observers" {
			count += 1
		}
	}
	require.Equal(t, 1, count)
}

func TestNodeSetParamTrace(t *testing.T) {
	tree := workedExampleTree(t)
	nd := tree.Root
	require.False(t, nd.State.Trace)

	nd.setParam("trace", valueStruct{boolValue: true})
	require.True(t, nd.State.Trace)
}

func TestIntrfcMatchParam(t *testing.T) {
	tree := workedExampleTree(t)

	ifc, present := tree.IntrfcByAddr["10.1.1.2"]
	require.True(t, present)

	require.True(t, ifc.matchParam("addr", "10.1.1.2"))
	require.True(t, ifc.matchParam("name", ifc.Name))
	require.True(t, ifc.matchParam("devname", ifc.Device.Name))
	require.False(t, ifc.matchParam("addr", "10.9.9.9"))
	require.False(t, ifc.matchParam("speed", "fast"))
}

func TestLinkMatchParam(t *testing.T) {
	tree := workedExampleTree(t)
	lnk := tree.Links[0]

	require.True(t, lnk.matchParam("subnet", lnk.Subnet.String()))
	require.True(t, lnk.matchParam("name", lnk.paramObjName()))
	require.False(t, lnk.matchParam("subnet", "172.16.0.0"))
	require.False(t, lnk.matchParam("group", "backbone"))
}

func TestLinkSetParam(t *testing.T) {
	tree := workedExampleTree(t)
	lnk := tree.Links[0]

	lnk.setParam("rate", valueStruct{stringValue: "10Gbps"})
	lnk.setParam("delay", valueStruct{stringValue: "5ms"})
	lnk.setParam("queue", valueStruct{intValue: 64})
	require.Equal(t, "10Gbps", lnk.Rate)
	require.Equal(t, "5ms", lnk.Delay)
	require.Equal(t, 64, lnk.QueueDepth)
}

func TestLinkEndpointsAreCabled(t *testing.T) {
	tree := workedExampleTree(t)

	for _, lnk := range tree.Links {
		require.Same(t, lnk.ParentIntrfc.Cable, lnk.ChildIntrfc)
		require.Same(t, lnk.ChildIntrfc.Cable, lnk.ParentIntrfc)
		require.Same(t, lnk.ParentIntrfc.Device, lnk.Parent)
		require.Same(t, lnk.ChildIntrfc.Device, lnk.Child)
		require.Equal(t, lnk.Level, lnk.Parent.Level)
		require.Equal(t, lnk.Level-1, lnk.Child.Level)
	}
}

func TestTreeLookupMaps(t *testing.T) {
	tree := workedExampleTree(t)

	for _, nd := range tree.Nodes {
		require.Same(t, nd, tree.NodeByID[nd.ID])
		require.Same(t, nd, tree.NodeByName[nd.Name])
	}
	for _, lnk := range tree.Links {
		require.Same(t, lnk, tree.LinkByID[lnk.ID])
		require.Same(t, lnk.ParentIntrfc, tree.IntrfcByID[lnk.ParentIntrfc.ID])
	}
}

func TestTreeIDsAreTreeScoped(t *testing.T) {
	first := workedExampleTree(t)
	second := workedExampleTree(t)

	// two builds mint the same id sequence independently
	require.Equal(t, first.Root.ID, second.Root.ID)
	require.Equal(t, len(first.Nodes), len(second.Nodes))
}

func TestNodeRoleStrConversions(t *testing.T) {
	require.Equal(t, RoleResponder, NodeRoleFromStr("responder"))
	require.Equal(t, RoleResponder, NodeRoleFromStr("Responder"))
	require.Equal(t, RoleInitiator, NodeRoleFromStr("initiator"))
	require.Equal(t, RoleUnset, NodeRoleFromStr("bystander"))

	require.Equal(t, "responder", NodeRoleToStr(RoleResponder))
	require.Equal(t, "initiator", NodeRoleToStr(RoleInitiator))
	require.Equal(t, "unset", NodeRoleToStr(RoleUnset))
}

func TestDefaultNames(t *testing.T) {
	require.Equal(t, "node(worked).0", DefaultNodeName("worked", 0))
	require.Equal(t, "intrfc@node(worked).0[.1]", DefaultIntrfcName("node(worked).0", 1))
}
