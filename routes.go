package fantree

// routes.go computes and caches shortest-path routes between tree devices

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The approach is to convert the built tree into the data structures
// used by a graph package with built-in path discovery algorithms.
// Weighting each edge by 1, a shortest path minimizes the number of
// hops, which in a tree is the unique path anyway.
//   The Dijkstra algorithm computes a tree of shortest paths from a
// named node, so if we want the shortest path from src to dst we either
// compute such a tree rooted in src or look it up from a cached version
// of an already computed tree.  Failing that we look for a cached tree
// rooted in dst, whose path to src is by symmetry the reversed path of
// what we want.

// rtEndpts keys a cached route by the device ids of its two ends
type rtEndpts struct {
	srcID, dstID int
}

// RouteTable holds the graph representation of a built tree and the
// shortest-path state computed over it
type RouteTable struct {
	tree *Tree

	// gNodes[i] is the graph representation of the device with id i
	gNodes map[int]simple.Node

	// connGraph is the graph module's form of the tree's connectivity
	connGraph graph.Graph

	// cachedSP saves computed shortest-path trees, keyed by the
	// device id of the tree root
	cachedSP map[int]path.Shortest

	// routeCache holds routes already discovered, so that they do not
	// need to be rediscovered
	routeCache map[rtEndpts][]int
}

// BuildRoutes converts the tree's links into a weighted directed graph
// and returns a route table ready for path queries
func BuildRoutes(nt *Tree) *RouteTable {
	rt := new(RouteTable)
	rt.tree = nt
	rt.gNodes = make(map[int]simple.Node)
	rt.cachedSP = make(map[int]path.Shortest)
	rt.routeCache = make(map[rtEndpts][]int)

	connGraph := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for nodeID := range nt.NodeByID {
		rt.gNodes[nodeID] = simple.Node(nodeID)
	}

	// every link is traversable in both directions, with weight 1 each way
	for _, lnk := range nt.Links {
		up := simple.WeightedEdge{F: rt.gNodes[lnk.Parent.ID], T: rt.gNodes[lnk.Child.ID], W: 1.0}
		connGraph.SetWeightedEdge(up)
		down := simple.WeightedEdge{F: rt.gNodes[lnk.Child.ID], T: rt.gNodes[lnk.Parent.ID], W: 1.0}
		connGraph.SetWeightedEdge(down)
	}
	rt.connGraph = connGraph
	return rt
}

// getSPTree returns the shortest path tree rooted in input argument 'from'.
// If the tree is found in the cache it is returned, if not it is computed,
// saved, and returned.
func (rt *RouteTable) getSPTree(from int) path.Shortest {
	spTree, present := rt.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(rt.gNodes[from], rt.connGraph)
	rt.cachedSP[from] = spTree
	return spTree
}

// convertNodeSeq extracts the device ids from a sequence of graph nodes
// (e.g. a path) and returns that list
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// RouteBetween returns the shortest path from the source device to the
// destination device, inclusive of both, as a sequence of device ids.
// An empty slice marks an unreachable destination.
func (rt *RouteTable) RouteBetween(srcID, dstID int) []int {
	endpoints := rtEndpts{srcID: srcID, dstID: dstID}

	// a route once discovered is never discovered again
	route, found := rt.routeCache[endpoints]
	if found {
		return route
	}

	// if we already have an spTree rooted in srcID we can use it
	spTree, present := rt.cachedSP[srcID]
	if present {
		nodeSeq, _ := spTree.To(int64(dstID))
		route = convertNodeSeq(nodeSeq)
	} else {
		// it may be that we already have a shortest path tree rooted in the
		// destination.  If so, by symmetry the path is the same, just reversed.
		spTree, present = rt.cachedSP[dstID]
		if present {
			revNodeSeq, _ := spTree.To(int64(srcID))
			revRoute := convertNodeSeq(revNodeSeq)
			lenR := len(revRoute)
			route = make([]int, 0, lenR)
			for idx := 0; idx < lenR; idx++ {
				route = append(route, revRoute[lenR-idx-1])
			}
		} else {
			// no tree rooted in either srcID or dstID, so make one rooted in srcID
			spTree = rt.getSPTree(srcID)
			nodeSeq, _ := spTree.To(int64(dstID))
			route = convertNodeSeq(nodeSeq)
		}
	}

	rt.routeCache[endpoints] = route
	return route
}

// HopCount returns the number of link traversals on the shortest path
// between the named devices.  A device reaches itself in zero hops.
func (rt *RouteTable) HopCount(srcID, dstID int) int {
	if srcID == dstID {
		return 0
	}
	route := rt.RouteBetween(srcID, dstID)
	if len(route) < 2 {
		return 0
	}
	return len(route) - 1
}

// ShowRoute returns a string that lists the names of all the devices on
// the shortest path between the named devices, in visit order
func (rt *RouteTable) ShowRoute(srcID, dstID int) string {
	route := rt.RouteBetween(srcID, dstID)
	sequence := make([]string, 0, len(route))
	for _, devID := range route {
		nd, present := rt.tree.NodeByID[devID]
		if !present {
			continue
		}
		sequence = append(sequence, nd.Name)
	}
	return strings.Join(sequence, ",")
}
