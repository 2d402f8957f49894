package fantree

// traffic.go holds the policy that turns the collected leaf addresses
// into a staggered train of echo requests from the root.  Staggering
// keeps the requests from firing at one simulated instant, which would
// otherwise pile address-resolution lookups and queue bursts onto the
// few links near the root.

import (
	"fmt"
	"github.com/iti/evt/evtm"
)

// DefaultDelayUnit sets the spacing between consecutive request starts:
// successive selected targets fire 1/DefaultDelayUnit seconds apart
const DefaultDelayUnit = 10000

// DefaultPcktLen is the request payload size
const DefaultPcktLen = 1024

// DefaultPort is the port responders listen on and requests target
const DefaultPort = 9

// StaggerOffset returns the start-time offset of the selected entry at
// construction position pos.  Selected positions are two apart, so
// consecutive requests land 1/delayUnit seconds apart.
func StaggerOffset(pos, delayUnit int) float64 {
	return float64(pos-1) / float64(2*delayUnit)
}

// SelectResponders returns the entries carrying responder-side addresses,
// in construction order.  Entries alternate parent,child sides without
// interruption, so the result is exactly the entries at odd construction
// positions.
func SelectResponders(leafAddrs []LeafAddr) []LeafAddr {
	sel := make([]LeafAddr, 0, len(leafAddrs)/2)
	for _, entry := range leafAddrs {
		if entry.Side == ChildSide {
			sel = append(sel, entry)
		}
	}
	return sel
}

// CreateEchoSweep creates one echo request per responder-side leaf entry.
// The entry at construction position pos fires at window.Start plus
// StaggerOffset(pos, delayUnit); every request's window closes at
// window.End.  Nothing touches an event engine here, so the requests can
// still be reconfigured before registration.  An empty address collection
// creates nothing and is not an error.
func CreateEchoSweep(ep *EchoPortal, initiator *Node, port int,
	leafAddrs []LeafAddr, window Window, delayUnit, pcktLen int) ([]*EchoRequest, error) {

	if err := checkPort(port); err != nil {
		return nil, err
	}
	if err := window.check(); err != nil {
		return nil, err
	}
	if delayUnit < 1 {
		return nil, fmt.Errorf("delay unit %d is not positive", delayUnit)
	}
	if pcktLen < 1 {
		return nil, fmt.Errorf("packet length %d is not positive", pcktLen)
	}

	sel := SelectResponders(leafAddrs)
	reqs := make([]*EchoRequest, 0, len(sel))
	if len(sel) == 0 {
		return reqs, nil
	}

	initiator.Role = RoleInitiator
	initiator.AddGroup("initiators")

	for _, entry := range sel {
		req := new(EchoRequest)
		req.Name = fmt.Sprintf("echo->%s:%d", entry.Addr, port)
		req.ID = initiator.tree.nxtID()
		req.Node = initiator
		req.DstAddr = entry.Addr
		req.Port = port
		req.PcktLen = pcktLen
		req.Pos = entry.Pos
		req.Stagger = StaggerOffset(entry.Pos, delayUnit)
		req.Start = window.Start + req.Stagger
		req.Window = window
		req.Portal = ep
		req.Trace = ep.tm.Active()

		initiator.State.Apps += 1
		ep.tm.AddName(req.ID, req.Name, "request")
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// ScheduleEchoSweep creates the request train and registers every
// request's start and stop instants with the engine
func ScheduleEchoSweep(evtMgr *evtm.EventManager, ep *EchoPortal, initiator *Node, port int,
	leafAddrs []LeafAddr, window Window, delayUnit, pcktLen int) ([]*EchoRequest, error) {

	now := evtMgr.CurrentSeconds()
	if window.Start < now {
		return nil, fmt.Errorf("initiator window opens at %g, before the current time %g", window.Start, now)
	}

	reqs, err := CreateEchoSweep(ep, initiator, port, leafAddrs, window, delayUnit, pcktLen)
	if err != nil {
		return nil, err
	}
	for _, req := range reqs {
		err = registerRequest(evtMgr, req)
		if err != nil {
			return nil, err
		}
	}
	return reqs, nil
}
