package fantree

// portal.go holds the seam between the echo applications and the event
// engine.  The portal places a message at its destination after a latency
// derived from the route's hop count; it does not simulate transit, queue
// occupancy, or loss, all of which belong to an engine that models links.

import (
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"math"
)

// a rtnRecord saves the event handler to call when a reply returns to the
// sender of a request, and the node where the request originated
type rtnRecord struct {
	rtnCxt  any
	rtnFunc evtm.EventHandlerFunction
	srcID   int
	pckts   int
}

// An EchoPortal carries echo messages between applications.  Delivery
// latency is hop count times HopLatency, plus an exponential draw from
// the sender's rng stream when JitterMean is positive; with the default
// JitterMean of zero the timeline stays deterministic.
type EchoPortal struct {
	Name string
	ID   int

	tree   *Tree
	routes *RouteTable
	ei     *EchoInstaller
	tm     *TraceManager

	HopLatency float64
	JitterMean float64
	Trace      bool

	msgID          int
	connectID      int
	rtnByConnectID map[int]*rtnRecord

	Sent          int
	Delivered     int
	Returned      int
	Undeliverable int
}

// CreateEchoPortal is a constructor
func CreateEchoPortal(nt *Tree, routes *RouteTable, ei *EchoInstaller, tm *TraceManager,
	hopLatency, jitterMean float64) *EchoPortal {

	ep := new(EchoPortal)
	ep.Name = "portal(" + nt.Name + ")"
	ep.ID = nt.nxtID()
	ep.tree = nt
	ep.routes = routes
	ep.ei = ei
	ep.tm = tm
	ep.HopLatency = hopLatency
	ep.JitterMean = jitterMean
	ep.Trace = tm.Active()
	ep.rtnByConnectID = make(map[int]*rtnRecord)
	tm.AddName(ep.ID, ep.Name, "portal")
	return ep
}

// every message the portal carries gets a unique id
func (ep *EchoPortal) nxtMsgID() int {
	ep.msgID += 1
	return ep.msgID
}

// every request-reply exchange gets a unique connection id
func (ep *EchoPortal) nxtConnectID() int {
	ep.connectID += 1
	return ep.connectID
}

// matchParam determines whether the portal has the attribute named with the value given
func (ep *EchoPortal) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return ep.Name == attrbValue
	}
	return false
}

// setParam gives a value to a portal parameter
func (ep *EchoPortal) setParam(param string, value valueStruct) {
	switch param {
	case "hoplatency":
		ep.HopLatency = value.floatValue
	case "jittermean":
		ep.JitterMean = value.floatValue
	case "trace":
		ep.Trace = value.boolValue
	}
}

// paramObjName helps EchoPortal satisfy the paramObj interface
func (ep *EchoPortal) paramObjName() string {
	return ep.Name
}

// LogPortalEvent posts a trace record for the portal when tracing is on
func (ep *EchoPortal) LogPortalEvent(t vrtime.Time, em *EchoMsg, op string) {
	if !ep.Trace {
		return
	}
	AddEchoTrace(ep.tm, t, em, ep.ID, op)
}

// latency places a delivery time on the path between two nodes
func (ep *EchoPortal) latency(src, dst *Node) float64 {
	hops := ep.routes.HopCount(src.ID, dst.ID)
	lat := float64(hops) * ep.HopLatency
	if ep.JitterMean > 0.0 {
		u01 := src.DevRng().RandU01()
		lat += -math.Log(1.0-u01) * ep.JitterMean
	}
	return lat
}

// Send carries a request from its initiator to the responder at the
// target address.  A target without a bound interface or a listening
// responder leaves the message undeliverable; the request's window end
// is the only notice the initiator gets, as with a lost packet.
func (ep *EchoPortal) Send(evtMgr *evtm.EventManager, req *EchoRequest) {
	em := new(EchoMsg)
	em.MsgID = ep.nxtMsgID()
	em.ConnectID = ep.nxtConnectID()
	em.SrcID = req.Node.ID
	em.DstAddr = req.DstAddr
	em.Port = req.Port
	em.PcktLen = req.PcktLen
	em.SendTime = evtMgr.CurrentSeconds()

	rtnRec := new(rtnRecord)
	*rtnRec = rtnRecord{rtnCxt: req, rtnFunc: arriveEchoReply, srcID: req.Node.ID, pckts: 1}
	ep.rtnByConnectID[em.ConnectID] = rtnRec

	ep.Sent += 1

	dstNode, present := ep.tree.NodeByAddr(em.DstAddr)
	if !present {
		ep.Undeliverable += 1
		ep.LogPortalEvent(evtMgr.CurrentTime(), em, "unroutable")
		return
	}
	resp := ep.ei.responderAt(dstNode, em.Port)
	if resp == nil {
		ep.Undeliverable += 1
		ep.LogPortalEvent(evtMgr.CurrentTime(), em, "unserved")
		return
	}

	ep.Delivered += 1
	ep.LogPortalEvent(evtMgr.CurrentTime(), em, "enter")
	evtMgr.Schedule(resp, em, arriveEchoRequest, vrtime.SecondsToTime(ep.latency(req.Node, dstNode)))
}

// Return carries a reply from a responder back to the node that opened
// the connection.  Each connection carries exactly one reply; afterwards
// its return record is gone.
func (ep *EchoPortal) Return(evtMgr *evtm.EventManager, from *Node, em *EchoMsg) {
	rtnRec, present := ep.rtnByConnectID[em.ConnectID]
	if !present {
		ep.Undeliverable += 1
		ep.LogPortalEvent(evtMgr.CurrentTime(), em, "orphan")
		return
	}
	src := ep.tree.NodeByID[rtnRec.srcID]

	ep.Returned += 1
	ep.LogPortalEvent(evtMgr.CurrentTime(), em, "exit")
	evtMgr.Schedule(rtnRec.rtnCxt, em, rtnRec.rtnFunc, vrtime.SecondsToTime(ep.latency(from, src)))
	delete(ep.rtnByConnectID, em.ConnectID)
}

// Pending reports the number of connections still waiting on a reply
func (ep *EchoPortal) Pending() int {
	return len(ep.rtnByConnectID)
}
