package fantree

// app.go holds the echo applications attached to the tree: responders
// listening at the deepest tier, and the request instances issued from
// the root toward them.  Creation and registration are separate steps:
// creation happens during construction and leaves the applications open
// to run-time configuration, registration hands their activation
// instants to the event engine.

import (
	"fmt"
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"golang.org/x/exp/slices"
)

// Window is a closed interval of simulated seconds within which an
// application is active
type Window struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// check reports a window whose bounds are negative or out of order
func (w Window) check() error {
	if w.Start < 0.0 || w.End < 0.0 {
		return fmt.Errorf("window [%g,%g] has a negative bound", w.Start, w.End)
	}
	if w.Start > w.End {
		return fmt.Errorf("window start %g exceeds its end %g", w.Start, w.End)
	}
	return nil
}

// In reports whether the instant t lies within the window
func (w Window) In(t float64) bool {
	return w.Start <= t && t <= w.End
}

// An EchoMsg passes through the portal between an initiator and a
// responder.  The same message turns around at the responder: the Reply
// flag flips and the send time stays, so the initiator can measure the
// round trip.
type EchoMsg struct {
	MsgID     int
	ConnectID int
	SrcID     int    // node id of the sender of the request
	DstAddr   string // interface address the request targets
	Port      int
	PcktLen   int
	Reply     bool
	SendTime  float64
}

// An EchoResponder answers a single request with a single reply while its
// window is open.  Requests arriving outside the window are dropped.
type EchoResponder struct {
	Name    string
	ID      int
	Node    *Node
	Port    int
	Window  Window
	Portal  *EchoPortal
	Active  bool
	Replies int
	Dropped int
	Trace   bool
}

// matchParam determines whether the responder has the attribute named with the value given
func (resp *EchoResponder) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return resp.Name == attrbValue
	case "node":
		return resp.Node.Name == attrbValue
	case "group":
		return slices.Contains(resp.Node.Groups, attrbValue)
	}
	return false
}

// setParam gives a value to a responder parameter
func (resp *EchoResponder) setParam(param string, value valueStruct) {
	switch param {
	case "port":
		resp.Port = value.intValue
	case "start":
		resp.Window.Start = value.floatValue
	case "end":
		resp.Window.End = value.floatValue
	case "trace":
		resp.Trace = value.boolValue
	}
}

// paramObjName helps EchoResponder satisfy the paramObj interface
func (resp *EchoResponder) paramObjName() string {
	return resp.Name
}

// LogEchoEvent posts a trace record for the responder when tracing is on
func (resp *EchoResponder) LogEchoEvent(t vrtime.Time, em *EchoMsg, op string) {
	if !resp.Trace {
		return
	}
	AddEchoTrace(resp.Portal.tm, t, em, resp.ID, op)
}

// An EchoRequest is one initiator application instance: a single request
// aimed at one target address, fired once at its computed start time.
// No retries and no repetition; Completed counts the reply if one returns
// inside the window.
type EchoRequest struct {
	Name      string
	ID        int
	Node      *Node // the initiating node
	DstAddr   string
	Port      int
	PcktLen   int
	Pos       int     // construction position of the targeted leaf entry
	Stagger   float64 // offset of the firing instant past the window start
	Start     float64 // absolute firing instant: window start plus stagger
	Window    Window
	Portal    *EchoPortal
	Sent      int
	Completed int
	Late      int
	RTT       float64
	Trace     bool
}

// matchParam determines whether the request has the attribute named with the value given
func (req *EchoRequest) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return req.Name == attrbValue
	case "node":
		return req.Node.Name == attrbValue
	case "dstaddr":
		return req.DstAddr == attrbValue
	case "group":
		return slices.Contains(req.Node.Groups, attrbValue)
	}
	return false
}

// setParam gives a value to a request parameter.  Moving the window start
// moves the firing instant with it; the stagger between requests is part
// of the traffic pattern and survives reconfiguration.
func (req *EchoRequest) setParam(param string, value valueStruct) {
	switch param {
	case "port":
		req.Port = value.intValue
	case "start":
		req.Window.Start = value.floatValue
		req.Start = req.Window.Start + req.Stagger
	case "end":
		req.Window.End = value.floatValue
	case "pcktlen":
		req.PcktLen = value.intValue
	case "trace":
		req.Trace = value.boolValue
	}
}

// paramObjName helps EchoRequest satisfy the paramObj interface
func (req *EchoRequest) paramObjName() string {
	return req.Name
}

// LogEchoEvent posts a trace record for the request when tracing is on
func (req *EchoRequest) LogEchoEvent(t vrtime.Time, em *EchoMsg, op string) {
	if !req.Trace {
		return
	}
	AddEchoTrace(req.Portal.tm, t, em, req.ID, op)
}

// EchoInstaller attaches responders to the nodes of the deepest tier as
// construction reaches them, holding them for later registration with an
// event engine.  Implements ResponderInstaller.
type EchoInstaller struct {
	tm            *TraceManager
	Responders    []*EchoResponder
	RespsByNodeID map[int][]*EchoResponder
}

// CreateEchoInstaller is a constructor
func CreateEchoInstaller(tm *TraceManager) *EchoInstaller {
	ei := new(EchoInstaller)
	if tm == nil {
		tm = CreateTraceManager("", false)
	}
	ei.tm = tm
	ei.Responders = make([]*EchoResponder, 0)
	ei.RespsByNodeID = make(map[int][]*EchoResponder)
	return ei
}

// hasResponder reports whether the node already carries a responder on the port
func (ei *EchoInstaller) hasResponder(nd *Node, port int) bool {
	for _, resp := range ei.RespsByNodeID[nd.ID] {
		if resp.Port == port {
			return true
		}
	}
	return false
}

// responderAt returns the node's responder listening on the port, if any
func (ei *EchoInstaller) responderAt(nd *Node, port int) *EchoResponder {
	for _, resp := range ei.RespsByNodeID[nd.ID] {
		if resp.Port == port {
			return resp
		}
	}
	return nil
}

// InstallResponders creates one responder per node.  A node that already
// carries a responder on the same port keeps the one it has.  Nothing is
// scheduled here; registerResponder makes the engine aware of the window.
func (ei *EchoInstaller) InstallResponders(nodes []*Node, port int, window Window) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if err := window.check(); err != nil {
		return err
	}

	for _, nd := range nodes {
		if ei.hasResponder(nd, port) {
			AddEchoTrace(ei.tm, vrtime.SecondsToTime(0.0), nil, nd.ID, "reinstall")
			continue
		}
		resp := new(EchoResponder)
		resp.Name = fmt.Sprintf("echo@%s:%d", nd.Name, port)
		resp.ID = nd.tree.nxtID()
		resp.Node = nd
		resp.Port = port
		resp.Window = window
		resp.Trace = ei.tm.Active()

		nd.Role = RoleResponder
		nd.AddGroup("responders")
		nd.State.Apps += 1

		ei.Responders = append(ei.Responders, resp)
		ei.RespsByNodeID[nd.ID] = append(ei.RespsByNodeID[nd.ID], resp)
		ei.tm.AddName(resp.ID, resp.Name, "responder")
	}
	return nil
}

// registerResponder schedules the responder's activation and deactivation
// with the engine.  The window has to open no earlier than the engine's
// current time; a window already underway cannot be replayed.
func registerResponder(evtMgr *evtm.EventManager, resp *EchoResponder) error {
	if err := checkPort(resp.Port); err != nil {
		return err
	}
	if err := resp.Window.check(); err != nil {
		return err
	}
	now := evtMgr.CurrentSeconds()
	if resp.Window.Start < now {
		return fmt.Errorf("responder %s window opens at %g, before the current time %g",
			resp.Name, resp.Window.Start, now)
	}

	evtMgr.Schedule(resp, nil, startResponder, vrtime.SecondsToTime(resp.Window.Start-now))
	evtMgr.Schedule(resp, nil, stopResponder, vrtime.SecondsToTime(resp.Window.End-now))
	return nil
}

// registerRequest schedules the request's single firing and the close of
// its reply window with the engine
func registerRequest(evtMgr *evtm.EventManager, req *EchoRequest) error {
	if err := checkPort(req.Port); err != nil {
		return err
	}
	if err := req.Window.check(); err != nil {
		return err
	}
	now := evtMgr.CurrentSeconds()
	if req.Window.Start < now {
		return fmt.Errorf("request %s window opens at %g, before the current time %g",
			req.Name, req.Window.Start, now)
	}

	evtMgr.Schedule(req, nil, startEchoRequest, vrtime.SecondsToTime(req.Start-now))
	evtMgr.Schedule(req, nil, stopEchoRequest, vrtime.SecondsToTime(req.Window.End-now))
	return nil
}

// startResponder opens the responder's window
func startResponder(evtMgr *evtm.EventManager, context any, msg any) any {
	resp := context.(*EchoResponder)
	resp.Active = true
	resp.LogEchoEvent(evtMgr.CurrentTime(), nil, "activate")
	return nil
}

// stopResponder closes the responder's window
func stopResponder(evtMgr *evtm.EventManager, context any, msg any) any {
	resp := context.(*EchoResponder)
	resp.Active = false
	resp.LogEchoEvent(evtMgr.CurrentTime(), nil, "deactivate")
	return nil
}

// arriveEchoRequest hands an arriving request to a responder.  A request
// landing outside the window is dropped, which is what the arrival would
// see if the application were not running.
func arriveEchoRequest(evtMgr *evtm.EventManager, context any, msg any) any {
	resp := context.(*EchoResponder)
	em := msg.(*EchoMsg)

	if !resp.Active {
		resp.Dropped += 1
		resp.LogEchoEvent(evtMgr.CurrentTime(), em, "drop")
		return nil
	}

	resp.Replies += 1
	resp.LogEchoEvent(evtMgr.CurrentTime(), em, "recv")

	// the message turns around: same identity, reply flag set
	em.Reply = true
	resp.Portal.Return(evtMgr, resp.Node, em)
	return nil
}

// arriveEchoReply completes the round trip back at the initiator
func arriveEchoReply(evtMgr *evtm.EventManager, context any, msg any) any {
	req := context.(*EchoRequest)
	em := msg.(*EchoMsg)

	now := evtMgr.CurrentSeconds()
	if !req.Window.In(now) {
		req.Late += 1
		req.LogEchoEvent(evtMgr.CurrentTime(), em, "late")
		return nil
	}

	req.Completed += 1
	req.RTT = now - em.SendTime
	req.LogEchoEvent(evtMgr.CurrentTime(), em, "complete")
	return nil
}

// startEchoRequest fires the request's single shot into the portal
func startEchoRequest(evtMgr *evtm.EventManager, context any, msg any) any {
	req := context.(*EchoRequest)
	if req.Sent > 0 {
		return nil
	}
	req.Sent = 1
	req.LogEchoEvent(evtMgr.CurrentTime(), nil, "send")
	req.Portal.Send(evtMgr, req)
	return nil
}

// stopEchoRequest ends the request's window.  The window's end gates
// reply accounting; there is nothing to tear down.
func stopEchoRequest(evtMgr *evtm.EventManager, context any, msg any) any {
	req := context.(*EchoRequest)
	req.LogEchoEvent(evtMgr.CurrentTime(), nil, "deactivate")
	return nil
}
