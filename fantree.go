package fantree

// fantree.go has code that assembles a complete experiment: the built
// tree, the route table over it, the portal carrying echo messages, and
// the echo applications with their run-time configuration applied

import (
	"github.com/iti/evt/evtm"
	"golang.org/x/exp/slices"
	"sort"
	"strconv"
)

// An Experiment gathers everything one run touches.  It is returned by
// BuildExperiment with every application registered with the engine, so
// the caller has only to Run the engine and read the counters back.
type Experiment struct {
	Cfg       *FanoutCfg
	Tree      *Tree
	Routes    *RouteTable
	Portal    *EchoPortal
	Installer *EchoInstaller
	Requests  []*EchoRequest
	TraceMgr  *TraceManager
}

// ExpStatus summarizes the traffic counters of a run
type ExpStatus struct {
	Requests      int // request applications created
	Sent          int // requests fired
	Completed     int // replies back inside their windows
	Late          int // replies back after their windows closed
	Replies       int // requests answered by responders
	Dropped       int // requests landing outside responder windows
	Undeliverable int // messages with no interface or responder at the target
	Pending       int // connections still waiting on a reply
}

// Status reads the counters out of the applications and the portal
func (exp *Experiment) Status() ExpStatus {
	status := ExpStatus{}
	status.Requests = len(exp.Requests)
	for _, req := range exp.Requests {
		status.Sent += req.Sent
		status.Completed += req.Completed
		status.Late += req.Late
	}
	for _, resp := range exp.Installer.Responders {
		status.Replies += resp.Replies
		status.Dropped += resp.Dropped
	}
	status.Undeliverable = exp.Portal.Undeliverable
	status.Pending = exp.Portal.Pending()
	return status
}

// BuildExperiment constructs the tree described by cfg, installs echo
// responders across its deepest tier, aims a staggered train of echo
// requests at them from the root, applies the run-time configuration
// parameters in expCfg (which may be nil), and registers every
// application window with the engine.  On an error return nothing of the
// partial experiment escapes, but events may already sit in the engine's
// queue, so a failed build's engine should be discarded.
func BuildExperiment(evtMgr *evtm.EventManager, cfg *FanoutCfg, expCfg *ExpCfg,
	tm *TraceManager) (*Experiment, error) {

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if tm == nil {
		tm = CreateTraceManager(cfg.Name, false)
	}

	exp := new(Experiment)
	exp.Cfg = cfg
	exp.TraceMgr = tm
	exp.Installer = CreateEchoInstaller(tm)

	tb := CreateTreeBuilder(cfg, exp.Installer, tm)
	exp.Tree, err = tb.Build()
	if err != nil {
		return nil, err
	}

	exp.Routes = BuildRoutes(exp.Tree)
	exp.Portal = CreateEchoPortal(exp.Tree, exp.Routes, exp.Installer, tm,
		cfg.HopLatency, cfg.JitterMean)
	for _, resp := range exp.Installer.Responders {
		resp.Portal = exp.Portal
	}

	exp.Requests, err = CreateEchoSweep(exp.Portal, exp.Tree.Root, cfg.Port,
		exp.Tree.LeafAddrs, cfg.InitWindow(), cfg.DelayUnit, cfg.PcktLen)
	if err != nil {
		return nil, err
	}

	// run-time parameters land between creation and registration, so a
	// reconfigured port or window is what the engine sees
	if expCfg != nil {
		exp.applyExpCfg(expCfg)
	}

	errList := make([]error, 0)
	for _, resp := range exp.Installer.Responders {
		errList = append(errList, registerResponder(evtMgr, resp))
	}
	for _, req := range exp.Requests {
		errList = append(errList, registerRequest(evtMgr, req))
	}

	// note that nil is returned if all errors are nil
	err = ReportErrs(errList)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// applyOrder fixes the sequence in which parameter object types receive
// their run-time assignments
var applyOrder = []string{"Node", "Interface", "Link", "Responder", "Request", "Portal"}

// attrbClass ranks an attribute list by how widely it can match.
// Wildcard lists apply before anything else, name-pinned lists after
// everything else, and lists built from shared attributes like group
// or role sit in between
func attrbClass(attrbs []AttrbStruct) int {
	for _, attrb := range attrbs {
		switch attrb.AttrbName {
		case "*":
			return 0
		case "name":
			return 2
		}
	}
	return 1
}

// reorderExpParams sorts a parameter list so that elements matching a broader
// range of attributes come before narrower ones aimed at the same object,
// letting a later, more specific assignment overwrite an earlier blanket one.
// Exact duplicates are dropped.
func reorderExpParams(pL []ExpParameter) []ExpParameter {
	ordered := make([]ExpParameter, len(pL))
	copy(ordered, pL)

	sort.SliceStable(ordered, func(i, j int) bool {
		ci, cj := attrbClass(ordered[i].Attributes), attrbClass(ordered[j].Attributes)
		if ci != cj {
			return ci < cj
		}

		// within a class, a strictly more general attribute set goes first
		switch CompareAttrbs(ordered[i].Attributes, ordered[j].Attributes) {
		case -1:
			return true
		case 1:
			return false
		}

		// remaining ties resolved on parameter then value, which also parks
		// identical elements next to each other for the duplicate sweep
		if ordered[i].Param != ordered[j].Param {
			return ordered[i].Param < ordered[j].Param
		}
		return ordered[i].Value < ordered[j].Value
	})

	// duplicates now sit in adjacent runs, keep the first of each
	deduped := make([]ExpParameter, 0, len(ordered))
	for idx, param := range ordered {
		if idx > 0 && param.Eq(&ordered[idx-1]) {
			continue
		}
		deduped = append(deduped, param)
	}

	return deduped
}

// paramTargets gathers the experiment's configurable objects, keyed by
// the ParamObj type name an ExpParameter selects them with
func (exp *Experiment) paramTargets() map[string][]paramObj {
	targets := make(map[string][]paramObj)

	for _, nd := range exp.Tree.Nodes {
		targets["Node"] = append(targets["Node"], nd)
		for _, ifc := range nd.Intrfcs {
			targets["Interface"] = append(targets["Interface"], ifc)
		}
	}
	for _, lnk := range exp.Tree.Links {
		targets["Link"] = append(targets["Link"], lnk)
	}
	for _, resp := range exp.Installer.Responders {
		targets["Responder"] = append(targets["Responder"], resp)
	}
	for _, req := range exp.Requests {
		targets["Request"] = append(targets["Request"], req)
	}
	targets["Portal"] = []paramObj{exp.Portal}

	return targets
}

// applyExpCfg takes the list of parameter configurations expressed in
// ExpCfg form, turns its elements into configuration commands that may
// initialize multiple objects, and assigns these in greatest-to-least
// application order
func (exp *Experiment) applyExpCfg(expCfg *ExpCfg) {
	// this call initializes the tables consulted below
	GetExpParamDesc()

	// separate the parameters into the ParamObj groups they apply to
	byObj := make(map[string][]ExpParameter)
	for _, param := range expCfg.Parameters {
		if !slices.Contains(ExpParamObjs, param.ParamObj) {
			panic("surprise ParamObj")
		}
		byObj[param.ParamObj] = append(byObj[param.ParamObj], param)
	}

	targets := exp.paramTargets()

	// work through the object types in a fixed order, and within each type
	// apply assignments most general first so that specific ones land last
	for _, objType := range applyOrder {
		for _, param := range reorderExpParams(byObj[objType]) {
			applyParam(param, targets[objType])
		}
	}
}

// applyParam offers one configuration assignment to every candidate object,
// and sets the parameter on those whose attributes all match.
// A test list holding every instance of the parameter's object type arrives
// here, so a wildcard attribute hits the whole population
func applyParam(param ExpParameter, candidates []paramObj) {
	for _, testObj := range candidates {
		matched := true
		for _, attrb := range param.Attributes {
			// '*' overrides whatever else the list carries
			if attrb.AttrbName == "*" {
				break
			}

			// every named attribute has to match for the object to qualify
			if !testObj.matchParam(attrb.AttrbName, attrb.AttrbValue) {
				matched = false
				break
			}
		}

		if matched {
			testObj.setParam(param.Param, stringToValueStruct(param.Value))
		}
	}
}

// stringToValueStruct takes the string form a configuration value arrives in
// and fills whichever typed slots of a valueStruct the string can serve as,
// leaving the setParam target to pick the one it needs
func stringToValueStruct(v string) valueStruct {
	vs := valueStruct{}

	// an integer doubles as a float, and 1 doubles as true
	if ivalue, err := strconv.Atoi(v); err == nil {
		vs.intValue = ivalue
		vs.floatValue = float64(ivalue)
		vs.boolValue = ivalue == 1
		return vs
	}

	if fvalue, err := strconv.ParseFloat(v, 64); err == nil {
		vs.floatValue = fvalue
		return vs
	}

	if v == "true" || v == "True" {
		vs.boolValue = true
		return vs
	}

	vs.stringValue = v
	return vs
}
