package fantree

import (
	"testing"

	"github.com/iti/evt/evtm"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestExperimentAllComplete(t *testing.T) {
	evtMgr := evtm.New()
	cfg := CreateFanoutCfg("e2e", 2, 2)

	exp, err := BuildExperiment(evtMgr, cfg, nil, nil)
	require.NoError(t, err)

	evtMgr.Run(cfg.StopTime)

	st := exp.Status()
	require.Equal(t, 4, st.Requests)
	require.Equal(t, 4, st.Sent)
	require.Equal(t, 4, st.Replies)
	require.Equal(t, 4, st.Completed)
	require.Equal(t, 0, st.Late)
	require.Equal(t, 0, st.Dropped)
	require.Equal(t, 0, st.Undeliverable)
	require.Equal(t, 0, st.Pending)

	require.Equal(t, 4, exp.Portal.Sent)
	require.Equal(t, 4, exp.Portal.Delivered)
	require.Equal(t, 4, exp.Portal.Returned)

	// four hops out and back at a millisecond per hop
	for idx, req := range exp.Requests {
		require.Equal(t, 1, req.Sent)
		require.Equal(t, 1, req.Completed)
		require.InDelta(t, 0.004, req.RTT, 1e-6)
		require.InDelta(t, 2.0+float64(idx)/10000.0, req.Start, 1e-12)
	}
}

func TestExperimentDeterministic(t *testing.T) {
	run := func() (*Experiment, ExpStatus) {
		evtMgr := evtm.New()
		cfg := CreateFanoutCfg("det", 2, 2)
		exp, err := BuildExperiment(evtMgr, cfg, nil, nil)
		require.NoError(t, err)
		evtMgr.Run(cfg.StopTime)
		return exp, exp.Status()
	}

	first, firstStatus := run()
	second, secondStatus := run()

	require.Equal(t, firstStatus, secondStatus)
	require.Equal(t, len(first.Requests), len(second.Requests))
	for idx := range first.Requests {
		require.Equal(t, first.Requests[idx].DstAddr, second.Requests[idx].DstAddr)
		require.Equal(t, first.Requests[idx].Start, second.Requests[idx].Start)
		require.Equal(t, first.Requests[idx].RTT, second.Requests[idx].RTT)
	}
}

func TestExperimentDropsOutsideResponderWindow(t *testing.T) {
	evtMgr := evtm.New()
	cfg := CreateFanoutCfg("drop", 2, 2)

	// responders open well after every request has arrived
	cfg.RespStart = 5.0

	exp, err := BuildExperiment(evtMgr, cfg, nil, nil)
	require.NoError(t, err)
	evtMgr.Run(cfg.StopTime)

	st := exp.Status()
	require.Equal(t, 4, st.Sent)
	require.Equal(t, 4, st.Dropped)
	require.Equal(t, 0, st.Replies)
	require.Equal(t, 0, st.Completed)
	require.Equal(t, 0, st.Late)

	// dropped requests never turn around, their connections stay open
	require.Equal(t, 4, st.Pending)
	require.Equal(t, 4, exp.Portal.Delivered)
	require.Equal(t, 0, exp.Portal.Returned)
}

func TestExperimentUnservedPort(t *testing.T) {
	evtMgr := evtm.New()
	cfg := CreateFanoutCfg("unserved", 2, 2)

	// move every responder off the port the requests target
	expCfg := CreateExpCfg("unserved")
	wildcard := []AttrbStruct{{AttrbName: "*", AttrbValue: ""}}
	require.NoError(t, expCfg.AddParameter("Responder", wildcard, "port", "1000"))

	exp, err := BuildExperiment(evtMgr, cfg, expCfg, nil)
	require.NoError(t, err)
	evtMgr.Run(cfg.StopTime)

	st := exp.Status()
	require.Equal(t, 4, st.Sent)
	require.Equal(t, 4, st.Undeliverable)
	require.Equal(t, 4, st.Pending)
	require.Equal(t, 0, st.Replies)
	require.Equal(t, 0, st.Dropped)
	require.Equal(t, 0, st.Completed)
	require.Equal(t, 0, exp.Portal.Delivered)
}

func TestExperimentLateReplies(t *testing.T) {
	evtMgr := evtm.New()
	cfg := CreateFanoutCfg("late", 2, 2)

	// replies need four milliseconds, the window allows three
	cfg.InitEnd = 2.003

	exp, err := BuildExperiment(evtMgr, cfg, nil, nil)
	require.NoError(t, err)
	evtMgr.Run(cfg.StopTime)

	st := exp.Status()
	require.Equal(t, 4, st.Sent)
	require.Equal(t, 4, st.Replies)
	require.Equal(t, 4, st.Late)
	require.Equal(t, 0, st.Completed)
	require.Equal(t, 0, st.Pending)
	require.Equal(t, 4, exp.Portal.Returned)
}

func TestApplyExpCfgSpecificity(t *testing.T) {
	evtMgr := evtm.New()
	cfg := CreateFanoutCfg("tuned", 2, 2)

	// the pinned assignment is listed first; application order has to
	// come from generality, not arrival
	expCfg := CreateExpCfg("tuned")
	named := []AttrbStruct{{AttrbName: "name", AttrbValue: "link(node(tuned).0-node(tuned).1)"}}
	wildcard := []AttrbStruct{{AttrbName: "*", AttrbValue: ""}}
	require.NoError(t, expCfg.AddParameter("Link", named, "rate", "100Gbps"))
	require.NoError(t, expCfg.AddParameter("Link", wildcard, "rate", "10Gbps"))
	require.NoError(t, expCfg.AddParameter("Portal", wildcard, "hoplatency", "0.0005"))

	exp, err := BuildExperiment(evtMgr, cfg, expCfg, nil)
	require.NoError(t, err)

	require.Equal(t, "100Gbps", exp.Tree.Links[0].Rate)
	for _, lnk := range exp.Tree.Links[1:] {
		require.Equal(t, "10Gbps", lnk.Rate)
	}
	require.Equal(t, 0.0005, exp.Portal.HopLatency)

	// the reconfigured hop latency carries through to the round trips
	evtMgr.Run(cfg.StopTime)
	st := exp.Status()
	require.Equal(t, 4, st.Completed)
	for _, req := range exp.Requests {
		require.InDelta(t, 0.002, req.RTT, 1e-6)
	}
}

func TestBuildExperimentRejectsBadCfg(t *testing.T) {
	cfg := CreateFanoutCfg("bad", -1, 2)
	exp, err := BuildExperiment(evtm.New(), cfg, nil, nil)
	require.Error(t, err)
	require.Nil(t, exp)

	cfg = CreateFanoutCfg("bad", 2, 2)
	cfg.RespStart = 10.0
	cfg.RespEnd = 5.0
	exp, err = BuildExperiment(evtm.New(), cfg, nil, nil)
	require.Error(t, err)
	require.Nil(t, exp)
}

func TestExperimentTraceCollection(t *testing.T) {
	evtMgr := evtm.New()
	cfg := CreateFanoutCfg("traced", 2, 2)
	tm := CreateTraceManager("traced", true)

	exp, err := BuildExperiment(evtMgr, cfg, nil, tm)
	require.NoError(t, err)
	evtMgr.Run(cfg.StopTime)

	// 7 nodes, 6 links, 4 responders, 4 requests, and the portal
	require.Equal(t, 22, len(tm.NameByID))

	// lifecycle records group under connection 0, one group per exchange after
	require.Equal(t, 5, len(tm.Traces))

	// 6 subnet bindings, 4 activations, 4 send instants
	require.Equal(t, 14, len(tm.Traces[0]))
	builds := 0
	for _, trc := range tm.Traces[0] {
		if trc.TraceType == "build" {
			builds++
		}
	}
	require.Equal(t, 6, builds)

	// each exchange crosses the portal twice and touches both applications
	for conn := 1; conn <= 4; conn++ {
		recs := tm.Traces[conn]
		require.Equal(t, 4, len(recs))
		ops := make([]string, 0, len(recs))
		for _, trc := range recs {
			var et EchoTrace
			require.NoError(t, yaml.Unmarshal([]byte(trc.TraceStr), &et))
			require.Equal(t, conn, et.ConnectID)
			ops = append(ops, et.Op)
		}
		require.Equal(t, []string{"enter", "recv", "exit", "complete"}, ops)
	}

	require.Equal(t, 4, exp.Status().Completed)
}
