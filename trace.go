package fantree

import (
	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
	"sort"
	"strconv"
)

type TraceRecordType int

const (
	BuildType TraceRecordType = iota
	EchoType
)

type TraceInst struct {
	TraceTime string
	TraceType string
	TraceStr  string
}

// NameType is one entry of the trace file's dictionary, giving an object
// id a readable name and a kind
type NameType struct {
	Name string
	Type string
}

// TraceManager gathers information about the construction of a tree
// and an execution of the echo traffic run over it
type TraceManager struct {
	// records are gathered only when set
	InUse bool `json:"inuse" yaml:"inuse"`

	// experiment the records belong to
	ExpName string `json:"expname" yaml:"expname"`

	// names and kinds of the objects the records refer to
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, grouped by connection.
	// Records made during construction, before any connection exists,
	// group under connection 0
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  With the active flag off every
// method is a no-op, so gathering calls can stay in place at sites that
// usually run without tracing
func CreateTraceManager(expName string, active bool) *TraceManager {
	return &TraceManager{
		InUse:    active,
		ExpName:  expName,
		NameByID: make(map[int]NameType),
		Traces:   make(map[int][]TraceInst),
	}
}

// Active reports whether records are being gathered
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace time-stamps one record and stores it under the connection it
// belongs to
func (tm *TraceManager) AddTrace(vrt vrtime.Time, connectID int, trace TraceInst) {
	if !tm.InUse {
		return
	}
	trace.TraceTime = strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	tm.Traces[connectID] = append(tm.Traces[connectID], trace)
}

// AddName places an object in the trace dictionary.  Each id may be
// named at most once
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.InUse {
		return
	}
	if _, present := tm.NameByID[id]; present {
		panic("object id named twice in the trace dictionary")
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// flattened returns a copy of the manager whose records are all merged
// into one time-ordered list under connection 0
func (tm *TraceManager) flattened() *TraceManager {
	ntm := CreateTraceManager(tm.ExpName, tm.InUse)
	for id, nt := range tm.NameByID {
		ntm.NameByID[id] = nt
	}

	merged := make([]TraceInst, 0)
	for _, recs := range tm.Traces {
		merged = append(merged, recs...)
	}

	// record times are strings, order on their numeric values
	sort.Slice(merged, func(i, j int) bool {
		ti, _ := strconv.ParseFloat(merged[i].TraceTime, 64)
		tj, _ := strconv.ParseFloat(merged[j].TraceTime, 64)
		return ti < tj
	})

	ntm.Traces[0] = merged
	return ntm
}

// WriteToFile stores the gathered trace in the file whose name is given,
// with serialization to json or yaml selected by the name's extension.
// Passing globalOrder abandons the per-connection grouping and writes
// every record in one time-ordered list.  The return reports whether
// anything was written.
func (tm *TraceManager) WriteToFile(filename string, globalOrder bool) bool {
	if !tm.InUse {
		return false
	}

	out := tm
	if globalOrder {
		out = tm.flattened()
	}
	writeCfgFile(filename, *out)
	return true
}

// mustYaml gives the yaml form of a trace record, whose marshaling
// cannot fail for reasons the caller could act on
func mustYaml(v any) string {
	bytes, err := yaml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(bytes)
}

// BuildTrace records a structural event during tree construction,
// saved for post-build analysis
type BuildTrace struct {
	Time   float64 // simulation time, zero throughout construction
	ObjID  int     // integer id for object being referenced
	Op     string  // e.g. "subnet"
	Level  int     // level of the subtree being wired
	Branch int     // branch counter value when the subnet was assigned
	Subnet string  // dotted subnet address
}

func (bt *BuildTrace) TraceType() TraceRecordType {
	return BuildType
}

func (bt *BuildTrace) Serialize() string {
	return mustYaml(*bt)
}

// EchoTrace records the visitation of an echo message to some point
// in the simulation, saved for post-run analysis
type EchoTrace struct {
	Time      float64 // simulation time in seconds
	Ticks     int64   // tick count of the instant
	Priority  int64   // scheduling priority of the instant
	MsgID     int     // integer identifier of the message
	ConnectID int     // integer identifier of the request/reply exchange
	ObjID     int     // integer id for object being referenced
	Op        string  // "send", "enter", "recv", "drop", "exit", "complete", "late"
	DstAddr   string  // destination leaf address of the exchange
	Port      int
	PcktLen   int
	Reply     bool // true once the message has turned around
}

func (et *EchoTrace) TraceType() TraceRecordType {
	return EchoType
}

func (et *EchoTrace) Serialize() string {
	return mustYaml(*et)
}

// AddBuildTrace creates a record of a construction event and stores it.
// Construction happens before the clock starts, so the record time is zero.
func AddBuildTrace(tm *TraceManager, objID int, op string, level, branch int, subnet string) {
	bt := BuildTrace{Time: 0.0, ObjID: objID, Op: op, Level: level, Branch: branch, Subnet: subnet}
	trcInst := TraceInst{TraceType: "build", TraceStr: bt.Serialize()}
	tm.AddTrace(vrtime.SecondsToTime(0.0), 0, trcInst)
}

// AddEchoTrace creates a record of an echo message event and stores it.
// Application lifecycle events (activation, the send instant) carry no
// message, so a nil em leaves the message fields zeroed and the record
// groups under connection 0.
func AddEchoTrace(tm *TraceManager, vrt vrtime.Time, em *EchoMsg, objID int, op string) {
	et := EchoTrace{
		Time:     vrt.Seconds(),
		Ticks:    vrt.Ticks(),
		Priority: vrt.Pri(),
		ObjID:    objID,
		Op:       op,
	}

	connectID := 0
	if em != nil {
		et.MsgID = em.MsgID
		et.ConnectID = em.ConnectID
		et.DstAddr = em.DstAddr
		et.Port = em.Port
		et.PcktLen = em.PcktLen
		et.Reply = em.Reply
		connectID = em.ConnectID
	}

	trcInst := TraceInst{TraceType: "echo", TraceStr: et.Serialize()}
	tm.AddTrace(vrt, connectID, trcInst)
}
