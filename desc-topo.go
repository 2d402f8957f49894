package fantree

// file desc-topo.go holds structs, methods, and data structures supporting
// the construction of and access to serialized descriptions of fanout tree
// experiments: the configuration that shapes a build, and the snapshot of
// the topology and address plan a build produced

import (
	"encoding/json"
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// A FanoutCfg holds every knob of one experiment: the shape of the tree,
// the address encoding base, the echo application settings, and the
// carried link attributes.  The zero values of Branching and Depth are
// legal and describe a tree of one node.
type FanoutCfg struct {
	// Name identifies the experiment in outputs and trace files
	Name string `json:"name" yaml:"name"`

	// count of children grown under every non-leaf node
	Branching int `json:"branching" yaml:"branching"`

	// count of link tiers between the root and the deepest nodes
	Depth int `json:"depth" yaml:"depth"`

	// BaseOffset plus a link's level forms the first octet of its
	// subnet address.  Zero or negative selects the default.
	BaseOffset int `json:"baseoffset" yaml:"baseoffset"`

	// port responders listen on and requests target
	Port int `json:"port" yaml:"port"`

	// bounds of the responder activity window
	RespStart float64 `json:"respstart" yaml:"respstart"`
	RespEnd   float64 `json:"respend" yaml:"respend"`

	// bounds of the initiator activity window
	InitStart float64 `json:"initstart" yaml:"initstart"`
	InitEnd   float64 `json:"initend" yaml:"initend"`

	// consecutive requests start 1/DelayUnit seconds apart
	DelayUnit int `json:"delayunit" yaml:"delayunit"`

	// request payload size in bytes
	PcktLen int `json:"pcktlen" yaml:"pcktlen"`

	// attributes stamped on every link, carried for an engine that
	// models transit and not interpreted here
	LinkRate  string `json:"linkrate" yaml:"linkrate"`
	LinkDelay string `json:"linkdelay" yaml:"linkdelay"`
	LinkQueue int    `json:"linkqueue" yaml:"linkqueue"`

	// portal delivery latency per hop, and the mean of the exponential
	// jitter added to it when positive
	HopLatency float64 `json:"hoplatency" yaml:"hoplatency"`
	JitterMean float64 `json:"jittermean" yaml:"jittermean"`

	// simulated second at which a run stops
	StopTime float64 `json:"stoptime" yaml:"stoptime"`
}

// CreateFanoutCfg is a constructor.  The returned configuration carries
// the standard experiment settings; callers adjust what they need to.
func CreateFanoutCfg(name string, branching, depth int) *FanoutCfg {
	fc := new(FanoutCfg)
	fc.Name = name
	fc.Branching = branching
	fc.Depth = depth
	fc.BaseOffset = DefaultBaseOffset
	fc.Port = DefaultPort
	fc.RespStart = 1.0
	fc.RespEnd = 2000.0
	fc.InitStart = 2.0
	fc.InitEnd = 2000.0
	fc.DelayUnit = DefaultDelayUnit
	fc.PcktLen = DefaultPcktLen
	fc.LinkRate = "1Gbps"
	fc.LinkDelay = "1ms"
	fc.LinkQueue = 1000
	fc.HopLatency = 0.001
	fc.JitterMean = 0.0
	fc.StopTime = 200.0

	return fc
}

// RespWindow gives the responder activity window as a Window
func (fc *FanoutCfg) RespWindow() Window {
	return Window{Start: fc.RespStart, End: fc.RespEnd}
}

// InitWindow gives the initiator activity window as a Window
func (fc *FanoutCfg) InitWindow() Window {
	return Window{Start: fc.InitStart, End: fc.InitEnd}
}

// Validate checks every configuration value, gathering all of the
// complaints into one error rather than stopping at the first
func (fc *FanoutCfg) Validate() error {
	errList := make([]error, 0)

	if fc.Branching < 0 {
		errList = append(errList, fmt.Errorf("branching %d is negative", fc.Branching))
	}
	if fc.Depth < 0 {
		errList = append(errList, fmt.Errorf("depth %d is negative", fc.Depth))
	}

	// a link index octet is the sibling index plus one, so the fanout
	// is capped by what one octet can hold
	if fc.Branching > 255 {
		errList = append(errList, fmt.Errorf("branching %d exceeds the 255 links one subnet octet can number", fc.Branching))
	}

	base := fc.BaseOffset
	if base <= 0 {
		base = DefaultBaseOffset
	}
	if base+fc.Depth > 255 {
		errList = append(errList, fmt.Errorf("base offset %d plus depth %d overflows the first address octet", base, fc.Depth))
	}

	errList = append(errList, checkPort(fc.Port))
	errList = append(errList, fc.RespWindow().check())
	errList = append(errList, fc.InitWindow().check())

	if fc.DelayUnit < 1 {
		errList = append(errList, fmt.Errorf("delay unit %d is not positive", fc.DelayUnit))
	}
	if fc.PcktLen < 1 {
		errList = append(errList, fmt.Errorf("packet length %d is not positive", fc.PcktLen))
	}
	if fc.LinkQueue < 0 {
		errList = append(errList, fmt.Errorf("link queue depth %d is negative", fc.LinkQueue))
	}
	if fc.HopLatency < 0.0 {
		errList = append(errList, fmt.Errorf("hop latency %g is negative", fc.HopLatency))
	}
	if fc.JitterMean < 0.0 {
		errList = append(errList, fmt.Errorf("jitter mean %g is negative", fc.JitterMean))
	}
	if fc.StopTime <= 0.0 {
		errList = append(errList, fmt.Errorf("stop time %g is not positive", fc.StopTime))
	}

	return ReportErrs(errList)
}

// WriteToFile stores the FanoutCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (fc *FanoutCfg) WriteToFile(filename string) error {
	return writeCfgFile(filename, *fc)
}

// ReadFanoutCfg deserializes a byte slice holding a representation of a FanoutCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  A deserialized representation is returned, or an error if one is generated
// from a file read or the deserialization.
func ReadFanoutCfg(filename string, useYAML bool, dict []byte) (*FanoutCfg, error) {
	return readCfgFile[FanoutCfg](filename, useYAML, dict)
}

// IntrfcDesc defines a serializable description of an interface on a tree node
type IntrfcDesc struct {
	// name for interface, unique among interfaces in the tree
	Name string `json:"name" yaml:"name"`

	ID int `json:"id" yaml:"id"`

	// name of the node on which this interface is resident
	Device string `json:"device" yaml:"device"`

	// name of the interface at the other end of the cable
	Cable string `json:"cable" yaml:"cable"`

	// dotted identifier of the subnet the interface's address was drawn
	// from, empty until the link was bound
	Subnet string `json:"subnet" yaml:"subnet"`

	// dotted host address of the interface
	Addr string `json:"addr" yaml:"addr"`
}

// Transform converts a run-time Intrfc and returns an IntrfcDesc, for serialization
func (ifc *Intrfc) Transform() IntrfcDesc {
	intrfcDesc := new(IntrfcDesc)
	intrfcDesc.Name = ifc.Name
	intrfcDesc.ID = ifc.ID
	intrfcDesc.Device = ifc.Device.Name
	intrfcDesc.Addr = ifc.Addr

	// the desc form names the cabled interface rather than pointing at it
	if ifc.Cable != nil {
		intrfcDesc.Cable = ifc.Cable.Name
	}
	if ifc.Bound {
		intrfcDesc.Subnet = ifc.Subnet.String()
	}

	return *intrfcDesc
}

// NodeDesc defines a serializable description of a tree node
type NodeDesc struct {
	Name string `json:"name" yaml:"name"`

	ID int `json:"id" yaml:"id"`

	// count of tiers below the node, zero at the deepest tier
	Level int `json:"level" yaml:"level"`

	// part the node plays in the traffic pattern
	Role string `json:"role" yaml:"role"`

	Groups []string `json:"groups" yaml:"groups"`

	// descriptions of the interfaces resident on the node
	Interfaces []IntrfcDesc `json:"interfaces" yaml:"interfaces"`
}

// Transform converts a run-time Node and returns a NodeDesc, for serialization
func (nd *Node) Transform() NodeDesc {
	nodeDesc := new(NodeDesc)
	nodeDesc.Name = nd.Name
	nodeDesc.ID = nd.ID
	nodeDesc.Level = nd.Level
	nodeDesc.Role = NodeRoleToStr(nd.Role)
	nodeDesc.Groups = nd.Groups
	nodeDesc.Interfaces = make([]IntrfcDesc, 0, len(nd.Intrfcs))
	for _, ifc := range nd.Intrfcs {
		nodeDesc.Interfaces = append(nodeDesc.Interfaces, ifc.Transform())
	}

	return *nodeDesc
}

// LinkDesc defines a serializable description of a parent-child link
type LinkDesc struct {
	Name string `json:"name" yaml:"name"`

	ID int `json:"id" yaml:"id"`

	// names of the nodes at the two ends
	Parent string `json:"parent" yaml:"parent"`
	Child  string `json:"child" yaml:"child"`

	// names of the interfaces at the two ends
	ParentIntrfc string `json:"parentintrfc" yaml:"parentintrfc"`
	ChildIntrfc  string `json:"childintrfc" yaml:"childintrfc"`

	// dotted identifier of the bound subnet, empty if unbound
	Subnet string `json:"subnet" yaml:"subnet"`

	// recursion level at which the link was made, and the link's index
	// among the parent's children
	Level      int `json:"level" yaml:"level"`
	SiblingIdx int `json:"siblingidx" yaml:"siblingidx"`

	Groups []string `json:"groups" yaml:"groups"`

	// carried link attributes
	Rate  string `json:"rate" yaml:"rate"`
	Delay string `json:"delay" yaml:"delay"`
	Queue int    `json:"queue" yaml:"queue"`
}

// Transform converts a run-time Link and returns a LinkDesc, for serialization
func (lnk *Link) Transform() LinkDesc {
	linkDesc := new(LinkDesc)
	linkDesc.Name = lnk.paramObjName()
	linkDesc.ID = lnk.ID
	linkDesc.Parent = lnk.Parent.Name
	linkDesc.Child = lnk.Child.Name
	linkDesc.ParentIntrfc = lnk.ParentIntrfc.Name
	linkDesc.ChildIntrfc = lnk.ChildIntrfc.Name
	linkDesc.Level = lnk.Level
	linkDesc.SiblingIdx = lnk.SiblingIdx
	linkDesc.Groups = lnk.Groups
	linkDesc.Rate = lnk.Rate
	linkDesc.Delay = lnk.Delay
	linkDesc.Queue = lnk.QueueDepth

	if lnk.Bound {
		linkDesc.Subnet = lnk.Subnet.String()
	}

	return *linkDesc
}

// SubnetDesc defines a serializable description of one address block binding
type SubnetDesc struct {
	// dotted identifier of the block, host octet zero
	Subnet string `json:"subnet" yaml:"subnet"`

	Mask string `json:"mask" yaml:"mask"`

	// name of the link the block is bound to
	Link string `json:"link" yaml:"link"`

	// host addresses minted at the two ends of that link
	ParentAddr string `json:"parentaddr" yaml:"parentaddr"`
	ChildAddr  string `json:"childaddr" yaml:"childaddr"`
}

// LeafAddrDesc defines a serializable description of one entry in the
// ordered leaf address collection
type LeafAddrDesc struct {
	Addr string `json:"addr" yaml:"addr"`

	// index of the entry in construction order
	Pos int `json:"pos" yaml:"pos"`

	// which end of the deepest-tier link the address belongs to
	Side string `json:"side" yaml:"side"`

	// name of the node holding the addressed interface
	Dev string `json:"dev" yaml:"dev"`
}

// TreeTopoDesc defines a serializable description of a built tree: its
// shape, every node and link, the address plan, and the ordered leaf
// address collection the traffic pattern is derived from
type TreeTopoDesc struct {
	Name      string `json:"name" yaml:"name"`
	Branching int    `json:"branching" yaml:"branching"`
	Depth     int    `json:"depth" yaml:"depth"`

	// name of the root node
	Root string `json:"root" yaml:"root"`

	Nodes     []NodeDesc     `json:"nodes" yaml:"nodes"`
	Links     []LinkDesc     `json:"links" yaml:"links"`
	Subnets   []SubnetDesc   `json:"subnets" yaml:"subnets"`
	LeafAddrs []LeafAddrDesc `json:"leafaddrs" yaml:"leafaddrs"`
}

// Transform converts a run-time Tree and returns a TreeTopoDesc, for serialization
func (nt *Tree) Transform() TreeTopoDesc {
	topoDesc := new(TreeTopoDesc)
	topoDesc.Name = nt.Name
	topoDesc.Branching = nt.Branching
	topoDesc.Depth = nt.Depth
	if nt.Root != nil {
		topoDesc.Root = nt.Root.Name
	}

	topoDesc.Nodes = make([]NodeDesc, 0, len(nt.Nodes))
	for _, nd := range nt.Nodes {
		topoDesc.Nodes = append(topoDesc.Nodes, nd.Transform())
	}

	topoDesc.Links = make([]LinkDesc, 0, len(nt.Links))
	topoDesc.Subnets = make([]SubnetDesc, 0, len(nt.Links))
	for _, lnk := range nt.Links {
		topoDesc.Links = append(topoDesc.Links, lnk.Transform())
		if lnk.Bound {
			topoDesc.Subnets = append(topoDesc.Subnets,
				SubnetDesc{
					Subnet:     lnk.Subnet.String(),
					Mask:       SubnetMask,
					Link:       lnk.paramObjName(),
					ParentAddr: lnk.ParentIntrfc.Addr,
					ChildAddr:  lnk.ChildIntrfc.Addr,
				})
		}
	}

	topoDesc.LeafAddrs = make([]LeafAddrDesc, 0, len(nt.LeafAddrs))
	for _, entry := range nt.LeafAddrs {
		topoDesc.LeafAddrs = append(topoDesc.LeafAddrs,
			LeafAddrDesc{
				Addr: entry.Addr,
				Pos:  entry.Pos,
				Side: AddrSideToStr(entry.Side),
				Dev:  entry.Dev.Name,
			})
	}

	return *topoDesc
}

// WriteToFile stores the TreeTopoDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tt *TreeTopoDesc) WriteToFile(filename string) error {
	return writeCfgFile(filename, *tt)
}

// ReadTreeTopoDesc deserializes a byte slice holding a representation of a TreeTopoDesc struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  A deserialized representation is returned, or an error if one is generated
// from a file read or the deserialization.
func ReadTreeTopoDesc(filename string, useYAML bool, dict []byte) (*TreeTopoDesc, error) {
	return readCfgFile[TreeTopoDesc](filename, useYAML, dict)
}

// writeCfgFile serializes v into the named file, with yaml or json chosen by
// the file name's extension.  Failure to serialize or store a description the
// run was asked to keep is not recoverable, so problems here panic.
func writeCfgFile(filename string, v any) error {
	var bytes []byte
	var merr error

	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(v)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(v, "", "\t")
	}
	if merr != nil {
		panic(merr)
	}

	werr := os.WriteFile(filename, bytes, 0666)
	if werr != nil {
		panic(werr)
	}

	return werr
}

// readCfgFile deserializes a byte slice holding a representation of a T.
// An empty dict means the named file supplies the bytes.
func readCfgFile[T any](filename string, useYAML bool, dict []byte) (*T, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := new(T)
	if useYAML {
		err = yaml.Unmarshal(dict, example)
	} else {
		err = json.Unmarshal(dict, example)
	}
	if err != nil {
		return nil, err
	}

	return example, nil
}

// ReportErrs folds the non-nil errors in the list into a single error whose
// text is a comma-separated report of every constituent, or nil if the list
// holds no failures
func ReportErrs(errs []error) error {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, ","))
}

// CheckDirectories probes the file system for the existence of every
// directory in the list.  Returns a boolean indicating whether all of them
// check out, with an aggregated error naming the ones that do not.
func CheckDirectories(dirs []string) (bool, error) {
	failures := make([]error, 0)

	for _, dir := range dirs {
		if len(dir) == 0 {
			continue
		}

		// a name with an extension is a file path, not a directory
		if filepath.Ext(dir) != "" {
			failures = append(failures, fmt.Errorf("%s not a directory", dir))
			continue
		}

		if _, err := os.Stat(dir); err != nil {
			failures = append(failures, fmt.Errorf("%s not reachable", dir))
		}
	}

	err := ReportErrs(failures)
	return err == nil, err
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return checkFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that every
// argument filename can be written.
func CheckOutputFiles(names []string) (bool, error) {
	return checkFiles(names, false)
}

// checkFiles verifies that the directory holding each named file is
// reachable, and when mustExist is set that the files themselves are too
func checkFiles(names []string, mustExist bool) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		// empty names and the scratch directory get a pass
		if len(name) == 0 || name == "/tmp" {
			continue
		}

		// a bare filename lives in the working directory
		directory, _ := filepath.Split(name)
		if directory != "" {
			if _, err := os.Stat(directory); err != nil {
				errs = append(errs, err)
				continue
			}
		}

		if mustExist {
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	err := ReportErrs(errs)
	return err == nil, err
}
