package main

// main.go builds a fanout tree echo experiment from the command line,
// runs the traffic over it, and writes the requested output files.
// The tree shape comes first from built-in defaults, then from an input
// configuration file if one is named, and finally from command line
// values, each layer overwriting the one before it.

import (
	"fmt"
	"github.com/iti/cmdline"
	"github.com/iti/evt/evtm"
	"github.com/iti/fantree"
	"path/filepath"
	"strings"
)

// cmdlineParameters configures for recognition of command line variables
func cmdlineParameters() *cmdline.CmdParser {
	// create an argument parser
	cp := cmdline.NewCmdParser()
	cp.AddFlag(cmdline.StringFlag, "name", false)     // name of the experiment
	cp.AddFlag(cmdline.IntFlag, "branching", false)   // children grown under every non-leaf node
	cp.AddFlag(cmdline.IntFlag, "depth", false)       // link tiers between the root and the deepest nodes
	cp.AddFlag(cmdline.IntFlag, "port", false)        // port responders listen on and requests target
	cp.AddFlag(cmdline.FloatFlag, "respstart", false) // responder window open
	cp.AddFlag(cmdline.FloatFlag, "respend", false)   // responder window close
	cp.AddFlag(cmdline.FloatFlag, "initstart", false) // initiator window open
	cp.AddFlag(cmdline.FloatFlag, "initend", false)   // initiator window close
	cp.AddFlag(cmdline.IntFlag, "delayunit", false)   // request spacing denominator
	cp.AddFlag(cmdline.IntFlag, "pcktlen", false)     // request payload size
	cp.AddFlag(cmdline.FloatFlag, "stop", false)      // simulated second at which the run stops
	cp.AddFlag(cmdline.BoolFlag, "trace", false)      // gather a trace of the build and the run

	cp.AddFlag(cmdline.StringFlag, "inputLib", false)  // directory of input files
	cp.AddFlag(cmdline.StringFlag, "cfgInput", false)  // name of input file holding a configuration
	cp.AddFlag(cmdline.StringFlag, "expInput", false)  // name of input file holding run-time parameters
	cp.AddFlag(cmdline.StringFlag, "outputLib", false) // directory of output files

	cp.AddFlag(cmdline.StringFlag, "topoOutput", false)  // name of output file for the topology snapshot
	cp.AddFlag(cmdline.StringFlag, "cfgOutput", false)   // name of output file for the configuration used
	cp.AddFlag(cmdline.StringFlag, "traceOutput", false) // name of output file for the trace

	return cp
}

// useYAMLExt reports whether a file's extension selects yaml rather than json
func useYAMLExt(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".YAML") ||
		strings.HasSuffix(filename, ".yml")
}

func main() {
	// configure command line variable recognition
	cp := cmdlineParameters()

	// parse the command line
	cp.Parse()

	inputLib := ""
	if cp.IsLoaded("inputLib") {
		inputLib = cp.GetVar("inputLib").(string)
	}
	outputLib := ""
	if cp.IsLoaded("outputLib") {
		outputLib = cp.GetVar("outputLib").(string)
	}

	// make sure these directories exist
	dirs := []string{inputLib, outputLib}
	valid, err := fantree.CheckDirectories(dirs)
	if !valid {
		panic(err)
	}

	// default shape: three children per node, two tiers of links
	cfg := fantree.CreateFanoutCfg("fantree", 3, 2)

	// an input file replaces the defaults wholesale
	if cp.IsLoaded("cfgInput") {
		cfgInputFile := filepath.Join(inputLib, cp.GetVar("cfgInput").(string))
		valid, err = fantree.CheckReadableFiles([]string{cfgInputFile})
		if !valid {
			panic(err)
		}
		cfg, err = fantree.ReadFanoutCfg(cfgInputFile, useYAMLExt(cfgInputFile), []byte{})
		if err != nil {
			panic(err)
		}
	}

	// command line values overwrite whatever the file carried
	if cp.IsLoaded("name") {
		cfg.Name = cp.GetVar("name").(string)
	}
	if cp.IsLoaded("branching") {
		cfg.Branching = cp.GetVar("branching").(int)
	}
	if cp.IsLoaded("depth") {
		cfg.Depth = cp.GetVar("depth").(int)
	}
	if cp.IsLoaded("port") {
		cfg.Port = cp.GetVar("port").(int)
	}
	if cp.IsLoaded("respstart") {
		cfg.RespStart = cp.GetVar("respstart").(float64)
	}
	if cp.IsLoaded("respend") {
		cfg.RespEnd = cp.GetVar("respend").(float64)
	}
	if cp.IsLoaded("initstart") {
		cfg.InitStart = cp.GetVar("initstart").(float64)
	}
	if cp.IsLoaded("initend") {
		cfg.InitEnd = cp.GetVar("initend").(float64)
	}
	if cp.IsLoaded("delayunit") {
		cfg.DelayUnit = cp.GetVar("delayunit").(int)
	}
	if cp.IsLoaded("pcktlen") {
		cfg.PcktLen = cp.GetVar("pcktlen").(int)
	}
	if cp.IsLoaded("stop") {
		cfg.StopTime = cp.GetVar("stop").(float64)
	}

	// run-time parameters, if a file of them is named
	var expCfg *fantree.ExpCfg
	if cp.IsLoaded("expInput") {
		expInputFile := filepath.Join(inputLib, cp.GetVar("expInput").(string))
		valid, err = fantree.CheckReadableFiles([]string{expInputFile})
		if !valid {
			panic(err)
		}
		expCfg, err = fantree.ReadExpCfg(expInputFile, useYAMLExt(expInputFile), []byte{})
		if err != nil {
			panic(err)
		}
	}

	// join directory specifications with output file name specifications
	topoOutputFile := ""
	if cp.IsLoaded("topoOutput") {
		topoOutputFile = filepath.Join(outputLib, cp.GetVar("topoOutput").(string))
	}
	cfgOutputFile := ""
	if cp.IsLoaded("cfgOutput") {
		cfgOutputFile = filepath.Join(outputLib, cp.GetVar("cfgOutput").(string))
	}
	traceOutputFile := ""
	if cp.IsLoaded("traceOutput") {
		traceOutputFile = filepath.Join(outputLib, cp.GetVar("traceOutput").(string))
	}

	// check files to be created
	files := []string{topoOutputFile, cfgOutputFile, traceOutputFile}
	rdFiles := []string{}

	for _, file := range files {
		if len(file) > 0 {
			rdFiles = append(rdFiles, file)
		}
	}

	valid, err = fantree.CheckOutputFiles(rdFiles)
	if !valid {
		panic(err)
	}

	useTrace := false
	if cp.IsLoaded("trace") {
		useTrace = cp.GetVar("trace").(bool)
	}
	tm := fantree.CreateTraceManager(cfg.Name, useTrace)

	// build the tree, its routes, and its applications, and register
	// the application windows with the event engine
	evtMgr := evtm.New()
	exp, err := fantree.BuildExperiment(evtMgr, cfg, expCfg, tm)
	if err != nil {
		panic(err)
	}

	leaves := len(exp.Tree.Leaves())
	fmt.Printf("Built tree %s: branching %d, depth %d, %d nodes, %d subnets, %d leaves\n",
		cfg.Name, cfg.Branching, cfg.Depth, len(exp.Tree.Nodes), len(exp.Tree.Subnets()), leaves)

	evtMgr.Run(cfg.StopTime)

	status := exp.Status()
	fmt.Printf("Requests %d, sent %d, completed %d, late %d, dropped %d, undeliverable %d, pending %d\n",
		status.Requests, status.Sent, status.Completed, status.Late,
		status.Dropped, status.Undeliverable, status.Pending)

	if len(topoOutputFile) > 0 {
		topo := exp.Tree.Transform()
		topo.WriteToFile(topoOutputFile)
	}
	if len(cfgOutputFile) > 0 {
		cfg.WriteToFile(cfgOutputFile)
	}
	if len(traceOutputFile) > 0 {
		tm.WriteToFile(traceOutputFile, true)
	}

	fmt.Println("Output files written!")
}
