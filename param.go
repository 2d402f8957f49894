package fantree

import (
	"fmt"
	"golang.org/x/exp/slices"
)

// AttrbStruct pairs an attribute name with the value an object must
// carry for the attribute test to pass
type AttrbStruct struct {
	AttrbName, AttrbValue string
}

// A valueStruct carries a decoded parameter value in every representation
// a consumer might want; the parameter being set determines which field
// is actually read
type valueStruct struct {
	intValue    int
	floatValue  float64
	stringValue string
	boolValue   bool
}

// CreateAttrbStruct is a constructor
func CreateAttrbStruct(attrbName, attrbValue string) *AttrbStruct {
	return &AttrbStruct{AttrbName: attrbName, AttrbValue: attrbValue}
}

// ValidateAttribute reports whether the named object type recognizes the
// named attribute
func ValidateAttribute(paramObjType, attrbName string) bool {
	GetExpParamDesc()

	attrbs, present := ExpAttributes[paramObjType]
	if !present {
		return false
	}

	// the wildcard selects every object of the type
	return attrbName == "*" || slices.Contains(attrbs, attrbName)
}

// namesWithin reports whether every attribute name in sub also names
// some attribute in super.  Values play no part, generality is a
// property of which attributes are constrained at all
func namesWithin(sub, super []AttrbStruct) bool {
	for _, attrb := range sub {
		name := attrb.AttrbName
		if !slices.ContainsFunc(super, func(as AttrbStruct) bool { return as.AttrbName == name }) {
			return false
		}
	}
	return true
}

// CompareAttrbs orders two attribute lists by generality: -1 when the
// first is strictly more general than the second, 1 in the opposite case,
// and 0 when neither contains the other.  Strictly more general means
// constraining strictly fewer attributes, every one of which the other
// list constrains too
func CompareAttrbs(attrbs1, attrbs2 []AttrbStruct) int {
	if len(attrbs1) < len(attrbs2) && namesWithin(attrbs1, attrbs2) {
		return -1
	}
	if len(attrbs2) < len(attrbs1) && namesWithin(attrbs2, attrbs1) {
		return 1
	}
	return 0
}

// EqAttrbs reports whether two attribute lists constrain identically
func EqAttrbs(attrbs1, attrbs2 []AttrbStruct) bool {
	if len(attrbs1) != len(attrbs2) {
		return false
	}

	// order is immaterial, so check containment both ways
	for _, attrb := range attrbs1 {
		if !slices.Contains(attrbs2, attrb) {
			return false
		}
	}
	for _, attrb := range attrbs2 {
		if !slices.Contains(attrbs1, attrb) {
			return false
		}
	}
	return true
}

// ExpParameter describes one run-time configuration input.  ParamObj names
// the kind of object being configured (Node, Interface, Link, Responder,
// Request, or Portal), Attributes lists the tests an object must pass for
// the value to land on it, and Param with Value carry the assignment itself.
type ExpParameter struct {
	// kind of object being configured
	ParamObj string `json:"paramObj" yaml:"paramObj"`

	// tests an object must pass to receive the value
	Attributes []AttrbStruct `json:"attributes" yaml:"attributes"`

	// name of the parameter being set, e.g. "pcktlen", "hoplatency", "trace"
	Param string `json:"param" yaml:"param"`

	// string-encoded value to apply
	Value string `json:"value" yaml:"value"`
}

// Eq reports whether two ExpParameters agree in every part
func (epp *ExpParameter) Eq(ep2 *ExpParameter) bool {
	return epp.ParamObj == ep2.ParamObj && epp.Param == ep2.Param &&
		epp.Value == ep2.Value && EqAttrbs(epp.Attributes, ep2.Attributes)
}

// CreateExpParameter is a constructor filling in every field
func CreateExpParameter(paramObj string, attributes []AttrbStruct, param, value string) *ExpParameter {
	return &ExpParameter{ParamObj: paramObj, Attributes: attributes, Param: param, Value: value}
}

// AddAttribute appends a test to the parameter's attribute list.  Names
// other than 'group' may appear at most once; a repeat of an exact
// name,value pair is absorbed without effect
func (epp *ExpParameter) AddAttribute(attrbName, attrbValue string) error {
	// the attribute has to make sense for the object type
	if !ValidateAttribute(epp.ParamObj, attrbName) {
		return fmt.Errorf("attribute %s not recognized for object type %s",
			attrbName, epp.ParamObj)
	}

	// repeating the exact name and value pair changes nothing
	if slices.Contains(epp.Attributes, AttrbStruct{AttrbName: attrbName, AttrbValue: attrbValue}) {
		return nil
	}

	// an object may sit in several groups, any other attribute name appears at most once
	if attrbName != "group" &&
		slices.ContainsFunc(epp.Attributes, func(as AttrbStruct) bool { return as.AttrbName == attrbName }) {
		return fmt.Errorf("attribute %s already constrains the parameter", attrbName)
	}

	epp.Attributes = append(epp.Attributes, AttrbStruct{AttrbName: attrbName, AttrbValue: attrbValue})
	return nil
}

// ExpCfg gathers the run-time parameters of one named experiment.  The
// name has no interpretation beyond labeling the set in its file form.
type ExpCfg struct {
	Name string `json:"expname" yaml:"expname"`

	// every parameter presented to the experiment, in arrival order
	Parameters []ExpParameter `json:"parameters" yaml:"parameters"`
}

// AddExpParameter appends an already-built parameter to the configuration
func (excfg *ExpCfg) AddExpParameter(exparam *ExpParameter) {
	excfg.Parameters = append(excfg.Parameters, *exparam)
}

// CreateExpCfg is a constructor
func CreateExpCfg(name string) *ExpCfg {
	return &ExpCfg{Name: name, Parameters: make([]ExpParameter, 0)}
}

// ValidateParameter panics if the paramObj, attributes, and param values don't
// make sense taken together within an ExpParameter.  These are built by code
// rather than read from input, so a bad combination is a programming error.
func ValidateParameter(paramObj string, attributes []AttrbStruct, param string) error {
	GetExpParamDesc()

	// the object type has to be a recognized one
	if !slices.Contains(ExpParamObjs, paramObj) {
		panic(fmt.Errorf("parameter object type %s is not recognized", paramObj))
	}

	// every attribute test has to name something the type carries
	for _, attrb := range attributes {
		if !ValidateAttribute(paramObj, attrb.AttrbName) {
			panic(fmt.Errorf("attribute %s not valid for parameter object type %s", attrb.AttrbName, paramObj))
		}
	}

	// the parameter has to be one the object type carries
	if !slices.Contains(ExpParams[paramObj], param) {
		panic(fmt.Errorf("parameter %s not defined for object type %s", param, paramObj))
	}
	return nil
}

// AddParameter builds a parameter from its four parts, validates it, and
// appends it to the configuration
func (excfg *ExpCfg) AddParameter(paramObj string, attributes []AttrbStruct, param, value string) error {
	err := ValidateParameter(paramObj, attributes, param)
	if err != nil {
		return err
	}

	excfg.Parameters = append(excfg.Parameters, *CreateExpParameter(paramObj, attributes, param, value))
	return nil
}

// WriteToFile serializes the configuration to the named file, as yaml or
// json chosen by the file name extension
func (excfg *ExpCfg) WriteToFile(filename string) error {
	return writeCfgFile(filename, *excfg)
}

// ReadExpCfg builds an ExpCfg from a byte slice holding its serialized
// form, or, when the slice is empty, from the contents of the named file
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	return readCfgFile[ExpCfg](filename, useYAML, dict)
}

// ExpParamObjs lists the object types run-time configuration recognizes.
// ExpAttributes and ExpParams give, per type, the attributes an object can
// be selected by and the parameters that can be set on it.
var ExpParamObjs []string
var ExpAttributes map[string][]string
var ExpParams map[string][]string

// GetExpParamDesc returns the three description tables, building them on
// first use
func GetExpParamDesc() ([]string, map[string][]string, map[string][]string) {
	if ExpParamObjs == nil {
		ExpParamObjs = []string{"Node", "Interface", "Link", "Responder", "Request", "Portal"}

		ExpAttributes = map[string][]string{
			"Node":      {"name", "group", "role", "*"},
			"Interface": {"name", "devname", "addr", "*"},
			"Link":      {"name", "group", "subnet", "*"},
			"Responder": {"name", "node", "group", "*"},
			"Request":   {"name", "node", "dstaddr", "group", "*"},
			"Portal":    {"name", "*"},
		}

		ExpParams = map[string][]string{
			"Node":      {"trace"},
			"Interface": {"trace"},
			"Link":      {"rate", "delay", "queue", "trace"},
			"Responder": {"port", "start", "end", "trace"},
			"Request":   {"port", "start", "end", "pcktlen", "trace"},
			"Portal":    {"hoplatency", "jittermean", "trace"},
		}
	}

	return ExpParamObjs, ExpAttributes, ExpParams
}
