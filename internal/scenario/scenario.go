package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a parsed scenario file.
type Scenario struct {
	// Name identifies the scenario in transcripts and journals.
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Processes   []Process `yaml:"processes"`
	Steps       []Step    `yaml:"steps"`
}

// Process declares a runtime with one network interface and a default event
// queue. Zero NID lets the fabric assign one; zero PID picks the lowest free.
type Process struct {
	Name        string  `yaml:"name"`
	NID         uint32  `yaml:"nid,omitempty"`
	PID         uint32  `yaml:"pid,omitempty"`
	UID         uint32  `yaml:"uid,omitempty"`
	Logical     bool    `yaml:"logical,omitempty"`
	NonMatching bool    `yaml:"non_matching,omitempty"`
	EQSize      uint64  `yaml:"eq_size,omitempty"`
	Limits      *Limits `yaml:"limits,omitempty"`
}

// Limits are the desired interface limits. Zero fields take the defaults.
type Limits struct {
	MaxEntries           int    `yaml:"max_entries,omitempty"`
	MaxUnexpectedHeaders int    `yaml:"max_unexpected_headers,omitempty"`
	MaxListSize          int    `yaml:"max_list_size,omitempty"`
	MaxTriggeredOps      int    `yaml:"max_triggered_ops,omitempty"`
	MaxMsgSize           uint64 `yaml:"max_msg_size,omitempty"`
}

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op     string `yaml:"op"`
	Proc   string `yaml:"proc"`
	Name   string `yaml:"name,omitempty"`
	Expect string `yaml:"expect,omitempty"`

	Target  string   `yaml:"target,omitempty"`
	PT      string   `yaml:"pt,omitempty"`
	Index   *uint32  `yaml:"index,omitempty"`
	List    string   `yaml:"list,omitempty"`
	Options []string `yaml:"options,omitempty"`
	EQ      string   `yaml:"eq,omitempty"`
	CT      string   `yaml:"ct,omitempty"`

	MD    string `yaml:"md,omitempty"`
	GetMD string `yaml:"get_md,omitempty"`
	PutMD string `yaml:"put_md,omitempty"`

	Size  uint64   `yaml:"size,omitempty"`
	Data  string   `yaml:"data,omitempty"`
	Words []uint64 `yaml:"words,omitempty"`

	Length         uint64 `yaml:"length,omitempty"`
	LocalOffset    uint64 `yaml:"local_offset,omitempty"`
	LocalGetOffset uint64 `yaml:"local_get_offset,omitempty"`
	RemoteOffset   uint64 `yaml:"remote_offset,omitempty"`
	MatchBits      uint64 `yaml:"match_bits,omitempty"`
	IgnoreBits     uint64 `yaml:"ignore_bits,omitempty"`
	HdrData        uint64 `yaml:"hdr_data,omitempty"`
	MinFree        uint64 `yaml:"min_free,omitempty"`
	UID            *int32 `yaml:"uid,omitempty"`
	Ack            string `yaml:"ack,omitempty"`
	Search         string `yaml:"search,omitempty"`

	AtomicOp string  `yaml:"atomic_op,omitempty"`
	Datatype string  `yaml:"datatype,omitempty"`
	Operand  *uint64 `yaml:"operand,omitempty"`

	Trigger   string `yaml:"trigger,omitempty"`
	Threshold uint64 `yaml:"threshold,omitempty"`
	Success   uint64 `yaml:"success,omitempty"`
	Failure   uint64 `yaml:"failure,omitempty"`
	Test      uint64 `yaml:"test,omitempty"`
	Count     int    `yaml:"count,omitempty"`
	Register  string `yaml:"register,omitempty"`
	Format    string `yaml:"format,omitempty"`
}

// Step operations.
const (
	OpPTAlloc         = "pt_alloc"
	OpPTFree          = "pt_free"
	OpPTEnable        = "pt_enable"
	OpPTDisable       = "pt_disable"
	OpMEAppend        = "me_append"
	OpMEUnlink        = "me_unlink"
	OpMESearch        = "me_search"
	OpMDBind          = "md_bind"
	OpMDRelease       = "md_release"
	OpCTAlloc         = "ct_alloc"
	OpCTFree          = "ct_free"
	OpCTInc           = "ct_inc"
	OpCTSet           = "ct_set"
	OpCTGet           = "ct_get"
	OpCTWait          = "ct_wait"
	OpCTCancel        = "ct_cancel"
	OpPut             = "put"
	OpGet             = "get"
	OpAtomic          = "atomic"
	OpFetchAtomic     = "fetch_atomic"
	OpSwap            = "swap"
	OpTriggeredPut    = "triggered_put"
	OpTriggeredGet    = "triggered_get"
	OpTriggeredAtomic = "triggered_atomic"
	OpTriggeredCTInc  = "triggered_ct_inc"
	OpTriggeredCTSet  = "triggered_ct_set"
	OpEQDrain         = "eq_drain"
	OpStatus          = "status"
	OpDump            = "dump"
)

var knownOps = map[string]bool{
	OpPTAlloc: true, OpPTFree: true, OpPTEnable: true, OpPTDisable: true,
	OpMEAppend: true, OpMEUnlink: true, OpMESearch: true,
	OpMDBind: true, OpMDRelease: true,
	OpCTAlloc: true, OpCTFree: true, OpCTInc: true, OpCTSet: true, OpCTGet: true, OpCTWait: true, OpCTCancel: true,
	OpPut: true, OpGet: true, OpAtomic: true, OpFetchAtomic: true, OpSwap: true,
	OpTriggeredPut: true, OpTriggeredGet: true, OpTriggeredAtomic: true, OpTriggeredCTInc: true, OpTriggeredCTSet: true,
	OpEQDrain: true, OpStatus: true, OpDump: true,
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid scenario")

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a scenario, rejecting unknown fields.
func Parse(r io.Reader) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the structure of the scenario: names are present and
// unique, steps name a known op and a declared process.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalid)
	}
	if len(sc.Processes) == 0 {
		return fmt.Errorf("%w: no processes", ErrInvalid)
	}
	procs := make(map[string]bool, len(sc.Processes))
	for i, p := range sc.Processes {
		if p.Name == "" {
			return fmt.Errorf("%w: process %d has no name", ErrInvalid, i)
		}
		if procs[p.Name] {
			return fmt.Errorf("%w: duplicate process %q", ErrInvalid, p.Name)
		}
		procs[p.Name] = true
	}
	for i, st := range sc.Steps {
		if !knownOps[st.Op] {
			return fmt.Errorf("%w: step %d: unknown op %q", ErrInvalid, i+1, st.Op)
		}
		if !procs[st.Proc] {
			return fmt.Errorf("%w: step %d: unknown process %q", ErrInvalid, i+1, st.Proc)
		}
		if st.Target != "" && !procs[st.Target] {
			return fmt.Errorf("%w: step %d: unknown target %q", ErrInvalid, i+1, st.Target)
		}
		if st.Data != "" && len(st.Words) > 0 {
			return fmt.Errorf("%w: step %d: data and words are exclusive", ErrInvalid, i+1)
		}
	}
	return nil
}
