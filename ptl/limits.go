package ptl

// Limits mirrors ptl_ni_limits_t. NIInit treats zero fields of the desired
// limits as "use the default" and clamps the rest to what the engine can
// provide.
type Limits struct {
	MaxEntries           int
	MaxUnexpectedHeaders int
	MaxMDs               int
	MaxCTs               int
	MaxEQs               int
	MaxPTIndex           int
	MaxIOVecs            int
	MaxListSize          int
	MaxTriggeredOps      int
	MaxMsgSize           uint64
	MaxAtomicSize        uint64
	MaxFetchAtomicSize   uint64
	MaxWAWOrderedSize    uint64
	MaxWAROrderedSize    uint64
	MaxVolatileSize      uint64
	Features             uint32
}

// EngineLimits are the largest values NIInit will grant.
var EngineLimits = Limits{
	MaxEntries:           1 << 20,
	MaxUnexpectedHeaders: 1 << 20,
	MaxMDs:               1 << 20,
	MaxCTs:               1 << 16,
	MaxEQs:               1 << 12,
	MaxPTIndex:           255,
	MaxIOVecs:            256,
	MaxListSize:          1 << 20,
	MaxTriggeredOps:      1 << 20,
	MaxMsgSize:           1 << 32,
	MaxAtomicSize:        512,
	MaxFetchAtomicSize:   512,
	MaxWAWOrderedSize:    1 << 32,
	MaxWAROrderedSize:    1 << 32,
	MaxVolatileSize:      256,
	Features:             TargetBindInaccessible | TotalDataOrdering,
}

// DefaultLimits are granted when the caller expresses no preference.
var DefaultLimits = Limits{
	MaxEntries:           4096,
	MaxUnexpectedHeaders: 4096,
	MaxMDs:               4096,
	MaxCTs:               1024,
	MaxEQs:               256,
	MaxPTIndex:           63,
	MaxIOVecs:            32,
	MaxListSize:          4096,
	MaxTriggeredOps:      4096,
	MaxMsgSize:           1 << 24,
	MaxAtomicSize:        512,
	MaxFetchAtomicSize:   512,
	MaxWAWOrderedSize:    1 << 24,
	MaxWAROrderedSize:    1 << 24,
	MaxVolatileSize:      64,
	Features:             TotalDataOrdering,
}

func clampInt(want, def, max int) int {
	if want <= 0 {
		want = def
	}
	if want > max {
		return max
	}
	return want
}

func clampSize(want, def, max uint64) uint64 {
	if want == 0 {
		want = def
	}
	if want > max {
		return max
	}
	return want
}

// negotiate resolves the limits an NI runs with. Total data ordering is always
// granted because delivery is synchronous.
func negotiate(desired *Limits, def Limits) Limits {
	if desired == nil {
		out := def
		out.Features |= TotalDataOrdering
		return out
	}
	e := EngineLimits
	return Limits{
		MaxEntries:           clampInt(desired.MaxEntries, def.MaxEntries, e.MaxEntries),
		MaxUnexpectedHeaders: clampInt(desired.MaxUnexpectedHeaders, def.MaxUnexpectedHeaders, e.MaxUnexpectedHeaders),
		MaxMDs:               clampInt(desired.MaxMDs, def.MaxMDs, e.MaxMDs),
		MaxCTs:               clampInt(desired.MaxCTs, def.MaxCTs, e.MaxCTs),
		MaxEQs:               clampInt(desired.MaxEQs, def.MaxEQs, e.MaxEQs),
		MaxPTIndex:           clampInt(desired.MaxPTIndex, def.MaxPTIndex, e.MaxPTIndex),
		MaxIOVecs:            clampInt(desired.MaxIOVecs, def.MaxIOVecs, e.MaxIOVecs),
		MaxListSize:          clampInt(desired.MaxListSize, def.MaxListSize, e.MaxListSize),
		MaxTriggeredOps:      clampInt(desired.MaxTriggeredOps, def.MaxTriggeredOps, e.MaxTriggeredOps),
		MaxMsgSize:           clampSize(desired.MaxMsgSize, def.MaxMsgSize, e.MaxMsgSize),
		MaxAtomicSize:        clampSize(desired.MaxAtomicSize, def.MaxAtomicSize, e.MaxAtomicSize),
		MaxFetchAtomicSize:   clampSize(desired.MaxFetchAtomicSize, def.MaxFetchAtomicSize, e.MaxFetchAtomicSize),
		MaxWAWOrderedSize:    clampSize(desired.MaxWAWOrderedSize, def.MaxWAWOrderedSize, e.MaxWAWOrderedSize),
		MaxWAROrderedSize:    clampSize(desired.MaxWAROrderedSize, def.MaxWAROrderedSize, e.MaxWAROrderedSize),
		MaxVolatileSize:      clampSize(desired.MaxVolatileSize, def.MaxVolatileSize, e.MaxVolatileSize),
		Features:             (desired.Features & e.Features) | TotalDataOrdering,
	}
}
