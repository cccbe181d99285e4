package vectoridx

// HandleStatus is the per-index lifecycle state enum.
type HandleStatus int

const (
	StatusNone HandleStatus = iota
	StatusLoading
	StatusNormal
	StatusRebuilding
	StatusSnapshotting
	StatusError
)

func (s HandleStatus) String() string {
	switch s {
	case StatusNone:
		return "NONE"
	case StatusLoading:
		return "LOADING"
	case StatusNormal:
		return "NORMAL"
	case StatusRebuilding:
		return "REBUILDING"
	case StatusSnapshotting:
		return "SNAPSHOTTING"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// legalTransitions encodes the status machine diagram:
//
//	NONE ─► LOADING ─► NORMAL ─► REBUILDING ─► NORMAL
//	                       ├──► SNAPSHOTTING ─► NORMAL
//	                       └──► ERROR ─► REBUILDING ─► NORMAL
//
// ERROR is terminal only until the next Rebuild. Besides the diagram's
// edges, the map also allows LOADING, REBUILDING and SNAPSHOTTING to move
// to ERROR, and NORMAL to NORMAL.
var legalTransitions = map[HandleStatus]map[HandleStatus]bool{
	StatusNone:         {StatusLoading: true},
	StatusLoading:      {StatusNormal: true, StatusError: true},
	StatusNormal:       {StatusRebuilding: true, StatusSnapshotting: true, StatusError: true, StatusNormal: true},
	StatusRebuilding:   {StatusNormal: true, StatusError: true},
	StatusSnapshotting: {StatusNormal: true, StatusError: true},
	StatusError:        {StatusRebuilding: true},
}

// CanTransition reports whether moving a handle from 'from' to 'to' is a
// legal status-machine edge.
func CanTransition(from, to HandleStatus) bool {
	if from == to {
		return true
	}
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// rebuildable reports whether a handle currently in status s is a legal
// starting point for a Rebuild: {NORMAL, ERROR, NONE}.
func rebuildable(s HandleStatus) bool {
	return s == StatusNormal || s == StatusError || s == StatusNone
}
