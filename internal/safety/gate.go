// Package safety decides whether a request that changes the vehicle's
// mission or flight state may proceed.
package safety

type Snapshot struct {
	Initialized      bool
	GPSOriginSet     bool
	Armed            bool
	Landed           bool
	ManualOverride   bool
	Landing          bool
	TakeoffCompleted bool
}

type Condition int

const (
	Initialized Condition = iota
	GPSOrigin
	Airborne
	NoManualOverride
	TakeoffSettled
	Armed
	OnGround
)

// Condition sets per request kind, in evaluation order.
var (
	Waypoints  = []Condition{Initialized, GPSOrigin, Airborne, NoManualOverride, TakeoffSettled}
	Takeoff    = []Condition{Initialized, GPSOrigin, Armed, OnGround}
	Land       = []Condition{Initialized, Armed, Airborne}
	Arming     = []Condition{Initialized}
	Conversion = []Condition{Initialized, GPSOrigin}
	Parameters = []Condition{Initialized}
)

// Rejection is returned when a condition does not hold.
type Rejection struct {
	Condition Condition
	Reason    string
}

func (r *Rejection) Error() string {
	return r.Reason
}

// Check returns a Rejection for the first condition that does not hold.
func Check(s Snapshot, conditions []Condition) error {
	for _, c := range conditions {
		if reason, ok := evaluate(s, c); !ok {
			return &Rejection{c, reason}
		}
	}
	return nil
}

func evaluate(s Snapshot, c Condition) (string, bool) {
	switch c {
	case Initialized:
		return "not initialized", s.Initialized
	case GPSOrigin:
		return "missing GPS origin", s.GPSOriginSet
	case Airborne:
		return "vehicle not airborne", !s.Landed
	case NoManualOverride:
		if s.Landing {
			return "vehicle is landing", false
		}
		return "vehicle is under manual control", !s.ManualOverride
	case TakeoffSettled:
		return "vehicle not flying normally", s.TakeoffCompleted
	case Armed:
		return "vehicle not armed", s.Armed
	case OnGround:
		return "vehicle not landed", s.Landed
	}
	return "unknown condition", false
}
