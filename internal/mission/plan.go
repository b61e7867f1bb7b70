package mission

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/tiiuae/control_interface/internal/geo"
)

var ErrEmptyPlan = errors.New("mission plan is empty")

// Item is one vehicle-native mission item.
type Item struct {
	LatitudeDeg       float64 `json:"latitude_deg"`
	LongitudeDeg      float64 `json:"longitude_deg"`
	RelativeAltitudeM float64 `json:"relative_altitude_m"`
	YawDeg            float64 `json:"yaw_deg"`
	SpeedMS           float64 `json:"speed_m_s"`
	IsFlyThrough      bool    `json:"is_fly_through"`
	LoiterTimeS       float64 `json:"loiter_time_s"`
	AcceptanceRadiusM float64 `json:"acceptance_radius_m"`
}

// Plan is an immutable mission built 1:1 from a set of local waypoints.
type Plan struct {
	items     []Item
	waypoints []geo.LocalWaypoint
}

func (p Plan) Len() int {
	return len(p.items)
}

func (p Plan) Empty() bool {
	return len(p.items) == 0
}

func (p Plan) Items() []Item {
	out := make([]Item, len(p.items))
	copy(out, p.items)
	return out
}

func (p Plan) Waypoints() []geo.LocalWaypoint {
	out := make([]geo.LocalWaypoint, len(p.waypoints))
	copy(out, p.waypoints)
	return out
}

// Last returns the final waypoint of the plan, which becomes the desired pose.
func (p Plan) Last() (geo.LocalWaypoint, bool) {
	if len(p.waypoints) == 0 {
		return geo.LocalWaypoint{}, false
	}
	return p.waypoints[len(p.waypoints)-1], true
}

// PlanFunc turns drained waypoints into a plan.
type PlanFunc func(waypoints []geo.LocalWaypoint) (Plan, error)

// ItemBuilder maps local waypoints to mission items.
type ItemBuilder struct {
	Transform *geo.Transform
	// HomeOffset is the flight controller's home position in the local frame.
	HomeOffset          r3.Vector
	YawOffsetCorrection float64
	TargetVelocity      float64
	LoiterTime          float64
	AcceptanceRadius    float64
}

func (b ItemBuilder) Item(w geo.LocalWaypoint) Item {
	local := r3.Vector{X: w.X, Y: w.Y, Z: w.Z}.Sub(b.HomeOffset)
	global := b.Transform.ToGlobal(geo.LocalWaypoint{X: local.X, Y: local.Y, Z: local.Z, Yaw: w.Yaw})

	return Item{
		LatitudeDeg:       global.LatitudeDeg,
		LongitudeDeg:      global.LongitudeDeg,
		RelativeAltitudeM: local.Z,
		YawDeg:            -(w.Yaw + b.YawOffsetCorrection) * 180 / math.Pi,
		SpeedMS:           b.TargetVelocity,
		IsFlyThrough:      true,
		LoiterTimeS:       b.LoiterTime,
		AcceptanceRadiusM: b.AcceptanceRadius,
	}
}

func (b ItemBuilder) Plan(waypoints []geo.LocalWaypoint) (Plan, error) {
	if b.Transform == nil {
		return Plan{}, errors.New("missing GPS origin")
	}
	if len(waypoints) == 0 {
		return Plan{}, ErrEmptyPlan
	}

	p := Plan{
		items:     make([]Item, len(waypoints)),
		waypoints: make([]geo.LocalWaypoint, len(waypoints)),
	}
	copy(p.waypoints, waypoints)
	for i, w := range waypoints {
		p.items[i] = b.Item(w)
	}
	return p, nil
}
