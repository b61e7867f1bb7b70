package types

import (
	"time"

	"github.com/tiiuae/control_interface/internal/geo"
)

const (
	MessageTypeTick             = "tick"
	MessageTypeVehicleConnected = "vehicle-connected"
	MessageTypeControlMode      = "control-mode"
	MessageTypeLandDetected     = "land-detected"
	MessageTypeMissionResult    = "mission-result"
	MessageTypeHomePosition     = "home-position"
	MessageTypeOdometry         = "odometry"

	MessageTypeArming          = "arming"
	MessageTypeTakeoff         = "takeoff"
	MessageTypeLand            = "land"
	MessageTypeStopMission     = "stop-mission"
	MessageTypeLocalWaypoint   = "local-waypoint"
	MessageTypeLocalPath       = "local-path"
	MessageTypeGPSWaypoint     = "gps-waypoint"
	MessageTypeGPSPath         = "gps-path"
	MessageTypeWaypointToLocal = "waypoint-to-local"
	MessageTypePathToLocal     = "path-to-local"
	MessageTypeSetPX4ParamInt  = "set-px4-param-int"
	MessageTypeGetPX4ParamInt  = "get-px4-param-int"
	MessageTypeSetPX4ParamFlt  = "set-px4-param-float"
	MessageTypeGetPX4ParamFlt  = "get-px4-param-float"
	MessageTypeSetParameter    = "set-parameter"

	MessageTypeResponse     = "response"
	MessageTypeDiagnostics  = "diagnostics"
	MessageTypeDesiredPose  = "desired-pose"
	MessageTypeWaypoints    = "waypoint-markers"
	MessageTypeMissionEvent = "mission-event"
)

type Tick struct {
	Time time.Time
}

type VehicleConnected struct {
	SystemID uint8 `json:"system_id"`
}

type ControlMode struct {
	Armed  bool `json:"armed"`
	Manual bool `json:"manual"`
}

type LandDetected struct {
	GroundContact bool `json:"ground_contact"`
}

type MissionResult struct {
	Timestamp     uint64 // time since system start (microseconds)
	InstanceCount uint32 // Instance count of this mission. Increments monotonically whenever the mission is modified
	SeqReached    int    // Sequence of the mission item which has been reached, default -1
	SeqCurrent    int    // Sequence of the current mission item
	SeqTotal      int    // Total number of mission items
	Valid         bool   // true if mission is valid
	Finished      bool   // true if mission has been completed
	Failure       bool   // true if the mission cannot continue or be completed for some reason
}

// HomePosition carries the GPS origin and the home position in the flight
// controller's NED local frame.
type HomePosition struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
}

type Odometry struct {
	X            float64
	Y            float64
	Z            float64
	OrientationX float64
	OrientationY float64
	OrientationZ float64
	OrientationW float64
}

// Requests

type Arming struct {
	Arm bool `json:"arm"`
}

type Takeoff struct{}

type Land struct{}

type StopMission struct{}

// Waypoint4 is [x, y, z, yaw] or [lat, lon, alt, yaw].
type Waypoint4 [4]float64

type LocalWaypoints struct {
	Points []Waypoint4 `json:"path"`
}

type GPSWaypoints struct {
	Points []Waypoint4 `json:"path"`
}

type WaypointToLocal struct {
	Points []Waypoint4 `json:"path"`
	Single bool        `json:"-"`
}

type PX4Param struct {
	Name       string  `json:"name"`
	IntValue   int32   `json:"int_value,omitempty"`
	FloatValue float32 `json:"float_value,omitempty"`
	Float      bool    `json:"-"`
	Set        bool    `json:"-"`
}

type SetParameter struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Response answers a request; the message id is the request id.
type Response struct {
	Request string      `json:"request"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Outputs

type Diagnostics struct {
	Armed              bool   `json:"armed"`
	Airborne           bool   `json:"airborne"`
	Moving             bool   `json:"moving"`
	MissionFinished    bool   `json:"mission_finished"`
	GettingControlMode bool   `json:"getting_control_mode"`
	GettingLandSensor  bool   `json:"getting_land_sensor"`
	GPSOriginSet       bool   `json:"gps_origin_set"`
	GettingOdom        bool   `json:"getting_odom"`
	ManualControl      bool   `json:"manual_control"`
	MissionState       string `json:"mission_state"`
	LastMissionSize    int    `json:"last_mission_size"`
	BufferedWaypoints  int    `json:"buffered_waypoints"`
}

type DesiredPose struct {
	Frame string            `json:"frame"`
	Pose  geo.LocalWaypoint `json:"pose"`
}

type WaypointMarkers struct {
	Frame  string              `json:"frame"`
	Points []geo.LocalWaypoint `json:"points"`
}

type MissionEvent struct {
	Event   string `json:"event"`
	Size    int    `json:"size,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
