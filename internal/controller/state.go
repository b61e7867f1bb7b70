package controller

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/hashicorp/go-multierror"
	"github.com/tiiuae/control_interface/internal/config"
	"github.com/tiiuae/control_interface/internal/geo"
	"github.com/tiiuae/control_interface/internal/logging"
	"github.com/tiiuae/control_interface/internal/mission"
	"github.com/tiiuae/control_interface/internal/safety"
	"github.com/tiiuae/control_interface/internal/types"
	"github.com/tiiuae/control_interface/internal/vehicle"
)

type state struct {
	deviceID string
	cfg      config.Config
	log      *slog.Logger
	vehicle  vehicle.Vehicle
	octomap  OctomapResetter
	jobs     jobRunner
	post     types.PostFn
	now      func() time.Time
	throttle *logging.Throttle

	flags     *safety.Flags
	lifecycle *mission.Lifecycle
	transform *geo.Transform
	// home position of the flight controller in the local frame
	homeOffset r3.Vector

	pose           geo.LocalWaypoint
	samples        []r3.Vector
	desired        geo.LocalWaypoint
	takeoffCalled  bool
	takeoffTime    time.Time
	previousManual bool

	// latest vehicle status seen before initialization, applied once it completes
	earlyControlMode  *types.ControlMode
	earlyLandDetected *types.LandDetected

	stops map[uint64]func(err error)
}

func newState(deviceID string, cfg config.Config, v vehicle.Vehicle, octomap OctomapResetter, jobs jobRunner, log *slog.Logger) *state {
	s := &state{
		deviceID:       deviceID,
		cfg:            cfg,
		log:            log,
		vehicle:        v,
		octomap:        octomap,
		jobs:           jobs,
		post:           func(types.Message) {},
		now:            time.Now,
		throttle:       logging.NewThrottle(time.Second),
		flags:          safety.NewFlags(),
		previousManual: true,
		stops:          make(map[uint64]func(err error)),
	}
	lifecycleCfg := mission.Config{
		UploadAttempts:  cfg.Mission.UploadAttempts,
		StartTimeout:    cfg.MissionStartTimeout(),
		InitialInstance: cfg.Mission.InitialMissionInstance,
	}
	s.lifecycle = mission.NewLifecycle(lifecycleCfg, commander{s}, mission.NewBuffer(), s.flags.ManualOverride)
	return s
}

func (s *state) handle(msg types.Message) {
	switch m := msg.Message.(type) {
	case jobResult:
		m.job.done(m.value, m.err)
	case types.Tick:
		s.handleTick(m.Time)
	case types.VehicleConnected:
		s.handleVehicleConnected(m)
	case types.ControlMode:
		s.handleControlMode(m)
	case types.LandDetected:
		s.handleLandDetected(m)
	case types.MissionResult:
		s.handleMissionResult(m)
	case types.HomePosition:
		s.handleHomePosition(m)
	case types.Odometry:
		s.handleOdometry(m)
	default:
		s.handleRequest(msg)
	}
}

func (s *state) handleVehicleConnected(m types.VehicleConnected) {
	if s.flags.Initialized() {
		return
	}

	acceptance := float32(s.cfg.PX4.WaypointAcceptanceRadius)
	altitude := float32(s.cfg.PX4.AltitudeAcceptanceRadius)
	s.jobs.submit(&job{
		name: "px4 defaults",
		run: func(ctx context.Context) (interface{}, error) {
			var result *multierror.Error
			for name, value := range map[string]float32{
				"NAV_ACC_RAD":    acceptance,
				"NAV_LOITER_RAD": acceptance,
				"NAV_MC_ALT_RAD": altitude,
			} {
				if err := s.vehicle.SetParamFloat(ctx, name, value); err != nil {
					result = multierror.Append(result, err)
				}
			}
			return nil, result.ErrorOrNil()
		},
		done: func(_ interface{}, err error) {
			if err != nil {
				s.log.Warn("Could not set PX4 defaults", "err", err)
			}
			s.flags.SetInitialized(true)
			s.log.Info("Initialized", "system_id", m.SystemID)
			s.applyEarlyStatus()
		},
	})
}

func (s *state) applyEarlyStatus() {
	if s.earlyLandDetected != nil {
		s.handleLandDetected(*s.earlyLandDetected)
		s.earlyLandDetected = nil
	}
	if s.earlyControlMode != nil {
		s.handleControlMode(*s.earlyControlMode)
		s.earlyControlMode = nil
	}
}

func (s *state) handleControlMode(m types.ControlMode) {
	if !s.flags.Initialized() {
		s.earlyControlMode = &m
		return
	}
	s.flags.SetGettingControlMode(true)

	if !s.previousManual && m.Manual {
		s.log.Warn("Manual control enabled, stopping mission")
		s.flags.SetManualOverride(true)
		s.stopMission(func(err error) {
			if err != nil {
				s.log.Error("Previous mission cannot be stopped. Manual landing required", "err", err)
			}
		})
	}
	s.previousManual = m.Manual

	if m.Armed == s.flags.Armed() {
		return
	}
	s.flags.SetArmed(m.Armed)
	if m.Armed {
		s.log.Info("Vehicle armed")
		return
	}

	s.log.Info("Vehicle disarmed")
	s.flags.SetTakeoffCompleted(false)
	if s.flags.Landed() && (s.flags.ManualOverride() || s.flags.Landing()) {
		s.flags.SetManualOverride(false)
		s.flags.SetLanding(false)
		s.log.Info("Vehicle disarmed on the ground, auto control will be re-enabled")
	}
}

func (s *state) handleLandDetected(m types.LandDetected) {
	if !s.flags.Initialized() {
		s.earlyLandDetected = &m
		return
	}
	s.flags.SetGettingLandSensor(true)
	s.flags.SetLanded(m.GroundContact)
}

func (s *state) handleMissionResult(m types.MissionResult) {
	if !s.flags.Initialized() {
		return
	}
	s.handleEvents(s.lifecycle.OnMissionResult(m.Finished, m.InstanceCount))
}

func (s *state) handleHomePosition(m types.HomePosition) {
	if !s.flags.Initialized() {
		return
	}

	s.transform = geo.NewTransform(geo.Origin{LatitudeDeg: m.Lat, LongitudeDeg: m.Lon})
	// NED to ENU
	s.homeOffset = r3.Vector{X: m.Y, Y: m.X, Z: -m.Z}
	if !s.flags.GPSOriginSet() {
		s.log.Info("GPS origin set", "lat", m.Lat, "lon", m.Lon)
	}
	s.flags.SetGPSOriginSet(true)
}

func (s *state) handleOdometry(m types.Odometry) {
	if !s.flags.Initialized() {
		return
	}
	s.flags.SetGettingOdom(true)

	s.pose = geo.LocalWaypoint{
		X:   m.X,
		Y:   m.Y,
		Z:   m.Z,
		Yaw: geo.YawFromQuaternion(m.OrientationX, m.OrientationY, m.OrientationZ, m.OrientationW),
	}
	s.samples = append(s.samples, r3.Vector{X: m.X, Y: m.Y, Z: m.Z})
	if over := len(s.samples) - s.cfg.Takeoff.PositionSamples; over > 0 {
		s.samples = s.samples[over:]
	}

	if !s.takeoffCalled || s.flags.ManualOverride() {
		return
	}
	since := s.now().Sub(s.takeoffTime)
	if math.Abs(m.Z-s.desired.Z) < s.cfg.Takeoff.HeightTolerance || since > s.cfg.TakeoffBlockingTimeout() {
		s.flags.SetTakeoffCompleted(true)
		s.takeoffCalled = false
		s.log.Info("Takeoff completed", "altitude", m.Z, "after", since)
	}
}

func (s *state) handleTick(now time.Time) {
	if !s.flags.Initialized() {
		return
	}

	s.publishDiagnostics()
	s.post(types.CreateMessage(types.MessageTypeDesiredPose, s.deviceID, s.deviceID, types.DesiredPose{Frame: s.cfg.WorldFrame, Pose: s.desired}))

	switch {
	case !s.flags.GPSOriginSet() || !s.flags.GettingOdom():
		s.waiting(now, "Waiting for GPS origin and odometry")
		return
	case !s.flags.Armed():
		s.waiting(now, "Vehicle not armed")
		return
	case s.flags.Landed():
		s.waiting(now, "Vehicle landed")
		return
	case s.flags.ManualOverride():
		s.waiting(now, "Vehicle under manual control")
		return
	case s.flags.Landing():
		s.waiting(now, "Vehicle landing")
		return
	}

	s.handleEvents(s.lifecycle.Advance(now, s.buildPlan))
}

func (s *state) waiting(now time.Time, reason string) {
	if s.throttle.Allow(reason, now) {
		s.log.Debug(reason)
	}
}

func (s *state) buildPlan(waypoints []geo.LocalWaypoint) (mission.Plan, error) {
	return mission.ItemBuilder{
		Transform:           s.transform,
		HomeOffset:          s.homeOffset,
		YawOffsetCorrection: s.cfg.Mission.YawOffsetCorrection,
		TargetVelocity:      s.cfg.PX4.TargetVelocity,
		LoiterTime:          s.cfg.PX4.WaypointLoiterTime,
		AcceptanceRadius:    s.cfg.PX4.WaypointAcceptanceRadius,
	}.Plan(waypoints)
}

func (s *state) diagnostics() types.Diagnostics {
	_, moving := s.lifecycle.State().(*mission.InProgress)
	_, finished := s.lifecycle.State().(mission.Finished)
	return types.Diagnostics{
		Armed:              s.flags.Armed(),
		Airborne:           !s.flags.Landed() && s.flags.TakeoffCompleted(),
		Moving:             moving,
		MissionFinished:    finished,
		GettingControlMode: s.flags.GettingControlMode(),
		GettingLandSensor:  s.flags.GettingLandSensor(),
		GPSOriginSet:       s.flags.GPSOriginSet(),
		GettingOdom:        s.flags.GettingOdom(),
		ManualControl:      s.flags.ManualOverride(),
		MissionState:       s.lifecycle.State().Name(),
		LastMissionSize:    s.lifecycle.LastMissionSize(),
		BufferedWaypoints:  s.lifecycle.Buffer().Len(),
	}
}

func (s *state) publishDiagnostics() {
	s.post(types.CreateMessage(types.MessageTypeDiagnostics, s.deviceID, s.deviceID, s.diagnostics()))
}

func (s *state) publishMarkers(points []geo.LocalWaypoint) {
	s.post(types.CreateMessage(types.MessageTypeWaypoints, s.deviceID, s.deviceID, types.WaypointMarkers{Frame: s.cfg.WorldFrame, Points: points}))
}

func (s *state) publishEvent(e types.MissionEvent) {
	s.post(types.CreateMessage(types.MessageTypeMissionEvent, s.deviceID, s.deviceID, e))
}

// stopMission forces the lifecycle to finished. done receives the outcome
// of the vehicle cleanup.
func (s *state) stopMission(done func(err error)) {
	token, events := s.lifecycle.Stop()
	s.stops[token] = done
	s.handleEvents(events)
}

func (s *state) handleEvents(events []mission.Event) {
	for _, e := range events {
		switch e := e.(type) {
		case mission.UploadBegun:
			s.desired = e.Last
			s.publishMarkers(e.Waypoints)
			s.log.Info("Uploading mission", "size", len(e.Waypoints))
			s.publishEvent(types.MissionEvent{Event: "upload", Size: len(e.Waypoints)})
		case mission.UploadAttemptFailed:
			s.log.Warn("Mission upload failed", "attempt", e.Attempt, "err", e.Err)
		case mission.StartAttemptRejected:
			s.log.Warn("Mission start rejected", "attempt", e.Attempt, "err", e.Err)
		case mission.MissionStarted:
			s.log.Info("Mission started", "size", e.Size, "upload_attempts", e.UploadAttempts, "start_attempts", e.StartAttempts)
			s.publishEvent(types.MissionEvent{Event: "started", Size: e.Size, Attempt: e.StartAttempts})
		case mission.MissionCompleted:
			s.log.Info("Mission finished", "instance", e.Instance, "size", e.Size)
			s.publishEvent(types.MissionEvent{Event: "finished", Size: e.Size})
		case mission.MissionAbandoned:
			s.log.Error("Mission abandoned", "reason", e.Reason)
			s.publishEvent(types.MissionEvent{Event: "abandoned", Reason: e.Reason.Error()})
		case mission.MissionStopped:
			s.log.Info("Mission stopped", "previous", e.Previous)
			s.publishEvent(types.MissionEvent{Event: "stopped"})
		}
	}
}

// commander issues the lifecycle's vehicle commands as dispatcher jobs and
// feeds their results back into the lifecycle.
type commander struct {
	s *state
}

func (c commander) Upload(generation uint64, plan mission.Plan) error {
	s := c.s
	items := plan.Items()
	s.jobs.submit(&job{
		name:        "upload mission",
		cancellable: true,
		run: func(ctx context.Context) (interface{}, error) {
			if err := s.vehicle.ClearMission(ctx); err != nil {
				return nil, err
			}
			return nil, s.vehicle.UploadMission(ctx, items)
		},
		done: func(_ interface{}, err error) {
			s.handleEvents(s.lifecycle.OnUploadResult(s.now(), generation, err))
		},
	})
	return nil
}

func (c commander) Start(generation uint64) error {
	s := c.s
	s.jobs.submit(&job{
		name: "start mission",
		run: func(ctx context.Context) (interface{}, error) {
			return nil, s.vehicle.StartMission(ctx)
		},
		done: func(_ interface{}, err error) {
			s.handleEvents(s.lifecycle.OnStartResult(s.now(), generation, err))
		},
	})
	return nil
}

func (c commander) Pause() {
	s := c.s
	s.jobs.submit(&job{
		name: "pause mission",
		run: func(ctx context.Context) (interface{}, error) {
			return nil, s.vehicle.PauseMission(ctx)
		},
		done: func(_ interface{}, err error) {
			if err != nil {
				s.log.Warn("Could not pause mission", "err", err)
			}
		},
	})
}

func (c commander) Cleanup(token uint64) {
	s := c.s
	s.jobs.cancelUpload()
	s.jobs.submit(&job{
		name: "clear mission",
		run: func(ctx context.Context) (interface{}, error) {
			var result *multierror.Error
			if err := s.vehicle.CancelMissionUpload(ctx); err != nil {
				result = multierror.Append(result, err)
			}
			if err := s.vehicle.ClearMission(ctx); err != nil {
				result = multierror.Append(result, err)
			}
			return nil, result.ErrorOrNil()
		},
		done: func(_ interface{}, err error) {
			done, ok := s.stops[token]
			if !ok {
				return
			}
			delete(s.stops, token)
			if done != nil {
				done(err)
			}
		},
	})
}
