package controller

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/tiiuae/control_interface/internal/geo"
	"github.com/tiiuae/control_interface/internal/safety"
	"github.com/tiiuae/control_interface/internal/types"
)

func (s *state) handleRequest(msg types.Message) {
	switch m := msg.Message.(type) {
	case types.Arming:
		s.handleArming(msg, m)
	case types.Takeoff:
		s.handleTakeoff(msg)
	case types.Land:
		s.handleLand(msg)
	case types.StopMission:
		s.handleStopMission(msg)
	case types.LocalWaypoints:
		s.handleLocalWaypoints(msg, m)
	case types.GPSWaypoints:
		s.handleGPSWaypoints(msg, m)
	case types.WaypointToLocal:
		s.handleWaypointToLocal(msg, m)
	case types.PX4Param:
		s.handlePX4Param(msg, m)
	case types.SetParameter:
		s.handleSetParameter(msg, m)
	default:
		s.log.Warn("Unknown message", "type", msg.MessageType)
	}
}

func (s *state) reply(request types.Message, success bool, text string, value interface{}) {
	if success {
		s.log.Info(text, "request", request.MessageType, "id", request.ID)
	} else {
		s.log.Warn(text, "request", request.MessageType, "id", request.ID)
	}
	response := types.Response{Request: request.MessageType, Success: success, Message: text, Value: value}
	s.post(types.CreateReply(request, types.MessageTypeResponse, response))
}

func (s *state) check(conditions []safety.Condition) error {
	return safety.Check(s.flags.Snapshot(), conditions)
}

func (s *state) handleArming(msg types.Message, m types.Arming) {
	action, failed, succeeded := "Disarming", "Disarming failed", "Vehicle disarmed"
	if m.Arm {
		action, failed, succeeded = "Arming", "Arming failed", "Vehicle armed"
	}
	if err := s.check(safety.Arming); err != nil {
		s.reply(msg, false, fmt.Sprintf("%s rejected, %v", action, err), nil)
		return
	}

	s.jobs.submit(&job{
		name: "arming",
		run: func(ctx context.Context) (interface{}, error) {
			if m.Arm {
				return nil, s.vehicle.Arm(ctx)
			}
			return nil, s.vehicle.Disarm(ctx)
		},
		done: func(_ interface{}, err error) {
			if err != nil {
				s.reply(msg, false, fmt.Sprintf("%s: %v", failed, err), nil)
				return
			}
			if !m.Arm {
				s.flags.SetTakeoffCompleted(false)
			}
			s.reply(msg, true, succeeded, nil)
		},
	})
}

func (s *state) handleTakeoff(msg types.Message) {
	if err := s.check(safety.Takeoff); err != nil {
		s.reply(msg, false, fmt.Sprintf("Takeoff rejected, %v", err), nil)
		return
	}
	if len(s.samples) < s.cfg.Takeoff.PositionSamples {
		s.reply(msg, false, fmt.Sprintf("Takeoff rejected, not enough odometry samples (%d/%d)", len(s.samples), s.cfg.Takeoff.PositionSamples), nil)
		return
	}

	var sum r3.Vector
	for _, p := range s.samples {
		sum = sum.Add(p)
	}
	mean := sum.Mul(1 / float64(len(s.samples)))
	goal := geo.LocalWaypoint{X: mean.X, Y: mean.Y, Z: s.cfg.Takeoff.Height, Yaw: s.pose.Yaw}

	height := s.cfg.Takeoff.Height
	resetOctomap := s.cfg.General.ResetOctomapBeforeTakeoff && s.octomap != nil
	s.jobs.submit(&job{
		name: "takeoff",
		run: func(ctx context.Context) (interface{}, error) {
			if err := s.vehicle.SetTakeoffAltitude(ctx, height); err != nil {
				return nil, err
			}
			if resetOctomap {
				if err := s.octomap.Reset(ctx); err != nil {
					return nil, errors.WithMessage(err, "octomap reset")
				}
			}
			return nil, s.vehicle.Takeoff(ctx)
		},
		done: func(_ interface{}, err error) {
			if err != nil {
				s.reply(msg, false, fmt.Sprintf("Takeoff failed: %v", err), nil)
				return
			}
			s.desired = goal
			s.lifecycle.Buffer().Append(goal)
			s.takeoffCalled = true
			s.takeoffTime = s.now()
			s.flags.SetTakeoffCompleted(false)
			s.reply(msg, true, "Taking off", goal)
		},
	})
}

func (s *state) handleLand(msg types.Message) {
	if err := s.check(safety.Land); err != nil {
		s.reply(msg, false, fmt.Sprintf("Landing rejected, %v", err), nil)
		return
	}

	var cleanupErr error
	s.stopMission(func(err error) { cleanupErr = err })
	s.flags.SetLanding(true)
	s.flags.SetTakeoffCompleted(false)
	s.takeoffCalled = false

	s.jobs.submit(&job{
		name: "land",
		run: func(ctx context.Context) (interface{}, error) {
			return nil, s.vehicle.Land(ctx)
		},
		done: func(_ interface{}, err error) {
			if err != nil {
				s.flags.SetLanding(false)
				s.reply(msg, false, fmt.Sprintf("Landing failed: %v", err), nil)
				return
			}
			if cleanupErr != nil {
				s.reply(msg, true, fmt.Sprintf("Landing, previous mission could not be cleared: %v", cleanupErr), nil)
				return
			}
			s.reply(msg, true, "Landing", nil)
		},
	})
}

func (s *state) handleStopMission(msg types.Message) {
	if err := s.check(safety.Parameters); err != nil {
		s.reply(msg, false, fmt.Sprintf("Mission stop rejected, %v", err), nil)
		return
	}
	s.stopMission(func(err error) {
		if err != nil {
			s.reply(msg, false, fmt.Sprintf("Mission stopped, vehicle cleanup failed: %v", err), nil)
			return
		}
		s.reply(msg, true, "Mission stopped", nil)
	})
}

func (s *state) handleLocalWaypoints(msg types.Message, m types.LocalWaypoints) {
	if err := s.check(safety.Waypoints); err != nil {
		s.reply(msg, false, fmt.Sprintf("Waypoints not set, %v", err), nil)
		return
	}
	if len(m.Points) == 0 {
		s.reply(msg, false, "Waypoints not set, empty path", nil)
		return
	}

	points := make([]geo.LocalWaypoint, len(m.Points))
	for i, p := range m.Points {
		points[i] = geo.LocalWaypoint{X: p[0], Y: p[1], Z: p[2], Yaw: p[3]}
	}
	s.addWaypoints(msg, points)
}

func (s *state) handleGPSWaypoints(msg types.Message, m types.GPSWaypoints) {
	if err := s.check(safety.Waypoints); err != nil {
		s.reply(msg, false, fmt.Sprintf("Waypoints not set, %v", err), nil)
		return
	}
	if len(m.Points) == 0 {
		s.reply(msg, false, "Waypoints not set, empty path", nil)
		return
	}

	points := make([]geo.LocalWaypoint, len(m.Points))
	for i, p := range m.Points {
		points[i] = s.transform.ToLocal(geo.GeodeticWaypoint{LatitudeDeg: p[0], LongitudeDeg: p[1], AltitudeM: p[2], YawRad: p[3]})
	}
	s.addWaypoints(msg, points)
}

func (s *state) addWaypoints(msg types.Message, points []geo.LocalWaypoint) {
	buffer := s.lifecycle.Buffer()
	buffer.Append(points...)
	s.publishMarkers(buffer.Snapshot())
	s.reply(msg, true, "Waypoints set", len(points))
}

func (s *state) handleWaypointToLocal(msg types.Message, m types.WaypointToLocal) {
	if err := s.check(safety.Conversion); err != nil {
		s.reply(msg, false, fmt.Sprintf("Conversion rejected, %v", err), nil)
		return
	}
	if len(m.Points) == 0 {
		s.reply(msg, false, "Conversion rejected, empty path", nil)
		return
	}

	local := make([]geo.LocalWaypoint, len(m.Points))
	for i, p := range m.Points {
		local[i] = s.transform.ToLocal(geo.GeodeticWaypoint{LatitudeDeg: p[0], LongitudeDeg: p[1], AltitudeM: p[2], YawRad: p[3]})
	}
	if m.Single {
		s.reply(msg, true, "Waypoint converted", local[0])
		return
	}
	s.reply(msg, true, "Path converted", local)
}

func (s *state) handlePX4Param(msg types.Message, m types.PX4Param) {
	verb := "read"
	if m.Set {
		verb = "set"
	}
	if err := s.check(safety.Parameters); err != nil {
		s.reply(msg, false, fmt.Sprintf("Failed to %s PX4 parameter: %v", verb, err), nil)
		return
	}

	s.jobs.submit(&job{
		name: "px4 parameter",
		run: func(ctx context.Context) (interface{}, error) {
			switch {
			case m.Set && m.Float:
				return m.FloatValue, s.vehicle.SetParamFloat(ctx, m.Name, m.FloatValue)
			case m.Set:
				return m.IntValue, s.vehicle.SetParamInt(ctx, m.Name, m.IntValue)
			case m.Float:
				return s.vehicle.GetParamFloat(ctx, m.Name)
			default:
				return s.vehicle.GetParamInt(ctx, m.Name)
			}
		},
		done: func(value interface{}, err error) {
			if err != nil {
				s.reply(msg, false, fmt.Sprintf("Failed to %s PX4 parameter: %v", verb, err), nil)
				return
			}
			s.reply(msg, true, fmt.Sprintf("PX4 parameter successfully %s", verb), value)
		},
	})
}

func (s *state) handleSetParameter(msg types.Message, m types.SetParameter) {
	if err := s.cfg.SetRuntime(m.Name, m.Value); err != nil {
		s.reply(msg, false, fmt.Sprintf("Parameter not set, %v", err), nil)
		return
	}
	s.reply(msg, true, fmt.Sprintf("Parameter %s set", m.Name), m.Value)
}
