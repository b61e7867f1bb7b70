// Package telemetry turns the flight controller's ROS2 topics into bus
// messages for the controller.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tiiuae/control_interface/internal/types"
	"github.com/tiiuae/rclgo/pkg/ros2"
	nav_msgs "github.com/tiiuae/rclgo/pkg/ros2/msgs/nav_msgs/msg"
	px4_msgs "github.com/tiiuae/rclgo/pkg/ros2/msgs/px4_msgs/msg"
	"github.com/tiiuae/rclgo/pkg/ros2/ros2types"
)

const (
	TopicControlMode   = "VehicleControlMode_PubSubTopic"
	TopicLandDetected  = "VehicleLandDetected_PubSubTopic"
	TopicMissionResult = "MissionResult_PubSubTopic"
	TopicHomePosition  = "HomePosition_PubSubTopic"
	TopicOdometry      = "odom"
)

type telemetry struct {
	node     *ros2.Node
	deviceID string
	log      *slog.Logger
}

func New(node *ros2.Node, deviceID string, log *slog.Logger) types.MessageHandler {
	return &telemetry{node, deviceID, log.With("component", "telemetry")}
}

func (t *telemetry) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	go t.runControlModeSubscriber(ctx, wg, post)
	go t.runLandDetectedSubscriber(ctx, wg, post)
	go t.runMissionResultSubscriber(ctx, wg, post)
	go t.runHomePositionSubscriber(ctx, wg, post)
	go t.runOdometrySubscriber(ctx, wg, post)
}

func (t *telemetry) Receive(message types.Message) {
}

func (t *telemetry) spin(ctx context.Context, topic string, msg ros2types.ROS2Msg, callback func(s *ros2.Subscription)) {
	sub, rclErr := t.node.NewSubscription(topic, msg, callback)
	if rclErr != nil {
		t.log.Error("Unable to subscribe", "topic", topic, "err", rclErr)
		return
	}

	err := sub.Spin(ctx, 5*time.Second)
	if err != nil {
		t.log.Warn("Subscription failed", "topic", topic, "err", err)
	}
}

func (t *telemetry) post(post types.PostFn, messageType string, payload interface{}) {
	post(types.CreateMessage(messageType, t.deviceID, t.deviceID, payload))
}

func (t *telemetry) runControlModeSubscriber(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	t.spin(ctx, TopicControlMode, &px4_msgs.VehicleControlMode{}, func(s *ros2.Subscription) {
		var m px4_msgs.VehicleControlMode
		_, rclErr := s.TakeMessage(&m)
		if rclErr != nil {
			t.log.Warn("TakeMessage failed", "topic", TopicControlMode)
			return
		}

		t.post(post, types.MessageTypeControlMode, controlMode(&m))
	})
}

func (t *telemetry) runLandDetectedSubscriber(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	t.spin(ctx, TopicLandDetected, &px4_msgs.VehicleLandDetected{}, func(s *ros2.Subscription) {
		var m px4_msgs.VehicleLandDetected
		_, rclErr := s.TakeMessage(&m)
		if rclErr != nil {
			t.log.Warn("TakeMessage failed", "topic", TopicLandDetected)
			return
		}

		t.post(post, types.MessageTypeLandDetected, landDetected(&m))
	})
}

func (t *telemetry) runMissionResultSubscriber(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	var missionResultFilter string
	t.spin(ctx, TopicMissionResult, &px4_msgs.MissionResult{}, func(s *ros2.Subscription) {
		var m px4_msgs.MissionResult
		_, rclErr := s.TakeMessage(&m)
		if rclErr != nil {
			t.log.Warn("TakeMessage failed", "topic", TopicMissionResult)
			return
		}

		key := fmt.Sprintf("%v-%v-%v-%v", m.InstanceCount, m.SeqReached, m.Valid, m.Finished)
		if key == missionResultFilter {
			return
		}
		missionResultFilter = key

		t.post(post, types.MessageTypeMissionResult, missionResult(&m))
	})
}

func (t *telemetry) runHomePositionSubscriber(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	t.spin(ctx, TopicHomePosition, &px4_msgs.HomePosition{}, func(s *ros2.Subscription) {
		var m px4_msgs.HomePosition
		_, rclErr := s.TakeMessage(&m)
		if rclErr != nil {
			t.log.Warn("TakeMessage failed", "topic", TopicHomePosition)
			return
		}

		out := types.HomePosition{
			Lat: m.Lat,
			Lon: m.Lon,
			X:   float64(m.X),
			Y:   float64(m.Y),
			Z:   float64(m.Z),
		}
		t.post(post, types.MessageTypeHomePosition, out)
	})
}

func (t *telemetry) runOdometrySubscriber(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	t.spin(ctx, TopicOdometry, &nav_msgs.Odometry{}, func(s *ros2.Subscription) {
		var m nav_msgs.Odometry
		_, rclErr := s.TakeMessage(&m)
		if rclErr != nil {
			t.log.Warn("TakeMessage failed", "topic", TopicOdometry)
			return
		}

		pose := m.Pose.Pose
		out := types.Odometry{
			X:            pose.Position.X,
			Y:            pose.Position.Y,
			Z:            pose.Position.Z,
			OrientationX: pose.Orientation.X,
			OrientationY: pose.Orientation.Y,
			OrientationZ: pose.Orientation.Z,
			OrientationW: pose.Orientation.W,
		}
		t.post(post, types.MessageTypeOdometry, out)
	})
}

func controlMode(m *px4_msgs.VehicleControlMode) types.ControlMode {
	return types.ControlMode{Armed: m.FlagArmed, Manual: m.FlagControlManualEnabled}
}

func landDetected(m *px4_msgs.VehicleLandDetected) types.LandDetected {
	return types.LandDetected{GroundContact: m.GroundContact}
}

func missionResult(m *px4_msgs.MissionResult) types.MissionResult {
	return types.MissionResult{
		Timestamp:     m.Timestamp,
		InstanceCount: m.InstanceCount,
		SeqReached:    int(m.SeqReached),
		SeqCurrent:    int(m.SeqCurrent),
		SeqTotal:      int(m.SeqTotal),
		Valid:         m.Valid,
		Finished:      m.Finished,
		Failure:       m.Failure,
	}
}
