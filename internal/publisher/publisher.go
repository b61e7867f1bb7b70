// Package publisher exposes the controller's outputs on ROS2 topics.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tiiuae/control_interface/internal/geo"
	"github.com/tiiuae/control_interface/internal/types"
	"github.com/tiiuae/rclgo/pkg/ros2"
	builtin_interfaces "github.com/tiiuae/rclgo/pkg/ros2/msgs/builtin_interfaces/msg"
	geometry_msgs "github.com/tiiuae/rclgo/pkg/ros2/msgs/geometry_msgs/msg"
	nav_msgs "github.com/tiiuae/rclgo/pkg/ros2/msgs/nav_msgs/msg"
	std_msgs "github.com/tiiuae/rclgo/pkg/ros2/msgs/std_msgs/msg"
	"github.com/tiiuae/rclgo/pkg/ros2/ros2types"
)

const (
	TopicDiagnostics = "control_interface/diagnostics"
	TopicDesiredPose = "control_interface/desired_pose"
	TopicWaypoints   = "control_interface/waypoints"
	TopicEvents      = "control_interface/mission_events"
)

type publisher struct {
	node  *ros2.Node
	log   *slog.Logger
	inbox chan types.Message
}

func New(node *ros2.Node, log *slog.Logger) types.MessageHandler {
	return &publisher{node, log.With("component", "publisher"), make(chan types.Message, 100)}
}

func (p *publisher) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	go p.runMessageLoop(ctx, wg)
}

func (p *publisher) Receive(message types.Message) {
	switch message.MessageType {
	case types.MessageTypeDiagnostics, types.MessageTypeDesiredPose, types.MessageTypeWaypoints, types.MessageTypeMissionEvent:
		select {
		case p.inbox <- message:
		default:
			p.log.Warn("Publisher busy, dropping message", "type", message.MessageType)
		}
	}
}

func (p *publisher) runMessageLoop(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	defer wg.Done()

	pubDiagnostics, err := p.node.NewPublisher(TopicDiagnostics, &std_msgs.String{})
	if err != nil {
		p.log.Error("Failed to create publisher", "topic", TopicDiagnostics, "err", err)
		return
	}
	defer pubDiagnostics.Close()
	pubPose, err := p.node.NewPublisher(TopicDesiredPose, &geometry_msgs.PoseStamped{})
	if err != nil {
		p.log.Error("Failed to create publisher", "topic", TopicDesiredPose, "err", err)
		return
	}
	defer pubPose.Close()
	pubPath, err := p.node.NewPublisher(TopicWaypoints, &nav_msgs.Path{})
	if err != nil {
		p.log.Error("Failed to create publisher", "topic", TopicWaypoints, "err", err)
		return
	}
	defer pubPath.Close()
	pubEvents, err := p.node.NewPublisher(TopicEvents, &std_msgs.String{})
	if err != nil {
		p.log.Error("Failed to create publisher", "topic", TopicEvents, "err", err)
		return
	}
	defer pubEvents.Close()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Publisher shutting down")
			return
		case msg := <-p.inbox:
			switch m := msg.Message.(type) {
			case types.Diagnostics:
				p.publishJSON(pubDiagnostics, m)
			case types.MissionEvent:
				p.publishJSON(pubEvents, m)
			case types.DesiredPose:
				pubPose.Publish(createPose(m.Frame, msg.Timestamp, m.Pose))
			case types.WaypointMarkers:
				pubPath.Publish(createPath(m.Frame, msg.Timestamp, m.Points))
			}
		}
	}
}

func (p *publisher) publishJSON(pub *ros2.Publisher, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		p.log.Warn("Could not marshal message", "err", err)
		return
	}
	pub.Publish(createString(string(b)))
}

func createString(value string) ros2types.ROS2Msg {
	rosmsg := std_msgs.NewString()
	rosmsg.Data.SetDefaults(value)
	return rosmsg
}

func createHeader(frame string, stamp time.Time) std_msgs.Header {
	header := *std_msgs.NewHeader()
	header.Stamp = *builtin_interfaces.NewTime()
	header.Stamp.Sec = int32(stamp.Unix())
	header.Stamp.Nanosec = uint32(stamp.Nanosecond())
	header.FrameId = frame
	return header
}

func createPose(frame string, stamp time.Time, w geo.LocalWaypoint) *geometry_msgs.PoseStamped {
	pose := geometry_msgs.NewPoseStamped()
	pose.Header = createHeader(frame, stamp)
	pose.Pose.Position.X = w.X
	pose.Pose.Position.Y = w.Y
	pose.Pose.Position.Z = w.Z
	z, qw := geo.YawToQuaternion(w.Yaw)
	pose.Pose.Orientation.Z = z
	pose.Pose.Orientation.W = qw
	return pose
}

func createPath(frame string, stamp time.Time, points []geo.LocalWaypoint) *nav_msgs.Path {
	path := nav_msgs.NewPath()
	path.Header = createHeader(frame, stamp)
	path.Poses = make([]geometry_msgs.PoseStamped, len(points))
	for i, p := range points {
		path.Poses[i] = *createPose(frame, stamp, p)
	}
	return path
}
