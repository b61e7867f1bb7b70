// Package commands receives operator requests as JSON on a ROS2 topic and
// publishes the controller's responses.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tiiuae/control_interface/internal/types"
	"github.com/tiiuae/rclgo/pkg/ros2"
	std_msgs "github.com/tiiuae/rclgo/pkg/ros2/msgs/std_msgs/msg"
	"github.com/tiiuae/rclgo/pkg/ros2/ros2types"
)

const (
	TopicCommands  = "control_interface/commands"
	TopicResponses = "control_interface/responses"
)

type commandHandler struct {
	node     *ros2.Node
	deviceID string
	log      *slog.Logger
	inbox    chan types.Message
}

func New(node *ros2.Node, deviceID string, log *slog.Logger) types.MessageHandler {
	return &commandHandler{node, deviceID, log.With("component", "commands"), make(chan types.Message, 100)}
}

func (c *commandHandler) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	go c.runCommandSubscriber(ctx, wg, post)
	go c.runResponsePublisher(ctx, wg)
}

func (c *commandHandler) Receive(message types.Message) {
	if message.MessageType != types.MessageTypeResponse {
		return
	}
	select {
	case c.inbox <- message:
	default:
		c.log.Warn("Response dropped, publisher busy", "id", message.ID)
	}
}

func (c *commandHandler) runCommandSubscriber(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	sub, rclErr := c.node.NewSubscription(TopicCommands, &std_msgs.String{}, func(s *ros2.Subscription) { c.handleCommand(s, post) })
	if rclErr != nil {
		c.log.Error("Unable to subscribe", "topic", TopicCommands, "err", rclErr)
		return
	}

	err := sub.Spin(ctx, 5*time.Second)
	if err != nil {
		c.log.Warn("Subscription failed", "topic", TopicCommands, "err", err)
	}
}

func (c *commandHandler) handleCommand(s *ros2.Subscription, post types.PostFn) {
	var m std_msgs.String
	_, rclErr := s.TakeMessage(&m)
	if rclErr != nil {
		c.log.Warn("TakeMessage failed", "topic", TopicCommands)
		return
	}

	str := fmt.Sprintf("%v", m.Data)
	msg, err := ParseRequest([]byte(str), c.deviceID)
	if err != nil {
		c.log.Warn("Could not parse request", "err", err)
		return
	}
	post(msg)
}

func (c *commandHandler) runResponsePublisher(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	defer wg.Done()

	pub, err := c.node.NewPublisher(TopicResponses, &std_msgs.String{})
	if err != nil {
		c.log.Error("Failed to create publisher", "topic", TopicResponses, "err", err)
		return
	}
	defer pub.Close()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Commands shutting down")
			return
		case msg := <-c.inbox:
			b, err := EncodeResponse(msg)
			if err != nil {
				c.log.Warn("Could not encode response", "id", msg.ID, "err", err)
				continue
			}
			pub.Publish(createString(string(b)))
		}
	}
}

func createString(value string) ros2types.ROS2Msg {
	rosmsg := std_msgs.NewString()
	rosmsg.Data.SetDefaults(value)
	return rosmsg
}
