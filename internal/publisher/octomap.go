package publisher

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/tiiuae/rclgo/pkg/ros2"
	std_srvs "github.com/tiiuae/rclgo/pkg/ros2/msgs/std_srvs/srv"
)

const ServiceOctomapReset = "octomap_server/reset"

// Octomap resets the obstacle map through the octomap server's trigger
// service.
type Octomap struct {
	client *ros2.Client
}

func NewOctomap(ctx context.Context, rclContext *ros2.Context, node *ros2.Node) (*Octomap, error) {
	opt := &ros2.ClientOptions{Qos: ros2.NewRmwQosProfileServicesDefault()}
	client, err := node.NewClient(ServiceOctomapReset, std_srvs.Trigger, opt)
	if err != nil {
		return nil, errors.WithMessage(err, "octomap reset client")
	}

	ws, err := rclContext.NewWaitSet(200 * time.Millisecond)
	if err != nil {
		client.Close()
		return nil, errors.WithMessage(err, "octomap reset wait set")
	}

	ws.AddClients(client)
	ws.RunGoroutine(ctx)

	return &Octomap{client}, nil
}

func (o *Octomap) Reset(ctx context.Context) error {
	req := std_srvs.NewTrigger_Request()
	res, _, err := o.client.Send(ctx, req)
	if err != nil {
		return errors.Wrap(err, "octomap reset")
	}
	if r, ok := res.(*std_srvs.Trigger_Response); ok && !r.Success {
		return errors.Errorf("octomap reset refused: %s", r.Message)
	}
	return nil
}

func (o *Octomap) Close() {
	o.client.Close()
}
