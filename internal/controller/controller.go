// Package controller is the orchestrator of the control interface. All
// telemetry, requests, ticks and vehicle completions are handled on one
// goroutine, which is the only writer of the mission lifecycle.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tiiuae/control_interface/internal/config"
	"github.com/tiiuae/control_interface/internal/types"
	"github.com/tiiuae/control_interface/internal/vehicle"
	"golang.org/x/sync/errgroup"
)

const inboxSize = 1000

// OctomapResetter clears the obstacle map before takeoff.
type OctomapResetter interface {
	Reset(ctx context.Context) error
}

type Controller struct {
	log        *slog.Logger
	period     time.Duration
	inbox      chan types.Message
	dispatcher *dispatcher
	state      *state
}

func New(deviceID string, cfg config.Config, v vehicle.Vehicle, octomap OctomapResetter, log *slog.Logger) *Controller {
	log = log.With("component", "controller")
	c := &Controller{
		log:    log,
		period: cfg.ControlPeriod(),
		inbox:  make(chan types.Message, inboxSize),
	}
	c.dispatcher = newDispatcher(cfg.CommandTimeout(), c.deliverResult)
	c.state = newState(deviceID, cfg, v, octomap, c.dispatcher, log)
	return c
}

func (c *Controller) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	c.state.post = post

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.runMessageLoop(gctx) })
	g.Go(func() error { return c.runTicker(gctx) })
	g.Go(func() error { return c.dispatcher.run(gctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		c.log.Error("Controller stopped", "err", err)
	}
	c.log.Info("Controller shutting down")
}

func (c *Controller) Receive(message types.Message) {
	switch message.MessageType {
	case types.MessageTypeOdometry:
		select {
		case c.inbox <- message:
		default:
			c.log.Warn("Inbox full, dropping odometry")
		}
	case types.MessageTypeVehicleConnected,
		types.MessageTypeControlMode,
		types.MessageTypeLandDetected,
		types.MessageTypeMissionResult,
		types.MessageTypeHomePosition,
		types.MessageTypeArming,
		types.MessageTypeTakeoff,
		types.MessageTypeLand,
		types.MessageTypeStopMission,
		types.MessageTypeLocalWaypoint,
		types.MessageTypeLocalPath,
		types.MessageTypeGPSWaypoint,
		types.MessageTypeGPSPath,
		types.MessageTypeWaypointToLocal,
		types.MessageTypePathToLocal,
		types.MessageTypeSetPX4ParamInt,
		types.MessageTypeGetPX4ParamInt,
		types.MessageTypeSetPX4ParamFlt,
		types.MessageTypeGetPX4ParamFlt,
		types.MessageTypeSetParameter:
		select {
		case c.inbox <- message:
		default:
			c.log.Warn("Inbox full, dropping message", "type", message.MessageType, "id", message.ID)
		}
	}
}

func (c *Controller) deliverResult(ctx context.Context, r jobResult) {
	select {
	case c.inbox <- types.Message{Timestamp: time.Now(), MessageType: "job-result", Message: r}:
	case <-ctx.Done():
	}
}

func (c *Controller) runMessageLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.inbox:
			c.state.handle(msg)
		}
	}
}

func (c *Controller) runTicker(ctx context.Context) error {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			select {
			case c.inbox <- types.CreateMessage(types.MessageTypeTick, "self", "self", types.Tick{Time: now}):
			default:
				c.log.Warn("Inbox full, skipping control tick")
			}
		}
	}
}
