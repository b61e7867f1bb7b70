package vehicle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"
	"github.com/tiiuae/control_interface/internal/config"
	"github.com/tiiuae/control_interface/internal/mission"
	"github.com/tiiuae/control_interface/internal/types"
	"golang.org/x/sync/errgroup"
)

const (
	autopilotComponentID = 1
	missionPlannerID     = 190
	linkLostAfter        = 3 * time.Second
	keyMission           = "mission"
)

var _ Vehicle = (*Link)(nil)

// Link is a MAVLink connection to a PX4 autopilot. It is a bus handler that
// announces the vehicle connection and a Vehicle used by the orchestrator.
type Link struct {
	node     *gomavlib.Node
	deviceID string
	log      *slog.Logger

	mu              sync.Mutex
	connected       bool
	targetSystem    uint8
	targetComponent uint8
	lastFrame       time.Time
	waiters         map[string]chan message.Message
	cancelUpload    context.CancelFunc
}

func NewLink(cfg config.Vehicle, deviceID string, log *slog.Logger) (*Link, error) {
	endpoint, err := ParseEndpoint(cfg.DeviceURL)
	if err != nil {
		return nil, err
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:      []gomavlib.EndpointConf{endpoint},
		Dialect:        common.Dialect,
		OutVersion:     gomavlib.V2,
		OutSystemID:    cfg.SystemID,
		OutComponentID: missionPlannerID,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "Could not open MAVLink endpoint")
	}

	return &Link{
		node:     node,
		deviceID: deviceID,
		log:      log.With("component", "mavlink"),
		waiters:  make(map[string]chan message.Message),
	}, nil
}

func (l *Link) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.readLoop(gctx, post) })
	g.Go(func() error { return l.watchdog(gctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		l.log.Error("MAVLink link stopped", "err", err)
	}
	l.node.Close()
	l.log.Info("MAVLink link shutting down")
}

func (l *Link) Receive(message types.Message) {
}

func (l *Link) readLoop(ctx context.Context, post types.PostFn) error {
	events := l.node.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return errors.New("MAVLink node closed")
			}
			frm, isFrame := evt.(*gomavlib.EventFrame)
			if !isFrame {
				continue
			}
			if l.accept(frm.SystemID(), frm.ComponentID()) {
				l.log.Info("Vehicle connected", "system_id", frm.SystemID())
				post(types.CreateMessage(types.MessageTypeVehicleConnected, l.deviceID, l.deviceID, types.VehicleConnected{SystemID: frm.SystemID()}))
			}
			l.dispatch(frm.SystemID(), frm.Message())
		}
	}
}

// accept records the frame and reports whether it established the connection.
func (l *Link) accept(systemID, componentID uint8) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		if componentID != autopilotComponentID {
			return false
		}
		l.connected = true
		l.targetSystem = systemID
		l.targetComponent = componentID
		l.lastFrame = time.Now()
		return true
	}
	if systemID == l.targetSystem {
		l.lastFrame = time.Now()
	}
	return false
}

func (l *Link) watchdog(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lost := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.mu.Lock()
			silent := l.connected && time.Since(l.lastFrame) > linkLostAfter
			l.mu.Unlock()
			if silent && !lost {
				l.log.Warn("No MAVLink traffic from vehicle", "for", linkLostAfter)
			}
			if !silent && lost {
				l.log.Info("MAVLink traffic from vehicle resumed")
			}
			lost = silent
		}
	}
}

func (l *Link) dispatch(systemID uint8, msg message.Message) {
	l.mu.Lock()
	target := l.targetSystem
	l.mu.Unlock()
	if systemID != target {
		return
	}

	switch m := msg.(type) {
	case *common.MessageCommandAck:
		l.deliver(ackKey(m.Command), m)
	case *common.MessageMissionRequestInt, *common.MessageMissionRequest, *common.MessageMissionAck:
		l.deliver(keyMission, m)
	case *common.MessageParamValue:
		l.deliver(paramKey(m.ParamId), m)
	}
}

func (l *Link) deliver(key string, msg message.Message) {
	l.mu.Lock()
	ch, ok := l.waiters[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		l.log.Warn("Dropping MAVLink reply, waiter is busy", "key", key)
	}
}

func (l *Link) register(key string) (<-chan message.Message, func()) {
	ch := make(chan message.Message, 8)
	l.mu.Lock()
	l.waiters[key] = ch
	l.mu.Unlock()
	return ch, func() {
		l.mu.Lock()
		if l.waiters[key] == ch {
			delete(l.waiters, key)
		}
		l.mu.Unlock()
	}
}

func (l *Link) target() (uint8, uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return 0, 0, ErrNotConnected
	}
	return l.targetSystem, l.targetComponent, nil
}

func (l *Link) write(msg message.Message) {
	l.node.WriteMessageAll(msg)
}

func ackKey(cmd common.MAV_CMD) string {
	return fmt.Sprintf("ack:%d", cmd)
}

func paramKey(id string) string {
	return "param:" + strings.TrimRight(id, "\x00")
}

func (l *Link) command(ctx context.Context, name string, cmd common.MAV_CMD, params [7]float32) error {
	system, component, err := l.target()
	if err != nil {
		return err
	}

	replies, done := l.register(ackKey(cmd))
	defer done()

	l.write(&common.MessageCommandLong{
		TargetSystem:    system,
		TargetComponent: component,
		Command:         cmd,
		Param1:          params[0],
		Param2:          params[1],
		Param3:          params[2],
		Param4:          params[3],
		Param5:          params[4],
		Param6:          params[5],
		Param7:          params[6],
	})

	for {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "%s", name)
		case msg := <-replies:
			ack := msg.(*common.MessageCommandAck)
			switch ack.Result {
			case common.MAV_RESULT_ACCEPTED:
				return nil
			case common.MAV_RESULT_IN_PROGRESS:
				continue
			}
			return &CommandError{name, fmt.Sprintf("%v", ack.Result)}
		}
	}
}

func (l *Link) StartMission(ctx context.Context) error {
	return l.command(ctx, "start mission", common.MAV_CMD_MISSION_START, [7]float32{})
}

func (l *Link) PauseMission(ctx context.Context) error {
	return l.command(ctx, "pause mission", common.MAV_CMD_DO_PAUSE_CONTINUE, [7]float32{0})
}

func (l *Link) Arm(ctx context.Context) error {
	return l.command(ctx, "arm", common.MAV_CMD_COMPONENT_ARM_DISARM, [7]float32{1})
}

func (l *Link) Disarm(ctx context.Context) error {
	return l.command(ctx, "disarm", common.MAV_CMD_COMPONENT_ARM_DISARM, [7]float32{0})
}

func (l *Link) Takeoff(ctx context.Context) error {
	nan := float32(math.NaN())
	return l.command(ctx, "takeoff", common.MAV_CMD_NAV_TAKEOFF, [7]float32{0, 0, 0, nan, nan, nan, nan})
}

func (l *Link) Land(ctx context.Context) error {
	nan := float32(math.NaN())
	return l.command(ctx, "land", common.MAV_CMD_NAV_LAND, [7]float32{0, 0, 0, nan, nan, nan, nan})
}

func (l *Link) SetTakeoffAltitude(ctx context.Context, altitude float64) error {
	return l.SetParamFloat(ctx, "MIS_TAKEOFF_ALT", float32(altitude))
}

func (l *Link) ClearMission(ctx context.Context) error {
	system, component, err := l.target()
	if err != nil {
		return err
	}

	replies, done := l.register(keyMission)
	defer done()

	l.write(&common.MessageMissionClearAll{
		TargetSystem:    system,
		TargetComponent: component,
		MissionType:     common.MAV_MISSION_TYPE_MISSION,
	})

	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "clear mission")
		case msg := <-replies:
			if ack, ok := msg.(*common.MessageMissionAck); ok {
				return missionResult("clear mission", ack)
			}
		}
	}
}

// UploadMission runs the MAVLink mission upload handshake. It can be aborted
// from another goroutine with CancelMissionUpload.
func (l *Link) UploadMission(ctx context.Context, items []mission.Item) error {
	system, component, err := l.target()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.mu.Lock()
	l.cancelUpload = cancel
	l.mu.Unlock()

	wire := encodeItems(system, component, items)
	replies, done := l.register(keyMission)
	defer done()

	l.write(&common.MessageMissionCount{
		TargetSystem:    system,
		TargetComponent: component,
		Count:           uint16(len(wire)),
		MissionType:     common.MAV_MISSION_TYPE_MISSION,
	})

	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "upload mission")
		case msg := <-replies:
			var seq uint16
			switch m := msg.(type) {
			case *common.MessageMissionAck:
				return missionResult("upload mission", m)
			case *common.MessageMissionRequestInt:
				seq = m.Seq
			case *common.MessageMissionRequest:
				seq = m.Seq
			}
			if int(seq) >= len(wire) {
				return errors.Errorf("upload mission: vehicle requested item %d of %d", seq, len(wire))
			}
			l.write(wire[seq])
		}
	}
}

func (l *Link) CancelMissionUpload(ctx context.Context) error {
	system, component, err := l.target()
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.cancelUpload != nil {
		l.cancelUpload()
		l.cancelUpload = nil
	}
	l.mu.Unlock()

	l.write(&common.MessageMissionAck{
		TargetSystem:    system,
		TargetComponent: component,
		Type:            common.MAV_MISSION_OPERATION_CANCELLED,
		MissionType:     common.MAV_MISSION_TYPE_MISSION,
	})
	return nil
}

func missionResult(name string, ack *common.MessageMissionAck) error {
	if ack.Type == common.MAV_MISSION_ACCEPTED {
		return nil
	}
	return &CommandError{name, fmt.Sprintf("%v", ack.Type)}
}

func (l *Link) param(ctx context.Context, name string, request message.Message) (*common.MessageParamValue, error) {
	replies, done := l.register(paramKey(name))
	defer done()

	l.write(request)

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "parameter %s", name)
	case msg := <-replies:
		return msg.(*common.MessageParamValue), nil
	}
}

func (l *Link) getParam(ctx context.Context, name string) (*common.MessageParamValue, error) {
	system, component, err := l.target()
	if err != nil {
		return nil, err
	}
	return l.param(ctx, name, &common.MessageParamRequestRead{
		TargetSystem:    system,
		TargetComponent: component,
		ParamId:         name,
		ParamIndex:      -1,
	})
}

func (l *Link) setParam(ctx context.Context, name string, value float32, kind common.MAV_PARAM_TYPE) error {
	system, component, err := l.target()
	if err != nil {
		return err
	}
	reply, err := l.param(ctx, name, &common.MessageParamSet{
		TargetSystem:    system,
		TargetComponent: component,
		ParamId:         name,
		ParamValue:      value,
		ParamType:       kind,
	})
	if err != nil {
		return err
	}
	if math.Float32bits(reply.ParamValue) != math.Float32bits(value) {
		return &CommandError{"set parameter " + name, "vehicle kept the previous value"}
	}
	return nil
}

func (l *Link) GetParamInt(ctx context.Context, name string) (int32, error) {
	reply, err := l.getParam(ctx, name)
	if err != nil {
		return 0, err
	}
	return decodeInt(reply.ParamValue), nil
}

func (l *Link) SetParamInt(ctx context.Context, name string, value int32) error {
	return l.setParam(ctx, name, encodeInt(value), common.MAV_PARAM_TYPE_INT32)
}

func (l *Link) GetParamFloat(ctx context.Context, name string) (float32, error) {
	reply, err := l.getParam(ctx, name)
	if err != nil {
		return 0, err
	}
	return reply.ParamValue, nil
}

func (l *Link) SetParamFloat(ctx context.Context, name string, value float32) error {
	return l.setParam(ctx, name, value, common.MAV_PARAM_TYPE_REAL32)
}
