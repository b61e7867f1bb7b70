// Package vehicle talks to the flight controller.
package vehicle

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/tiiuae/control_interface/internal/mission"
)

// Vehicle is the flight controller command surface. Every call blocks until
// the vehicle answers or ctx is done.
type Vehicle interface {
	ClearMission(ctx context.Context) error
	UploadMission(ctx context.Context, items []mission.Item) error
	CancelMissionUpload(ctx context.Context) error
	StartMission(ctx context.Context) error
	PauseMission(ctx context.Context) error

	Arm(ctx context.Context) error
	Disarm(ctx context.Context) error
	SetTakeoffAltitude(ctx context.Context, altitude float64) error
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error

	GetParamInt(ctx context.Context, name string) (int32, error)
	SetParamInt(ctx context.Context, name string, value int32) error
	GetParamFloat(ctx context.Context, name string) (float32, error)
	SetParamFloat(ctx context.Context, name string, value float32) error
}

var ErrNotConnected = errors.New("vehicle not connected")

// CommandError is returned when the vehicle answers with anything but success.
type CommandError struct {
	Command string
	Result  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Command, e.Result)
}
