package publisher

import (
	"math"
	"testing"
	"time"

	"github.com/tiiuae/control_interface/internal/geo"
)

func TestCreatePath(t *testing.T) {
	stamp := time.Unix(1700000000, 500)
	points := []geo.LocalWaypoint{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6, Yaw: math.Pi / 2}}

	path := createPath("world", stamp, points)
	if path.Header.FrameId != "world" || path.Header.Stamp.Sec != 1700000000 || path.Header.Stamp.Nanosec != 500 {
		t.Errorf("unexpected header %+v", path.Header)
	}
	if len(path.Poses) != 2 {
		t.Fatalf("expected 2 poses, got %d", len(path.Poses))
	}
	last := path.Poses[1].Pose
	if last.Position.X != 4 || last.Position.Y != 5 || last.Position.Z != 6 {
		t.Errorf("unexpected position %+v", last.Position)
	}
	if math.Abs(last.Orientation.Z-math.Sqrt2/2) > 1e-9 || math.Abs(last.Orientation.W-math.Sqrt2/2) > 1e-9 {
		t.Errorf("expected 90 degree yaw, got %+v", last.Orientation)
	}
}
