package vehicle

import (
	"testing"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/tiiuae/control_interface/internal/mission"
)

func TestEncodeItems(t *testing.T) {
	items := []mission.Item{
		{LatitudeDeg: 60.1, LongitudeDeg: 24.9, RelativeAltitudeM: 2.5, YawDeg: -90, SpeedMS: 1, IsFlyThrough: true, AcceptanceRadiusM: 0.3},
		{LatitudeDeg: 60.2, LongitudeDeg: 24.8, RelativeAltitudeM: 3, SpeedMS: 1, IsFlyThrough: true, AcceptanceRadiusM: 0.3},
		{LatitudeDeg: 60.3, LongitudeDeg: 24.7, RelativeAltitudeM: 3, SpeedMS: 2, IsFlyThrough: false, AcceptanceRadiusM: 0.5, LoiterTimeS: 4},
	}

	out := encodeItems(1, 1, items)
	if len(out) != 5 {
		t.Fatalf("expected 5 items, got %d", len(out))
	}

	wantCommands := []common.MAV_CMD{
		common.MAV_CMD_DO_CHANGE_SPEED,
		common.MAV_CMD_NAV_WAYPOINT,
		common.MAV_CMD_NAV_WAYPOINT,
		common.MAV_CMD_DO_CHANGE_SPEED,
		common.MAV_CMD_NAV_WAYPOINT,
	}
	for i, m := range out {
		if m.Seq != uint16(i) {
			t.Errorf("expected seq %d, got %d", i, m.Seq)
		}
		if m.Command != wantCommands[i] {
			t.Errorf("item %d: expected command %v, got %v", i, wantCommands[i], m.Command)
		}
		if (m.Current == 1) != (i == 0) {
			t.Errorf("item %d: unexpected current flag %d", i, m.Current)
		}
	}

	first := out[1]
	if first.X != 601000000 || first.Y != 249000000 || first.Z != 2.5 || first.Param4 != -90 {
		t.Errorf("unexpected waypoint encoding %+v", first)
	}
	last := out[4]
	if last.Param1 != 4 || last.Param3 != 0.5 {
		t.Errorf("expected loiter and pass radius on last item, got %+v", last)
	}
}

func TestIntParamEncoding(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 123456, -2147483648} {
		if got := decodeInt(encodeInt(v)); got != v {
			t.Errorf("expected %d, got %d", v, got)
		}
	}
}
