package vehicle

import (
	"math"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/tiiuae/control_interface/internal/mission"
)

// encodeItems maps mission items to MAVLink mission items. A speed change
// item is inserted whenever the requested speed differs from the previous one.
func encodeItems(targetSystem, targetComponent uint8, items []mission.Item) []*common.MessageMissionItemInt {
	out := make([]*common.MessageMissionItemInt, 0, len(items)+1)
	speed := math.NaN()

	next := func(m *common.MessageMissionItemInt) {
		m.TargetSystem = targetSystem
		m.TargetComponent = targetComponent
		m.Seq = uint16(len(out))
		m.Autocontinue = 1
		m.MissionType = common.MAV_MISSION_TYPE_MISSION
		if len(out) == 0 {
			m.Current = 1
		}
		out = append(out, m)
	}

	for _, item := range items {
		if item.SpeedMS > 0 && item.SpeedMS != speed {
			speed = item.SpeedMS
			next(&common.MessageMissionItemInt{
				Frame:   common.MAV_FRAME_MISSION,
				Command: common.MAV_CMD_DO_CHANGE_SPEED,
				Param1:  1, // ground speed
				Param2:  float32(item.SpeedMS),
				Param3:  -1,
			})
		}

		passRadius := float32(0)
		if !item.IsFlyThrough {
			passRadius = float32(item.AcceptanceRadiusM)
		}
		next(&common.MessageMissionItemInt{
			Frame:   common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT,
			Command: common.MAV_CMD_NAV_WAYPOINT,
			Param1:  float32(item.LoiterTimeS),
			Param2:  float32(item.AcceptanceRadiusM),
			Param3:  passRadius,
			Param4:  float32(item.YawDeg),
			X:       int32(math.Round(item.LatitudeDeg * 1e7)),
			Y:       int32(math.Round(item.LongitudeDeg * 1e7)),
			Z:       float32(item.RelativeAltitudeM),
		})
	}

	return out
}

// PX4 stores integer parameters bitwise in the float field.
func encodeInt(v int32) float32 {
	return math.Float32frombits(uint32(v))
}

func decodeInt(v float32) int32 {
	return int32(math.Float32bits(v))
}
