package config

import "github.com/pkg/errors"

// SetRuntime changes one of the parameters that may be updated while
// running. Values arrive decoded from JSON.
func (c *Config) SetRuntime(name string, value interface{}) error {
	switch name {
	case "takeoff.height":
		v, ok := toFloat(value)
		if !ok {
			return errors.Errorf("%s must be a number", name)
		}
		if err := checkTakeoffHeight(v); err != nil {
			return err
		}
		c.Takeoff.Height = v
	case "px4.waypoint_loiter_time":
		v, ok := toFloat(value)
		if !ok {
			return errors.Errorf("%s must be a number", name)
		}
		if v < 0 {
			return errors.Errorf("%s cannot be set to %v because it is negative", name, v)
		}
		c.PX4.WaypointLoiterTime = v
	case "general.reset_octomap_before_takeoff":
		v, ok := value.(bool)
		if !ok {
			return errors.Errorf("%s must be a boolean", name)
		}
		c.General.ResetOctomapBeforeTakeoff = v
	default:
		return errors.Errorf("%s cannot be changed dynamically", name)
	}
	return nil
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
