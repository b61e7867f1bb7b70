package config

import (
	"fmt"
	"io/ioutil"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	MinControlUpdateRate = 5.0
	MinTakeoffHeight     = 0.5
	MaxTakeoffHeight     = 10.0
)

type General struct {
	ResetOctomapBeforeTakeoff bool    `yaml:"reset_octomap_before_takeoff"`
	ControlUpdateRate         float64 `yaml:"control_update_rate"`
}

type Takeoff struct {
	Height          float64 `yaml:"height"`
	HeightTolerance float64 `yaml:"height_tolerance"`
	BlockingTimeout float64 `yaml:"blocking_timeout"`
	PositionSamples int     `yaml:"position_samples"`
}

type PX4 struct {
	TargetVelocity           float64 `yaml:"target_velocity"`
	WaypointLoiterTime       float64 `yaml:"waypoint_loiter_time"`
	WaypointAcceptanceRadius float64 `yaml:"waypoint_acceptance_radius"`
	AltitudeAcceptanceRadius float64 `yaml:"altitude_acceptance_radius"`
}

type Mission struct {
	YawOffsetCorrection    float64 `yaml:"yaw_offset_correction"`
	UploadAttempts         int     `yaml:"mission_upload_attempts_threshold"`
	StartTimeout           float64 `yaml:"mission_start_timeout"`
	InitialMissionInstance uint32  `yaml:"initial_mission_instance"`
}

type Vehicle struct {
	DeviceURL      string  `yaml:"device_url"`
	SystemID       uint8   `yaml:"system_id"`
	CommandTimeout float64 `yaml:"command_timeout"`
}

type Cloud struct {
	MQTTBroker     string `yaml:"mqtt_broker"`
	ProjectID      string `yaml:"project_id"`
	Region         string `yaml:"region"`
	RegistryID     string `yaml:"registry_id"`
	PrivateKeyPath string `yaml:"private_key"`
	Algorithm      string `yaml:"algorithm"`
}

type Log struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type Config struct {
	WorldFrame string  `yaml:"world_frame"`
	General    General `yaml:"general"`
	Takeoff    Takeoff `yaml:"takeoff"`
	PX4        PX4     `yaml:"px4"`
	Mission    Mission `yaml:"mavsdk"`
	Vehicle    Vehicle `yaml:"vehicle"`
	Cloud      Cloud   `yaml:"cloud"`
	Log        Log     `yaml:"log"`
}

func Default() Config {
	return Config{
		WorldFrame: "world",
		General: General{
			ResetOctomapBeforeTakeoff: true,
			ControlUpdateRate:         10,
		},
		Takeoff: Takeoff{
			Height:          2.5,
			HeightTolerance: 0.4,
			BlockingTimeout: 3,
			PositionSamples: 20,
		},
		PX4: PX4{
			TargetVelocity:           1,
			WaypointLoiterTime:       0,
			WaypointAcceptanceRadius: 0.3,
			AltitudeAcceptanceRadius: 0.2,
		},
		Mission: Mission{
			YawOffsetCorrection:    math.Pi / 2,
			UploadAttempts:         5,
			StartTimeout:           5,
			InitialMissionInstance: 1,
		},
		Vehicle: Vehicle{
			DeviceURL:      "udp://:14590",
			SystemID:       255,
			CommandTimeout: 10,
		},
		Cloud: Cloud{
			ProjectID:      "auto-fleet-mgnt",
			Region:         "europe-west1",
			RegistryID:     "fleet-registry",
			PrivateKeyPath: "/enclave/rsa_private.pem",
			Algorithm:      "RS256",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.WithMessage(err, "Could not read config file")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.WithMessagef(err, "Could not parse config file %s", path)
	}
	return cfg, nil
}

// Normalize clamps values that have a safe fallback and returns a warning
// for each adjustment.
func (c *Config) Normalize() []string {
	var warnings []string
	if c.General.ControlUpdateRate < MinControlUpdateRate {
		warnings = append(warnings, fmt.Sprintf("Control update rate set too slow (%.1f Hz). Defaulting to %.0f Hz", c.General.ControlUpdateRate, MinControlUpdateRate))
		c.General.ControlUpdateRate = MinControlUpdateRate
	}
	return warnings
}

// Validate reports every invalid value.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := checkTakeoffHeight(c.Takeoff.Height); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Takeoff.HeightTolerance <= 0 {
		result = multierror.Append(result, errors.Errorf("takeoff.height_tolerance must be positive, got %v", c.Takeoff.HeightTolerance))
	}
	if c.Takeoff.BlockingTimeout <= 0 {
		result = multierror.Append(result, errors.Errorf("takeoff.blocking_timeout must be positive, got %v", c.Takeoff.BlockingTimeout))
	}
	if c.Takeoff.PositionSamples < 1 {
		result = multierror.Append(result, errors.Errorf("takeoff.position_samples must be at least 1, got %d", c.Takeoff.PositionSamples))
	}
	if c.PX4.WaypointLoiterTime < 0 {
		result = multierror.Append(result, errors.Errorf("px4.waypoint_loiter_time must not be negative, got %v", c.PX4.WaypointLoiterTime))
	}
	if c.PX4.WaypointAcceptanceRadius <= 0 {
		result = multierror.Append(result, errors.Errorf("px4.waypoint_acceptance_radius must be positive, got %v", c.PX4.WaypointAcceptanceRadius))
	}
	if c.PX4.AltitudeAcceptanceRadius <= 0 {
		result = multierror.Append(result, errors.Errorf("px4.altitude_acceptance_radius must be positive, got %v", c.PX4.AltitudeAcceptanceRadius))
	}
	if c.PX4.TargetVelocity <= 0 {
		result = multierror.Append(result, errors.Errorf("px4.target_velocity must be positive, got %v", c.PX4.TargetVelocity))
	}
	if c.Mission.UploadAttempts < 1 {
		result = multierror.Append(result, errors.Errorf("mavsdk.mission_upload_attempts_threshold must be at least 1, got %d", c.Mission.UploadAttempts))
	}
	if c.Mission.StartTimeout <= 0 {
		result = multierror.Append(result, errors.Errorf("mavsdk.mission_start_timeout must be positive, got %v", c.Mission.StartTimeout))
	}
	if c.Vehicle.DeviceURL == "" {
		result = multierror.Append(result, errors.New("vehicle.device_url is required"))
	}
	if c.Vehicle.CommandTimeout <= 0 {
		result = multierror.Append(result, errors.Errorf("vehicle.command_timeout must be positive, got %v", c.Vehicle.CommandTimeout))
	}
	if c.Cloud.MQTTBroker != "" && c.Cloud.PrivateKeyPath == "" {
		result = multierror.Append(result, errors.New("cloud.private_key is required when cloud.mqtt_broker is set"))
	}
	if c.Cloud.MQTTBroker != "" && c.Cloud.Algorithm != "RS256" && c.Cloud.Algorithm != "ES256" {
		result = multierror.Append(result, errors.Errorf("cloud.algorithm must be RS256 or ES256, got %q", c.Cloud.Algorithm))
	}

	return result.ErrorOrNil()
}

func (c *Config) ControlPeriod() time.Duration {
	return seconds(1 / c.General.ControlUpdateRate)
}

func (c *Config) TakeoffBlockingTimeout() time.Duration {
	return seconds(c.Takeoff.BlockingTimeout)
}

func (c *Config) MissionStartTimeout() time.Duration {
	return seconds(c.Mission.StartTimeout)
}

func (c *Config) CommandTimeout() time.Duration {
	return seconds(c.Vehicle.CommandTimeout)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func checkTakeoffHeight(h float64) error {
	if h < MinTakeoffHeight || h >= MaxTakeoffHeight {
		return errors.Errorf("takeoff.height cannot be set to %v because it is not in range <%v;%v)", h, MinTakeoffHeight, MaxTakeoffHeight)
	}
	return nil
}
