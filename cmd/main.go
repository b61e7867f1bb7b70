package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tiiuae/control_interface/internal/cloud"
	"github.com/tiiuae/control_interface/internal/commands"
	"github.com/tiiuae/control_interface/internal/config"
	"github.com/tiiuae/control_interface/internal/controller"
	"github.com/tiiuae/control_interface/internal/logging"
	"github.com/tiiuae/control_interface/internal/publisher"
	"github.com/tiiuae/control_interface/internal/telemetry"
	"github.com/tiiuae/control_interface/internal/types"
	"github.com/tiiuae/control_interface/internal/vehicle"

	"github.com/tiiuae/rclgo/pkg/ros2"
)

var (
	deafultFlagSet    = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	deviceID          = deafultFlagSet.String("device_id", "", "The provisioned device id")
	configPath        = deafultFlagSet.String("config", "", "YAML configuration file")
	deviceURL         = deafultFlagSet.String("device_url", "", "MAVLink endpoint of the flight controller (overrides config)")
	logLevel          = deafultFlagSet.String("log_level", "", "Log level: debug, info, warn, error (overrides config)")
	logDir            = deafultFlagSet.String("log_dir", "", "Directory for rotated log files (overrides config)")
	mqttBrokerAddress = deafultFlagSet.String("mqtt_broker", "", "MQTT broker protocol, address and port (enables cloud diagnostics)")
)

func main() {
	deafultFlagSet.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *deviceURL != "" {
		cfg.Vehicle.DeviceURL = *deviceURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logDir != "" {
		cfg.Log.Dir = *logDir
	}
	if *mqttBrokerAddress != "" {
		cfg.Cloud.MQTTBroker = *mqttBrokerAddress
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Dir, *deviceID)
	for _, warning := range cfg.Normalize() {
		logger.Warn(warning)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	// attach sigint & sigterm listeners
	terminationSignals := make(chan os.Signal, 1)
	signal.Notify(terminationSignals, syscall.SIGINT, syscall.SIGTERM)

	// quitFunc will be called when process is terminated
	ctx, quitFunc := context.WithCancel(context.Background())

	// wait group will make sure all goroutines have time to clean up
	var wg sync.WaitGroup

	// Setup ROS nodes
	rclArgs, rclErr := ros2.NewRCLArgs("")
	if rclErr != nil {
		log.Fatal(rclErr)
	}

	rclContext, rclErr := ros2.NewContext(&wg, 0, rclArgs)
	if rclErr != nil {
		log.Fatal(rclErr)
	}
	defer rclContext.Close()

	rclLocalNode, rclErr := rclContext.NewNode("control_interface", *deviceID)
	if rclErr != nil {
		log.Fatal(rclErr)
	}

	link, err := vehicle.NewLink(cfg.Vehicle, *deviceID, logger.Logger)
	if err != nil {
		logger.Error("Could not create vehicle link", "err", err)
		os.Exit(1)
	}

	var octomap controller.OctomapResetter
	o, err := publisher.NewOctomap(ctx, rclContext, rclLocalNode)
	if err != nil {
		logger.Warn("Octomap reset unavailable", "err", err)
	} else {
		defer o.Close()
		octomap = o
	}

	handlers := []types.MessageHandler{
		types.NewLogger(logger.Logger),
		link,
		telemetry.New(rclLocalNode, *deviceID, logger.Logger),
		commands.New(rclLocalNode, *deviceID, logger.Logger),
		publisher.New(rclLocalNode, logger.Logger),
		controller.New(*deviceID, cfg, link, octomap, logger.Logger),
	}
	if cfg.Cloud.MQTTBroker != "" {
		handlers = append(handlers, cloud.New(cfg.Cloud, *deviceID, logger.Logger))
	}

	messagebus := make(chan types.Message, 100)
	bus := types.NewMessageBus(messagebus, logger.Logger, handlers...)

	go bus.Run(ctx, &wg)

	// wait for termination and close quit to signal all
	<-terminationSignals
	// cancel the main context
	logger.Info("Shutting down..")
	quitFunc()

	// wait until goroutines have done their cleanup
	logger.Info("Waiting for routines to finish...")
	wg.Wait()
	logger.Info("Signing off - BYE")
}
