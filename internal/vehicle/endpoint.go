package vehicle

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/pkg/errors"
)

// ParseEndpoint turns a device url into a gomavlib endpoint.
//
//	udp://[host]:port        listen for the autopilot
//	udpout://host:port       send to the autopilot
//	tcp://host:port
//	serial:///dev/ttyACM0:57600
func ParseEndpoint(deviceURL string) (gomavlib.EndpointConf, error) {
	u, err := url.Parse(deviceURL)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid device url %q", deviceURL)
	}

	switch u.Scheme {
	case "udp":
		return gomavlib.EndpointUDPServer{Address: u.Host}, nil
	case "udpout":
		return gomavlib.EndpointUDPClient{Address: u.Host}, nil
	case "tcp":
		return gomavlib.EndpointTCPClient{Address: u.Host}, nil
	case "serial":
		i := strings.LastIndex(u.Path, ":")
		if i < 0 {
			return nil, errors.Errorf("serial device url %q is missing the baud rate", deviceURL)
		}
		baud, err := strconv.Atoi(u.Path[i+1:])
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid baud rate in %q", deviceURL)
		}
		return gomavlib.EndpointSerial{Device: u.Path[:i], Baud: baud}, nil
	}

	return nil, errors.Errorf("unsupported device url scheme %q", u.Scheme)
}
