package commands

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tiiuae/control_interface/internal/types"
)

type goal struct {
	Goal types.Waypoint4 `json:"goal"`
}

type path struct {
	Path []types.Waypoint4 `json:"path"`
}

type param struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type wireResponse struct {
	ID      string      `json:"id"`
	Request string      `json:"request"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ParseRequest decodes a request envelope and its payload into a bus
// message. The request id is kept so the response can be correlated.
func ParseRequest(data []byte, deviceID string) (types.Message, error) {
	var msg types.StringMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return types.Message{}, errors.Wrap(err, "could not unmarshal request")
	}
	if msg.From == "" {
		msg.From = "operator"
	}
	if msg.To == "" {
		msg.To = deviceID
	}

	payload, err := parsePayload(msg.MessageType, msg.Message)
	if err != nil {
		return types.Message{}, errors.WithMessagef(err, "invalid %s request", msg.MessageType)
	}
	return msg.Replace(payload), nil
}

func parsePayload(messageType, body string) (interface{}, error) {
	switch messageType {
	case types.MessageTypeArming:
		var m types.Arming
		return m, decode(body, &m)
	case types.MessageTypeTakeoff:
		return types.Takeoff{}, nil
	case types.MessageTypeLand:
		return types.Land{}, nil
	case types.MessageTypeStopMission:
		return types.StopMission{}, nil
	case types.MessageTypeLocalWaypoint:
		var m goal
		err := decode(body, &m)
		return types.LocalWaypoints{Points: []types.Waypoint4{m.Goal}}, err
	case types.MessageTypeLocalPath:
		var m path
		err := decode(body, &m)
		return types.LocalWaypoints{Points: m.Path}, err
	case types.MessageTypeGPSWaypoint:
		var m goal
		err := decode(body, &m)
		return types.GPSWaypoints{Points: []types.Waypoint4{m.Goal}}, err
	case types.MessageTypeGPSPath:
		var m path
		err := decode(body, &m)
		return types.GPSWaypoints{Points: m.Path}, err
	case types.MessageTypeWaypointToLocal:
		var m goal
		err := decode(body, &m)
		return types.WaypointToLocal{Points: []types.Waypoint4{m.Goal}, Single: true}, err
	case types.MessageTypePathToLocal:
		var m path
		err := decode(body, &m)
		return types.WaypointToLocal{Points: m.Path}, err
	case types.MessageTypeSetPX4ParamInt, types.MessageTypeGetPX4ParamInt,
		types.MessageTypeSetPX4ParamFlt, types.MessageTypeGetPX4ParamFlt:
		return parsePX4Param(messageType, body)
	case types.MessageTypeSetParameter:
		var m param
		if err := decode(body, &m); err != nil {
			return nil, err
		}
		var value interface{}
		if err := json.Unmarshal(m.Value, &value); err != nil {
			return nil, errors.Wrap(err, "invalid value")
		}
		return types.SetParameter{Name: m.Name, Value: value}, nil
	}
	return nil, errors.Errorf("unknown request type %q", messageType)
}

func parsePX4Param(messageType, body string) (interface{}, error) {
	var m param
	if err := decode(body, &m); err != nil {
		return nil, err
	}
	if m.Name == "" {
		return nil, errors.New("missing parameter name")
	}

	out := types.PX4Param{
		Name:  m.Name,
		Float: messageType == types.MessageTypeSetPX4ParamFlt || messageType == types.MessageTypeGetPX4ParamFlt,
		Set:   messageType == types.MessageTypeSetPX4ParamInt || messageType == types.MessageTypeSetPX4ParamFlt,
	}
	if !out.Set {
		return out, nil
	}
	if len(m.Value) == 0 {
		return nil, errors.New("missing parameter value")
	}
	if out.Float {
		if err := json.Unmarshal(m.Value, &out.FloatValue); err != nil {
			return nil, errors.Wrap(err, "invalid float value")
		}
		return out, nil
	}
	if err := json.Unmarshal(m.Value, &out.IntValue); err != nil {
		return nil, errors.Wrap(err, "invalid integer value")
	}
	return out, nil
}

func decode(body string, v interface{}) error {
	if body == "" {
		return errors.New("empty payload")
	}
	return errors.Wrap(json.Unmarshal([]byte(body), v), "could not unmarshal payload")
}

// EncodeResponse renders a response message for the responses topic.
func EncodeResponse(msg types.Message) ([]byte, error) {
	r, ok := msg.Message.(types.Response)
	if !ok {
		return nil, errors.Errorf("not a response: %T", msg.Message)
	}
	return json.Marshal(wireResponse{
		ID:      msg.ID,
		Request: r.Request,
		Success: r.Success,
		Message: r.Message,
		Value:   r.Value,
	})
}
