package commands

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tiiuae/control_interface/internal/types"
)

func request(t *testing.T, messageType, body string) []byte {
	t.Helper()
	b, err := json.Marshal(types.StringMessage{ID: "req-1", MessageType: messageType, Message: body})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		messageType string
		body        string
		expected    interface{}
	}{
		{types.MessageTypeArming, `{"arm":true}`, types.Arming{Arm: true}},
		{types.MessageTypeTakeoff, ``, types.Takeoff{}},
		{types.MessageTypeStopMission, ``, types.StopMission{}},
		{types.MessageTypeSetPX4ParamInt, `{"name":"COM_RCL_EXCEPT","value":4}`, types.PX4Param{Name: "COM_RCL_EXCEPT", IntValue: 4, Set: true}},
		{types.MessageTypeGetPX4ParamFlt, `{"name":"MPC_XY_VEL_MAX"}`, types.PX4Param{Name: "MPC_XY_VEL_MAX", Float: true}},
		{types.MessageTypeSetPX4ParamFlt, `{"name":"MPC_XY_VEL_MAX","value":2.5}`, types.PX4Param{Name: "MPC_XY_VEL_MAX", FloatValue: 2.5, Float: true, Set: true}},
		{types.MessageTypeSetParameter, `{"name":"takeoff.height","value":3.5}`, types.SetParameter{Name: "takeoff.height", Value: 3.5}},
	}

	for _, tt := range tests {
		msg, err := ParseRequest(request(t, tt.messageType, tt.body), "drone-1")
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.messageType, err)
			continue
		}
		if msg.Message != tt.expected {
			t.Errorf("%s: expected %+v, got %+v", tt.messageType, tt.expected, msg.Message)
		}
		if msg.ID != "req-1" || msg.To != "drone-1" || msg.From != "operator" {
			t.Errorf("%s: unexpected envelope %+v", tt.messageType, msg)
		}
	}
}

func TestParseWaypoints(t *testing.T) {
	msg, err := ParseRequest(request(t, types.MessageTypeLocalWaypoint, `{"goal":[1,0,2,0]}`), "drone-1")
	if err != nil {
		t.Fatal(err)
	}
	local, ok := msg.Message.(types.LocalWaypoints)
	if !ok || len(local.Points) != 1 || local.Points[0] != (types.Waypoint4{1, 0, 2, 0}) {
		t.Errorf("expected one local waypoint, got %+v", msg.Message)
	}

	msg, err = ParseRequest(request(t, types.MessageTypeGPSPath, `{"path":[[60.1,24.9,5,0],[60.2,24.9,5,1.5]]}`), "drone-1")
	if err != nil {
		t.Fatal(err)
	}
	gps, ok := msg.Message.(types.GPSWaypoints)
	if !ok || len(gps.Points) != 2 || gps.Points[1][3] != 1.5 {
		t.Errorf("expected a two point GPS path, got %+v", msg.Message)
	}

	msg, err = ParseRequest(request(t, types.MessageTypeWaypointToLocal, `{"goal":[60.1,24.9,5,0]}`), "drone-1")
	if err != nil {
		t.Fatal(err)
	}
	if conv, ok := msg.Message.(types.WaypointToLocal); !ok || !conv.Single {
		t.Errorf("expected single conversion, got %+v", msg.Message)
	}
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		data     []byte
		expected string
	}{
		{[]byte(`not json`), "could not unmarshal request"},
		{request(t, "fly-to-moon", `{}`), "unknown request type"},
		{request(t, types.MessageTypeArming, ``), "empty payload"},
		{request(t, types.MessageTypeLocalPath, `{"path":[[1,2]`), "could not unmarshal payload"},
		{request(t, types.MessageTypeSetPX4ParamInt, `{"name":"X"}`), "missing parameter value"},
		{request(t, types.MessageTypeSetPX4ParamInt, `{"name":"X","value":1.5}`), "invalid integer value"},
		{request(t, types.MessageTypeGetPX4ParamInt, `{}`), "missing parameter name"},
	}

	for _, tt := range tests {
		_, err := ParseRequest(tt.data, "drone-1")
		if err == nil || !strings.Contains(err.Error(), tt.expected) {
			t.Errorf("expected error containing %q, got %v", tt.expected, err)
		}
	}
}

func TestEncodeResponse(t *testing.T) {
	request := types.Message{ID: "req-7", From: "operator", To: "drone-1", MessageType: types.MessageTypeTakeoff}
	reply := types.CreateReply(request, types.MessageTypeResponse, types.Response{Request: types.MessageTypeTakeoff, Success: false, Message: "Takeoff rejected, vehicle not armed"})

	b, err := EncodeResponse(reply)
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"id":"req-7","request":"takeoff","success":false,"message":"Takeoff rejected, vehicle not armed"}`
	if string(b) != expected {
		t.Errorf("expected %s, got %s", expected, b)
	}

	if _, err := EncodeResponse(types.Message{Message: types.Tick{}}); err == nil {
		t.Error("expected error for non-response message")
	}
}
