package types

import "testing"

func TestCreateReply(t *testing.T) {
	request := CreateMessage(MessageTypeLand, "operator", "drone-1", Land{})
	other := CreateMessage(MessageTypeLand, "operator", "drone-1", Land{})
	if request.ID == "" || request.ID == other.ID {
		t.Errorf("expected unique ids, got %q and %q", request.ID, other.ID)
	}

	reply := CreateReply(request, MessageTypeResponse, Response{Request: MessageTypeLand, Success: true, Message: "Landing"})
	if reply.ID != request.ID || reply.From != "drone-1" || reply.To != "operator" {
		t.Errorf("expected reply correlated with request, got %+v", reply)
	}
}

func TestToJsonMessage(t *testing.T) {
	msg := CreateMessage(MessageTypeArming, "operator", "drone-1", Arming{Arm: true})
	out, err := msg.ToJsonMessage()
	if err != nil {
		t.Fatal(err)
	}
	if out.Message != `{"arm":true}` || out.ID != msg.ID {
		t.Errorf("unexpected wire message %+v", out)
	}

	back := out.Replace(Arming{Arm: true})
	if back.ID != msg.ID || back.MessageType != MessageTypeArming {
		t.Errorf("expected envelope preserved, got %+v", back)
	}
}
