package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Message struct {
	Timestamp   time.Time   `json:"timestamp"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	ID          string      `json:"id"`
	MessageType string      `json:"message_type"`
	Message     interface{} `json:"message"`
}

// StringMessage is the wire form of a request: the payload is a JSON
// document encoded as a string.
type StringMessage struct {
	Timestamp   time.Time `json:"timestamp"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ID          string    `json:"id"`
	MessageType string    `json:"message_type"`
	Message     string    `json:"message"`
}

// Serialize message to json-message for ros and mqtt transport
func (message *Message) ToJsonMessage() (StringMessage, error) {
	b, err := json.Marshal(message.Message)
	if err != nil {
		return StringMessage{}, err
	}

	return StringMessage{
		Timestamp:   message.Timestamp,
		From:        message.From,
		To:          message.To,
		ID:          message.ID,
		MessageType: message.MessageType,
		Message:     string(b),
	}, nil
}

func (message *StringMessage) Replace(v interface{}) Message {
	return Message{
		message.Timestamp,
		message.From,
		message.To,
		message.ID,
		message.MessageType,
		v,
	}
}

func CreateMessage(messageType, from, to string, message interface{}) Message {
	return Message{
		time.Now(),
		from,
		to,
		uuid.New().String(),
		messageType,
		message,
	}
}

// CreateReply builds a message that carries the id of the request it answers.
func CreateReply(request Message, messageType string, message interface{}) Message {
	return Message{
		time.Now(),
		request.To,
		request.From,
		request.ID,
		messageType,
		message,
	}
}
