package pubsub

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var errEmptyMessage = errors.New("empty message")

func encode(msg Message) (string, error) {
	return sonic.MarshalString(msg)
}

func decode(payload string) (Message, error) {
	var msg Message
	if err := sonic.UnmarshalString(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg == nil {
		return nil, errEmptyMessage
	}
	return msg, nil
}
