package mqtt

import (
	"testing"

	"smart-guard-go/config"
)

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"ON", "ON"},
		{[]byte("raw"), "raw"},
		{3, "3"},
		{true, "true"},
		{map[string]int{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		got, err := encodePayload(tt.in)
		if err != nil {
			t.Fatalf("encodePayload(%v) error = %v", tt.in, err)
		}
		if string(got) != tt.want {
			t.Errorf("encodePayload(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestClient_PublishWhenDisconnected(t *testing.T) {
	c := NewClient(config.MQTTConfig{TopicPrefix: "smart-guard"})
	if c.Topic("status") != "smart-guard/status" {
		t.Errorf("Topic() = %s", c.Topic("status"))
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start() with disabled config error = %v", err)
	}
	if err := c.Publish("x", "y", false); err == nil {
		t.Error("Publish() on disconnected client error = nil")
	}
}
