package mqtt

import (
	"errors"
	"strings"
)

// ErrNotConnected is returned when publishing on a closed connection.
var ErrNotConnected = errors.New("mqtt: not connected")

// Publisher sends one message to the broker.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Topics lists the topics a simulation run is mirrored on.
type Topics struct {
	Snapshot  string
	Award     string
	Completed string
	Status    string
}

// NewTopics derives every topic from prefix, e.g. "cnp" gives "cnp/snapshot".
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = "cnp"
	}
	return Topics{
		Snapshot:  prefix + "/snapshot",
		Award:     prefix + "/award",
		Completed: prefix + "/completed",
		Status:    prefix + "/status",
	}
}
