package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every bridge topic.
//
// Layout, for bridge id B:
//
//	hcbridge/B/status                  online/offline, retained, LWT
//	hcbridge/B/state/{subtype}/{char}  characteristic values, retained
//	hcbridge/B/set/{subtype}/{char}    inbound writes
//	hcbridge/B/commands                executor records
const TopicPrefix = "hcbridge"

// Topics builds topics for one bridge instance.
type Topics struct {
	Bridge string
}

func (t Topics) base() string {
	return TopicPrefix + "/" + t.Bridge
}

// Status returns the retained online/offline topic.
func (t Topics) Status() string {
	return t.base() + "/status"
}

// State returns the retained value topic for one characteristic.
func (t Topics) State(subtype, characteristic string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.base(), subtype, characteristic)
}

// Set returns the inbound write topic for one characteristic.
func (t Topics) Set(subtype, characteristic string) string {
	return fmt.Sprintf("%s/set/%s/%s", t.base(), subtype, characteristic)
}

// AllSets matches every inbound write topic.
func (t Topics) AllSets() string {
	return t.base() + "/set/+/+"
}

// Commands returns the command record topic.
func (t Topics) Commands() string {
	return t.base() + "/commands"
}

// ParseSet extracts subtype and characteristic from a Set topic.
func (t Topics) ParseSet(topic string) (subtype, characteristic string, err error) {
	rest, ok := strings.CutPrefix(topic, t.base()+"/set/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not a set topic", ErrInvalidTopic, topic)
	}
	subtype, characteristic, ok = strings.Cut(rest, "/")
	if !ok || subtype == "" || characteristic == "" || strings.Contains(characteristic, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return subtype, characteristic, nil
}

// ValidSegment reports whether s can be used as a single topic level.
func ValidSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#")
}
