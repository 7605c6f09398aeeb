package mqttpush

import (
	"strings"
)

const (
	TopicRoot     = "vitals"
	ReadingSuffix = "reading"
	AlertSuffix   = "alert"
)

// ReadingTopic is where a device publishes its readings, vitals/<mac>/reading.
// An empty device id yields the single level wildcard.
func ReadingTopic(deviceID string) string {
	return topicFor(deviceID, ReadingSuffix)
}

func AlertTopic(deviceID string) string {
	return topicFor(deviceID, AlertSuffix)
}

func topicFor(deviceID string, suffix string) string {
	if deviceID == "" {
		deviceID = "+"
	}
	return TopicRoot + "/" + deviceID + "/" + suffix
}

// DeviceFromTopic extracts the device id from a vitals/<mac>/<suffix> topic.
func DeviceFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicRoot || parts[1] == "" || parts[1] == "+" {
		return "", false
	}
	return parts[1], true
}
