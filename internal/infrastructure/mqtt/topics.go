package mqtt

import "fmt"

// Topic prefixes. All topics live under a single application root:
// tapowatt/{category}/...
const (
	// TopicPrefix is the root of the topic hierarchy.
	TopicPrefix = "tapowatt"

	// TopicPrefixSystem is the base for service-level topics.
	TopicPrefixSystem = "tapowatt/system"
)

// Topics provides builders for MQTT topic names. Using the helpers
// keeps naming consistent between publisher and subscribers.
type Topics struct{}

// DevicePower returns the retained per-device power reading topic.
//
// Example: tapowatt/power/heater
func (Topics) DevicePower(deviceName string) string {
	return fmt.Sprintf("%s/power/%s", TopicPrefix, deviceName)
}

// AllDevicePower returns a pattern matching every device power topic.
//
// Pattern: tapowatt/power/+
func (Topics) AllDevicePower() string {
	return fmt.Sprintf("%s/power/+", TopicPrefix)
}

// SystemStatus returns the retained service status topic. Carries the
// online/offline payloads and the Last Will.
//
// Example: tapowatt/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
