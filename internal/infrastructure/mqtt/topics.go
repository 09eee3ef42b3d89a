package mqtt

// CommandConnect is the payload sent to a device when an operator connects it.
const CommandConnect = "CONECTAR"

// Topics provides builders for device topics.
//
// Every topic lives under a namespace, the first level of the configured
// subscription wildcard ("vigilant" for "vigilant/data/#").
//
//	topics := mqtt.Topics{}
//	topics.DeviceCommand("vigilant", "SENS_01")
//	// Returns: "vigilant/command/SENS_01"
type Topics struct{}

// DeviceCommand returns the topic a device listens on for commands.
//
// Example: vigilant/command/SENS_01
func (Topics) DeviceCommand(namespace, externalID string) string {
	return namespace + "/command/" + externalID
}
