// Package mqtt provides MQTT broker sessions for VigiLant Core.
//
// A Client represents exactly one broker session. It never reconnects on its
// own: the broker connection manager dials a fresh Client, with a fresh client
// id and the current broker row, each time the previous one is gone.
//
// # Topics
//
// Devices publish readings under the configured wildcard (by default
// "vigilant/data/#") and listen for commands on "<namespace>/command/<id>",
// where the namespace is the wildcard's first level.
//
// # Usage
//
//	opts := mqtt.OptionsFromConfig(cfg.MQTT, "broker.emqx.io", 1883, "vigilant-server-"+uuid.NewString())
//	client, err := mqtt.Dial(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(ctx, "vigilant/data/#", 1, handler)
//	err = client.Publish(ctx, mqtt.Topics{}.DeviceCommand("vigilant", "SENS_01"),
//	    []byte(mqtt.CommandConnect), 1, false)
package mqtt
