// Package mqtt provides the bridge's MQTT client.
//
// The bridge uses MQTT as an outbound mirror: characteristic values are
// published as retained state, executor records are published as command
// events and the health reporter publishes retained status with a Last
// Will. Inbound writes on the set topics are forwarded to the bridge.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Bridge.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishJSON(topics.State("12----", "On"), true, true)
package mqtt
