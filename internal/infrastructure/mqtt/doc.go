// Package mqtt provides the agent's reconnect-safe MQTT transport.
//
// This package manages:
//   - Asynchronous connection with paho-level retry and auto-reconnect
//   - Message publishing at the configured QoS
//   - Exact-topic subscriptions that re-converge after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Subscription consistency
//
// The broker runs clean sessions, so its subscription state is lost on every
// disconnect. The client keeps the authoritative list: entering Connected
// subscribes every entry not yet subscribed on this connection, entering
// Disconnected marks every entry unsubscribed. Replaying a connect without an
// intervening disconnect issues no broker calls.
//
// # Security Considerations
//
//   - Use TLS outside of a trusted LAN (broker.tls=true)
//   - Prefer GLAGENT_MQTT_USERNAME / GLAGENT_MQTT_PASSWORD over the config file
//
// # Usage
//
//	client := mqtt.New(cfg, logger)
//	client.SetLastWill(topics.Availability(), "offline")
//	client.SetOnConnect(func() { client.Publish(topics.Availability(), []byte("online"), true) })
//	if err := client.Connect(); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	_, err = client.Subscribe(commandTopic, func(topic string, payload []byte) error {
//	    return cmd.Invoke(ctx, payload)
//	})
package mqtt
