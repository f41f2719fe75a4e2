// Package bridge exposes a home-automation controller's devices as
// accessory services.
//
// A Bridge resolves each controller device into capability services, binds
// their characteristics to device properties, keeps them current with the
// reconciliation loop and forwards accessory writes to the command executor.
//
// Lifecycle:
//
//	b, err := bridge.New(bridge.Options{Config: cfg, Controller: client})
//	accessories, err := b.ResolveCapabilities(ctx)
//	err = b.Start(ctx) // binds and starts polling
//	defer b.Stop()
//
// Health is published as a retained MQTT message on hcbridge/health/{id}
// when a publisher is configured.
package bridge
