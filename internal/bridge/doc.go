// Package bridge wires the telemetry bridge together: configuration,
// metrics, the state store, the ingestor, the connection manager, the
// command publisher, the HTTP surface and the optional InfluxDB mirror and
// command audit log.
//
//	b, err := bridge.New(ctx, cfg, bridge.Options{Logger: log, Version: version})
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	<-ctx.Done()
package bridge
