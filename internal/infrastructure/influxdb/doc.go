// Package influxdb writes server and device counters to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Points go through
// the non-blocking write API and are batched according to the batch_size
// and flush_interval settings.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	reporter := influxdb.NewReporter(client, snapshotFunc)
//	go reporter.Run(ctx, time.Duration(cfg.InfluxDB.StatsInterval)*time.Second)
//
// Two measurements are written on every tick:
//
//	fcserver_server   pixel_messages, control_messages, devices
//	fcserver_device   tags type, serial, name; submitted, completed,
//	                  bytes_submitted, bytes_written, submit_errors,
//	                  write_errors, pending
//
// Write errors are delivered asynchronously through SetOnError.
package influxdb
