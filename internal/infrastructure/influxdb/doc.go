// Package influxdb provides optional history-writer connectivity for
// switchsentry, recording raw events and rule fires for offline analysis.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, non-blocking batched writes, and health monitoring.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "switchsentry",
//	    Bucket: "history",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteRawEvent("aa:bb:cc:dd:ee:ff", "ble", map[string]interface{}{"temperature": 21.5})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines. The
// underlying write API uses non-blocking batched writes, so calling a
// Write* method never suspends the caller — required by the event
// pipeline's non-suspending dispatch guarantee.
package influxdb
