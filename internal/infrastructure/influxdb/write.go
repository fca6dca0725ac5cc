package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRawEvent records one raw event observed from a source, for offline
// analysis of sensor history independent of any rule firing.
//
// Parameters:
//   - entityKey: the entity key the event was observed for
//   - kind: "ble" or "mqtt"
//   - attributes: the flat attribute map of the event, numeric/bool fields only
func (c *Client) WriteRawEvent(entityKey, kind string, attributes map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"raw_event",
		map[string]string{
			"entity_key": entityKey,
			"kind":       kind,
		},
		attributes,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRuleFire records one rule activation.
//
// Parameters:
//   - ruleName: the name of the rule that fired
//   - entityKey: the entity key the rule fired for
func (c *Client) WriteRuleFire(ruleName, entityKey string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"rule_fire",
		map[string]string{
			"rule":       ruleName,
			"entity_key": entityKey,
		},
		map[string]interface{}{
			"fired": true,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
