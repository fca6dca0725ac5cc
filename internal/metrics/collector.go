// Package metrics exposes the current automation state store as
// Prometheus gauges, one per numeric or boolean attribute key, grounded
// on the original exporter's dynamic per-attribute gauge family.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/switchsentry/internal/automation"
	"github.com/nerrad567/switchsentry/internal/infrastructure/config"
)

// alwaysPublishedMetric bypasses the metrics allow-list: rssi is signal
// health, not automation data, so target.metrics scoping it out would
// hide the one attribute every BLE entity always carries.
const alwaysPublishedMetric = "rssi"

var deviceInfoDesc = prometheus.NewDesc(
	"switchsentry_device_info",
	"Identity series, always 1, labeled with the configured alias and last observed model.",
	[]string{"address", "name", "model"},
	nil,
)

// Collector implements prometheus.Collector over a live StateStore.
// Unlike a registered fixed-metric collector, the gauge families it
// yields are only known once a scrape starts, since attribute keys vary
// per entity and per rule configuration.
type Collector struct {
	store   *automation.StateStore
	target  config.PrometheusTarget
	aliases automation.AliasTable
}

// New returns a Collector scoped to target's address/metric allow-lists,
// emitting one device_info identity series per entry in aliases. Empty
// allow-lists mean "export everything", per spec.md's Prometheus target
// semantics.
func New(store *automation.StateStore, target config.PrometheusTarget, aliases automation.AliasTable) *Collector {
	return &Collector{store: store, target: target, aliases: aliases}
}

// Describe intentionally sends no descriptors except device_info: the
// attribute-gauge set is only known at collect time, so Prometheus's
// client library is told to skip its consistency check for those,
// matching the dynamic-gauge pattern in the original exporter.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- deviceInfoDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.store.Snapshot()

	allowedAddr := toSet(c.target.Addresses)
	allowedMetric := toSet(c.target.Metrics)

	for key, event := range snap {
		if len(allowedAddr) > 0 && !allowedAddr[key] {
			continue
		}
		for attr, value := range event.Attributes {
			if attr != alwaysPublishedMetric && len(allowedMetric) > 0 && !allowedMetric[attr] {
				continue
			}
			f, ok := asGaugeValue(value)
			if !ok {
				continue
			}
			desc := prometheus.NewDesc(
				metricName(attr),
				"switchsentry entity attribute "+attr,
				[]string{"entity"},
				nil,
			)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, f, key)
		}
	}

	for name, address := range c.aliases {
		model, _ := snap[address].Attributes["modelName"].(string)
		ch <- prometheus.MustNewConstMetric(deviceInfoDesc, prometheus.GaugeValue, 1, address, name, model)
	}
}

func asGaugeValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func metricName(attr string) string {
	return "switchsentry_" + strings.ReplaceAll(attr, ".", "_")
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}
