// Package influxdb records device lifecycle history as time series.
//
// It is optional: when disabled in config the bridge runs without it
// and lifecycle events only reach the structured log. Writes are
// batched and non-blocking so a slow or absent InfluxDB never delays
// webhook handling.
package influxdb
