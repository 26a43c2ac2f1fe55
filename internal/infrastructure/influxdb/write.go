package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePowerReading records one instantaneous power sample for a
// device. The write is buffered; delivery errors arrive via the error
// callback.
func (c *Client) WritePowerReading(deviceName string, watts float64) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	point := write.NewPoint(
		"power",
		map[string]string{
			"device": deviceName,
		},
		map[string]interface{}{
			"watts": watts,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
	return nil
}

// WritePoint writes a custom point for measurements the helpers don't
// cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
	return nil
}
