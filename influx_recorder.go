package daqdio

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"

	"github.com/mbi-div-b/daqdio/register"
)

const defaultInfluxMeasurement = "dio"

// InfluxRecorder stores every synced snapshot as one point per port: input
// ports carry the read levels, output ports the last commanded levels.
type InfluxRecorder struct {
	Host         string
	Organization string
	Bucket       string
	Measurement  string
	Token        string

	Tags map[string]string

	deviceName string
	client     influxdb2.Client
	writeApi   api.WriteAPIBlocking
	ready      bool
}

func (ir *InfluxRecorder) Setup(deviceName string) error {
	if len(ir.Host) == 0 || len(ir.Bucket) == 0 {
		return errors.New("influx Host and Bucket must be set")
	}
	if len(ir.Measurement) == 0 {
		ir.Measurement = defaultInfluxMeasurement
	}

	ir.deviceName = deviceName
	ir.client = influxdb2.NewClient(ir.Host, ir.Token)
	ir.writeApi = ir.client.WriteAPIBlocking(ir.Organization, ir.Bucket)
	ir.ready = true
	return nil
}

func (ir *InfluxRecorder) IsReady() bool {
	return ir.ready
}

func (ir *InfluxRecorder) Close() {
	ir.ready = false
	if ir.client != nil {
		ir.client.Close()
	}
}

func (ir *InfluxRecorder) tags(port PortName, mode PortMode) map[string]string {
	tags := map[string]string{
		"device": ir.deviceName,
		"port":   string(port),
		"mode":   mode.String(),
	}
	for name, val := range ir.Tags {
		tags[name] = val
	}
	return tags
}

func (ir *InfluxRecorder) points(snapshot map[string]bool, outputs map[PortName]uint8, at time.Time) (points []*write.Point) {
	for _, port := range Ports {
		fields := make(map[string]interface{})
		for bit := 0; bit < register.Width; bit++ {
			name := fmt.Sprintf("%s%d", port, bit)
			if level, found := snapshot[name]; found {
				fields[name] = level
			}
		}
		if len(fields) > 0 {
			points = append(points, influxdb2.NewPoint(ir.Measurement, ir.tags(port, ModeInput), fields, at))
		}

		shadow, found := outputs[port]
		if !found {
			continue
		}
		fields = make(map[string]interface{})
		for bit, level := range register.Decode(shadow) {
			fields[fmt.Sprintf("%s%d", port, bit)] = level
		}
		points = append(points, influxdb2.NewPoint(ir.Measurement, ir.tags(port, ModeOutput), fields, at))
	}
	return
}

func (ir *InfluxRecorder) Record(ctx context.Context, snapshot map[string]bool, outputs map[PortName]uint8, at time.Time) error {
	if !ir.ready {
		return errors.New("influx recorder not set up")
	}

	points := ir.points(snapshot, outputs, at)
	if len(points) == 0 {
		return nil
	}

	err := ir.writeApi.WritePoint(ctx, points...)
	if err != nil {
		return errors.Wrapf(err, "failed to write %d points to %s", len(points), ir.Bucket)
	}
	return nil
}
