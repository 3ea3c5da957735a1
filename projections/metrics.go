package projections

import (
	"context"
	"sync"
	"time"

	"github.com/gobuffalo/flect"
	client "github.com/influxdata/influxdb/client/v2"
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/aggregates"
	"github.com/retro-framework/cqrskit/events"
	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/processor"
)

// InfluxClient is the part of client.Client Metrics needs.
type InfluxClient interface {
	Write(bp client.BatchPoints) error
	Query(q client.Query) (*client.Response, error)
}

// Metrics writes one point per task event into InfluxDB, tagged with
// the event type. Completions carry the time the task spent in
// progress when its start was seen.
type Metrics struct {
	c           InfluxClient
	database    string
	measurement string

	mu      sync.Mutex
	started map[string]time.Time
}

func NewMetrics(c InfluxClient, database string) *Metrics {
	return &Metrics{
		c:           c,
		database:    database,
		measurement: flect.Underscore(aggregates.TaskType + " events"),
		started:     map[string]time.Time{},
	}
}

func (m *Metrics) Group() string { return "metrics" }

// EnsureDatabase creates the database unless it already exists.
func (m *Metrics) EnsureDatabase(ctx context.Context) error {
	res, err := m.c.Query(client.NewQuery("CREATE DATABASE "+m.database, "", ""))
	if err != nil {
		return errors.Wrapf(err, "can't create database %s", m.database)
	}
	if err := res.Error(); err != nil {
		return errors.Wrapf(err, "can't create database %s", m.database)
	}
	return nil
}

func (m *Metrics) Register(hs *processor.Handlers) error {
	for _, evType := range events.Types() {
		if err := hs.OnWithRawEvent(m.Group(), evType, m.record, processor.Named("metrics/"+evType)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) record(ctx context.Context, ev cqrs.Event, md cqrs.Metadata, raw cqrs.RawEvent) error {
	tags := map[string]string{"event": raw.Type, "source": raw.Source}
	if user, ok := md["user"].(string); ok && user != "" {
		tags["user"] = user
	}
	fields := map[string]interface{}{"count": 1}

	id := taskID(raw.Subject)
	switch e := ev.(type) {
	case events.TaskStarted:
		at := e.StartedAt
		if at.IsZero() {
			at = raw.Time
		}
		m.mu.Lock()
		m.started[id] = at
		m.mu.Unlock()
	case events.TaskCompleted:
		at := e.CompletedAt
		if at.IsZero() {
			at = raw.Time
		}
		m.mu.Lock()
		if start, ok := m.started[id]; ok {
			fields["cycle_seconds"] = at.Sub(start).Seconds()
			delete(m.started, id)
		}
		m.mu.Unlock()
	}

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: m.database, Precision: "s"})
	if err != nil {
		return err
	}
	pt, err := client.NewPoint(m.measurement, tags, fields, raw.Time)
	if err != nil {
		return errors.Wrapf(err, "can't build point for event %s", raw.ID)
	}
	bp.AddPoint(pt)
	return errors.Wrapf(m.c.Write(bp), "can't write point for event %s", raw.ID)
}
