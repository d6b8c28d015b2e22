package entity

import (
	"fmt"
	"math/big"
	"time"
)

// PeriodType is the resolution of a flow time series bucket
type PeriodType string

const (
	PeriodHourly  PeriodType = "hourly"
	PeriodDaily   PeriodType = "daily"
	PeriodMonthly PeriodType = "monthly"
)

// PeriodTypes lists every resolution that is aggregated
var PeriodTypes = []PeriodType{PeriodHourly, PeriodDaily, PeriodMonthly}

// Length returns the bucket width in seconds. Monthly is a fixed 30 days.
func (p PeriodType) Length() int64 {
	switch p {
	case PeriodHourly:
		return 3600
	case PeriodDaily:
		return 86400
	case PeriodMonthly:
		return 86400 * 30
	}
	return 0
}

// PeriodID returns floor(timestamp / length)
func (p PeriodType) PeriodID(timestamp int64) int64 {
	l := p.Length()
	id := timestamp / l
	if timestamp%l != 0 && timestamp < 0 {
		id--
	}
	return id
}

// FirstTimestamp returns the start of the given period
func (p PeriodType) FirstTimestamp(periodID int64) int64 {
	return periodID * p.Length()
}

// TimeSeriesBucket holds the flow sums of one period
type TimeSeriesBucket struct {
	PeriodType     PeriodType `json:"period_type"`
	PeriodID       int64      `json:"period_id"`
	FirstTimestamp int64      `json:"first_timestamp"`
	InflowAmount   *big.Int   `json:"inflow_amount"`
	OutflowAmount  *big.Int   `json:"outflow_amount"`
	LastUpdated    time.Time  `json:"last_updated"`
}

// NewTimeSeriesBucket returns an empty bucket for the given period
func NewTimeSeriesBucket(periodType PeriodType, periodID int64) *TimeSeriesBucket {
	return &TimeSeriesBucket{
		PeriodType:     periodType,
		PeriodID:       periodID,
		FirstTimestamp: periodType.FirstTimestamp(periodID),
		InflowAmount:   new(big.Int),
		OutflowAmount:  new(big.Int),
	}
}

// Merge adds the sums of delta into b
func (b *TimeSeriesBucket) Merge(delta *TimeSeriesBucket) {
	b.InflowAmount.Add(b.InflowAmount, delta.InflowAmount)
	b.OutflowAmount.Add(b.OutflowAmount, delta.OutflowAmount)
	if delta.LastUpdated.After(b.LastUpdated) {
		b.LastUpdated = delta.LastUpdated
	}
}

// Key identifies the bucket
func (b *TimeSeriesBucket) Key() BucketKey {
	return BucketKey{PeriodType: b.PeriodType, PeriodID: b.PeriodID}
}

// BucketKey is the primary key of a bucket
type BucketKey struct {
	PeriodType PeriodType
	PeriodID   int64
}

// TimeSeriesPoint is one point of a queried series
type TimeSeriesPoint struct {
	Time    int64    `json:"time"`
	Inflow  *big.Int `json:"inflow"`
	Outflow *big.Int `json:"outflow"`
}

// SeriesPeriod describes a queryable window
type SeriesPeriod struct {
	Name       string
	PeriodType PeriodType
	Points     int
}

var seriesPeriods = map[string]SeriesPeriod{
	"24h": {Name: "24h", PeriodType: PeriodHourly, Points: 24},
	"7d":  {Name: "7d", PeriodType: PeriodDaily, Points: 7},
	"30d": {Name: "30d", PeriodType: PeriodDaily, Points: 30},
	"1y":  {Name: "1y", PeriodType: PeriodMonthly, Points: 12},
}

// ParseSeriesPeriod resolves a period name such as "24h" or "1y"
func ParseSeriesPeriod(name string) (SeriesPeriod, error) {
	p, ok := seriesPeriods[name]
	if !ok {
		return SeriesPeriod{}, fmt.Errorf("%w: unsupported period %q", ErrValidation, name)
	}
	return p, nil
}
