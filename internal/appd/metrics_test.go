package appd

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestParseMetricSeries(t *testing.T) {
	body := []byte(`[{"metricName": "Agent|App|Availability",
		"metricValues": [{"startTimeInMillis": 1700000000000, "current": 1, "value": 1}]}]`)
	series, status := ParseMetricSeries(body)
	assert.Equal(t, StatusValid, status)
	assert.Len(t, series, 1)
	assert.Equal(t, int64(1700000000000), series[0].MetricValues[0].StartTimeInMillis)

	_, status = ParseMetricSeries(nil)
	assert.Equal(t, StatusEmpty, status)

	_, status = ParseMetricSeries([]byte("[]"))
	assert.Equal(t, StatusEmpty, status)

	_, status = ParseMetricSeries([]byte("{broken"))
	assert.Equal(t, StatusError, status)
}

// 最新观测约定在最后一组的最后一个值，前面的组和值都不该被读取
func TestDetermineAvailabilityReadsTail(t *testing.T) {
	series := []MetricGroup{
		{MetricName: "old", MetricValues: []MetricValue{
			{StartTimeInMillis: 100, Current: 99},
		}},
		{MetricName: "latest", MetricValues: []MetricValue{
			{StartTimeInMillis: 200, Current: 98},
			{StartTimeInMillis: 300, Current: 2},
		}},
	}
	ts, value := DetermineAvailability(series, StatusValid)
	if !assert.NotNil(t, ts) || !assert.NotNil(t, value) {
		assert.FailNow(t, "availability should be found")
	}
	assert.Equal(t, int64(300), *ts)
	assert.Equal(t, float64(2), *value)
}

func TestDetermineAvailabilityNotFound(t *testing.T) {
	// 哨兵指标名表示时间范围内无数据
	series := []MetricGroup{
		{MetricName: MetricNotFound, MetricValues: []MetricValue{}},
	}
	ts, value := DetermineAvailability(series, StatusValid)
	assert.Nil(t, ts)
	assert.Nil(t, value)

	// 最后一组没有任何观测值时也不应panic
	series = []MetricGroup{
		{MetricName: "Agent|App|Availability", MetricValues: nil},
	}
	ts, value = DetermineAvailability(series, StatusValid)
	assert.Nil(t, ts)
	assert.Nil(t, value)

	ts, value = DetermineAvailability(nil, StatusEmpty)
	assert.Nil(t, ts)
	assert.Nil(t, value)

	ts, value = DetermineAvailability(series, StatusError)
	assert.Nil(t, ts)
	assert.Nil(t, value)
}
