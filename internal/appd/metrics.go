package appd

import "encoding/json"

// 控制器返回的agent类型与服务器类型取值
const (
	AgentTypeMachine = "MACHINE_AGENT"

	ServerTypePhysical  = "PHYSICAL"
	ServerTypeContainer = "CONTAINER"
)

// MetricNotFound 是控制器表示时间范围内没有数据的哨兵指标名。
const MetricNotFound = "METRIC DATA NOT FOUND"

type MetricValue struct {
	StartTimeInMillis int64   `json:"startTimeInMillis"`
	Current           float64 `json:"current"`
	Value             float64 `json:"value"`
}

type MetricGroup struct {
	MetricName   string        `json:"metricName"`
	MetricValues []MetricValue `json:"metricValues"`
}

// ParseMetricSeries 把指标接口的JSON响应解码为序列。
func ParseMetricSeries(body []byte) ([]MetricGroup, Status) {
	if len(body) == 0 {
		return nil, StatusEmpty
	}
	groups := make([]MetricGroup, 0)
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, StatusError
	}
	if len(groups) == 0 {
		return nil, StatusEmpty
	}
	return groups, StatusValid
}

// DetermineAvailability 从指标序列中取最近一次观测。
// 接口约定把最新观测放在最后一组的最后一个值，因此只读各自的尾元素，
// 不对序列的整体顺序做任何假设。找不到数据时两个返回值都为nil。
func DetermineAvailability(series []MetricGroup, status Status) (*int64, *float64) {
	if status != StatusValid || len(series) == 0 {
		return nil, nil
	}

	last := series[len(series)-1]
	if last.MetricName == MetricNotFound {
		return nil, nil
	}
	if len(last.MetricValues) == 0 {
		return nil, nil
	}

	observation := last.MetricValues[len(last.MetricValues)-1]
	startTime := observation.StartTimeInMillis
	value := observation.Current
	return &startTime, &value
}
