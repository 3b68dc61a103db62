package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Current value of a counter, or of one child of a counter vector.
func GetCounterValue(metric prometheus.Metric) (int64, error) {
	m := &dto.Metric{}
	err := metric.Write(m)
	if err != nil {
		return 0, err
	}
	return int64(m.GetCounter().GetValue()), nil
}
