package model

// Overview is the dashboard-wide analytics snapshot.
type Overview struct {
	TotalReadings       int64              `json:"total_readings"`
	Fields              []string           `json:"fields"`
	SensorTypes         []string           `json:"sensor_types"`
	AverageByField      map[string]float64 `json:"average_by_field"`
	AverageBySensorType map[string]float64 `json:"average_by_sensor_type"`
	RecentReadings      []SensorReading    `json:"recent_readings"`
}

// Percentiles carries sketch-derived value percentiles. Present on per-entity
// analytics only when percentile reporting is enabled.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// FieldAnalytics summarizes every reading of one field.
type FieldAnalytics struct {
	FieldID       string       `json:"field_id"`
	TotalReadings int64        `json:"total_readings"`
	AvgValue      float64      `json:"avg_value"`
	MinValue      float64      `json:"min_value"`
	MaxValue      float64      `json:"max_value"`
	SensorTypes   []string     `json:"sensor_types"`
	Percentiles   *Percentiles `json:"percentiles,omitempty"`
}

// SensorTypeAnalytics summarizes every reading of one sensor type.
type SensorTypeAnalytics struct {
	SensorType    string       `json:"sensor_type"`
	TotalReadings int64        `json:"total_readings"`
	AvgValue      float64      `json:"avg_value"`
	MinValue      float64      `json:"min_value"`
	MaxValue      float64      `json:"max_value"`
	Fields        []string     `json:"fields"`
	Percentiles   *Percentiles `json:"percentiles,omitempty"`
}
