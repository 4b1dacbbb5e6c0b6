package models

// 生命体征状态标签
const (
	StateNormal      = "normal"
	StateCritical    = "critical"
	StateNeedsMedics = "needs medics"
)

// VitalsSnapshot 单个住户在一个更新周期内的生命体征
// 每个周期整体替换上一批，不保留历史
type VitalsSnapshot struct {
	PID                    string  `json:"pid,omitempty"` // 可选；存在时按身份匹配面板
	State                  string  `json:"state"`
	Temperature            float64 `json:"temperature"`
	HeartRate              float64 `json:"heart_rate"`
	OxygenSaturation       float64 `json:"oxygen_saturation"`
	BloodPressureSystolic  float64 `json:"blood_pressure_systolic"`
	BloodPressureDiastolic float64 `json:"blood_pressure_diastolic"`
	BloodSugar             float64 `json:"blood_sugar"`
	RespiratoryRate        float64 `json:"respiratory_rate"`
	Urgent                 bool    `json:"urgent"`
}
