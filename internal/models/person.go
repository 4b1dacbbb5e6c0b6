package models

// Person 名册中的住户记录（会话期间不可变，仅用于面板标签）
type Person struct {
	PID             string   `json:"pid"`
	Name            string   `json:"name"`
	Surname         string   `json:"surname"`
	Age             float64  `json:"age"`
	EverMarried     string   `json:"ever_married,omitempty"`
	WorkType        string   `json:"work_type,omitempty"`
	ResidenceType   string   `json:"Residence_type,omitempty"`
	AvgGlucoseLevel float64  `json:"avg_glucose_level"`
	BMI             *float64 `json:"bmi,omitempty"` // 原始数据中可能缺失
	SmokingStatus   string   `json:"smoking_status,omitempty"`
	Hypertension    int      `json:"hypertension"`
	HeartDisease    int      `json:"heart_disease"`
}

// DisplayName 面板上显示的姓名
func (p Person) DisplayName() string {
	switch {
	case p.Name == "":
		return p.Surname
	case p.Surname == "":
		return p.Name
	default:
		return p.Name + " " + p.Surname
	}
}
