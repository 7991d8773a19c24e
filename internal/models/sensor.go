package models

// SensorSnapshot is the last sample set published by the sensor gateway.
// It is copied on every read; the core never mutates it.
type SensorSnapshot struct {
	FrontTempC      float64 `json:"front_temp_c"`
	BackTempC       float64 `json:"back_temp_c"`
	AmbientTempC    float64 `json:"ambient_temp_c"`
	AmbientHumidity float64 `json:"ambient_humidity"`
	HasError        bool    `json:"has_error"`
	LastError       string  `json:"last_error,omitempty"`
}

// ControlState is owned by the temperature controller.
type ControlState struct {
	FrontTempC     float64 `json:"front_temp_c"`
	BackTempC      float64 `json:"back_temp_c"`
	TargetTempC    float64 `json:"target_temp_c"`
	FrontOutput    float64 `json:"front_output"` // %
	BackOutput     float64 `json:"back_output"`  // %
	IsHeating      bool    `json:"is_heating"`
	IsCooling      bool    `json:"is_cooling"`
	CoolingPower   float64 `json:"cooling_power"` // %
	HasError       bool    `json:"has_error"`
	ManualOverride bool    `json:"manual_override"`
}

// MaxTempC returns the hotter of the two oven thermocouples.
func (s ControlState) MaxTempC() float64 {
	if s.FrontTempC > s.BackTempC {
		return s.FrontTempC
	}
	return s.BackTempC
}
