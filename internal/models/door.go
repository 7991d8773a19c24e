package models

// DoorDirection is the travel direction of the vent door.
type DoorDirection int

const (
	DirectionNone DoorDirection = iota
	DirectionOpening
	DirectionClosing
)

func (d DoorDirection) String() string {
	switch d {
	case DirectionOpening:
		return "OPENING"
	case DirectionClosing:
		return "CLOSING"
	default:
		return "NONE"
	}
}

// MarshalText renders the direction by name in JSON.
func (d DoorDirection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DoorState is owned by the door governor.
// Direction is NONE whenever CurrentAngle equals TargetAngle.
type DoorState struct {
	CurrentAngle  float64       `json:"current_angle"`
	TargetAngle   float64       `json:"target_angle"`
	Direction     DoorDirection `json:"direction"`
	ServoEnabled  bool          `json:"servo_enabled"`
	OpenLimitHit  bool          `json:"open_limit_hit"`
	CloseLimitHit bool          `json:"close_limit_hit"`
	Percent       float64       `json:"percent"`
}
