// Package navigation holds the vehicle telemetry snapshot type, a
// thread-safe single-slot store for it, and the TCP ingestor that parses
// $NAVIGATION telegrams from the DesBridge sensor-fusion node.
package navigation

// Frame is a snapshot of vehicle telemetry decoded from one $NAVIGATION
// telegram. Every field is optional ("undefined" in the wire format maps to
// a nil pointer here) because a sensor dropout must not fabricate a zero
// value that the controller would treat as real data.
//
// Only latitude, longitude, depth, altitude and heading are load-bearing for
// the depth controller and phase manager; the remaining 29 fields are
// retained because the wire format defines 34 and a dropped field must not
// shift the rest.
type Frame struct {
	Latitude  *float64 // Field 1: latitude (deg)
	Longitude *float64 // Field 2: longitude (deg)
	SigmaPos  *float64 // Field 3: position error estimate (m)
	Depth     *float64 // Field 4: depth, positive down (m)
	Altitude  *float64 // Field 5: altitude above seafloor (m)
	Seabed    *float64 // Field 6: water column height (m)

	NorthSpeed *float64 // Field 7 (m/s)
	EastSpeed  *float64 // Field 8 (m/s)
	DownSpeed  *float64 // Field 9 (m/s)
	UpSpeed    *float64 // Field 10 (m/s)

	USpeed *float64 // Field 11: body-frame X speed (m/s)
	VSpeed *float64 // Field 12: body-frame Y speed (m/s)
	WSpeed *float64 // Field 13: body-frame Z speed (m/s)

	WaterNorthSpeed *float64 // Field 14 (m/s)
	WaterEastSpeed  *float64 // Field 15 (m/s)
	WaterDownSpeed  *float64 // Field 16 (m/s)
	WaterUpSpeed    *float64 // Field 17 (m/s)

	WaterUSpeed *float64 // Field 18 (m/s)
	WaterVSpeed *float64 // Field 19 (m/s)
	WaterWSpeed *float64 // Field 20 (m/s)

	CurrentNorthSpeed *float64 // Field 21 (m/s)
	CurrentEastSpeed  *float64 // Field 22 (m/s)

	Heading *float64 // Field 23: heading, positive to starboard (deg)
	Roll    *float64 // Field 24: positive when port side up (deg)
	Pitch   *float64 // Field 25: positive when bow up (deg)

	YawRate   *float64 // Field 26 (deg/s)
	RollRate  *float64 // Field 27 (deg/s)
	PitchRate *float64 // Field 28 (deg/s)
	P         *float64 // Field 29: angular velocity about X (deg/s)
	Q         *float64 // Field 30: angular velocity about Y (deg/s)
	R         *float64 // Field 31: angular velocity about Z (deg/s)

	AX *float64 // Field 32: acceleration along X, gravity compensated (m/s^2)
	AY *float64 // Field 33 (m/s^2)
	AZ *float64 // Field 34 (m/s^2)
}

func f64(v float64) *float64 { return &v }
