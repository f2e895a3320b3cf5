package entity

// Fix is a one-shot geolocation result.
type Fix struct {
	Latitude    float64
	Longitude   float64
	EpochMillis int64
}
