package weather

import "time"

// Units selects the measurement system passed to OpenWeather.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Normalize maps unknown values to metric.
func (u Units) Normalize() Units {
	if u == UnitsImperial {
		return UnitsImperial
	}
	return UnitsMetric
}

// CurrentWeather is the reshaped current-conditions payload served to
// clients and pushed into station feeds.
type CurrentWeather struct {
	Location    string    `json:"location"` // "Name, CC"
	Temperature int       `json:"temperature"`
	FeelsLike   int       `json:"feels_like"`
	TempMin     int       `json:"temp_min"`
	TempMax     int       `json:"temp_max"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	WindDeg     int       `json:"wind_direction"`
	Pressure    int       `json:"pressure"`
	VisibilityM int       `json:"visibility"`
	CloudsPct   int       `json:"cloud_cover"`
	Condition   string    `json:"condition"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Units       Units     `json:"units"`
	CapturedAt  time.Time `json:"captured_at"`
}

// GeoResult is a resolved city position.
type GeoResult struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}
