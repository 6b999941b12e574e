package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// City is one entry of the reference city list (data/cities.json).
type City struct {
	Name       string     `json:"name"`
	FullName   string     `json:"full_name,omitempty"`
	State      string     `json:"state,omitempty"`
	Population int        `json:"population,omitempty"`
	Rank       int        `json:"rank,omitempty"`
	Coords     [2]float64 `json:"coords"` // lat, lon
}

// LoadCities reads the city list from a JSON file. A missing file yields
// an empty list, not an error.
func LoadCities(path string) ([]City, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("geo: read cities: %w", err)
	}
	var cities []City
	if err := json.Unmarshal(raw, &cities); err != nil {
		return nil, fmt.Errorf("geo: parse cities: %w", err)
	}
	return cities, nil
}

// NearestCityThresholdKM is the improvement a candidate must offer over
// the current best before it takes over. The value is a heuristic tuned
// against the production city list, not a hard requirement.
const NearestCityThresholdKM = 8.0

// FindNearestCity returns the city closest to the given coordinates and
// its distance in km. A candidate only replaces the current best when it
// is more than NearestCityThresholdKM closer. Returns (nil, 0) for an
// empty list.
func FindNearestCity(cities []City, lat, lon float64) (*City, float64) {
	var nearest *City
	nearestDist := math.Inf(1)

	for i := range cities {
		dist := HaversineKM(lat, lon, cities[i].Coords[0], cities[i].Coords[1])
		if nearestDist-dist > NearestCityThresholdKM {
			nearestDist = dist
			nearest = &cities[i]
		}
	}
	if nearest == nil {
		return nil, 0.0
	}
	return nearest, nearestDist
}

const earthRadiusKM = 6371.0088

// HaversineKM computes the great-circle distance between two points.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
