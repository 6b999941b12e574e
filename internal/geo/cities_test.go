package geo

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestHaversineKM(t *testing.T) {
	// Berlin -> Munich, roughly 504 km.
	d := HaversineKM(52.5200, 13.4050, 48.1374, 11.5755)
	if math.Abs(d-504) > 5 {
		t.Errorf("Berlin-Munich = %.1f km", d)
	}

	if d := HaversineKM(52.52, 13.405, 52.52, 13.405); d != 0 {
		t.Errorf("identical points = %f km", d)
	}
}

func TestFindNearestCityPrefersEstablishedMatch(t *testing.T) {
	// 0.045 degrees of latitude is about 5 km.
	big := City{Name: "Grossstadt", Coords: [2]float64{50.045, 8.0}}
	near := City{Name: "Vorort", Coords: [2]float64{50.0, 8.0}}

	// The earlier entry wins unless a candidate is substantially closer.
	got, dist := FindNearestCity([]City{big, near}, 50.0, 8.0)
	if got == nil || got.Name != "Grossstadt" {
		t.Fatalf("nearest = %+v, expected the first entry to stick", got)
	}
	if dist < 4 || dist > 6 {
		t.Errorf("dist = %.2f km", dist)
	}

	// Reversed order: the closer entry was found first and stays.
	got, dist = FindNearestCity([]City{near, big}, 50.0, 8.0)
	if got == nil || got.Name != "Vorort" {
		t.Fatalf("nearest = %+v", got)
	}
	if dist > 0.01 {
		t.Errorf("dist = %.4f km, expected ~0", dist)
	}
}

func TestFindNearestCityTakesClearlyCloserCandidate(t *testing.T) {
	far := City{Name: "Weit", Coords: [2]float64{51.0, 8.0}} // ~111 km
	nah := City{Name: "Nah", Coords: [2]float64{50.0, 8.0}}

	got, dist := FindNearestCity([]City{far, nah}, 50.0, 8.0)
	if got == nil || got.Name != "Nah" {
		t.Fatalf("nearest = %+v", got)
	}
	if dist > 0.01 {
		t.Errorf("dist = %.4f km", dist)
	}
}

func TestFindNearestCityEmptyList(t *testing.T) {
	got, dist := FindNearestCity(nil, 50.0, 8.0)
	if got != nil || dist != 0.0 {
		t.Errorf("got %+v, %f", got, dist)
	}
}

func TestLoadCities(t *testing.T) {
	dir := t.TempDir()

	// Missing file is not an error.
	cities, err := LoadCities(filepath.Join(dir, "missing.json"))
	if err != nil || cities != nil {
		t.Fatalf("missing file: %v, %v", cities, err)
	}

	path := filepath.Join(dir, "cities.json")
	body := `[{"name":"Frankfurt am Main","state":"DE-HE","coords":[50.1106,8.6820]}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cities, err = LoadCities(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cities) != 1 || cities[0].Name != "Frankfurt am Main" {
		t.Fatalf("cities = %+v", cities)
	}
	if cities[0].Coords[0] != 50.1106 {
		t.Errorf("coords = %v", cities[0].Coords)
	}
}
