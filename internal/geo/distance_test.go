package geo

import (
	"math"
	"testing"
)

func TestDistanceMeters_IdenticalPointsAreZero(t *testing.T) {
	t.Parallel()

	points := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 36.2021, Lon: 37.1343},
		{Lat: -33.8688, Lon: 151.2093},
	}
	for _, p := range points {
		if d := DistanceMeters(p, p); d != 0 {
			t.Fatalf("expected exact zero for identical points %+v, got %f", p, d)
		}
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	t.Parallel()

	a := Point{Lat: 36.2021, Lon: 37.1343}  // Aleppo
	b := Point{Lat: 33.5138, Lon: 36.2765}  // Damascus
	if d1, d2 := DistanceMeters(a, b), DistanceMeters(b, a); d1 != d2 {
		t.Fatalf("expected symmetric distance, got %f and %f", d1, d2)
	}
}

func TestDistanceMeters_KnownDistance(t *testing.T) {
	t.Parallel()

	aleppo := Point{Lat: 36.2021, Lon: 37.1343}
	damascus := Point{Lat: 33.5138, Lon: 36.2765}
	d := DistanceKilometers(aleppo, damascus)
	if math.Abs(d-310) > 15 {
		t.Fatalf("Aleppo-Damascus distance out of expected range: %f km", d)
	}
}

func TestDistanceMeters_SmallOffset(t *testing.T) {
	t.Parallel()

	a := Point{Lat: 36.2021, Lon: 37.1343}
	b := Point{Lat: 36.2025, Lon: 37.1343}
	d := DistanceMeters(a, b)
	if d < 30 || d > 60 {
		t.Fatalf("expected ~44m for 0.0004 degrees of latitude, got %f", d)
	}
}

func TestValidCoordinates(t *testing.T) {
	t.Parallel()

	if !ValidCoordinates(36.2, 37.1) {
		t.Fatalf("expected valid coordinates to pass")
	}
	if ValidCoordinates(91, 0) || ValidCoordinates(0, 181) || ValidCoordinates(-91, 0) {
		t.Fatalf("expected out-of-range coordinates to fail")
	}
}
