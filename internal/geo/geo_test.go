package geo_test

import (
	"math"
	"testing"

	"github.com/treeshop/treeshop-ops-go/internal/geo"
)

func TestDistance_TooFewPoints(t *testing.T) {
	if _, ok := geo.Distance(nil); ok {
		t.Fatal("expected no distance for empty path")
	}
	if _, ok := geo.Distance([]geo.Point{{Lat: 1, Lon: 1}}); ok {
		t.Fatal("expected no distance for a single point")
	}
}

func TestDistance_OneDegreeOfLatitude(t *testing.T) {
	d, ok := geo.Distance([]geo.Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 0}})
	if !ok {
		t.Fatal("expected a distance")
	}
	// one degree along a meridian on the mean sphere
	want := geo.EarthRadiusMeters * math.Pi / 180
	if math.Abs(d-want) > 1e-6 {
		t.Errorf("expected %.6f, got %.6f", want, d)
	}
}

func TestDistance_SumsSegments(t *testing.T) {
	a := geo.Point{Lat: 28.5, Lon: -81.4}
	b := geo.Point{Lat: 28.51, Lon: -81.4}
	c := geo.Point{Lat: 28.51, Lon: -81.39}

	total, _ := geo.Distance([]geo.Point{a, b, c})
	want := geo.GreatCircle(a, b) + geo.GreatCircle(b, c)
	if math.Abs(total-want) > 1e-9 {
		t.Errorf("expected %.9f, got %.9f", want, total)
	}

	again, _ := geo.Distance([]geo.Point{a, b, c})
	if again != total {
		t.Errorf("expected identical result on identical input, got %v and %v", total, again)
	}
}

func TestArea_TooFewPoints(t *testing.T) {
	if _, ok := geo.Area([]geo.Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}}); ok {
		t.Fatal("expected no area for two points")
	}
}

func TestArea_SquareAtEquator(t *testing.T) {
	// 0.001 degree square: cos(0) = 1 so both axes use 111320 m/deg.
	square := []geo.Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 0.001},
		{Lat: 0.001, Lon: 0.001},
		{Lat: 0.001, Lon: 0},
	}
	got, ok := geo.Area(square)
	if !ok {
		t.Fatal("expected an area")
	}
	want := 0.001 * 0.001 * geo.MetersPerDegree * geo.MetersPerDegree
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("expected %.6f, got %.6f", want, got)
	}
}

func TestArea_OrientationDoesNotMatter(t *testing.T) {
	cw := []geo.Point{{Lat: 45, Lon: 10}, {Lat: 45.001, Lon: 10}, {Lat: 45.001, Lon: 10.002}}
	ccw := []geo.Point{{Lat: 45, Lon: 10}, {Lat: 45.001, Lon: 10.002}, {Lat: 45.001, Lon: 10}}

	a, _ := geo.Area(cw)
	b, _ := geo.Area(ccw)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("expected equal areas, got %v and %v", a, b)
	}
}

func TestPoint_Valid(t *testing.T) {
	if !(geo.Point{Lat: 28.5, Lon: -81.4}).Valid() {
		t.Error("expected point to be valid")
	}
	if (geo.Point{Lat: 91, Lon: 0}).Valid() {
		t.Error("expected latitude 91 to be invalid")
	}
	if (geo.Point{Lat: math.NaN(), Lon: 0}).Valid() {
		t.Error("expected NaN to be invalid")
	}
}
