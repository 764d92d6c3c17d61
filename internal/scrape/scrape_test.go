package scrape

import (
	"errors"
	"strings"
	"testing"
)

const samplePage = `<html><body>
<h1>Station map</h1>
<table>
  <tr><th>Location</th><th>Bikes</th><th>Stands</th><th>Free stands</th><th>Coords</th></tr>
  <tr><td> Central </td><td>5</td><td>15</td><td>10</td><td>52.23, 21.01</td></tr>
  <tr><td>Old
  Town</td><td>3</td><td>15</td><td>12</td><td>52.25, 21.01</td></tr>
  <tr><td>Broken row</td><td>1</td></tr>
  <tr><td>Riverside</td><td>n/a</td><td>20</td><td>20</td><td>52.24, 21.04</td></tr>
  <tr><td><a href="#">Plac <b>Bankowy</b></a></td><td>8</td><td>12</td><td>4</td><td>52.24, 21.00</td></tr>
</table>
</body></html>`

func TestParseStationTable(t *testing.T) {
	rows, err := ParseStationTable(strings.NewReader(samplePage))
	if err != nil {
		t.Fatalf("ParseStationTable: %v", err)
	}

	// Header and short rows drop; content problems (like "n/a") are the
	// ingestor's concern, so Riverside stays.
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4: %+v", len(rows), rows)
	}

	first := rows[0]
	if first.LocationName != "Central" {
		t.Errorf("location = %q, want Central (cell text trimmed)", first.LocationName)
	}
	if first.AvailBikes != "5" || first.TotalStands != "15" || first.FreeStands != "10" {
		t.Errorf("counts = %q/%q/%q, want 5/15/10", first.AvailBikes, first.TotalStands, first.FreeStands)
	}
	if first.Coordinates != "52.23, 21.01" {
		t.Errorf("coordinates = %q", first.Coordinates)
	}

	if rows[1].LocationName != "Old Town" {
		t.Errorf("multiline cell = %q, want %q", rows[1].LocationName, "Old Town")
	}
	if rows[2].AvailBikes != "n/a" {
		t.Errorf("non-numeric cell should pass through, got %q", rows[2].AvailBikes)
	}
	// Text split across nested elements joins with single spaces.
	if rows[3].LocationName != "Plac Bankowy" {
		t.Errorf("nested cell = %q, want %q", rows[3].LocationName, "Plac Bankowy")
	}
}

func TestParseStationTableNoTable(t *testing.T) {
	_, err := ParseStationTable(strings.NewReader("<html><body><p>maintenance</p></body></html>"))
	if !errors.Is(err, ErrNoTable) {
		t.Errorf("err = %v, want ErrNoTable", err)
	}
}
