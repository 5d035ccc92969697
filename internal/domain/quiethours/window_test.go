package quiethours

import (
	"testing"
	"time"
)

func at(t *testing.T, loc *time.Location, day, hour, minute int) time.Time {
	t.Helper()
	return time.Date(2025, time.March, day, hour, minute, 0, 0, loc)
}

func TestAdjust(t *testing.T) {
	loc := time.UTC
	night := Window{Start: Clock{22, 0}, End: Clock{9, 0}, Location: loc}
	lunch := Window{Start: Clock{13, 0}, End: Clock{14, 0}, Location: loc}

	tests := []struct {
		name   string
		window Window
		in     time.Time
		want   time.Time
	}{
		{"crossing: late evening moves to next morning", night, at(t, loc, 10, 22, 30), at(t, loc, 11, 9, 0)},
		{"crossing: early morning moves to same morning", night, at(t, loc, 10, 8, 0), at(t, loc, 10, 9, 0)},
		{"crossing: daytime unchanged", night, at(t, loc, 10, 10, 0), at(t, loc, 10, 10, 0)},
		{"crossing: start boundary is quiet", night, at(t, loc, 10, 22, 0), at(t, loc, 11, 9, 0)},
		{"crossing: end boundary is not quiet", night, at(t, loc, 10, 9, 0), at(t, loc, 10, 9, 0)},
		{"crossing: just after midnight", night, at(t, loc, 11, 0, 1), at(t, loc, 11, 9, 0)},
		{"non-crossing: inside", lunch, at(t, loc, 10, 13, 30), at(t, loc, 10, 14, 0)},
		{"non-crossing: after", lunch, at(t, loc, 10, 15, 0), at(t, loc, 10, 15, 0)},
		{"non-crossing: before", lunch, at(t, loc, 10, 12, 59), at(t, loc, 10, 12, 59)},
		{"non-crossing: start boundary", lunch, at(t, loc, 10, 13, 0), at(t, loc, 10, 14, 0)},
		{"non-crossing: end boundary", lunch, at(t, loc, 10, 14, 0), at(t, loc, 10, 14, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.window.Adjust(tt.in)
			if !got.Equal(tt.want) {
				t.Fatalf("Adjust(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestAdjustResultIsNeverInsideWindow(t *testing.T) {
	w := Window{Start: Clock{22, 0}, End: Clock{9, 0}, Location: time.UTC}
	start := at(t, time.UTC, 10, 0, 0)
	for i := 0; i < 24*4; i++ {
		c := start.Add(time.Duration(i) * 15 * time.Minute)
		got := w.Adjust(c)
		if w.Contains(got) {
			t.Fatalf("Adjust(%s) = %s is still quiet", c, got)
		}
		if got.Before(c) {
			t.Fatalf("Adjust(%s) = %s moved backwards", c, got)
		}
	}
}

func TestAdjustUsesWindowLocation(t *testing.T) {
	yekt := time.FixedZone("YEKT", 5*60*60)
	w := Window{Start: Clock{22, 0}, End: Clock{9, 0}, Location: yekt}

	// 18:00 UTC is 23:00 local.
	in := time.Date(2025, time.March, 10, 18, 0, 0, 0, time.UTC)
	want := time.Date(2025, time.March, 11, 9, 0, 0, 0, yekt)
	if got := w.Adjust(in); !got.Equal(want) {
		t.Fatalf("Adjust = %s, want %s", got, want)
	}
	if got := w.Adjust(in); got.Location() != time.UTC {
		t.Fatalf("Adjust should keep the candidate's location, got %s", got.Location())
	}
}

func TestEmptyWindowNeverQuiet(t *testing.T) {
	w := Window{Start: Clock{9, 0}, End: Clock{9, 0}, Location: time.UTC}
	in := at(t, time.UTC, 10, 9, 0)
	if w.Contains(in) {
		t.Fatal("empty window should not contain anything")
	}
	if got := w.Adjust(in); !got.Equal(in) {
		t.Fatalf("Adjust = %s, want unchanged", got)
	}
}

func TestAdjustFreeFunction(t *testing.T) {
	in := at(t, time.UTC, 10, 22, 30)
	got := Adjust(in, Clock{22, 0}, Clock{9, 0}, time.UTC)
	if want := at(t, time.UTC, 11, 9, 0); !got.Equal(want) {
		t.Fatalf("Adjust = %s, want %s", got, want)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"22:00", Clock{22, 0}, false},
		{" 09:05 ", Clock{9, 5}, false},
		{"24:00", Clock{}, true},
		{"12:60", Clock{}, true},
		{"noon", Clock{}, true},
		{"12", Clock{}, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseClock(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("ParseClock(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	w, err := New("22:00", "09:00", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if w.Location != time.Local {
		t.Fatalf("nil location should default to time.Local")
	}
	if _, err := New("bad", "09:00", time.UTC); err == nil {
		t.Fatal("expected error for bad start")
	}
	if _, err := New("22:00", "9", time.UTC); err == nil {
		t.Fatal("expected error for bad end")
	}
}
