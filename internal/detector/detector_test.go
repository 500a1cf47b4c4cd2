package detector

import (
	"testing"
	"time"

	"github.com/yesser147/SafeRide/internal/motion"
)

func fill(d *Detector, readings []motion.Reading) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, r := range readings {
		d.AddReading(r.Accel, r.Gyro, base.Add(time.Duration(i)*100*time.Millisecond))
	}
}

func crashSequence() []motion.Reading {
	return []motion.Reading{
		{Accel: motion.Vector3{Z: 1}},
		{Accel: motion.Vector3{Z: 1}},
		{Accel: motion.Vector3{X: 4, Z: 1}, Gyro: motion.Vector3{Y: 300}},
		{Accel: motion.Vector3{X: -3, Z: 0.5}, Gyro: motion.Vector3{Y: 280}},
	}
}

func TestDetectEmptyHistory(t *testing.T) {
	d := New(Scooter, 10, 75)
	res := d.DetectWithHistory()
	if res.IsAccident || res.DangerPct != 0 {
		t.Fatalf("expected zero result on empty history, got %+v", res)
	}

	d.AddReading(motion.Vector3{Z: 1}, motion.Vector3{}, time.Now())
	res = d.DetectWithHistory()
	if res.IsAccident {
		t.Fatalf("single sample must not score")
	}
}

func TestDetectCalmMotion(t *testing.T) {
	d := New(Scooter, 10, 75)
	calm := []motion.Reading{
		{Accel: motion.Vector3{Z: 1}},
		{Accel: motion.Vector3{X: 0.05, Z: 0.98}},
		{Accel: motion.Vector3{X: -0.02, Z: 1.01}, Gyro: motion.Vector3{Z: 5}},
	}
	fill(d, calm)

	res := d.DetectWithHistory()
	if res.IsAccident {
		t.Fatalf("calm motion flagged as accident: %+v", res)
	}
	if res.DangerPct > 20 {
		t.Fatalf("calm motion scored too high: %v", res.DangerPct)
	}
}

func TestDetectCrash(t *testing.T) {
	d := New(Scooter, 10, 75)
	fill(d, crashSequence())

	res := d.DetectWithHistory()
	if !res.IsAccident {
		t.Fatalf("expected accident, got %+v", res)
	}
	if res.DangerPct < 75 {
		t.Fatalf("expected danger above trigger, got %v", res.DangerPct)
	}
}

func TestDetectDeterministic(t *testing.T) {
	a := New(Scooter, 10, 75)
	b := New(Scooter, 10, 75)
	fill(a, crashSequence())
	fill(b, crashSequence())

	ra, rb := a.DetectWithHistory(), b.DetectWithHistory()
	if ra != rb {
		t.Fatalf("identical histories scored differently: %+v vs %+v", ra, rb)
	}
	if ra != a.DetectWithHistory() {
		t.Fatalf("repeated scoring of same history diverged")
	}
}

func TestHistoryEviction(t *testing.T) {
	d := New(Car, 3, 75)
	base := time.Now()
	for i := 0; i < 10; i++ {
		d.AddReading(motion.Vector3{Z: 1}, motion.Vector3{}, base.Add(time.Duration(i)*time.Second))
	}
	if d.HistoryLen() != 3 {
		t.Fatalf("expected capped history, got %d", d.HistoryLen())
	}
}

func TestSetVehicleTypeKeepsHistory(t *testing.T) {
	d := New(Scooter, 10, 75)
	fill(d, crashSequence())

	d.SetVehicleType(Car)
	if d.Profile() != Car {
		t.Fatalf("expected profile switch")
	}
	if d.HistoryLen() != len(crashSequence()) {
		t.Fatalf("profile switch discarded history")
	}

	d.SetVehicleType("bicycle")
	if d.Profile() != Car {
		t.Fatalf("unknown profile must be ignored")
	}
}

func TestReset(t *testing.T) {
	d := New(Scooter, 10, 75)
	fill(d, crashSequence())
	d.Reset()
	if d.HistoryLen() != 0 {
		t.Fatalf("expected empty history after reset")
	}
	res := d.DetectWithHistory()
	if res.IsAccident || res.DangerPct != 0 {
		t.Fatalf("expected zero result after reset, got %+v", res)
	}
}

func TestParseProfile(t *testing.T) {
	if p, ok := ParseProfile("car"); !ok || p != Car {
		t.Fatalf("expected car profile")
	}
	if _, ok := ParseProfile("hoverboard"); ok {
		t.Fatalf("expected parse failure")
	}
}
