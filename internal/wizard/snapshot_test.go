package wizard

import (
	"testing"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
)

func TestSnapshotCurrent(t *testing.T) {
	snap := Snapshot{
		State: Testing,
		Devices: []audio.Device{
			{ID: 4, Name: "A"},
			{ID: 9, Name: "B"},
		},
		Results: []ResultView{{DeviceID: 4, Status: StatusFailed}},
	}

	d, ok := snap.Current()
	if !ok || d.ID != 9 {
		t.Errorf("Expected device 9 under test, got %+v %v", d, ok)
	}

	snap.Results = append(snap.Results, ResultView{DeviceID: 9, Status: StatusFailed})
	if _, ok := snap.Current(); ok {
		t.Error("Expected no device under test once all have results")
	}

	snap.State = Scored
	snap.Results = nil
	if _, ok := snap.Current(); ok {
		t.Error("Expected no device under test outside Testing")
	}
}

func TestSnapshotChosen(t *testing.T) {
	id := 9
	snap := Snapshot{
		Devices:        []audio.Device{{ID: 4, Name: "A"}, {ID: 9, Name: "B"}},
		ChosenDeviceID: &id,
	}

	if d, ok := snap.Chosen(); !ok || d.Name != "B" {
		t.Errorf("Expected B chosen, got %+v %v", d, ok)
	}

	snap.ChosenDeviceID = nil
	if _, ok := snap.Chosen(); ok {
		t.Error("Expected nothing chosen")
	}
}
