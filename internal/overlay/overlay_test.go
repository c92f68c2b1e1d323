package overlay

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/senas-lab/senas/internal/detector"
)

func TestStatusText(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			name: "viewer",
			got:  ViewerStatus(2, 0.6, 0.6, 29.84),
			want: "Hands: 2 | DetConf: 0.6 | TrkConf: 0.6 | FPS: 29.8 | Q to quit",
		},
		{
			name: "classifier",
			got:  ClassifierStatus(3, 42, 5, 15),
			want: "Classes: 3 | Samples: 42 | k=5 | FPS: 15.0 | Q to quit",
		},
		{
			name: "prediction",
			got:  PredictionText("thumbs_up", 0.12345),
			want: "thumbs_up (d=0.123)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestHandLabel(t *testing.T) {
	h := detector.ThumbsUpLandmarks()
	h.Handedness = "Left"
	h.Score = 0.966

	if got := HandLabel(&h); got != "Left (0.97)" {
		t.Errorf("HandLabel() = %q", got)
	}
}

func TestClassColors(t *testing.T) {
	labels := []string{"a", "b", "c", "d"}
	colors := ClassColors(labels)

	if len(colors) != len(labels) {
		t.Fatalf("expected %d colours, got %d", len(labels), len(colors))
	}

	seen := make(map[[3]uint8]bool)
	for _, l := range labels {
		c := colors[l]
		key := [3]uint8{c.R, c.G, c.B}
		if seen[key] {
			t.Errorf("duplicate colour %v for %s", c, l)
		}
		seen[key] = true
		if c.A != 255 {
			t.Errorf("colour for %s is not opaque", l)
		}
	}

	if ColorFor(colors, "missing") != White {
		t.Error("unknown label should be white")
	}
	if len(ClassColors(nil)) != 0 {
		t.Error("no labels should give no colours")
	}
}

func TestPointColor(t *testing.T) {
	if pointColor(detector.Wrist) != wristColor {
		t.Error("wrist should use the wrist colour")
	}
	if pointColor(detector.ThumbTip) != fingerColors[0] || pointColor(detector.PinkyTip) != fingerColors[4] {
		t.Error("finger tips should use their finger colour")
	}
}

func TestDraw(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	hand := detector.OpenPalmLandmarks()
	DrawHand(&frame, &hand)
	DrawHandLabel(&frame, &hand)
	DrawStatusBar(&frame, ViewerStatus(1, 0.5, 0.5, 30))
	DrawPrediction(&frame, PredictionText("palm", 0.1), White)

	// Top-left pixel lies in the black status bar.
	if v := frame.GetVecbAt(0, 0); v[0] != 0 || v[1] != 0 || v[2] != 0 {
		t.Errorf("expected black status bar, got %v", v)
	}

	// Nil inputs are ignored.
	DrawHand(nil, &hand)
	DrawHand(&frame, nil)
	DrawStatusBar(nil, "x")
}
