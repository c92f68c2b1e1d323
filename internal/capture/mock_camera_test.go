package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func TestMockCamera_Playback(t *testing.T) {
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame1, &frame2}, false)

	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("expected ErrCameraNotOpen before Open, got %v", err)
	}

	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cam.Close()

	for i := 0; i < 2; i++ {
		f, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		f.Close()
	}

	// Third read should fail (no loop)
	if _, err := cam.ReadFrame(); !errors.Is(err, ErrNoMoreFrames) {
		t.Errorf("expected ErrNoMoreFrames, got %v", err)
	}
	if cam.Reads() != 3 {
		t.Errorf("expected 3 reads, got %d", cam.Reads())
	}
}

func TestMockCamera_Loop(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.Open()
	defer cam.Close()

	for i := 0; i < 5; i++ {
		f, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		f.Close()
	}
}

func TestMockCamera_Failures(t *testing.T) {
	openErr := errors.New("no device")

	cam := NewMockCamera(nil, false)
	cam.SetOpenError(openErr)
	if err := cam.Open(); !errors.Is(err, openErr) {
		t.Errorf("expected open error, got %v", err)
	}
	if cam.IsOpen() {
		t.Error("camera should stay closed after a failed Open")
	}

	cam.SetOpenError(nil)
	cam.Open()
	if _, err := cam.ReadFrame(); !errors.Is(err, ErrFrameRead) {
		t.Errorf("expected ErrFrameRead without frames, got %v", err)
	}

	readErr := errors.New("unplugged")
	cam.SetReadError(readErr)
	if _, err := cam.ReadFrame(); !errors.Is(err, readErr) {
		t.Errorf("expected read error, got %v", err)
	}
}
