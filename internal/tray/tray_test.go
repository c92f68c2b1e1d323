package tray

import (
	"sync"
	"testing"
)

func TestTray_Toggle(t *testing.T) {
	tr := New()
	if !tr.IsEnabled() {
		t.Fatal("expected tray enabled by default")
	}

	var got []bool
	tr.OnToggle(func(enabled bool) { got = append(got, enabled) })

	tr.handleToggle()
	tr.handleToggle()

	if len(got) != 2 || got[0] || !got[1] {
		t.Errorf("unexpected toggle callbacks %v", got)
	}
	if !tr.IsEnabled() {
		t.Error("expected enabled after two toggles")
	}
}

func TestTray_Reload(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	wg.Add(1)
	tr.OnReload(wg.Done)

	tr.handleReload()
	wg.Wait()
}

func TestTray_SetLastSign(t *testing.T) {
	tr := New()

	tr.SetLastSign("palm")
	tr.SetLastSign("palm")
	if tr.LastSign() != "palm" {
		t.Errorf("expected palm, got %s", tr.LastSign())
	}

	tr.SetLastSign("")
	if tr.LastSign() != "" {
		t.Errorf("expected empty sign, got %s", tr.LastSign())
	}
}

func TestTitles(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{toggleTitle(true), "● Enabled"},
		{toggleTitle(false), "○ Paused"},
		{lastSignTitle(""), "Last: none"},
		{lastSignTitle("thumbs_up"), "Last: thumbs_up"},
		{datasetTitle(3, 42), "Dataset: 3 classes, 42 samples"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}

	tr := New()
	tr.SetDataset(2, 10)
	if tr.datasetTitle != "Dataset: 2 classes, 10 samples" {
		t.Errorf("unexpected dataset title %q", tr.datasetTitle)
	}
}
