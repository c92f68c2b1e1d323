package main

import (
	"errors"
	"reflect"
	"testing"
)

func TestCommandFor(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		goos    string
		want    command
		wantErr bool
	}{
		{"linux media", "next", "linux", command{"playerctl", "next"}, false},
		{"linux volume", "mute", "linux", command{"pactl", "set-sink-mute", "@DEFAULT_SINK@", "toggle"}, false},
		{"darwin media key", "play-pause", "darwin", osascript(`tell application "System Events" to key code 100`), false},
		{"darwin shortcut", "keys:cmd+shift+4", "darwin", osascript(`tell application "System Events" to keystroke "4" using {command down, shift down}`), false},
		{"linux shortcut", "keys:cmd+space", "linux", command{"xdotool", "key", "super+space"}, false},
		{"plain key", "keys:a", "darwin", osascript(`tell application "System Events" to keystroke "a"`), false},
		{"unknown modifier", "keys:hyper+a", "darwin", nil, true},
		{"empty key", "keys:ctrl+", "linux", nil, true},
		{"darwin named key", "keys:cmd+space", "darwin", osascript(`tell application "System Events" to key code 49 using {command down}`), false},
		{"linux named key", "keys:alt+esc", "linux", command{"xdotool", "key", "alt+Escape"}, false},
		{"quote in key", `keys:a" & do shell script "touch /tmp/x`, "darwin", nil, true},
		{"lone quote", `keys:cmd+"`, "darwin", nil, true},
		{"backslash", `keys:\`, "darwin", nil, true},
		{"unknown key name", "keys:ctrl+launch", "linux", nil, true},
		{"unknown action", "launch-rockets", "linux", nil, true},
		{"unsupported platform", "next", "plan9", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := commandFor(tt.action, tt.goos)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("commandFor() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandle(t *testing.T) {
	var ran []command
	run = func(c command) error {
		ran = append(ran, c)
		if c[1] == "previous" {
			return errors.New("no player")
		}
		return nil
	}

	if resp := handle(Request{Action: "next", Sign: "palm"}, "linux"); !resp.Success {
		t.Errorf("expected success, got %+v", resp)
	}
	if resp := handle(Request{Action: "prev"}, "linux"); resp.Success || resp.Error == "" {
		t.Errorf("expected failure, got %+v", resp)
	}
	if resp := handle(Request{Action: "nope"}, "linux"); resp.Success {
		t.Errorf("expected unknown action failure, got %+v", resp)
	}

	if len(ran) != 2 {
		t.Errorf("expected 2 commands run, got %d", len(ran))
	}
}
