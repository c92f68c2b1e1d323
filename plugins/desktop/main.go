// Package main is a senas plugin that controls media playback, volume and
// keyboard shortcuts. It uses AppleScript on macOS and playerctl, pactl and
// xdotool on Linux.
//
// Bind it to signs with "desktop:<action>", e.g. "desktop:play-pause" or
// "desktop:keys:ctrl+alt+t".
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action     string          `json:"action"`
	Sign       string          `json:"sign"`
	Handedness string          `json:"handedness"`
	Distance   float64         `json:"distance"`
	Params     json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// command is one program invocation.
type command []string

// run executes a command; replaced in tests.
var run = func(c command) error {
	out, err := exec.Command(c[0], c[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// mediaKeys maps actions to the AppleScript key codes of the media keys.
var mediaKeys = map[string]int{
	"play-pause": 100,
	"next":       101,
	"prev":       98,
}

var linuxCommands = map[string]command{
	"play-pause":  {"playerctl", "play-pause"},
	"next":        {"playerctl", "next"},
	"prev":        {"playerctl", "previous"},
	"volume-up":   {"pactl", "set-sink-volume", "@DEFAULT_SINK@", "+10%"},
	"volume-down": {"pactl", "set-sink-volume", "@DEFAULT_SINK@", "-10%"},
	"mute":        {"pactl", "set-sink-mute", "@DEFAULT_SINK@", "toggle"},
}

var darwinVolume = map[string]string{
	"volume-up":   `set volume output volume ((output volume of (get volume settings)) + 10)`,
	"volume-down": `set volume output volume ((output volume of (get volume settings)) - 10)`,
	"mute":        `set volume output muted (not (output muted of (get volume settings)))`,
}

// appleModifiers maps modifier names to AppleScript equivalents.
var appleModifiers = map[string]string{
	"cmd":     "command down",
	"command": "command down",
	"alt":     "option down",
	"option":  "option down",
	"ctrl":    "control down",
	"control": "control down",
	"shift":   "shift down",
}

// namedKey holds the macOS key code and the xdotool keysym of a key that
// has no single-character form.
type namedKey struct {
	code   int
	keysym string
}

var namedKeys = map[string]namedKey{
	"space":     {49, "space"},
	"return":    {36, "Return"},
	"enter":     {36, "Return"},
	"tab":       {48, "Tab"},
	"esc":       {53, "Escape"},
	"escape":    {53, "Escape"},
	"backspace": {51, "BackSpace"},
	"delete":    {117, "Delete"},
	"left":      {123, "Left"},
	"right":     {124, "Right"},
	"down":      {125, "Down"},
	"up":        {126, "Up"},
}

// plainKey reports whether key is a single printable character that can be
// quoted in AppleScript and passed to xdotool as is.
func plainKey(key string) bool {
	if len(key) != 1 {
		return false
	}
	c := key[0]
	return c > ' ' && c < 0x7f && c != '"' && c != '\\'
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		json.NewEncoder(os.Stdout).Encode(Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}
	json.NewEncoder(os.Stdout).Encode(handle(req, runtime.GOOS))
}

func handle(req Request, goos string) Response {
	c, err := commandFor(req.Action, goos)
	if err != nil {
		return Response{Error: err.Error()}
	}
	if err := run(c); err != nil {
		return Response{Error: fmt.Sprintf("action %s failed: %v", req.Action, err)}
	}

	data, _ := json.Marshal(map[string]string{"sign": req.Sign, "action": req.Action})
	return Response{Success: true, Data: data}
}

// commandFor builds the command for action on goos.
func commandFor(action, goos string) (command, error) {
	if combo, ok := strings.CutPrefix(action, "keys:"); ok {
		return keysCommand(combo, goos)
	}

	switch goos {
	case "darwin":
		if code, ok := mediaKeys[action]; ok {
			return osascript(fmt.Sprintf(`tell application "System Events" to key code %d`, code)), nil
		}
		if script, ok := darwinVolume[action]; ok {
			return osascript(script), nil
		}
	case "linux":
		if c, ok := linuxCommands[action]; ok {
			return c, nil
		}
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
	return nil, fmt.Errorf("unknown action: %s", action)
}

// keysCommand sends a shortcut such as "cmd+shift+4"; the last part is the key.
func keysCommand(combo, goos string) (command, error) {
	parts := strings.Split(strings.ToLower(combo), "+")
	key := parts[len(parts)-1]
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}
	mods := parts[:len(parts)-1]

	named, isNamed := namedKeys[key]
	if !isNamed && !plainKey(key) {
		return nil, fmt.Errorf("unsupported key: %q", key)
	}

	switch goos {
	case "darwin":
		var using []string
		for _, m := range mods {
			am, ok := appleModifiers[m]
			if !ok {
				return nil, fmt.Errorf("unknown modifier: %s", m)
			}
			using = append(using, am)
		}
		script := fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key)
		if isNamed {
			script = fmt.Sprintf(`tell application "System Events" to key code %d`, named.code)
		}
		if len(using) > 0 {
			script += " using {" + strings.Join(using, ", ") + "}"
		}
		return osascript(script), nil
	case "linux":
		for i, m := range mods {
			switch m {
			case "cmd", "command":
				mods[i] = "super"
			case "option":
				mods[i] = "alt"
			case "control":
				mods[i] = "ctrl"
			}
		}
		if isNamed {
			key = named.keysym
		}
		return command{"xdotool", "key", strings.Join(append(mods, key), "+")}, nil
	}
	return nil, fmt.Errorf("unsupported platform: %s", goos)
}

func osascript(script string) command {
	return command{"osascript", "-e", script}
}
