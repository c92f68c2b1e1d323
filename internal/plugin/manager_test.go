package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, root string, m Manifest) string {
	t.Helper()

	dir := filepath.Join(root, m.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return dir
}

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()

	pluginDir := writeManifest(t, tmpDir, Manifest{
		Name:        "notify",
		Version:     "1.0.0",
		Description: "Desktop notification",
		Executable:  "notify.sh",
		Actions:     []string{"show", "hide"},
	})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}

	plugin := plugins[0]
	if plugin.Manifest.Name != "notify" || plugin.Manifest.Version != "1.0.0" {
		t.Errorf("unexpected manifest %+v", plugin.Manifest)
	}
	if plugin.Manifest.DefaultAction() != "show" {
		t.Errorf("expected default action show, got %s", plugin.Manifest.DefaultAction())
	}
	if plugin.Path != pluginDir {
		t.Errorf("expected path %q, got %q", pluginDir, plugin.Path)
	}
	if plugin.Executable != filepath.Join(pluginDir, "notify.sh") {
		t.Errorf("unexpected executable %q", plugin.Executable)
	}
}

func TestManager_Discover_SortedAndReplaced(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"zeta", "alpha"} {
		writeManifest(t, tmpDir, Manifest{Name: name, Executable: name})
	}

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 2 || plugins[0].Manifest.Name != "alpha" {
		t.Fatalf("expected [alpha zeta], got %d plugins", len(plugins))
	}

	os.RemoveAll(filepath.Join(tmpDir, "zeta"))
	manager.Discover()
	if _, err := manager.Get("zeta"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("removed plugin should be gone after rediscovery, got %v", err)
	}
}

func TestManager_Discover_SkipsInvalid(t *testing.T) {
	tmpDir := t.TempDir()

	bad := filepath.Join(tmpDir, "bad")
	os.MkdirAll(bad, 0755)
	os.WriteFile(filepath.Join(bad, ManifestFile), []byte("not valid json"), 0644)

	writeManifest(t, tmpDir, Manifest{Name: "noexec"})
	os.MkdirAll(filepath.Join(tmpDir, "no-manifest"), 0755)
	os.WriteFile(filepath.Join(tmpDir, "stray.txt"), []byte("x"), 0644)

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed unexpectedly: %v", err)
	}

	if plugins := manager.List(); len(plugins) != 0 {
		t.Fatalf("expected 0 plugins, got %d", len(plugins))
	}
}

func TestManager_Discover_NonExistentDir(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "missing"))

	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed on non-existent dir: %v", err)
	}
	if plugins := manager.List(); len(plugins) != 0 {
		t.Fatalf("expected 0 plugins, got %d", len(plugins))
	}
}

func TestManager_Get_NotFound(t *testing.T) {
	manager := NewManager(t.TempDir())

	if _, err := manager.Get("nonexistent-plugin"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestManager_PluginDir(t *testing.T) {
	pluginDir := "/path/to/plugins"
	manager := NewManager(pluginDir)

	if manager.PluginDir() != pluginDir {
		t.Errorf("expected plugin dir %q, got %q", pluginDir, manager.PluginDir())
	}
}

func TestManifest_DefaultAction(t *testing.T) {
	if got := (Manifest{}).DefaultAction(); got != "trigger" {
		t.Errorf("expected trigger, got %s", got)
	}
}
