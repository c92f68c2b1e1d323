package plugin

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Binding names the plugin and action run for a sign.
type Binding struct {
	Plugin string
	Action string
}

// ParseBindings converts label -> "plugin" or "plugin:action" entries.
func ParseBindings(raw map[string]string) (map[string]Binding, error) {
	bindings := make(map[string]Binding, len(raw))
	for label, target := range raw {
		name, action, _ := strings.Cut(target, ":")
		if label == "" || name == "" {
			return nil, fmt.Errorf("invalid plugin binding %q: %q", label, target)
		}
		bindings[label] = Binding{Plugin: name, Action: action}
	}
	return bindings, nil
}

// Result is reported after every dispatched execution.
type Result struct {
	Sign     string
	Binding  Binding
	Response *Response
	Err      error
}

// Dispatcher runs the bound plugin when the smoothed sign changes to a
// bound label. Holding a sign triggers once; the sign must change before
// it can trigger again.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	bindings map[string]Binding

	// OnResult, when set, receives every execution result.
	OnResult func(Result)

	mu   sync.Mutex
	last string
	wg   sync.WaitGroup
}

// NewDispatcher creates a dispatcher over discovered plugins.
func NewDispatcher(manager *Manager, executor *Executor, bindings map[string]Binding) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		bindings: bindings,
	}
}

// Handle records the current smoothed sign and starts the bound plugin in
// the background on a change. It reports whether a plugin was started.
func (d *Dispatcher) Handle(sign, handedness string, distance float64) bool {
	d.mu.Lock()
	if sign == d.last {
		d.mu.Unlock()
		return false
	}
	d.last = sign
	d.mu.Unlock()

	binding, ok := d.bindings[sign]
	if !ok {
		return false
	}

	p, err := d.manager.Get(binding.Plugin)
	if err != nil {
		d.report(Result{Sign: sign, Binding: binding, Err: fmt.Errorf("%s: %w", binding.Plugin, err)})
		return false
	}

	action := binding.Action
	if action == "" {
		action = p.Manifest.DefaultAction()
	}
	req := &Request{
		Action:     action,
		Sign:       sign,
		Handedness: handedness,
		Distance:   distance,
		Timestamp:  time.Now(),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		resp, err := d.executor.Execute(context.Background(), p, req)
		d.report(Result{Sign: sign, Binding: binding, Response: resp, Err: err})
	}()
	return true
}

func (d *Dispatcher) report(r Result) {
	switch {
	case r.Err != nil:
		log.Printf("Plugin %s for %s failed: %v", r.Binding.Plugin, r.Sign, r.Err)
	case !r.Response.Success:
		log.Printf("Plugin %s for %s returned error: %s", r.Binding.Plugin, r.Sign, r.Response.Error)
	default:
		log.Printf("Plugin %s ran for %s", r.Binding.Plugin, r.Sign)
	}
	if d.OnResult != nil {
		d.OnResult(r)
	}
}

// Wait blocks until every started plugin has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
