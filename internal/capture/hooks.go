package capture

import (
	"github.com/crimson-sun/ember/internal/model"
)

// Handle is what a plugin's Setup receives to interact with the pipeline.
type Handle interface {
	Capture(raw any, opts Options) Outcome
	AddBreadcrumb(typ, message string, data map[string]any)
	Flush()
}

// Plugin is a set of optional hooks. Nil fields are skipped.
type Plugin struct {
	Name string

	// BeforeCapture may return a replacement event, or false to veto.
	BeforeCapture func(ev model.RawEvent) (model.RawEvent, bool)

	// AfterCapture and BeforeReport may return a patch that is merged into
	// the record field by field, or nil to leave it unchanged.
	AfterCapture func(r model.EventRecord) *model.EventRecord
	BeforeReport func(r model.EventRecord) *model.EventRecord

	Setup    func(h Handle)
	Teardown func()
}

func (o *Orchestrator) runBeforeCapture(plugins []Plugin, ev model.RawEvent) (model.RawEvent, bool) {
	for _, p := range plugins {
		if p.BeforeCapture == nil {
			continue
		}
		next, keep, ok := callBefore(p.BeforeCapture, ev)
		if !ok {
			o.logger.Warn("capture: before-capture hook panicked", "plugin", p.Name)
			continue
		}
		if !keep {
			o.logger.Debug("capture: vetoed by plugin", "plugin", p.Name)
			return ev, false
		}
		ev = Normalize(next)
	}
	return ev, true
}

// runMerge applies AfterCapture or BeforeReport hooks, selected by pick.
func (o *Orchestrator) runMerge(plugins []Plugin, r model.EventRecord, stage string, pick func(Plugin) func(model.EventRecord) *model.EventRecord) model.EventRecord {
	for _, p := range plugins {
		hook := pick(p)
		if hook == nil {
			continue
		}
		patch, ok := callMerge(hook, r.Clone())
		if !ok {
			o.logger.Warn("capture: hook panicked", "stage", stage, "plugin", p.Name)
			continue
		}
		if patch != nil {
			r.Merge(*patch)
		}
	}
	return r
}

func callBefore(f func(model.RawEvent) (model.RawEvent, bool), ev model.RawEvent) (next model.RawEvent, keep, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	next, keep = f(ev)
	return next, keep, true
}

func callMerge(f func(model.EventRecord) *model.EventRecord, r model.EventRecord) (patch *model.EventRecord, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return f(r), true
}

func afterCapture(p Plugin) func(model.EventRecord) *model.EventRecord { return p.AfterCapture }
func beforeReport(p Plugin) func(model.EventRecord) *model.EventRecord { return p.BeforeReport }
