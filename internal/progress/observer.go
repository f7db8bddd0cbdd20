// Package progress fans table and batch events out to reporters.
package progress

import (
	"sync"

	"github.com/vitebski/interdb-migrator/pkg/models"
)

// Observer receives migration events. Implementations must not block.
type Observer interface {
	OnTable(models.TableEvent)
	OnBatch(models.BatchEvent)
}

// Nop ignores every event
type Nop struct{}

func (Nop) OnTable(models.TableEvent) {}
func (Nop) OnBatch(models.BatchEvent) {}

type multi []Observer

// NewMulti returns an Observer forwarding to every non-nil observer
func NewMulti(observers ...Observer) Observer {
	var out multi
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return Nop{}
	}
	return out
}

func (m multi) OnTable(e models.TableEvent) {
	for _, o := range m {
		o.OnTable(e)
	}
}

func (m multi) OnBatch(e models.BatchEvent) {
	for _, o := range m {
		o.OnBatch(e)
	}
}

// Recorder keeps every event, for tests and summaries
type Recorder struct {
	mu      sync.Mutex
	Tables  []models.TableEvent
	Batches []models.BatchEvent
}

func (r *Recorder) OnTable(e models.TableEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tables = append(r.Tables, e)
}

func (r *Recorder) OnBatch(e models.BatchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Batches = append(r.Batches, e)
}

// States returns the states recorded for one table, in order
func (r *Recorder) States(table string) []models.TableState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []models.TableState
	for _, e := range r.Tables {
		if e.Table == table {
			states = append(states, e.State)
		}
	}
	return states
}
