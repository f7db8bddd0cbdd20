package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// BarReporter draws one progress bar per table while its rows are copied
type BarReporter struct {
	out  io.Writer
	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar
}

// NewBarReporter creates a reporter writing to out
func NewBarReporter(out io.Writer) *BarReporter {
	return &BarReporter{
		out:  out,
		bars: make(map[string]*progressbar.ProgressBar),
	}
}

func (b *BarReporter) bar(table string, total int64) *progressbar.ProgressBar {
	if bar, ok := b.bars[table]; ok {
		return bar
	}
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionSetDescription(fmt.Sprintf("%-24s", table)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(b.out) }),
	)
	b.bars[table] = bar
	return bar
}

func (b *BarReporter) OnBatch(e models.BatchEvent) {
	if !e.Committed {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar(e.Table, e.Total).Add(e.Rows)
}

func (b *BarReporter) OnTable(e models.TableEvent) {
	if !e.State.Terminal() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bar, ok := b.bars[e.Table]
	if !ok {
		return
	}
	if e.State == models.Done {
		_ = bar.Finish()
	} else {
		_ = bar.Exit()
		fmt.Fprintln(b.out)
	}
	delete(b.bars, e.Table)
}
