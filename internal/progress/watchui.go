// Package progress renders batch processing progress in the terminal using
// per-item mpb bars. Non-TTY output degrades to plain text lines.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/proptour/proptour-cli/internal/events"
	"github.com/proptour/proptour-cli/internal/models"
)

// WatchUI manages one progress bar per batch item plus an aggregate bar.
type WatchUI struct {
	progress   *mpb.Progress
	bars       map[string]*mpb.Bar // filename -> bar
	aggregate  *mpb.Bar
	isTerminal bool
	lastText   map[string]int // non-TTY fallback: last printed progress per item

	bus *events.Bus
	ch  <-chan events.Event
}

// NewWatchUI creates the watch UI. On a non-terminal stderr the bars are
// suppressed and progress is printed as plain lines.
func NewWatchUI() *WatchUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSIOnWindows(os.Stderr)

		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &WatchUI{
		progress:   p,
		bars:       make(map[string]*mpb.Bar),
		isTerminal: isTerminal,
		lastText:   make(map[string]int),
	}
}

// Attach subscribes to the bus. Call before starting the watcher so no
// event can slip past between start and the first receive.
func (u *WatchUI) Attach(bus *events.Bus) {
	u.bus = bus
	u.ch = bus.SubscribeAll()
}

// Run consumes bus events until the context ends or the batch reaches a
// terminal phase. Attach must have been called first.
func (u *WatchUI) Run(ctx context.Context) {
	ch := u.ch
	defer u.bus.UnsubscribeAll(ch)

	for {
		select {
		case <-ctx.Done():
			u.finish()
			return
		case ev, ok := <-ch:
			if !ok {
				u.finish()
				return
			}
			switch e := ev.(type) {
			case *events.ProgressEvent:
				u.applyProgress(e)
			case *events.PhaseChangeEvent:
				if u.applyPhase(e) {
					u.finish()
					return
				}
			}
		}
	}
}

// applyProgress folds one update into the bars, creating them lazily as
// items first appear.
func (u *WatchUI) applyProgress(e *events.ProgressEvent) {
	if u.aggregate == nil {
		u.aggregate = u.newBar("overall")
	}
	u.setBar(u.aggregate, "overall", e.Aggregate)

	for _, item := range e.Items {
		bar, ok := u.bars[item.Filename]
		if !ok {
			bar = u.newBar(item.Filename)
			u.bars[item.Filename] = bar
		}
		u.setBar(bar, item.Filename, item.Progress)
	}
}

// applyPhase prints lifecycle transitions and reports whether the batch is
// finished.
func (u *WatchUI) applyPhase(e *events.PhaseChangeEvent) bool {
	switch e.NewPhase {
	case "completed":
		u.write(fmt.Sprintf("✓ Batch %s completed\n", e.BatchID))
		return true
	case "failed":
		if e.Reason != "" {
			u.write(fmt.Sprintf("✗ Batch %s failed (%s)\n", e.BatchID, e.Reason))
		} else {
			u.write(fmt.Sprintf("✗ Batch %s failed\n", e.BatchID))
		}
		return true
	case "polling":
		u.write(fmt.Sprintf("Watching batch %s\n", e.BatchID))
	}
	return false
}

func (u *WatchUI) newBar(label string) *mpb.Bar {
	if !u.isTerminal {
		return nil
	}
	return u.progress.New(100,
		mpb.BarStyle().
			Lbound("[").
			Filler("█").
			Tip("█").
			Padding("░").
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
		),
	)
}

func (u *WatchUI) setBar(bar *mpb.Bar, label string, progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	if bar != nil {
		bar.SetCurrent(int64(progress))
		return
	}

	// Non-TTY: print only when the value moved, to keep logs readable.
	if last, seen := u.lastText[label]; !seen || last != progress {
		fmt.Fprintf(os.Stderr, "%s: %d%%\n", label, progress)
		u.lastText[label] = progress
	}
}

func (u *WatchUI) finish() {
	if !u.isTerminal {
		return
	}
	for _, bar := range u.bars {
		bar.Abort(true)
	}
	if u.aggregate != nil {
		u.aggregate.Abort(true)
	}
	u.progress.Wait()
}

// write prints a line above the bars without corrupting their rendering.
func (u *WatchUI) write(msg string) {
	if u.isTerminal {
		u.progress.Write([]byte(msg))
		return
	}
	fmt.Fprint(os.Stderr, msg)
}

// RenderStatusLine formats a one-line summary of a status snapshot for the
// status command.
func RenderStatusLine(batchID string, status *models.BatchStatus) string {
	agg, ok := status.AggregateProgress()
	if !ok {
		return fmt.Sprintf("Batch %s: %s", batchID, status.Status)
	}
	return fmt.Sprintf("Batch %s: %s (%d%%)", batchID, status.Status, agg)
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows so the
// bars render correctly. No-op elsewhere.
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
