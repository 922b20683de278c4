package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// termMu synchronizes all terminal output so the status line's cursor
// save/restore is never interleaved with a log write.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
// It serialises writes with PrintLiveStatus via termMu.
func NewTermWriter() *termWriter {
	return &termWriter{}
}

func PrintBanner(version string) {
	banner := `
    _         _        _____         _
   / \  _   _| |_ ___ |_   _|_ _ ___| | _____ _ __
  / _ \| | | | __/ _ \  | |/ _' / __| |/ / _ \ '__|
 / ___ \ |_| | || (_) | | | (_| \__ \   <  __/ |
/_/   \_\__,_|\__\___/  |_|\__,_|___/_|\_\___|_|
`
	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
	fmt.Printf("%s%s%s\n\n", strings.Repeat(" ", max(0, (width-len(version)-2)/2)), colorPurple+"v"+version, colorReset)
}

// PrintLiveStatus rewrites a single status line in place.
func PrintLiveStatus(scheduledJobs int) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	role, task, runs, lastHB := GetStatus()

	pulseText, pulseColor := "HEALTHY", colorNeonCyan
	if time.Since(lastHB) > 90*time.Second {
		pulseText, pulseColor = "LAGGING", colorNeonMag
	}

	if task == "" {
		task = "waiting..."
	}
	if len(task) > 30 {
		task = task[:27] + "..."
	}

	statusStr := fmt.Sprintf(
		"\033[s\r\033[K%s[%s] %s%-7s%s | %-12s runs=%d jobs=%d | %s | up %v | %.1fMB\033[u",
		colorReset,
		lastHB.Format("15:04:05"),
		pulseColor, pulseText, colorReset,
		role, runs, scheduledJobs,
		task,
		time.Since(startTime).Round(time.Second),
		float64(m.Alloc)/1024/1024,
	)

	termMu.Lock()
	fmt.Print(statusStr)
	termMu.Unlock()
}
