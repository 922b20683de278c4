package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeMemoryCheck EventType = "memory_check"
	EventTypePlan        EventType = "plan"
	EventTypeDispatch    EventType = "dispatch"
	EventTypeRetry       EventType = "retry"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeDeliver     EventType = "deliver"
	EventTypeExecution   EventType = "execution"
	EventTypeFiring      EventType = "firing"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id,omitempty"`
	JobID       string    `json:"job_id,omitempty"`
	Data        any       `json:"data"`
	Timestamp   time.Time `json:"timestamp"`
}

// Logger handles structured logging. A nil *Logger discards everything.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, "logs")
}

// NewLoggerTo writes events to out and llm transcripts under logDir.
func NewLoggerTo(out io.Writer, logDir string) *Logger {
	return &Logger{
		out:        out,
		llmLogPath: filepath.Join(logDir, "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": \"failed to marshal event: %v\"}", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(executionID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:        EventTypeLLM,
		ExecutionID: executionID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}

func (l *Logger) LogFiring(jobID, executionID string, runCount int, success bool, summary string) {
	l.Log(Event{
		Type:        EventTypeFiring,
		JobID:       jobID,
		ExecutionID: executionID,
		Data: map[string]any{
			"run_count": runCount,
			"success":   success,
			"summary":   summary,
		},
	})
}
