package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"llm-paper-trader/internal/types"
)

var (
	mu  sync.Mutex
	dir string
)

// Entry is one simulated fill.
type Entry struct {
	Time      string    `json:"time"`
	BarTime   time.Time `json:"bar_time"`
	SessionID string    `json:"session_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Qty       int       `json:"qty"`
	Price     float64   `json:"price"`
	FillID    string    `json:"fill_id"`
	Reason    string    `json:"reason,omitempty"`
	Source    string    `json:"source,omitempty"`
	Override  bool      `json:"override,omitempty"`
}

// DecisionEntry is one decision, whether or not it produced a fill.
type DecisionEntry struct {
	Time       string           `json:"time"`
	BarTime    time.Time        `json:"bar_time"`
	SessionID  string           `json:"session_id"`
	Symbol     string           `json:"symbol"`
	Action     string           `json:"action"`
	Qty        int              `json:"qty"`
	Reason     string           `json:"reason"`
	Source     string           `json:"source"`
	Confidence float64          `json:"confidence"`
	Open       float64          `json:"open"`
	Indicators types.Indicators `json:"indicators"`
	Fallback   bool             `json:"fallback,omitempty"`
}

// SetDir overrides the log directory. Empty restores the default.
func SetDir(d string) {
	mu.Lock()
	defer mu.Unlock()
	dir = d
}

func logDir() string {
	if dir != "" {
		return dir
	}
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func dailyFilepath(t time.Time) string {
	return filepath.Join(logDir(), t.Format("2006-01-02")+".txt")
}

func decisionsFilepath(t time.Time) string {
	return filepath.Join(logDir(), "decisions", t.Format("2006-01-02")+".txt")
}

func now() time.Time {
	return time.Now().In(time.FixedZone("IST", 19800))
}

func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	t := now()
	e.Time = t.Format("2006-01-02 15:04:05")
	return appendLine(dailyFilepath(t), e)
}

func AppendDecision(e DecisionEntry) error {
	mu.Lock()
	defer mu.Unlock()
	t := now()
	e.Time = t.Format("2006-01-02 15:04:05")
	return appendLine(decisionsFilepath(t), e)
}

func appendLine(p string, v any) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips .txt logs last modified more than retentionDays ago
// and removes the originals.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	mu.Lock()
	root := logDir()
	mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err == nil {
			_ = os.Remove(p)
		}
		return nil
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
