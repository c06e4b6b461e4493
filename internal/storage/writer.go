package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Writer exports finished sessions as markdown, one file per session, for
// reading outside the dashboard. Purely additive; the store document stays
// authoritative.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Export writes (or rewrites) the session's markdown file and returns its path.
func (w *Writer) Export(sess Session) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := filepath.Join(w.dir, sess.ID+".md")
	if err := os.WriteFile(path, []byte(formatSessionMarkdown(sess)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func formatSessionMarkdown(sess Session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", sess.ID)
	fmt.Fprintf(&b, "- URL: %s\n", sess.URL)
	fmt.Fprintf(&b, "- Started: %s\n", sess.StartTime.Format("2006-01-02 15:04:05 MST"))
	if sess.EndTime != nil {
		fmt.Fprintf(&b, "- Ended: %s\n", sess.EndTime.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&b, "- Status: %s\n", sess.Status)
	fmt.Fprintf(&b, "- Captured events: %d\n", len(sess.Events))

	if sess.Transcription != nil && sess.Transcription.Text != "" {
		b.WriteString("\n## Transcript\n\n")
		b.WriteString(sess.Transcription.Text)
		b.WriteString("\n")
	}

	if sess.RefinedScript != nil {
		b.WriteString("\n## Refined Script\n\n")
		b.WriteString(sess.RefinedScript.RefinedText)
		b.WriteString("\n")

		if len(sess.RefinedScript.Instructions) > 0 {
			b.WriteString("\n## Instructions\n\n")
			for i, inst := range sess.RefinedScript.Instructions {
				fmt.Fprintf(&b, "%d. [%.1fs–%.1fs] %s\n", i+1, inst.StartTime, inst.EndTime, inst.Text)
			}
		}
	}

	return b.String()
}
