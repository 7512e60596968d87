// Package archive appends chat exchanges to one markdown file per UTC day.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"clawbot/internal/errs"
	logx "clawbot/pkg/logx"
)

type Archive struct {
	dir  string
	name string
	log  logx.Logger
	now  func() time.Time
	mu   sync.Mutex
}

func New(dir, assistantName string, log logx.Logger) *Archive {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(assistantName) == "" {
		assistantName = "Ape"
	}
	return &Archive{dir: dir, name: assistantName, log: log, now: time.Now}
}

// Append records one exchange. Failures are logged, never returned: losing
// an archive entry must not affect the reply.
func (a *Archive) Append(user, assistant string) {
	if err := a.append(user, assistant); err != nil {
		a.log.Warn("archive exchange failed", logx.Err(err))
	}
}

func (a *Archive) append(user, assistant string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UTC()
	day := now.Format("2006-01-02")
	path := filepath.Join(a.dir, day+".md")
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return errs.Wrap(err, "create conversations dir")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errs.Wrap(err, "open archive")
	}
	defer f.Close()

	var b strings.Builder
	if st, err := f.Stat(); err == nil && st.Size() == 0 {
		fmt.Fprintf(&b, "# Conversations - %s\n\n", day)
	}
	fmt.Fprintf(&b, "## %s UTC\n\n**User**: %s\n\n**%s**: %s\n\n---\n\n", now.Format("15:04:05"), user, a.name, assistant)
	if _, err := f.WriteString(b.String()); err != nil {
		return errs.Wrap(err, "write archive")
	}
	return nil
}
