// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// EnvLevel names the env variable holding the log level.
const EnvLevel = "ASSETCACHE_LOG"

// InitLogger sets up Apex with a CustomHandler on stderr and a log level from
// the ASSETCACHE_LOG env variable, falling back to defaultLevel and then to
// ERROR.
func InitLogger(defaultLevel ...string) {
	level := strings.ToUpper(os.Getenv(EnvLevel))
	if level == "" && len(defaultLevel) > 0 {
		level = strings.ToUpper(defaultLevel[0])
	}
	if level == "" {
		level = "ERROR"
	}
	log.SetHandler(NewHandler(os.Stderr))
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.ErrorLevel
	}
	log.SetLevel(lvl)
}

// SetLevel changes the level unless ASSETCACHE_LOG pins it.
func SetLevel(level string) {
	if os.Getenv(EnvLevel) != "" {
		return
	}
	if lvl, err := log.ParseLevel(strings.ToLower(level)); err == nil {
		log.SetLevel(lvl)
	}
}

// CustomHandler formats log messages as "timestamp L message k=v ...".
type CustomHandler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewHandler returns a CustomHandler writing to w.
func NewHandler(w io.Writer) *CustomHandler {
	return &CustomHandler{w: w}
}

// HandleLog implements the log.Handler interface
func (h *CustomHandler) HandleLog(e *log.Entry) error {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	level := strings.ToUpper(e.Level.String())

	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1s %s", timestamp, level, e.Message)

	names := e.Fields.Names()
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%v", name, e.Fields.Get(name))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}
