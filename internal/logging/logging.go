// Package logging wires apex/log with a small custom handler and a level
// read from MUDIS_LOG, the same pattern the staranto-tfctlgo example uses
// for its own CLI logger.
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
)

// Init sets up the global apex/log handler and level for mudisd.
func Init() {
	level := strings.ToUpper(os.Getenv("MUDIS_LOG"))
	if level == "" {
		level = "INFO"
	}
	log.SetHandler(&handler{})
	log.SetLevelFromString(level)
}

type handler struct{}

func (h *handler) HandleLog(e *log.Entry) error {
	ts := time.Now().Format("2006-01-02 15:04:05")
	level := strings.ToUpper(e.Level.String())
	_, err := fmt.Fprintf(os.Stdout, "%s %-5s %s%s\n", ts, level, e.Message, fields(e))
	return err
}

func fields(e *log.Entry) string {
	if len(e.Fields) == 0 {
		return ""
	}
	var b strings.Builder
	for k, v := range e.Fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	return b.String()
}
