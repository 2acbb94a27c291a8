package vm

import (
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("fennec.vm")

// perfSection times one named phase of runtime work and reports it at
// debug level when ended.
type perfSection struct {
	name  string
	start time.Time
}

func startSection(name string) perfSection {
	return perfSection{name: name, start: time.Now()}
}

func (s perfSection) end() {
	log.Debugf("%s took %s", s.name, time.Since(s.start))
}
