package roslog

import (
	"container/ring"
	"fmt"
	"sync"
	"time"
)

// Ring is a fixed-size in-memory log sink, used to back diagnostic
// XML-RPC calls (getBusInfo) that want a snapshot of recent activity
// without a file on disk. Modeled on the teacher's minilog.Ring.
type Ring struct {
	size int

	mu sync.Mutex
	r  *ring.Ring
}

func NewRing(size int) *Ring {
	return &Ring{r: ring.New(size), size: size}
}

func (l *Ring) Println(v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.r = l.r.Next()
	l.r.Value = time.Now().Format("2006/01/02 15:04:05 ") + fmt.Sprintln(v...)
}

// Dump returns the retained log lines, oldest to newest.
func (l *Ring) Dump() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := make([]string, 0, l.size)
	l.r.Next().Do(func(v interface{}) {
		if v == nil {
			return
		}
		res = append(res, v.(string))
	})
	return res
}

// defaultRing backs DumpRecent: a node-wide recent-activity buffer a
// slave's getBusInfo call can surface without a log file on disk.
var defaultRing = NewRing(200)

func init() {
	AddSink("ring", defaultRing, DEBUG)
}

// DumpRecent returns the lines retained in the default ring sink,
// oldest to newest.
func DumpRecent() []string {
	return defaultRing.Dump()
}
