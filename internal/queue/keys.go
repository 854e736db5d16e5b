package queue

import "strings"

// keys pre-computes the Redis key names for a single named queue, mirroring
// the teacher's micro-optimization of avoiding repeated string
// concatenation on the hot dequeue/enqueue path.
type keys struct {
	waiting   string
	delayed   string
	active    string
	completed string
	failed    string
	cancelled string
	dead      string
	pause     string
	jobPrefix string
}

func newKeys(prefix, name string) keys {
	qp := prefix + name + ":"
	return keys{
		waiting:   qp + "waiting",
		delayed:   qp + "delayed",
		active:    qp + "active",
		completed: qp + "completed",
		failed:    qp + "failed",
		cancelled: qp + "cancelled",
		dead:      qp + "dead",
		pause:     qp + "pause",
		jobPrefix: qp + "job:",
	}
}

func (k keys) job(id string) string {
	var b strings.Builder
	b.Grow(len(k.jobPrefix) + len(id))
	b.WriteString(k.jobPrefix)
	b.WriteString(id)
	return b.String()
}
