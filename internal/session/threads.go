package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/debugstub/ds2agent/internal/agenterr"
	"github.com/debugstub/ds2agent/internal/process"
)

// registerThreads wires Hg/Hc thread selection and the qfThreadInfo /
// qsThreadInfo / qThreadExtraInfo iteration commands. gdb always issues
// qfThreadInfo then repeats qsThreadInfo until the reply is "l" (no more
// threads); thread iteration state lives on the delegate between those
// two calls.
func (d *DebugDelegate) registerThreads(r *Registry) {
	r.Prefix("Hg", func(payload string) ([]byte, error) {
		return d.selectThread(strings.TrimPrefix(payload, "Hg"))
	})
	r.Prefix("Hc", func(payload string) ([]byte, error) {
		return d.selectThread(strings.TrimPrefix(payload, "Hc"))
	})
	r.Exact("qfThreadInfo", func(string) ([]byte, error) {
		d.threadIterTIDs = sortedTIDs(d.Proc)
		d.threadIterPos = 0
		return d.nextThreadBatch(), nil
	})
	r.Exact("qsThreadInfo", func(string) ([]byte, error) {
		return d.nextThreadBatch(), nil
	})
	r.Prefix("qThreadExtraInfo,", d.qThreadExtraInfo)
}

func sortedTIDs(proc *process.Process) []int {
	tids := make([]int, 0, len(proc.Threads))
	for tid := range proc.Threads {
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	return tids
}

func (d *DebugDelegate) selectThread(spec string) ([]byte, error) {
	if spec == "" {
		return errReply(agenterr.New("H", agenterr.InvalidArgument, "missing thread id")), nil
	}
	if spec == "-1" || spec == "0" {
		return okReply, nil
	}
	tid, err := parseHexInt(spec)
	if err != nil {
		return errReply(err), nil
	}
	if err := d.Proc.SelectThread(tid); err != nil {
		return errReply(err), nil
	}
	return okReply, nil
}

// nextThreadBatch emits every remaining thread id in one "m..." reply
// (small thread counts in this agent's target make splitting across
// several qsThreadInfo round trips unnecessary) and then "l" to signal
// end of iteration on the next call.
func (d *DebugDelegate) nextThreadBatch() []byte {
	if d.threadIterPos >= len(d.threadIterTIDs) {
		return []byte("l")
	}
	var b strings.Builder
	b.WriteByte('m')
	for i, tid := range d.threadIterTIDs[d.threadIterPos:] {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%x", tid)
	}
	d.threadIterPos = len(d.threadIterTIDs)
	return []byte(b.String())
}

func (d *DebugDelegate) qThreadExtraInfo(payload string) ([]byte, error) {
	spec := strings.TrimPrefix(payload, "qThreadExtraInfo,")
	tid, err := parseHexInt(spec)
	if err != nil {
		return errReply(err), nil
	}
	t, ok := d.Proc.Threads[tid]
	if !ok {
		return errReply(agenterr.New("qThreadExtraInfo", agenterr.NotFound, "no such thread")), nil
	}
	desc := fmt.Sprintf("tid %d, %s", t.TID, threadStateName(t))
	return []byte(encodeHexString(desc)), nil
}

func threadStateName(t *process.Thread) string {
	switch t.State {
	case process.Running:
		return "running"
	case process.Stopped:
		return "stopped"
	case process.Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}
