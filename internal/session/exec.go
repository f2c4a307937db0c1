package session

import (
	"strconv"
	"strings"

	"github.com/debugstub/ds2agent/internal/agenterr"
	"github.com/debugstub/ds2agent/internal/process"
)

// vContSupported is the reply to vCont?: the actions this agent accepts.
const vContSupported = "vCont;c;C;s;S;t"

// registerExecution wires the legacy c/C/s/S continue/step commands and
// the preferred vCont;action[:thread][...] form. Both paths end in a
// blocking wait for the next stop and format it as a stop reply; no
// other command may be dispatched while one of these is in flight,
// matching the sequential per-session dispatch model.
func (d *DebugDelegate) registerExecution(r *Registry) {
	r.Exact("c", func(string) ([]byte, error) { return d.resumeAndWait(process.ActionContinue, 0, -1) })
	r.Exact("s", func(string) ([]byte, error) { return d.resumeAndWait(process.ActionStep, 0, -1) })
	r.Prefix("C", func(payload string) ([]byte, error) {
		sig, err := parseHexInt(strings.TrimPrefix(payload, "C"))
		if err != nil {
			return errReply(err), nil
		}
		return d.resumeAndWait(process.ActionContinueSignal, sig, -1)
	})
	r.Prefix("S", func(payload string) ([]byte, error) {
		sig, err := parseHexInt(strings.TrimPrefix(payload, "S"))
		if err != nil {
			return errReply(err), nil
		}
		return d.resumeAndWait(process.ActionStepSignal, sig, -1)
	})
	r.Exact("vCont?", func(string) ([]byte, error) { return []byte(vContSupported), nil })
	r.Prefix("vCont;", d.handleVCont)
}

// resumeAndWait issues one resume request and blocks for the resulting
// stop, reporting it as a T/W/X stop-reply packet. With tid -1 a plain
// continue resumes every stopped thread; any other action applies to the
// current thread.
func (d *DebugDelegate) resumeAndWait(action process.Action, sig int, tid int) ([]byte, error) {
	if err := resumeTarget(d.Proc, action, sig, tid); err != nil {
		return errReply(err), nil
	}
	return d.waitAndReply()
}

func (d *DebugDelegate) waitAndReply() ([]byte, error) {
	t, reason, err := d.Proc.WaitAny()
	if err != nil {
		return errReply(err), nil
	}
	d.Observer.ObserveStop(stopReasonName(reason.Kind), 0)
	return formatStopReply(d.Proc, t, reason, d.ListThreadsInStopReply), nil
}

// handleVCont parses "vCont;action[:tid][;action[:tid]]..." and applies
// each action to its targeted thread(s) before waiting for the next stop.
// Only one genuinely resuming action is expected per dispatch in this
// single-inferior agent; "t" (stop) is accepted but is a no-op here since
// a synchronous session has nothing running concurrently to interrupt.
func (d *DebugDelegate) handleVCont(payload string) ([]byte, error) {
	rest := strings.TrimPrefix(payload, "vCont;")
	for _, clause := range strings.Split(rest, ";") {
		action, tidSpec, _ := strings.Cut(clause, ":")
		tid := -1
		if tidSpec != "" {
			parsed, err := parseVContThreadID(tidSpec)
			if err != nil {
				return errReply(err), nil
			}
			tid = parsed
		}

		switch {
		case action == "c":
			if err := resumeTarget(d.Proc, process.ActionContinue, 0, tid); err != nil {
				return errReply(err), nil
			}
		case action == "s":
			if err := resumeTarget(d.Proc, process.ActionStep, 0, tid); err != nil {
				return errReply(err), nil
			}
		case strings.HasPrefix(action, "C"):
			sig, err := parseHexInt(strings.TrimPrefix(action, "C"))
			if err != nil {
				return errReply(err), nil
			}
			if err := resumeTarget(d.Proc, process.ActionContinueSignal, sig, tid); err != nil {
				return errReply(err), nil
			}
		case strings.HasPrefix(action, "S"):
			sig, err := parseHexInt(strings.TrimPrefix(action, "S"))
			if err != nil {
				return errReply(err), nil
			}
			if err := resumeTarget(d.Proc, process.ActionStepSignal, sig, tid); err != nil {
				return errReply(err), nil
			}
		case action == "t":
			// stop: nothing to do synchronously.
		default:
			return errReply(agenterr.New("vCont", agenterr.Unsupported, "unknown action "+action)), nil
		}
	}
	return d.waitAndReply()
}

func resumeTarget(p *process.Process, action process.Action, sig int, tid int) error {
	if tid == -1 {
		if action == process.ActionContinue {
			return p.ResumeAll()
		}
		tid = p.CurrentTID
	}
	return p.Resume(process.Request{TID: tid, Action: action, Signal: sig})
}

// parseVContThreadID accepts both the bare-tid and "p<pid>.<tid>" forms;
// "-1" means every thread.
func parseVContThreadID(spec string) (int, error) {
	if idx := strings.IndexByte(spec, '.'); idx >= 0 {
		spec = spec[idx+1:]
	}
	if spec == "-1" {
		return -1, nil
	}
	v, err := strconv.ParseInt(spec, 16, 64)
	if err != nil {
		return 0, agenterr.New("vCont", agenterr.InvalidArgument, "malformed thread id")
	}
	return int(v), nil
}
