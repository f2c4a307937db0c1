package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/debugstub/ds2agent/internal/arch/riscv"
	"github.com/debugstub/ds2agent/internal/process"
)

// stopReasonName maps a process.StopKind to the wire "reason:" string
// and to the metric label an observer records it under.
func stopReasonName(kind process.StopKind) string {
	switch kind {
	case process.StopBreakpoint:
		return "breakpoint"
	case process.StopTrace:
		return "trace"
	case process.StopSignal:
		return "signal"
	case process.StopExited:
		return "exited"
	case process.StopKilled:
		return "killed"
	case process.StopInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// pcRegNo and spRegNo are the gdb register numbers this agent reports in
// every stop reply regardless of what else a qRegisterInfo walk turns up:
// RISC-V's x2 (sp) and the synthetic "register" 32 standing in for pc,
// matching how every RSP stub always surfaces pc/sp even before the
// debugger has asked qRegisterInfo about anything else.
const (
	spRegNo = 2
	pcRegNo = riscv.NumGPR
)

// formatStopReply builds the T/W/X stop-reply packet for one observed
// stop. Terminal stops (exited/killed) use the single-letter W/X form;
// everything else uses the full T<sig>key:value;... form.
func formatStopReply(p *process.Process, t *process.Thread, reason process.StopReason, listThreads bool) []byte {
	switch reason.Kind {
	case process.StopExited:
		return []byte(fmt.Sprintf("W%02x", reason.ExitCode&0xff))
	case process.StopKilled:
		return []byte(fmt.Sprintf("X%02x", reason.Signal&0xff))
	}

	sig := reason.Signal
	if reason.Kind == process.StopBreakpoint || reason.Kind == process.StopTrace {
		sig = 5 // SIGTRAP
	}

	var b strings.Builder
	fmt.Fprintf(&b, "T%02x", sig&0xff)
	fmt.Fprintf(&b, "thread:%x;", t.TID)

	if regs, err := t.Registers(); err == nil {
		fmt.Fprintf(&b, "%x:%s;", spRegNo, encodeHex(regs.Marshal()[riscv.RegisterOffset(spRegNo):riscv.RegisterOffset(spRegNo)+8]))
		fmt.Fprintf(&b, "%x:%s;", pcRegNo, encodeHex(regs.Marshal()[riscv.PCOffset:riscv.PCOffset+8]))
	}

	switch reason.Kind {
	case process.StopBreakpoint:
		b.WriteString("reason:breakpoint;")
	case process.StopSignal:
		b.WriteString("reason:signal;")
	case process.StopInterrupted:
		b.WriteString("reason:interrupted;")
	}

	if listThreads {
		b.WriteString("threads:")
		first := true
		for tid := range p.Threads {
			if !first {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatInt(int64(tid), 16))
			first = false
		}
		b.WriteString(";")
	}

	return []byte(b.String())
}
