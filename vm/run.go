package vm

import (
	"fmt"

	"github.com/golang/glog"
)

// getRecoverFuncForNode returns the closure Run and StepDebug defer
// around Step: it converts a panic raised mid-instruction (stack
// underflow, truncated operand, out-of-bounds memory access, integer
// division by zero, or any other host trap) into a recorded errcode
// and a halted state. The node's pc is left pointing at the
// instruction that failed.
func getRecoverFuncForNode(m *NodeMachine) func() {
	return func() {
		if r := recover(); r != nil {
			switch err := r.(type) {
			case error:
				m.errcode = err
			default:
				m.errcode = fmt.Errorf("%v", r)
			}
			if m.errcode != errStackUnderflow && m.errcode != errOperandTruncated && m.errcode != errDivideByZero {
				m.errcode = errSegmentationFault
			}
			m.state = StateHaltedNormal
			glog.Errorf("node %s: halted at pc=%d: %v", m.Name, m.pc, m.errcode)
		}
	}
}

// Run executes instructions until the machine halts: normally, on an
// unknown opcode, or on a fatal error recovered from a panic. It
// returns the terminal error, or nil for a clean halt (normal
// completion, and an unknown-opcode halt, which prints its own
// diagnostic, are not propagated as process failures).
func (m *NodeMachine) Run() (err error) {
	defer func() {
		m.stdout.Flush()
		err = m.Err()
	}()
	defer getRecoverFuncForNode(m)()

	for !m.Step() {
	}
	return nil
}

// StepDebug executes exactly one instruction and reports whether the
// machine halted, recovering fatal panics the same way Run does. Used
// by the single-step debugger REPL in cmd/karma.
func (m *NodeMachine) StepDebug() (halted bool, err error) {
	defer func() {
		m.stdout.Flush()
		if err = m.Err(); err != nil {
			halted = true
		}
	}()
	defer getRecoverFuncForNode(m)()

	halted = m.Step()
	return halted, nil
}
