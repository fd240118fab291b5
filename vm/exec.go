package vm

import (
	"fmt"

	"github.com/golang/glog"
)

// Step decodes and executes exactly one instruction. It returns true
// once the machine has halted (normally or on an unknown opcode); the
// caller should stop calling Step after that. Fatal conditions (stack
// underflow, truncated operands, out-of-bounds memory access, integer
// division by zero) are raised as panics and recovered at the Run
// boundary.
//
// The loop advances pc by one byte per instruction by default, and
// each handler additionally advances pc by the length of its operand
// field, so the trailing pc++ below completes a 1+width step. A
// taken branch instead sets pc to target-1 so that same trailing pc++
// lands exactly on the target byte.
func (m *NodeMachine) Step() bool {
	if m.pc >= uint32(len(m.byteCode)) {
		m.state = StateHaltedNormal
		m.errcode = errProgramFinished
		return true
	}

	op := Opcode(m.byteCode[m.pc])
	width, known := op.Width()
	if !known {
		glog.Infof("node %s: unrecognized opcode 0x%02X at pc=%d, halting", m.Name, m.byteCode[m.pc], m.pc)
		fmt.Fprintf(m.stdout, "\nunrecognized opcode 0x%02X at %d, halting\n", m.byteCode[m.pc], m.pc)
		m.stdout.Flush()
		m.state = StateHaltedUnknownOpcode
		return true
	}

	switch op {
	case OpPushInt, OpPushFloat:
		m.push(u32BE(m.readOperand(width)))
		m.pc += uint32(width)
	case OpPop:
		m.pop()
	case OpPushAddr:
		offset := u32BE(m.readOperand(width))
		m.push(m.pc + offset)
		m.pc += uint32(width)
	case OpPushByteBool, OpPushByteChar:
		m.push(uint32(m.readOperand(width)[0]))
		m.pc += uint32(width)

	case OpAllocWordInt, OpAllocWordFloat:
		addr := u32BE(m.readOperand(width))
		m.ensureCapacity(addr, 4)
		m.pc += uint32(width)
	case OpLoadWordInt, OpLoadWordFloat:
		addr := u32BE(m.readOperand(width))
		m.push(m.loadWord(addr))
		m.pc += uint32(width)
	case OpStoreWordInt, OpStoreWordFloat:
		addr := u32BE(m.readOperand(width))
		m.storeWord(addr, m.pop())
		m.pc += uint32(width)
	case OpReserved26, OpReserved27:
		m.pc += uint32(width)
	case OpAllocByteBool, OpAllocByteChar:
		addr := u32BE(m.readOperand(width))
		m.ensureCapacity(addr, 1)
		m.pc += uint32(width)
	case OpLoadByteBool, OpLoadByteChar:
		addr := u32BE(m.readOperand(width))
		m.push(uint32(m.loadByte(addr)))
		m.pc += uint32(width)
	case OpStoreByteBool, OpStoreByteChar:
		addr := u32BE(m.readOperand(width))
		m.storeByte(addr, byte(m.pop()))
		m.pc += uint32(width)

	case OpAddInt, OpAddIntDup:
		b, a := m.pop(), m.pop()
		m.push(a + b)
	case OpAddFloat:
		b, a := m.pop(), m.pop()
		m.push(bitsFromFloat32(float32FromBits(a) + float32FromBits(b)))
	case OpSubInt, OpSubIntDup:
		b, a := m.pop(), m.pop()
		m.push(a - b)
	case OpSubFloat:
		b, a := m.pop(), m.pop()
		m.push(bitsFromFloat32(float32FromBits(a) - float32FromBits(b)))
	case OpMulInt:
		b, a := m.pop(), m.pop()
		m.push(a * b)
	case OpMulFloat:
		b, a := m.pop(), m.pop()
		m.push(bitsFromFloat32(float32FromBits(a) * float32FromBits(b)))
	case OpDivInt:
		b, a := m.pop(), m.pop()
		if b == 0 {
			panic(errDivideByZero)
		}
		m.push(a / b)
	case OpDivFloat:
		b, a := m.pop(), m.pop()
		m.push(bitsFromFloat32(float32FromBits(a) / float32FromBits(b)))

	case OpBranchIfTrue:
		target := u32BE(m.readOperand(width))
		b := m.pop()
		if b != 0 {
			m.pc = target - 1
		} else {
			m.pc += uint32(width)
		}
	case OpBranchIfFalse:
		target := u32BE(m.readOperand(width))
		b := m.pop()
		if b == 0 {
			m.pc = target - 1
		} else {
			m.pc += uint32(width)
		}
	case OpJump:
		target := u32BE(m.readOperand(width))
		m.pc = target - 1
	case OpReturnValue:
		ret := m.pop()
		if len(m.stack) == 0 {
			m.pc = uint32(len(m.byteCode))
			m.state = StateHaltedNormal
			m.errcode = errProgramFinished
			return true
		}
		retAddr := m.pop()
		m.pc = retAddr - 1
		m.push(ret)
	case OpReturnVoid:
		if len(m.stack) == 0 {
			m.pc = uint32(len(m.byteCode))
			m.state = StateHaltedNormal
			m.errcode = errProgramFinished
			return true
		}
		retAddr := m.pop()
		m.pc = retAddr - 1

	case OpIntEq:
		b, a := m.pop(), m.pop()
		m.push(boolWord(a == b))
	case OpIntNe:
		b, a := m.pop(), m.pop()
		m.push(boolWord(a != b))
	case OpIntLt:
		b, a := m.pop(), m.pop()
		m.push(boolWord(a < b))
	case OpIntLe:
		b, a := m.pop(), m.pop()
		m.push(boolWord(a <= b))
	case OpIntGt:
		b, a := m.pop(), m.pop()
		m.push(boolWord(a > b))
	case OpIntGe:
		b, a := m.pop(), m.pop()
		m.push(boolWord(a >= b))
	case OpLogicalAnd:
		b, a := m.pop(), m.pop()
		m.push(boolWord(a != 0 && b != 0))
	case OpLogicalOr:
		b, a := m.pop(), m.pop()
		m.push(boolWord(a != 0 || b != 0))

	case OpFloatEq:
		b, a := m.pop(), m.pop()
		m.push(boolWord(float32FromBits(a) == float32FromBits(b)))
	case OpFloatNe:
		b, a := m.pop(), m.pop()
		m.push(boolWord(float32FromBits(a) != float32FromBits(b)))
	case OpFloatLt:
		b, a := m.pop(), m.pop()
		m.push(boolWord(float32FromBits(a) < float32FromBits(b)))
	case OpFloatLe:
		b, a := m.pop(), m.pop()
		m.push(boolWord(float32FromBits(a) <= float32FromBits(b)))
	case OpFloatGt:
		b, a := m.pop(), m.pop()
		m.push(boolWord(float32FromBits(a) > float32FromBits(b)))
	case OpFloatGe:
		b, a := m.pop(), m.pop()
		m.push(boolWord(float32FromBits(a) >= float32FromBits(b)))
	case OpBoolEq:
		b, a := m.pop(), m.pop()
		m.push(boolWord((a == 1) == (b == 1)))
	case OpBoolNe:
		b, a := m.pop(), m.pop()
		m.push(boolWord((a == 1) != (b == 1)))

	case OpArrayAlloc:
		operand := m.readOperand(width)
		addr := u32BE(operand[0:4])
		elemSize := uint32(operand[4])
		count := u32BE(operand[5:9])
		m.ensureCapacity(addr, elemSize*count)
		m.pc += uint32(width)
	case OpArrayLoadWordInt, OpArrayLoadWordFloat:
		addr := u32BE(m.readOperand(width))
		idx := m.pop()
		m.push(m.loadWord(addr + 4*idx))
		m.pc += uint32(width)
	case OpArrayLoadByteBool, OpArrayLoadByteChar:
		addr := u32BE(m.readOperand(width))
		idx := m.pop()
		m.push(uint32(m.loadByte(addr + idx)))
		m.pc += uint32(width)
	case OpArrayStoreWordInt, OpArrayStoreWordFloat:
		addr := u32BE(m.readOperand(width))
		idx := m.pop()
		value := m.pop()
		m.storeWord(addr+4*idx, value)
		m.pc += uint32(width)
	case OpArrayStoreByteBool, OpArrayStoreByteChar:
		addr := u32BE(m.readOperand(width))
		idx := m.pop()
		value := m.pop()
		m.storeByte(addr+idx, byte(value))
		m.pc += uint32(width)

	case OpPrintInt:
		fmt.Fprintf(m.stdout, "%d", int32(m.pop()))
		m.stdout.Flush()
	case OpPrintFloat:
		fmt.Fprintf(m.stdout, "%v", float32FromBits(m.pop()))
		m.stdout.Flush()
	case OpPrintBool:
		fmt.Fprintf(m.stdout, "%v", m.pop() != 0)
		m.stdout.Flush()
	case OpPrintChar:
		fmt.Fprintf(m.stdout, "%c", byte(m.pop()))
		m.stdout.Flush()

	default:
		// Width() already filters unknown opcodes above; an opcode that
		// reaches here is recognized but has no handler, which is a
		// programmer error in this interpreter rather than a malformed
		// program.
		panic(fmt.Errorf("opcode %s has a width table entry but no handler", op))
	}

	m.pc++
	return false
}
