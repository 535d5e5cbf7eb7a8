package z80asm

import "fmt"

type condState int

const (
	condNone condState = iota
	condIfPending                // #if was false
	condIfTaken                  // currently assembling the true branch
	condElsePending               // #else reached, original #if was true
)

type condFrame struct {
	state   condState
	sawTrue bool
}

const maxConditionalDepth = 32

// conditionalStack implements #if/#ifdef/#else/#endif nesting, including the
// if_values history that stops later passes from flip-flopping when an
// #if's condition is still only Preliminary.
type conditionalStack struct {
	frames    []condFrame
	ifValues  []bool // memoized per #if encountered, indexed in source order
	nextIndex int
}

func newConditionalStack() *conditionalStack {
	return &conditionalStack{}
}

func (c *conditionalStack) beginPass() {
	c.frames = c.frames[:0]
	c.nextIndex = 0
}

// suppressing reports whether emission is currently suppressed by any
// frame on the stack.
func (c *conditionalStack) suppressing() bool {
	for _, f := range c.frames {
		if f.state == condIfPending {
			return true
		}
	}
	return false
}

// If pushes a new frame for `#if expr`. condValid and condTrue describe
// the already-evaluated expr; isPass1 indicates whether this is the first
// pass (default to assembling when the value is not valid on pass 1).
func (c *conditionalStack) If(condValid bool, condTrue bool, isPass1 bool) error {
	if len(c.frames) >= maxConditionalDepth {
		return fmt.Errorf("conditional assembly nesting exceeds %d levels", maxConditionalDepth)
	}
	idx := c.nextIndex
	c.nextIndex++
	for len(c.ifValues) <= idx {
		c.ifValues = append(c.ifValues, true) // default: assemble
	}

	taken := condTrue
	if !condValid {
		if isPass1 {
			taken = true
		} else {
			taken = c.ifValues[idx]
		}
	} else {
		c.ifValues[idx] = condTrue
	}

	state := condIfPending
	if taken {
		state = condIfTaken
	}
	c.frames = append(c.frames, condFrame{state: state, sawTrue: taken})
	return nil
}

func (c *conditionalStack) Elif(condValid bool, condTrue bool, isPass1 bool) error {
	if len(c.frames) == 0 {
		return fmt.Errorf("#elif without matching #if")
	}
	top := &c.frames[len(c.frames)-1]
	if top.sawTrue {
		top.state = condIfPending
		return nil
	}
	idx := c.nextIndex
	c.nextIndex++
	for len(c.ifValues) <= idx {
		c.ifValues = append(c.ifValues, true)
	}
	taken := condTrue
	if !condValid {
		if isPass1 {
			taken = true
		} else {
			taken = c.ifValues[idx]
		}
	} else {
		c.ifValues[idx] = condTrue
	}
	if taken {
		top.state = condIfTaken
		top.sawTrue = true
	} else {
		top.state = condIfPending
	}
	return nil
}

func (c *conditionalStack) Else() error {
	if len(c.frames) == 0 {
		return fmt.Errorf("#else without matching #if")
	}
	top := &c.frames[len(c.frames)-1]
	if top.sawTrue {
		top.state = condIfPending
	} else {
		top.state = condIfTaken
		top.sawTrue = true
	}
	return nil
}

func (c *conditionalStack) Endif() error {
	if len(c.frames) == 0 {
		return fmt.Errorf("#endif without matching #if")
	}
	c.frames = c.frames[:len(c.frames)-1]
	return nil
}

func isConditionalDirective(line *Line) bool {
	switch line.Directive {
	case "#IF", "#IFDEF", "#IFNDEF", "#ELIF", "#ELSE", "#ENDIF":
		return true
	}
	return false
}
