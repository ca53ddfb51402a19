package model

import (
	"errors"
	"fmt"
)

type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseEditing
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "Loading"
	case PhaseReady:
		return "Ready"
	case PhaseEditing:
		return "Editing"
	case PhaseError:
		return "Error"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

var ErrInvalidTransition = errors.New("invalid state transition")

// 画面の状態。Editing のときだけ Editing に対象が入り、Error のときだけ Err が入る
type State struct {
	Phase   Phase
	Editing *Feedback
	Err     error
}

func (s State) invalid(to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Phase, to)
}

// Loading -> Ready
func (s State) Loaded() (State, error) {
	if s.Phase != PhaseLoading {
		return s, s.invalid(PhaseReady)
	}
	return State{Phase: PhaseReady}, nil
}

// Loading -> Error
func (s State) Failed(err error) (State, error) {
	if s.Phase != PhaseLoading {
		return s, s.invalid(PhaseError)
	}
	return State{Phase: PhaseError, Err: err}, nil
}

// Error -> Loading。自動では呼ばれない
func (s State) Retry() (State, error) {
	if s.Phase != PhaseError {
		return s, s.invalid(PhaseLoading)
	}
	return State{Phase: PhaseLoading}, nil
}

// Ready -> Editing。編集中に別の項目を開いた場合は対象を差し替える
func (s State) Edit(f Feedback) (State, error) {
	if s.Phase != PhaseReady && s.Phase != PhaseEditing {
		return s, s.invalid(PhaseEditing)
	}
	return State{Phase: PhaseEditing, Editing: &f}, nil
}

// Editing -> Ready
func (s State) Submitted() (State, error) {
	if s.Phase != PhaseEditing {
		return s, s.invalid(PhaseReady)
	}
	return State{Phase: PhaseReady}, nil
}

// Editing -> Ready
func (s State) Cancel() (State, error) {
	if s.Phase != PhaseEditing {
		return s, s.invalid(PhaseReady)
	}
	return State{Phase: PhaseReady}, nil
}
