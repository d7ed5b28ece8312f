package model

import (
	"errors"
	"fmt"
	"strings"
)

// ScrollTolerancePx absorbs sub-pixel rounding when deciding whether the reader reached the end.
const ScrollTolerancePx = 12

// Phase is the state of the contract page.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseFailed    Phase = "failed"
	PhaseReady     Phase = "ready"
	PhaseApproving Phase = "approving"
	PhaseApproved  Phase = "approved"
)

// Event moves a Flow between phases.
type Event string

const (
	EventBeginLoad         Event = "begin_load"
	EventLoadFailed        Event = "load_failed"
	EventLoaded            Event = "loaded"
	EventAlreadyApproved   Event = "already_approved"
	EventBeginApproval     Event = "begin_approval"
	EventApprovalFailed    Event = "approval_failed"
	EventApprovalSucceeded Event = "approval_succeeded"
)

// transitions lists every legal move. PhaseApproved has none.
var transitions = map[Phase]map[Event]Phase{
	PhaseIdle: {
		EventBeginLoad: PhaseLoading,
	},
	PhaseLoading: {
		EventBeginLoad:       PhaseLoading,
		EventLoadFailed:      PhaseFailed,
		EventLoaded:          PhaseReady,
		EventAlreadyApproved: PhaseApproved,
	},
	PhaseFailed: {
		EventBeginLoad: PhaseLoading,
	},
	PhaseReady: {
		EventBeginLoad:     PhaseLoading,
		EventBeginApproval: PhaseApproving,
	},
	PhaseApproving: {
		EventApprovalFailed:    PhaseReady,
		EventApprovalSucceeded: PhaseApproved,
	},
	PhaseApproved: {},
}

// Transitions returns a copy of the transition table. The page script
// receives it so browser and server agree on legal moves.
func Transitions() map[Phase]map[Event]Phase {
	out := make(map[Phase]map[Event]Phase, len(transitions))
	for from, events := range transitions {
		row := make(map[Event]Phase, len(events))
		for ev, to := range events {
			row[ev] = to
		}
		out[from] = row
	}
	return out
}

var (
	ErrIllegalTransition = errors.New("illegal transition")
	ErrStaleLoad         = errors.New("stale load result")
	ErrGateClosed        = errors.New("approval gate closed")
)

// GateReason is the single most relevant reason the confirm action is disabled.
type GateReason string

const (
	ReasonNotScrolled       GateReason = "not_scrolled"
	ReasonNameEmpty         GateReason = "name_empty"
	ReasonCaptchaIncomplete GateReason = "captcha_incomplete"
	ReasonReady             GateReason = "ready"
)

// gateOrder is the priority in which closed-gate reasons are reported.
var gateOrder = []GateReason{ReasonNotScrolled, ReasonNameEmpty, ReasonCaptchaIncomplete}

// GateOrder returns a copy of the closed-gate reasons, highest priority first.
func GateOrder() []GateReason {
	return append([]GateReason(nil), gateOrder...)
}

// GateMessages are the texts shown next to the confirm button.
var GateMessages = map[GateReason]string{
	ReasonNotScrolled:       "Sözleşmeyi sonuna kadar okuyun.",
	ReasonNameEmpty:         "Lütfen adınızı soyadınızı girin.",
	ReasonCaptchaIncomplete: "Lütfen robot olmadığınızı doğrulayın.",
	ReasonReady:             "Onay aktif.",
}

// AtBottom reports whether a scroll viewport shows its last ScrollTolerancePx pixels.
func AtBottom(scrollTop, clientHeight, scrollHeight float64) bool {
	return scrollTop+clientHeight >= scrollHeight-ScrollTolerancePx
}

// Flow is the page state record. Fields change only through its methods.
type Flow struct {
	phase      Phase
	generation uint64
	token      string
	err        string

	scrolledToBottom bool
	fullName         string
	captchaToken     string
}

func NewFlow() *Flow {
	return &Flow{phase: PhaseIdle}
}

func (f *Flow) fire(ev Event) error {
	to, ok := transitions[f.phase][ev]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, f.phase)
	}
	f.phase = to
	return nil
}

// BeginLoad starts loading the contract for token and returns the load
// generation. Results from earlier generations are discarded.
func (f *Flow) BeginLoad(token string) (uint64, error) {
	if err := f.fire(EventBeginLoad); err != nil {
		return f.generation, err
	}
	f.generation++
	f.token = token
	f.err = ""
	f.scrolledToBottom = false
	return f.generation, nil
}

func (f *Flow) checkGeneration(gen uint64) error {
	if gen != f.generation {
		return ErrStaleLoad
	}
	return nil
}

// Loaded records a successful load. alreadyApproved jumps straight to the terminal phase.
func (f *Flow) Loaded(gen uint64, alreadyApproved bool) error {
	if err := f.checkGeneration(gen); err != nil {
		return err
	}
	ev := EventLoaded
	if alreadyApproved {
		ev = EventAlreadyApproved
	}
	return f.fire(ev)
}

func (f *Flow) LoadFailed(gen uint64, message string) error {
	if err := f.checkGeneration(gen); err != nil {
		return err
	}
	if err := f.fire(EventLoadFailed); err != nil {
		return err
	}
	f.err = message
	return nil
}

// Scrolled recomputes the scroll flag from viewport metrics. Ignored until content is shown.
func (f *Flow) Scrolled(scrollTop, clientHeight, scrollHeight float64) {
	if f.phase != PhaseReady {
		return
	}
	f.scrolledToBottom = AtBottom(scrollTop, clientHeight, scrollHeight)
}

func (f *Flow) SetFullName(name string) { f.fullName = name }

func (f *Flow) SetCaptchaToken(token string) { f.captchaToken = token }

// Reason returns the highest priority reason the gate is closed, or ReasonReady.
func (f *Flow) Reason() GateReason {
	for _, r := range gateOrder {
		if f.blockedBy(r) {
			return r
		}
	}
	return ReasonReady
}

func (f *Flow) blockedBy(r GateReason) bool {
	switch r {
	case ReasonNotScrolled:
		return !f.scrolledToBottom
	case ReasonNameEmpty:
		return strings.TrimSpace(f.fullName) == ""
	case ReasonCaptchaIncomplete:
		return f.captchaToken == ""
	default:
		return true
	}
}

// CanApprove reports whether the confirm action is enabled.
func (f *Flow) CanApprove() bool {
	return f.phase == PhaseReady && f.Reason() == ReasonReady
}

// BeginApproval moves to approving and returns the trimmed name to submit.
func (f *Flow) BeginApproval() (string, error) {
	if f.phase == PhaseReady && f.Reason() != ReasonReady {
		f.err = GateMessages[f.Reason()]
		return "", fmt.Errorf("%w: %s", ErrGateClosed, f.Reason())
	}
	if err := f.fire(EventBeginApproval); err != nil {
		return "", err
	}
	f.err = ""
	return strings.TrimSpace(f.fullName), nil
}

// ApprovalFailed returns to ready and clears the captcha token so the widget must be solved again.
func (f *Flow) ApprovalFailed(message string) error {
	if err := f.fire(EventApprovalFailed); err != nil {
		return err
	}
	f.err = message
	f.captchaToken = ""
	return nil
}

func (f *Flow) ApprovalSucceeded() error {
	return f.fire(EventApprovalSucceeded)
}

// FlowState is a read-only view of a Flow.
type FlowState struct {
	Phase            Phase      `json:"phase"`
	Token            string     `json:"token"`
	Loading          bool       `json:"loading"`
	Error            string     `json:"error,omitempty"`
	ScrolledToBottom bool       `json:"scrolled_to_bottom"`
	Approving        bool       `json:"approving"`
	Approved         bool       `json:"approved"`
	ConfirmEnabled   bool       `json:"confirm_enabled"`
	Reason           GateReason `json:"reason"`
}

func (f *Flow) State() FlowState {
	return FlowState{
		Phase:            f.phase,
		Token:            f.token,
		Loading:          f.phase == PhaseLoading,
		Error:            f.err,
		ScrolledToBottom: f.scrolledToBottom,
		Approving:        f.phase == PhaseApproving,
		Approved:         f.phase == PhaseApproved,
		ConfirmEnabled:   f.CanApprove(),
		Reason:           f.Reason(),
	}
}
