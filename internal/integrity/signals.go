// Package integrity turns client-side integrity signals and periodic
// environment re-checks into disqualification events.
package integrity

import "strings"

// Disqualification reasons raised by the monitor.
const (
	ReasonTabSwitch        = "Tab switching detected"
	ReasonScreenshot       = "Screenshot attempt detected"
	ReasonScreenRecording  = "Screen recording attempt detected"
	ReasonEnvironment      = "Environment security violation detected during assessment"
	ReasonPageSave         = "Page saving attempt detected"
	ReasonDevTools         = "Developer tools access attempt"
	ReasonViewSource       = "View source attempt detected"
	ReasonDefault          = "Potential academic integrity violation"
	WarningCopy            = "Copying is not allowed during the assessment"
	WarningContextMenu     = "Right-click is disabled during the assessment"
	sourceClient           = "client"
	sourceEnvironmentCheck = "environment-recheck"
)

// SignalKind names a client-side event forwarded to the monitor.
type SignalKind string

const (
	SignalVisibility     SignalKind = "visibility"
	SignalKeyDown        SignalKind = "keydown"
	SignalDisplayCapture SignalKind = "display-capture"
	SignalCopy           SignalKind = "copy"
	SignalCut            SignalKind = "cut"
	SignalPaste          SignalKind = "paste"
	SignalContextMenu    SignalKind = "contextmenu"
	SignalDragStart      SignalKind = "dragstart"
	SignalDrop           SignalKind = "drop"
)

// Signal is one client-side event.
type Signal struct {
	Kind   SignalKind `json:"kind" validate:"required,oneof=visibility keydown display-capture copy cut paste contextmenu dragstart drop"`
	Hidden bool       `json:"hidden"`
	Key    string     `json:"key" validate:"max=32"`
	Code   string     `json:"code" validate:"max=32"`
	Meta   bool       `json:"metaKey"`
	Ctrl   bool       `json:"ctrlKey"`
	Shift  bool       `json:"shiftKey"`
	Alt    bool       `json:"altKey"`
}

// Verdict tells the client what to do with a signal.
type Verdict struct {
	// Block asks the client to prevent the default action.
	Block bool `json:"block"`
	// Reason is set when the signal disqualifies the attempt.
	Reason string `json:"reason,omitempty"`
	// Warning is a non-fatal notice to show the user.
	Warning string `json:"warning,omitempty"`
}

// Disqualifies reports whether the verdict ends the attempt.
func (v Verdict) Disqualifies() bool {
	return v.Reason != ""
}

// Classify maps a signal to its verdict. It has no side effects.
func Classify(sig Signal) Verdict {
	switch sig.Kind {
	case SignalVisibility:
		if sig.Hidden {
			return Verdict{Reason: ReasonTabSwitch}
		}
	case SignalKeyDown:
		return classifyKey(sig)
	case SignalDisplayCapture:
		return Verdict{Block: true, Reason: ReasonScreenRecording}
	case SignalCopy, SignalCut, SignalPaste:
		return Verdict{Block: true, Warning: WarningCopy}
	case SignalContextMenu:
		return Verdict{Block: true, Warning: WarningContextMenu}
	case SignalDragStart, SignalDrop:
		return Verdict{Block: true}
	}
	return Verdict{}
}

func classifyKey(sig Signal) Verdict {
	key := strings.ToLower(sig.Key)
	cmd := sig.Meta || sig.Ctrl

	if sig.Key == "PrintScreen" || sig.Code == "PrintScreen" {
		return Verdict{Block: true, Reason: ReasonScreenshot}
	}
	if cmd && sig.Shift && isDigitKey(sig, '3', '4', '5') {
		return Verdict{Block: true, Reason: ReasonScreenshot}
	}
	if sig.Meta && sig.Shift && (key == "s" || sig.Code == "KeyS") {
		return Verdict{Block: true, Reason: ReasonScreenshot}
	}
	if cmd && (key == "s" || sig.Code == "KeyS") {
		return Verdict{Block: true, Reason: ReasonPageSave}
	}
	if sig.Key == "F12" ||
		(sig.Ctrl && sig.Shift && (key == "i" || sig.Code == "KeyI")) ||
		(sig.Meta && sig.Alt && (key == "i" || sig.Code == "KeyI")) {
		return Verdict{Block: true, Reason: ReasonDevTools}
	}
	if cmd && (key == "u" || sig.Code == "KeyU") {
		return Verdict{Block: true, Reason: ReasonViewSource}
	}
	return Verdict{}
}

func isDigitKey(sig Signal, digits ...byte) bool {
	for _, d := range digits {
		if sig.Key == string(d) || sig.Code == "Digit"+string(d) {
			return true
		}
	}
	return false
}
