package integrity

import "strings"

// Explain returns the user-facing explanation for a disqualification reason.
func Explain(reason string) string {
	switch {
	case reason == ReasonTabSwitch:
		return "You switched to another browser tab during the assessment. Tab switching is not allowed during assessments as it violates the integrity policy."
	case strings.HasPrefix(reason, ReasonScreenshot):
		return "You attempted to take a screenshot during the assessment. Screenshots are not allowed as they can be used to share assessment content."
	case reason == ReasonScreenRecording:
		return "You attempted to record or share your screen during the assessment, which violates the integrity policy."
	case strings.Contains(reason, "Looking away") || strings.Contains(reason, "Face not detected") || strings.Contains(reason, "gaze"):
		return "Our proctoring system detected that you were looking away from the screen or your face was not visible for too long, which violates the assessment integrity policy."
	case strings.Contains(reason, "Environment security violation") || strings.Contains(reason, "High-risk environment"):
		return "Our security system detected changes in your environment during the assessment, such as activation of remote access tools or virtual machines, which violates the assessment integrity policy."
	default:
		return "An academic integrity violation was detected during the assessment."
	}
}
