package gate

import "strings"

var actionVerbs = []string{
	"deploy", "test", "monitor", "restart", "rollback", "roll back",
	"patch", "restore", "verify", "validate", "fix", "update", "upgrade",
	"reboot", "reconfigure", "escalate", "migrate", "revert", "apply",
	"replace", "increase", "clear", "rerun", "retest", "investigate",
}

// validateLocally accepts comments that name at least one actionable step.
func validateLocally(comment string) Result {
	lower := strings.ToLower(comment)
	for _, verb := range actionVerbs {
		if strings.Contains(lower, verb) {
			return Result{Valid: true, Message: acceptedMessage}
		}
	}
	return Result{Message: noActionMessage}
}
