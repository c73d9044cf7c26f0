package policy

import (
	"strings"

	"github.com/openvia/openvia/internal/tools/security"
)

// ShellMatcher decides whether a shell/bash/exec tool call's command string
// is safe to auto-allow or must go through the confirm-list / default
// approval path. It is immutable after construction, matching the spec's
// requirement that the confirm list be fixed at startup.
type ShellMatcher struct {
	confirmList []string
}

// NewShellMatcher builds a matcher from the configured shellConfirmList. An
// empty list seeds spec §4.3's documented default rather than leaving the
// matcher toothless — an unconfigured gateway must still ask before running
// rm/mv/sudo/... (DefaultConfirmList).
func NewShellMatcher(confirmList []string) *ShellMatcher {
	if len(confirmList) == 0 {
		confirmList = DefaultConfirmList()
	}
	cp := make([]string, len(confirmList))
	copy(cp, confirmList)
	return &ShellMatcher{confirmList: cp}
}

// DefaultConfirmList returns spec §4.3's documented confirm-list default,
// used whenever llm.shellConfirmList is left unset.
func DefaultConfirmList() []string {
	return []string{"rm", "mv", "sudo", "su", "dd", "reboot", "shutdown", "mkfs", "chmod", "chown", ">", ">>", "|"}
}

// safeCommandPrefixes are the read-only, non-destructive commands spec
// §4.3's safe-pattern set names (get-date/date, timedatectl, whoami,
// hostname, uname, uptime, pwd), auto-allowed even without a confirm-list
// entry provided the command contains no unquoted shell metacharacters that
// could chain in a second command.
var safeCommandPrefixes = []string{
	"date", "get-date", "timedatectl", "whoami", "hostname", "uname", "uptime", "pwd",
}

// IsSafe reports whether cmd matches a built-in safe prefix and contains no
// unquoted shell metacharacters that could smuggle in a second command. The
// metacharacter scan is quote-aware (security.AnalyzeCommandQuoteAware), so
// a quoted ";" inside an argument doesn't disqualify an otherwise-safe
// command.
func (m *ShellMatcher) IsSafe(cmd string) bool {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return true
	}
	if !security.IsSafeCommand(trimmed) {
		return false
	}
	for _, prefix := range safeCommandPrefixes {
		if trimmed == prefix || strings.HasPrefix(trimmed, prefix+" ") {
			return true
		}
	}
	return false
}

// NeedsConfirm reports whether cmd contains any entry in the configured
// confirm list as a substring (spec §4.3 step 5: "if command contains any
// substring in the confirm list"). This is deliberately looser than
// MatchPattern's anchored matching: a confirm-list entry like "rm" or ">"
// must catch it wherever it appears, including after a pipe or redirect
// (e.g. "curl ... | sh", "echo x > /etc/passwd"), not just as the command's
// own first token.
func (m *ShellMatcher) NeedsConfirm(cmd string) bool {
	trimmed := strings.TrimSpace(cmd)
	for _, entry := range m.confirmList {
		if entry == "" {
			continue
		}
		if strings.Contains(trimmed, entry) {
			return true
		}
	}
	return false
}
