// Package policy implements the tool-call authorization ladder: a total
// function from (user, chat, tool, args) to an allow/deny/require_approval
// decision, plus the bounded audit trail of every decision made.
package policy

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/openvia/openvia/internal/tools/security"
	"github.com/openvia/openvia/pkg/models"
)

// readTokens are the substrings that, found anywhere in a tool's name
// (case-insensitively), mark it as observe-only and auto-allowed by step 4
// of the decision ladder.
var readTokens = []string{"read", "list", "ls", "search", "grep", "glob", "view"}

// writeTokens mark a tool as mutating; step 6 of the ladder requires
// approval for any tool name containing one of these, once steps 1-5 have
// not already decided.
var writeTokens = []string{"write", "edit", "delete", "remove", "create"}

func nameContainsAny(name string, tokens []string) bool {
	lower := strings.ToLower(name)
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// Rule is one entry in a user's ordered rule list. Pattern is matched with
// MatchPattern: "*" matches everything, "prefix*" matches by prefix, anything
// else matches exactly. Decision defaults to allow when left unset, so
// existing allow-only rule sets keep working unchanged; operators can also
// write a deny or require_approval rule to override the built-in heuristics
// for a pattern (spec §9: "operators can override with allow-all or
// deny-all patterns").
type Rule struct {
	Pattern  string
	Decision models.DecisionKind
	Reason   string
}

// Config is a user's policy configuration, immutable after Engine
// construction — the spec requires PolicyEngine.rules to be treated as
// immutable after startup.
type Config struct {
	DeniedTools      []string
	AllowedTools     []string
	UserRules        []Rule
	ShellConfirmList []string
}

// Engine evaluates tool calls against a per-user policy configuration and a
// shared shell safe-pattern table, and records every decision into a bounded
// audit ring buffer.
type Engine struct {
	configs map[string]Config // keyed by userID
	shell   *ShellMatcher

	mu sync.Mutex // guards configs map only; Config values themselves are immutable once set

	audit *AuditLog
}

// NewEngine creates a Policy Engine. shellConfirmList is the global
// configuration value (spec §6 llm.shellConfirmList); it is immutable for
// the process lifetime.
func NewEngine(shellConfirmList []string) *Engine {
	return &Engine{
		configs: make(map[string]Config),
		shell:   NewShellMatcher(shellConfirmList),
		audit:   NewAuditLog(1000),
	}
}

// SetUserConfig installs (or replaces) a user's policy configuration. Called
// at startup or on an explicit config reload; never concurrently with
// Evaluate for the same user in a way that matters, since reads take a
// snapshot copy under the map mutex.
func (e *Engine) SetUserConfig(userID string, cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs[userID] = cfg
}

func (e *Engine) configFor(userID string) Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configs[userID]
}

// Evaluate runs the decision ladder for one proposed tool call. sessionAllowed
// and sessionDenied are the calling Session's own AllowedTools/DeniedTools
// overrides (spec §4.3's `session.allowedTools`/`session.deniedTools`
// evaluate inputs); they are checked ahead of the user's persisted Config
// lists, which played the same role in this Engine's own SetUserConfig-driven
// overrides. Evaluate never fails: every branch returns a PolicyDecision, and
// Evaluate always appends one AuditEntry before returning.
//
// Ladder, in order:
//  1. session/user deniedTools: exact-match deny.
//  2. session/user allowedTools: exact-match allow.
//  3. user rules, first match wins ("*", "prefix*", or exact); a rule's own
//     Decision (allow/deny/require_approval) wins outright.
//  4. built-in read tools: always allow.
//  5. shell/bash calls: safe-pattern allow, confirm-list entries require
//     approval.
//  6. built-in write/edit/delete tools: require approval.
//  7. default: require approval.
func (e *Engine) Evaluate(userID, chatID, toolName string, args []byte, sessionAllowed, sessionDenied []string) models.PolicyDecision {
	cfg := e.configFor(userID)
	decision := e.decide(cfg, toolName, args, sessionAllowed, sessionDenied)
	e.audit.Record(models.AuditEntry{
		UserID:       userID,
		ChatID:       chatID,
		Tool:         toolName,
		ArgsSnapshot: snapshot(args),
		Decision:     string(decision.Decision),
	})
	return decision
}

func (e *Engine) decide(cfg Config, toolName string, args []byte, sessionAllowed, sessionDenied []string) models.PolicyDecision {
	// 1. deniedTools: exact-match deny, first-checked regardless of anything
	// else (spec §4.3 step 1). Session overrides are checked ahead of the
	// user's persisted config list.
	for _, denied := range sessionDenied {
		if denied == toolName {
			return models.PolicyDecision{Decision: models.DecisionDeny, Reason: "denied for this user"}
		}
	}
	for _, denied := range cfg.DeniedTools {
		if denied == toolName {
			return models.PolicyDecision{Decision: models.DecisionDeny, Reason: "denied for this user"}
		}
	}

	// 2. allowedTools, when set, is a restrictive whitelist: anything not
	// named in it is denied (spec §4.3 step 2). It never grants allow by
	// itself — that still flows through steps 3-7.
	if len(sessionAllowed) > 0 && !containsString(sessionAllowed, toolName) {
		return models.PolicyDecision{Decision: models.DecisionDeny, Reason: "not in allowed list"}
	}
	if len(cfg.AllowedTools) > 0 && !containsString(cfg.AllowedTools, toolName) {
		return models.PolicyDecision{Decision: models.DecisionDeny, Reason: "not in allowed list"}
	}

	// 3. user rules, first match wins. A rule with no Decision set defaults
	// to allow, matching the plain allow-list rules this ladder started
	// with; a rule can also carry deny or require_approval to let an
	// operator override the built-in heuristics below for a pattern.
	for _, rule := range cfg.UserRules {
		if !MatchPattern(rule.Pattern, toolName) {
			continue
		}
		decision := rule.Decision
		if decision == "" {
			decision = models.DecisionAllow
		}
		reason := rule.Reason
		if reason == "" {
			reason = "matched user rule " + rule.Pattern
		}
		return models.PolicyDecision{Decision: decision, Reason: reason}
	}

	// 4. built-in read-only heuristic: name contains read/list/ls/search/
	// grep/glob/view.
	if nameContainsAny(toolName, readTokens) {
		return models.PolicyDecision{Decision: models.DecisionAllow, Reason: "built-in read-only heuristic"}
	}

	// 5. shell/bash: safe-pattern allowlist, else confirm-list requires
	// approval, else allow.
	lower := strings.ToLower(toolName)
	if lower == "shell" || lower == "bash" {
		command := extractCommand(args)
		if e.shell.IsSafe(command) {
			return models.PolicyDecision{Decision: models.DecisionAllow, Reason: "matched safe shell pattern"}
		}
		if e.shell.NeedsConfirm(command) {
			reason := "matched shell confirm-list entry"
			if why := security.ExtractUnsafeReason(command); why != "" {
				reason += ": " + why
			}
			return models.PolicyDecision{Decision: models.DecisionRequireApproval, Reason: reason}
		}
		return models.PolicyDecision{Decision: models.DecisionAllow, Reason: "shell command not on confirm list"}
	}

	// 6. built-in write heuristic: name contains write/edit/delete/remove/
	// create.
	if nameContainsAny(toolName, writeTokens) {
		return models.PolicyDecision{Decision: models.DecisionRequireApproval, Reason: "built-in write heuristic requires approval: " + truncateArgs(args)}
	}

	// 7. default: require approval with a generic prompt.
	return models.PolicyDecision{Decision: models.DecisionRequireApproval, Reason: "no matching rule, default to approval: " + truncateArgs(args)}
}

func containsString(list []string, needle string) bool {
	for _, v := range list {
		if v == needle {
			return true
		}
	}
	return false
}

func truncateArgs(args []byte) string {
	const maxLen = 100
	s := string(args)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// AuditLog returns the engine's audit trail for inspection.
func (e *Engine) AuditLog() *AuditLog { return e.audit }

// MatchPattern implements the spec's three user-rule pattern forms:
// "*" matches anything, "prefix*" matches by prefix, anything else is an
// exact match.
func MatchPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == name
}

func snapshot(args []byte) string {
	const maxLen = 512
	s := string(args)
	if len(s) > maxLen {
		return s[:maxLen] + "...(truncated)"
	}
	return s
}

func extractCommand(args []byte) string {
	// Tool args for shell/bash/exec carry {"command": "..."} by convention;
	// fall back to the raw args so IsSafe/NeedsConfirm still has something to
	// match against if the payload isn't the expected shape.
	var parsed struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil || parsed.Command == "" {
		return string(args)
	}
	return parsed.Command
}
