package tools

import (
	"regexp"
	"strings"
)

// DenialReason identifies which security check rejected a call.
type DenialReason string

const (
	DenialConfirmationRequired DenialReason = "confirmation_required"
	DenialPathBlocked          DenialReason = "path_blocked"
	DenialDangerousCommand     DenialReason = "dangerous_command"
	DenialSecurityViolation    DenialReason = "security_violation"
)

// DenyPatterns contains regex patterns for dangerous commands.
var DenyPatterns = []string{
	`\brm\s+(-[rf]+\s+)*[/~]`, // rm with root or home
	`\brm\s+-rf\b`,            // rm -rf anywhere
	`\brm\s+-r[fF]?\s+\.\b`,   // rm -r . / rm -rf .
	`\brm\s+-r[fF]?\s+\*`,     // rm -r *
	`\brm\s+\*`,               // rm *
	`\bfind\b.*\b-delete\b`,   // find -delete
	`\bunlink\b`,              // unlink
	`\brmdir\b`,               // rmdir
	`\bdd\b.*\bof=/dev/`,      // dd to device
	`\bmkfs\b`,                // filesystem format
	`\bfdisk\b`,               // partition tool
	`>\s*/dev/`,               // redirect to device
	`\bchmod\s+-R\s+777\b`,    // chmod 777 recursive
	`\bchown\s+-R\b.*[/~]`,    // chown recursive on root/home
	`\bshutdown\b`,            // shutdown
	`\breboot\b`,              // reboot
	`\bhalt\b`,                // halt
	`\binit\s+[0-6]\b`,        // init level change
	`\bsystemctl\s+(start|stop|restart|enable|disable)\b`, // systemd control
}

// PathPatterns detect path traversal attempts.
var PathPatterns = []string{
	`\.\.\/`, // ../
	`\.\.\\`, // ..\
	`\/\.\.`, // /..
	`\\\.\.`, // \..
}

// BlockedPathPrefixes are absolute locations no tool may touch.
var BlockedPathPrefixes = []string{
	"/etc", "/sys", "/proc", "/boot", "/dev",
}

// pathArgKeys are argument names the guard treats as filesystem paths.
var pathArgKeys = map[string]bool{
	"path": true, "file": true, "dir": true, "directory": true,
	"source": true, "destination": true, "target": true, "output": true,
}

// Guard runs the pre-dispatch security checks.
type Guard struct {
	denyRegexes []*regexp.Regexp
	pathRegexes []*regexp.Regexp
}

// NewGuard compiles the deny and traversal patterns. Patterns that fail to
// compile are skipped.
func NewGuard() *Guard {
	g := &Guard{}
	for _, pattern := range DenyPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			g.denyRegexes = append(g.denyRegexes, re)
		}
	}
	for _, pattern := range PathPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			g.pathRegexes = append(g.pathRegexes, re)
		}
	}
	return g
}

// Validate checks a call before dispatch. It returns the denial reason and
// a user-facing message when a check fails, or empty strings when the call
// may proceed. Nothing is executed here.
func (g *Guard) Validate(def Definition, args map[string]any) (DenialReason, string) {
	if def.RequiresConfirm && !Confirmed(args) {
		return DenialConfirmationRequired, "tool requires explicit confirmation before it can run"
	}

	for key, v := range args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if pathArgKeys[key] {
			if reason, msg := g.checkPath(s); reason != "" {
				return reason, msg
			}
			continue
		}
		for _, re := range g.denyRegexes {
			if re.MatchString(s) {
				return DenialDangerousCommand, "argument matches a dangerous command pattern: " + re.String()
			}
		}
	}

	if def.RiskLevel == RiskHigh && !Confirmed(args) {
		return DenialConfirmationRequired, "high-risk tool requires explicit confirmation"
	}
	return "", ""
}

func (g *Guard) checkPath(path string) (DenialReason, string) {
	for _, re := range g.pathRegexes {
		if re.MatchString(path) {
			return DenialPathBlocked, "path traversal not allowed: " + path
		}
	}
	for _, prefix := range BlockedPathPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return DenialPathBlocked, "path is in a protected location: " + path
		}
	}
	if strings.ContainsRune(path, '\x00') {
		return DenialSecurityViolation, "path contains a null byte"
	}
	return "", ""
}
