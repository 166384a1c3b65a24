// Package safety provides the advisory gate in front of shell and filesystem
// skills: command risk classification, workspace path validation, and secret
// redaction of tool output. It gates and warns; it is not a sandbox.
package safety

import (
	"strings"
)

// RiskLevel classifies how dangerous a shell command looks.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskBlocked
)

// String returns the level name used in tool output prefixes.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskBlocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// CommandRisk is the result of classifying one command string.
type CommandRisk struct {
	Level  RiskLevel
	Reason string
}

// catastrophicPatterns are substrings that block a command outright, with
// no confirmation path: filesystem wipes, raw device writes, fork bombs.
// They apply regardless of configuration; the configured blocklist only
// extends this set.
var catastrophicPatterns = []string{
	"rm -rf /",
	"rm -fr /",
	"rm -rf ~",
	"rm -rf *",
	"> /dev/sd",
	"of=/dev/sd",
	"of=/dev/nvme",
	"mkfs",
	":(){:|:&};:",
	":(){ :|:& };:",
}

// dangerousPatterns are substrings that mark a command as high risk no matter
// what the leading verb is. Checked after the blocked tiers.
var dangerousPatterns = []string{
	"| bash",
	"| sh",
	"|bash",
	"|sh",
	"chmod 777",
	"chmod -r 777",
	"dd if=",
	"shutdown",
	"reboot",
	"halt -f",
}

// highRiskVerbs escalate to high risk when they lead the command.
var highRiskVerbs = []string{
	"sudo ",
	"su ",
	"rm ",
	"rmdir ",
	"chmod ",
	"chown ",
	"docker ",
	"kubectl ",
	"systemctl ",
	"truncate ",
	"git push",
	"git reset --hard",
	"git clean",
}

// modificationVerbs are build/package/file mutation commands.
var modificationVerbs = []string{
	"cargo ", "npm ", "npx ", "yarn ", "pnpm ", "pip ", "pip3 ",
	"go ", "make", "cmake ", "mvn ", "gradle ",
	"sed ", "awk ", "mkdir ", "touch ", "mv ", "cp ", "ln ",
	"tee ", "patch ", "tar ", "unzip ", "zip ",
	"git add", "git commit", "git checkout", "git merge", "git rebase",
	"git stash", "git fetch", "git pull",
}

// readOnlyVerbs never change anything.
var readOnlyVerbs = []string{
	"ls", "ll", "cat ", "head ", "tail ", "less ", "more ",
	"pwd", "echo ", "printf ", "which ", "whereis ", "type ",
	"wc ", "sort ", "uniq ", "cut ", "tr ", "diff ",
	"grep ", "rg ", "find ", "fd ", "stat ", "file ", "du ", "df ",
	"env", "printenv", "date", "whoami", "hostname", "uname",
	"git status", "git log", "git diff", "git show", "git branch",
	"git remote", "git blame",
}

// ClassifyCommand scans a command against the ordered pattern lists and
// returns its risk. The configured blocklist is consulted first, then the
// built-in catastrophic tier; both yield Blocked, which never spawns a
// process. The remaining tiers go from most to least specific.
func ClassifyCommand(command string, blocked []string) CommandRisk {
	lowered := strings.ToLower(strings.TrimSpace(command))
	if lowered == "" {
		return CommandRisk{Level: RiskBlocked, Reason: "empty command"}
	}

	for _, pattern := range blocked {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p != "" && strings.Contains(lowered, p) {
			return CommandRisk{Level: RiskBlocked, Reason: "contains blocked pattern: " + pattern}
		}
	}

	for _, pattern := range catastrophicPatterns {
		if strings.Contains(lowered, pattern) {
			return CommandRisk{Level: RiskBlocked, Reason: "contains " + pattern}
		}
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowered, pattern) {
			return CommandRisk{Level: RiskHigh, Reason: "contains " + pattern}
		}
	}

	for _, verb := range highRiskVerbs {
		if matchesVerb(lowered, verb) {
			return CommandRisk{Level: RiskHigh, Reason: "high-risk command: " + strings.TrimSpace(verb)}
		}
	}

	for _, verb := range modificationVerbs {
		if matchesVerb(lowered, verb) {
			return CommandRisk{Level: RiskMedium, Reason: "modifies files or state: " + strings.TrimSpace(verb)}
		}
	}

	for _, verb := range readOnlyVerbs {
		if matchesVerb(lowered, verb) {
			return CommandRisk{Level: RiskLow, Reason: "read-only"}
		}
	}

	return CommandRisk{Level: RiskMedium, Reason: "not in the known command list"}
}

// matchesVerb reports whether the command starts with the verb, treating a
// trailing space in the verb as a word boundary so "rm " does not match
// "rmdir" via the wrong tier.
func matchesVerb(command, verb string) bool {
	if strings.HasSuffix(verb, " ") {
		return strings.HasPrefix(command, verb) || command == strings.TrimSpace(verb)
	}
	return command == verb || strings.HasPrefix(command, verb+" ")
}
