// Package crash implements the Crash Pipeline (§4.L): dedup cache,
// sanitizer, freshness validator, LLM analyzer, fix planner, board
// patcher, and session recorder. Grounded on
// original_source/api/crash_doctor/{log_sanitizer,log_validator,
// log_cache,fix_planner,board_patcher}.py for exact semantics.
package crash

import (
	"regexp"
	"strings"
)

const (
	// maxSanitizedLength is the truncation budget (§4.L.2's "N (20,000)").
	maxSanitizedLength = 20000
	// modListHeadLines/modListTailLines bound an embedded mod list's
	// size before collapsing its middle into a marker.
	modListHeadLines = 30
	modListTailLines = 10
	modListThreshold = modListHeadLines + modListTailLines
)

var (
	windowsUserPath = regexp.MustCompile(`(?i)[A-Z]:\\Users\\[^\\]+`)
	unixHomePath    = regexp.MustCompile(`/home/[^/]+`)
	macHomePath     = regexp.MustCompile(`/Users/[^/]+`)
	uuidPattern     = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	ipPattern       = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)
	modListHeader    = regexp.MustCompile(`(?i)Mod List:|Name Version \(Mod Id\)`)
	accessTokenArg   = regexp.MustCompile(`(--accessToken,?\s+)[^\s,\]]+`)
)

// Sanitized is the Sanitizer stage's output (§4.L.2).
type Sanitized struct {
	Log          string
	MCVersion    string
	ModLoader    string
	ErrorKind    string
	StackTrace   string
	ModsInLog    []string
}

// Sanitize strips PII (user paths, IPs, UUIDs, timestamps, --accessToken
// values), keeps only the first "Cowardly refusing to send event" line,
// collapses an embedded mod list down to its head/tail, and extracts the
// structured fields used by the rest of the pipeline. A log still longer
// than maxSanitizedLength is cut to its first and last
// maxSanitizedLength/2 bytes around a marker; text in the dropped middle,
// including any error lines there, is not kept.
func Sanitize(rawLog string) Sanitized {
	lines := strings.Split(rawLog, "\n")
	stripped := make([]string, 0, len(lines))
	seenCowardly := false
	for _, line := range lines {
		if strings.Contains(line, "Cowardly refusing to send event") {
			if seenCowardly {
				continue
			}
			seenCowardly = true
		}
		l := windowsUserPath.ReplaceAllString(line, "[USER_PATH]")
		l = unixHomePath.ReplaceAllString(l, "[USER_PATH]")
		l = macHomePath.ReplaceAllString(l, "[USER_PATH]")
		l = uuidPattern.ReplaceAllString(l, "[UUID]")
		l = ipPattern.ReplaceAllString(l, "[IP]")
		l = timestampPattern.ReplaceAllString(l, "[TIMESTAMP]")
		l = accessTokenArg.ReplaceAllString(l, "${1}[REDACTED]")
		stripped = append(stripped, l)
	}

	collapsed := collapseModList(stripped)
	log := strings.Join(collapsed, "\n")

	if len(log) > maxSanitizedLength {
		half := maxSanitizedLength / 2
		log = log[:half] + "\n... [TRUNCATED] ...\n" + log[len(log)-half:]
	}

	return Sanitized{
		Log:        log,
		MCVersion:  extractMCVersion(log),
		ModLoader:  extractModLoader(log),
		ErrorKind:  classifyErrorKind(log),
		StackTrace: extractStackTrace(log),
		ModsInLog:  extractModIDs(log),
	}
}

// collapseModList finds a "Mod List:" section and, if it runs past
// modListThreshold lines, keeps only the first modListHeadLines and last
// modListTailLines with a truncation marker in between.
func collapseModList(lines []string) []string {
	start := -1
	for i, l := range lines {
		if modListHeader.MatchString(l) {
			start = i
			break
		}
	}
	if start == -1 {
		return lines
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" || strings.HasPrefix(strings.TrimSpace(lines[i]), "--") {
			end = i
			break
		}
	}

	section := lines[start:end]
	if len(section) <= modListThreshold {
		return lines
	}

	marker := "... [TRUNCATED: " + itoa(len(section)-modListThreshold) + " mods] ..."
	collapsedSection := append(append(append([]string{}, section[:modListHeadLines]...), marker), section[len(section)-modListTailLines:]...)

	out := make([]string, 0, len(lines))
	out = append(out, lines[:start]...)
	out = append(out, collapsedSection...)
	out = append(out, lines[end:]...)
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

var mcVersionPattern = regexp.MustCompile(`\b(\d+\.\d+(?:\.\d+)?)\b`)

func extractMCVersion(log string) string {
	m := mcVersionPattern.FindStringSubmatch(log)
	if m == nil {
		return ""
	}
	return m[1]
}

func extractModLoader(log string) string {
	lower := strings.ToLower(log)
	switch {
	case strings.Contains(lower, "neoforge"):
		return "neoforge"
	case strings.Contains(lower, "forge"):
		return "forge"
	case strings.Contains(lower, "fabric-loader"), strings.Contains(lower, "fabric loader"):
		return "fabric"
	default:
		return ""
	}
}

var modIDInParens = regexp.MustCompile(`\(([a-z0-9_-]+)\)`)

// classifyErrorKind runs a coarse keyword classification used to seed the
// Analyzer's prompt — the Analyzer's own LLM-produced error_kind is
// authoritative, this is only a hint carried alongside the sanitized log.
func classifyErrorKind(log string) string {
	lower := strings.ToLower(log)
	switch {
	case strings.Contains(lower, "mixin") && (strings.Contains(lower, "target") || strings.Contains(lower, "not found")):
		return "mixin_error"
	case strings.Contains(log, "ClassNotFoundException"), strings.Contains(log, "NoClassDefFoundError"):
		return "class_not_found"
	case strings.Contains(lower, "is a fabric mod and cannot be loaded"):
		return "fabric_on_forge"
	case strings.Contains(lower, "is not installed"), strings.Contains(lower, "requires"), strings.Contains(lower, "missing"):
		return "missing_dependency"
	case strings.Contains(lower, "conflict"), strings.Contains(lower, "incompatible"):
		return "mod_conflict"
	case strings.Contains(log, "OutOfMemoryError"):
		return "memory"
	default:
		return "unknown"
	}
}

var stackFrame = regexp.MustCompile(`(?m)^\s*at .+$`)

// extractStackTrace pulls every "at ..." frame line, preserving order,
// as a lightweight stand-in for the full stack trace section.
func extractStackTrace(log string) string {
	frames := stackFrame.FindAllString(log, -1)
	return strings.Join(frames, "\n")
}

// extractModIDs pulls candidate mod ids out of a "Mod List:" style
// section — the set used by the Log Validator's overlap check.
func extractModIDs(log string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range modIDInParens.FindAllStringSubmatch(log, -1) {
		id := strings.ToLower(m[1])
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
