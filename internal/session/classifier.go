package session

import "strings"

// CommandResult is a device reply with the classifier's verdict attached.
// Raw is always the full reply text, even on failure, because the raw
// device dialogue is the primary debugging aid in this domain.
type CommandResult struct {
	Raw string
	OK  bool
}

// Classifier turns a raw, free-text device reply into a typed verdict.
// The device protocol has no structured success signal, so recognition is
// pattern-based and deliberately pluggable per device family.
type Classifier interface {
	Classify(command, raw string) CommandResult
}

// PatternClassifier classifies replies against known device output strings.
// Negative patterns win over affirmative ones; an unrecognized non-empty
// reply is a failure.
type PatternClassifier struct {
	// Affirmative substrings mean the command took effect.
	Affirmative []string
	// Negative substrings mean the device rejected the command.
	Negative []string
	// EmptyOK treats an empty reply as success. Command-line devices
	// commonly acknowledge removal commands with silence.
	EmptyOK bool
}

// DefaultClassifier recognizes the reply vocabulary of shun-capable
// firewall devices.
func DefaultClassifier() *PatternClassifier {
	return &PatternClassifier{
		Affirmative: []string{"successful", "success", "added", "ok"},
		Negative:    []string{"error", "invalid", "failed", "incomplete", "unrecognized", "%"},
		EmptyOK:     true,
	}
}

// Classify implements Classifier.
func (p *PatternClassifier) Classify(_, raw string) CommandResult {
	reply := strings.ToLower(strings.TrimSpace(raw))

	if reply == "" {
		return CommandResult{Raw: raw, OK: p.EmptyOK}
	}
	for _, pat := range p.Negative {
		if strings.Contains(reply, strings.ToLower(pat)) {
			return CommandResult{Raw: raw, OK: false}
		}
	}
	for _, pat := range p.Affirmative {
		if strings.Contains(reply, strings.ToLower(pat)) {
			return CommandResult{Raw: raw, OK: true}
		}
	}
	return CommandResult{Raw: raw, OK: false}
}
