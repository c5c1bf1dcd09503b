// Package classify maps free-text toolchain output to typed signals.
//
// The patterns here are a compatibility contract with the external
// toolchain's messages. They are deliberately kept in one data-driven table
// so an upstream wording change is a one-line fix, never a control-flow
// change elsewhere.
package classify

import "regexp"

// Kind identifies the meaning extracted from an output line.
type Kind int

const (
	// None means the line carries no known signature.
	None Kind = iota

	// StageMarker means the toolchain announced which library it is
	// working on.
	StageMarker

	// DependencyMissing means the toolchain reported a library source as
	// absent from its download cache.
	DependencyMissing
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case StageMarker:
		return "stage-marker"
	case DependencyMissing:
		return "dependency-missing"
	}
	return "none"
}

// Signal is the classified meaning of one output line.
type Signal struct {
	Kind    Kind
	Library string
}

// rule binds one toolchain message pattern to a signal constructor. The
// constructor receives the regex submatches and the classifier so rules
// that name no library can fall back to the last stage marker.
type rule struct {
	re   *regexp.Regexp
	make func(c *Classifier, match []string) Signal
}

// rules is the signature table, checked in order. First match wins.
var rules = []rule{
	{
		// e.g. "Building required lib [libxml2]"
		re: regexp.MustCompile(`Building required lib \[([^\]]+)\]`),
		make: func(c *Classifier, match []string) Signal {
			c.lastStage = match[1]
			return Signal{Kind: StageMarker, Library: match[1]}
		},
	},
	{
		// e.g. "Source [libxml2] is not downloaded or not locked"
		re: regexp.MustCompile(`\[([^\]]+)\] is not downloaded or not locked`),
		make: func(c *Classifier, match []string) Signal {
			return Signal{Kind: DependencyMissing, Library: match[1]}
		},
	},
	{
		// Older toolchain wording names no library; the last stage marker
		// tells us which one was being built.
		re: regexp.MustCompile(`not downloaded or not locked`),
		make: func(c *Classifier, match []string) Signal {
			return Signal{Kind: DependencyMissing, Library: c.lastStage}
		},
	},
	{
		// e.g. "Download for source [curl] is missing"
		re: regexp.MustCompile(`Download for source \[([^\]]+)\] is missing`),
		make: func(c *Classifier, match []string) Signal {
			return Signal{Kind: DependencyMissing, Library: match[1]}
		},
	},
}

// Classifier scans streamed toolchain output for known signatures. The only
// state it carries is the most recent stage marker, used to attribute
// library-less failure messages.
type Classifier struct {
	lastStage string
}

// New creates a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify returns the signal for one output line.
func (c *Classifier) Classify(line string) Signal {
	for _, r := range rules {
		if match := r.re.FindStringSubmatch(line); match != nil {
			return r.make(c, match)
		}
	}
	return Signal{Kind: None}
}

// LastStage returns the library named by the most recent stage marker.
func (c *Classifier) LastStage() string {
	return c.lastStage
}

// Reset clears the stage state for reuse across process invocations.
func (c *Classifier) Reset() {
	c.lastStage = ""
}
