// Package compose renders recipient groups into subject and HTML body
// text. It is string substitution only: the two selection rules
// (subject by group size, snippet by stage) are the whole of its
// decision surface, and both are driven by configured templates.
package compose

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/steelbid/followup/internal/proposal"
)

// Subjects holds the three size-selected subject templates.
type Subjects struct {
	Single   string `yaml:"single" json:"single"`
	Two      string `yaml:"two" json:"two"`
	Multiple string `yaml:"multiple" json:"multiple"`
}

// Templates is the configured email template set.
//
// Recognized placeholders: {contact}, {project}, {projects}, {count},
// {date}, {value}, {snippet}. Unknown text passes through untouched.
type Templates struct {
	Subjects Subjects `yaml:"subjects" json:"subjects"`
	Greeting string   `yaml:"greeting" json:"greeting"`
	Intro    string   `yaml:"intro" json:"intro"`
	Item     string   `yaml:"item" json:"item"`
	Closing  string   `yaml:"closing" json:"closing"`

	// Snippets are indexed by follow-up stage. A stage beyond the last
	// configured snippet reuses the last one: late-stage courtesy notes
	// repeat rather than run out.
	Snippets []string `yaml:"snippets" json:"snippets"`
}

// dateLayout matches the store's US date convention.
const dateLayout = "01-02-2006"

// money formats values with grouping per US conventions.
var money = message.NewPrinter(language.AmericanEnglish)

// Composer renders groups using a fixed template set and a default
// signature for transports that expose none.
type Composer struct {
	t                Templates
	defaultSignature string
}

// New builds a Composer.
func New(t Templates, defaultSignature string) *Composer {
	return &Composer{t: t, defaultSignature: defaultSignature}
}

// Snippet returns the stage-selected snippet, clamped to the last
// configured entry. Empty when no snippets are configured.
func (c *Composer) Snippet(stage int) string {
	if len(c.t.Snippets) == 0 {
		return ""
	}
	if stage >= len(c.t.Snippets) {
		stage = len(c.t.Snippets) - 1
	}
	if stage < 0 {
		stage = 0
	}
	return c.t.Snippets[stage]
}

// Subject selects and fills the subject template for a group.
//
// Size 1 uses the single-project template, size 2 the two-project
// template, three or more the multiple-projects template.
func (c *Composer) Subject(facts []proposal.Fact) string {
	names := projectNames(facts)
	var tmpl string
	switch len(facts) {
	case 0:
		return ""
	case 1:
		tmpl = c.t.Subjects.Single
	case 2:
		tmpl = c.t.Subjects.Two
	default:
		tmpl = c.t.Subjects.Multiple
	}
	return substitute(tmpl, map[string]string{
		"project":  names[0],
		"projects": joinNames(names),
		"count":    money.Sprintf("%d", len(facts)),
	})
}

// Body assembles the HTML body: greeting, intro, one item per
// proposal in group order, closing, then the signature. An empty
// transport signature falls back to the configured default block.
func (c *Composer) Body(contactName string, facts []proposal.Fact, signature string) string {
	if signature == "" {
		signature = c.defaultSignature
	}

	var b strings.Builder
	b.WriteString(substitute(c.t.Greeting, map[string]string{"contact": firstName(contactName)}))
	b.WriteString(c.t.Intro)
	for _, f := range facts {
		b.WriteString(substitute(c.t.Item, map[string]string{
			"project": f.Project,
			"date":    f.Submitted.Format(dateLayout),
			"value":   valueSuffix(f),
			"snippet": c.Snippet(f.Stage),
		}))
	}
	b.WriteString(c.t.Closing)
	b.WriteString(signature)
	return b.String()
}

// valueSuffix renders the optional monetary clause for an item.
func valueSuffix(f proposal.Fact) string {
	if !f.HasValue {
		return ""
	}
	return money.Sprintf(" for $%.2f", f.Value)
}

func firstName(contactName string) string {
	fields := strings.Fields(contactName)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func projectNames(facts []proposal.Fact) []string {
	names := make([]string, len(facts))
	for i, f := range facts {
		names[i] = f.Project
	}
	return names
}

// joinNames renders "A", "A and B", or "A, B, and C".
func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}

// substitute replaces {key} markers with their values. Plain string
// replacement, no escaping: templates are trusted configuration.
func substitute(tmpl string, vars map[string]string) string {
	out := tmpl
	for key, val := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", val)
	}
	return out
}

// FormatDate renders a calendar date the way item templates do.
// Exposed for log lines that mention proposal dates.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
