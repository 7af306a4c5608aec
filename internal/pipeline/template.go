package pipeline

import (
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-research/internal/model"
)

// templateByCategory maps a dominant section category to the outreach
// template that plays to it. Categories missing here fall back to the
// general template.
var templateByCategory = map[string]string{
	"funding":        "congrats_funding",
	"product_launch": "product_launch",
	"partnership":    "partnership",
	"award":          "congrats_award",
	"job_change":     "congrats_role",
	"promotion":      "congrats_role",
	"hiring":         "growth",
}

// DefaultTemplate is used when no section gives a stronger signal.
const DefaultTemplate = "general_outreach"

// SelectTemplate picks the outreach template from the report's dominant
// section. The dominant section is the one with the most highlights;
// section order breaks ties, so earlier (higher-signal) categories win.
func SelectTemplate(sections []model.ReportSection) string {
	var dominant string
	best := 0
	for _, s := range sections {
		if len(s.Highlights) > best {
			best = len(s.Highlights)
			dominant = s.Category
		}
	}
	if name, ok := templateByCategory[dominant]; ok {
		return name
	}
	return DefaultTemplate
}

var emailTemplates = map[string]*template.Template{
	"congrats_funding": mustEmail("congrats_funding", `Hi {{.PersonName}},

Congratulations on {{.CompanyName}}'s recent funding news{{with .TopHighlight}}: {{.}}{{end}}

Teams usually revisit their tooling after a raise. Would a short call next week make sense?`),

	"product_launch": mustEmail("product_launch", `Hi {{.PersonName}},

Saw the news about {{.CompanyName}}'s latest launch{{with .TopHighlight}}: {{.}}{{end}}

We work with teams shipping at this pace. Open to comparing notes?`),

	"partnership": mustEmail("partnership", `Hi {{.PersonName}},

The new partnership announcement from {{.CompanyName}} caught my eye{{with .TopHighlight}}: {{.}}{{end}}

Would love to share how similar teams handle the integration side.`),

	"congrats_award": mustEmail("congrats_award", `Hi {{.PersonName}},

Congratulations on the recognition for {{.CompanyName}}{{with .TopHighlight}}: {{.}}{{end}}

Well deserved. If expanding on that momentum is on your roadmap, happy to help.`),

	"congrats_role": mustEmail("congrats_role", `Hi {{.PersonName}},

Congratulations on the new role at {{.CompanyName}}.

New leaders usually take stock of their stack in the first quarter. Worth a quick chat?`),

	"growth": mustEmail("growth", `Hi {{.PersonName}},

Looks like {{.CompanyName}} is growing quickly{{with .TopHighlight}}: {{.}}{{end}}

Scaling teams is exactly where we help most. Open to a short call?`),

	DefaultTemplate: mustEmail(DefaultTemplate, `Hi {{.PersonName}},

I've been following {{.CompanyName}} and thought it was worth reaching out directly.

Would you be open to a brief conversation?`),
}

func mustEmail(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

// emailData is the rendering context for outreach templates.
type emailData struct {
	PersonName   string
	CompanyName  string
	TopHighlight string
}

// RenderEmailDraft renders the report's selected template into an
// outreach draft.
func RenderEmailDraft(report *model.ResearchReport) (string, error) {
	tmpl, ok := emailTemplates[report.SelectedTemplate]
	if !ok {
		return "", eris.Errorf("pipeline: unknown template %q", report.SelectedTemplate)
	}

	data := emailData{
		PersonName:  firstName(report.PersonName),
		CompanyName: report.CompanyName,
	}
	for _, section := range report.Sections {
		if len(section.Highlights) > 0 {
			data.TopHighlight = section.Highlights[0].Summary
			break
		}
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", eris.Wrap(err, "pipeline: render email draft")
	}
	return b.String(), nil
}

func firstName(full string) string {
	if i := strings.IndexByte(strings.TrimSpace(full), ' '); i > 0 {
		return strings.TrimSpace(full)[:i]
	}
	return strings.TrimSpace(full)
}
