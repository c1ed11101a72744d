package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"breathewatch/internal/risk"
	"breathewatch/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// Alert is the content of one risk notification.
type Alert struct {
	LocationName string
	Assessment   types.RiskAssessment
}

type alertItem struct {
	Trigger string
	Advice  string
}

// templateData is the struct passed into the templates.
type templateData struct {
	Subject      string
	LocationName string
	Level        types.RiskLevel
	Label        string
	Color        string
	Items        []alertItem
	SentAt       string
}

// Renderer formats risk alerts with html/template using embedded template
// files. Rendering is pure apart from the timestamp line.
type Renderer struct {
	html     *template.Template
	text     *texttemplate.Template
	fromAddr string
	fromName string
	now      func() time.Time
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	FromAddress string
	FromName    string
	// Now overrides the clock used for the "Sent" line. Defaults to time.Now.
	Now func() time.Time
}

// NewRenderer parses the embedded templates and returns a Renderer.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	htmlTmpl, err := template.ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse alert.html: %w", err)
	}
	txtTmpl, err := texttemplate.ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse alert.txt: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Renderer{
		html:     htmlTmpl,
		text:     txtTmpl,
		fromAddr: cfg.FromAddress,
		fromName: cfg.FromName,
		now:      now,
	}, nil
}

// Format renders the HTML body for an alert. The triggers and advice slices
// are expected to be index-aligned as produced by the risk engine; surplus
// triggers are rendered without advice.
func (r *Renderer) Format(locationName string, level types.RiskLevel, color string, triggers, advice []string) (string, error) {
	data := r.buildTemplateData(locationName, level, color, triggers, advice)

	var buf bytes.Buffer
	if err := r.html.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("renderer: failed to render HTML: %w", err)
	}
	return buf.String(), nil
}

// Render produces the subject, HTML and plaintext bodies for an alert along
// with the configured sender identity. The HTML body is Format's output.
func (r *Renderer) Render(a Alert) (*RenderedEmail, types.SenderIdentity, error) {
	category := risk.Category(a.Assessment.Level)
	data := r.buildTemplateData(a.LocationName, a.Assessment.Level, category.Color, a.Assessment.Triggers, a.Assessment.Advice)

	body, err := r.Format(a.LocationName, a.Assessment.Level, category.Color, a.Assessment.Triggers, a.Assessment.Advice)
	if err != nil {
		return nil, types.SenderIdentity{}, err
	}

	var txtBuf bytes.Buffer
	if err := r.text.Execute(&txtBuf, data); err != nil {
		return nil, types.SenderIdentity{}, fmt.Errorf("renderer: failed to render text: %w", err)
	}

	return &RenderedEmail{
			Subject:  data.Subject,
			BodyHTML: body,
			BodyText: txtBuf.String(),
		}, types.SenderIdentity{
			Address: r.fromAddr,
			Name:    r.fromName,
		}, nil
}

func (r *Renderer) buildTemplateData(locationName string, level types.RiskLevel, color string, triggers, advice []string) templateData {
	if locationName == "" {
		locationName = "your area"
	}
	category := risk.Category(level)
	if color == "" {
		color = category.Color
	}

	items := make([]alertItem, 0, len(triggers))
	for i, t := range triggers {
		item := alertItem{Trigger: t}
		if i < len(advice) {
			item.Advice = advice[i]
		}
		items = append(items, item)
	}

	return templateData{
		Subject:      Subject(locationName, level),
		LocationName: locationName,
		Level:        level,
		Label:        category.Label,
		Color:        color,
		Items:        items,
		SentAt:       r.now().UTC().Format("Mon, Jan 2 2006 at 15:04 UTC"),
	}
}

// Subject builds the subject line for an alert.
func Subject(locationName string, level types.RiskLevel) string {
	return fmt.Sprintf("Respiratory Risk Alert: %s risk in %s", level, locationName)
}
