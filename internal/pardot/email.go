package pardot

import "net/url"

// EmailContent is the body of a send request: either a Pardot template or a
// complete HTML email.
type EmailContent interface {
	apply(form url.Values)
}

// TemplateEmail sends an existing Pardot email template.
type TemplateEmail struct {
	CampaignID string
	TemplateID string
}

func (t TemplateEmail) apply(form url.Values) {
	form.Set("campaign_id", t.CampaignID)
	form.Set("email_template_id", t.TemplateID)
}

// HTMLEmail sends fully rendered content with explicit sender details.
type HTMLEmail struct {
	CampaignID  string
	Name        string
	Subject     string
	FromEmail   string
	FromName    string
	HTMLContent string
	TextContent string
}

func (h HTMLEmail) apply(form url.Values) {
	form.Set("campaign_id", h.CampaignID)
	form.Set("name", h.Name)
	form.Set("subject", h.Subject)
	form.Set("from_email", h.FromEmail)
	form.Set("from_name", h.FromName)
	form.Set("html_content", h.HTMLContent)
	form.Set("text_content", h.TextContent)
}
