package runtime

import (
	"context"
	"errors"

	"github.com/pardreamin/prospectsync/internal/batch"
	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/internal/fields"
	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/internal/pardot"
	"github.com/pardreamin/prospectsync/internal/render"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// SendHTML sends every recipient a complete-HTML one-to-one email rendered
// from the HTML template. Prospect fields are not touched.
func (r *Runner) SendHTML(ctx context.Context) (*prospect.RunResult, error) {
	return r.execute(ctx, CommandSendHTML, func(ctx context.Context, st *run) error {
		if r.html == nil {
			return errhandling.Fail(errhandling.SiteConfigValidate, errors.New("no HTML template configured"))
		}
		if err := requireSetting("pardot.campaignId", r.settings.Pardot.CampaignID); err != nil {
			return err
		}
		recipients, err := r.loadRecipients(ctx, st)
		if err != nil {
			return err
		}

		send := r.settings.Send
		st.step("send")
		for _, rec := range recipients {
			st.recipient = rec
			if rec.ProspectID == "" {
				return errhandling.Fail(errhandling.SiteLoadRecords, errhandling.NewMalformedRecord("recipient", rec.ID, "prospectId"))
			}
			listings := r.sampler.SampleFor(rec)

			body, err := r.html.Render(render.EmailData{Recipient: rec, Listings: listings})
			if err != nil {
				return errhandling.Fail(errhandling.SiteRender, err)
			}
			data := render.TextData(rec, listings)
			email := pardot.HTMLEmail{
				CampaignID:  r.settings.Pardot.CampaignID,
				Name:        r.text.Evaluate(send.Name, data),
				Subject:     r.text.Evaluate(send.Subject, data),
				FromEmail:   send.FromEmail,
				FromName:    send.FromName,
				HTMLContent: body,
				TextContent: r.text.Evaluate(send.TextContent, data),
			}
			if err := r.api.SendOneToOne(ctx, rec.ProspectID, email); err != nil {
				return errhandling.Fail(errhandling.SiteSendHTML, err)
			}
			st.result.RecipientsProcessed++
			st.result.EmailsSent++
			r.metrics.EmailSent()
			logger.WithRun(st.ctx).Debug("email sent", "recipient_id", rec.ID, "listings", len(listings))
		}
		st.recipient = prospect.Recipient{}
		return nil
	})
}

// SendTemplate runs, for each recipient in turn: project the listings onto
// the prospect fields, update the prospect, send the Pardot template
// one-to-one, then clear the fields and update again.
func (r *Runner) SendTemplate(ctx context.Context) (*prospect.RunResult, error) {
	return r.execute(ctx, CommandSendTemplate, func(ctx context.Context, st *run) error {
		p := r.settings.Pardot
		if err := requireSetting("pardot.campaignId", p.CampaignID); err != nil {
			return err
		}
		if err := requireSetting("pardot.emailTemplateId", p.EmailTemplateID); err != nil {
			return err
		}
		recipients, err := r.loadRecipients(ctx, st)
		if err != nil {
			return err
		}

		email := pardot.TemplateEmail{CampaignID: p.CampaignID, TemplateID: p.EmailTemplateID}
		for _, rec := range recipients {
			st.recipient = rec

			st.step("project")
			m, err := fields.ProjectForProspect(rec, r.sampler.SampleFor(rec), r.settings.FieldNaming.APIFormat)
			if err != nil {
				return errhandling.Fail(errhandling.SiteLoadRecords, err)
			}

			st.step("update")
			if err := r.api.UpdateProspect(ctx, m.ID(), m); err != nil {
				return errhandling.Fail(errhandling.SiteUpdateProspect, err)
			}
			st.result.ProspectsUpdated++
			r.metrics.ProspectsUpdated(1)

			st.step("send")
			if err := r.api.SendOneToOne(ctx, m.ID(), email); err != nil {
				return errhandling.Fail(errhandling.SiteSendTemplate, err)
			}
			st.result.EmailsSent++
			r.metrics.EmailSent()

			st.step("clear")
			m.Clear()
			if err := r.api.UpdateProspect(ctx, m.ID(), m); err != nil {
				return errhandling.Fail(errhandling.SiteUpdateProspect, err)
			}
			st.result.ProspectsCleared++
			r.metrics.ProspectsCleared(1)

			st.result.RecipientsProcessed++
			logger.WithRun(st.ctx).Debug("recipient done", "recipient_id", rec.ID, "fields", m.Len()-1)
		}
		st.recipient = prospect.Recipient{}
		return nil
	})
}

// SendList projects every recipient into batch updates, sends the template
// once to the sending list, then clears the fields by resubmitting every
// batch. The list send happens even when no recipient was selected.
func (r *Runner) SendList(ctx context.Context) (*prospect.RunResult, error) {
	return r.execute(ctx, CommandSendList, func(ctx context.Context, st *run) error {
		p := r.settings.Pardot
		for _, s := range []struct{ name, value string }{
			{"pardot.campaignId", p.CampaignID},
			{"pardot.emailTemplateId", p.EmailTemplateID},
			{"pardot.sendingListId", p.SendingListID},
		} {
			if err := requireSetting(s.name, s.value); err != nil {
				return err
			}
		}
		recipients, err := r.loadRecipients(ctx, st)
		if err != nil {
			return err
		}

		batcher := batch.New(p.MaxBatchSize, batch.SubmitterFunc(func(ctx context.Context, b prospect.Batch) error {
			if err := r.api.Submit(ctx, b); err != nil {
				return err
			}
			r.metrics.BatchSubmitted(len(b))
			r.metrics.ProspectsUpdated(len(b))
			return nil
		}))

		for _, rec := range recipients {
			st.recipient = rec
			st.step("project")
			m, err := fields.ProjectForProspect(rec, r.sampler.SampleFor(rec), r.settings.FieldNaming.APIFormat)
			if err != nil {
				return errhandling.Fail(errhandling.SiteLoadRecords, err)
			}
			st.step("batch_update")
			st.batchIndex = len(batcher.Sizes())
			if err := batcher.Add(ctx, m); err != nil {
				return errhandling.Fail(errhandling.SiteBatchUpdate, err)
			}
			st.result.RecipientsProcessed++
		}
		st.recipient = prospect.Recipient{}
		st.batchIndex = len(batcher.Sizes())
		if err := batcher.Finalize(ctx); err != nil {
			return errhandling.Fail(errhandling.SiteBatchUpdate, err)
		}
		st.batchIndex = -1

		st.result.BatchSizes = batcher.Sizes()
		st.result.BatchesSubmitted = len(st.result.BatchSizes)
		for _, n := range st.result.BatchSizes {
			st.result.ProspectsUpdated += n
		}
		logger.LogStep(st.ctx, "prospects updated",
			"batches", st.result.BatchesSubmitted,
			"prospects", st.result.ProspectsUpdated,
		)

		st.step("send")
		email := pardot.TemplateEmail{CampaignID: p.CampaignID, TemplateID: p.EmailTemplateID}
		if err := r.api.SendToList(ctx, p.SendingListID, email); err != nil {
			return errhandling.Fail(errhandling.SiteSendList, err)
		}
		st.result.EmailsSent++
		r.metrics.EmailSent()

		st.step("clear")
		for i, b := range batcher.Batches() {
			st.batchIndex = i
			for _, m := range b {
				m.Clear()
			}
			if err := r.api.Submit(ctx, b); err != nil {
				return errhandling.Fail(errhandling.SiteBatchUpdate, err)
			}
			st.result.ProspectsCleared += len(b)
			r.metrics.ProspectsCleared(len(b))
		}
		st.batchIndex = -1
		return nil
	})
}
