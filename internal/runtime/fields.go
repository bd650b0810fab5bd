package runtime

import (
	"context"
	"errors"

	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/internal/fields"
	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/internal/persistence"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// FieldSpec is one custom field the listings email needs.
type FieldSpec struct {
	Kind  fields.FieldKind
	Index int
	// APIName is the Pardot field id, Label its display name
	APIName string
	Label   string
}

// PlanFields lists the custom fields in creation order: the header fields,
// then the line-item fields of listings 1 to maxListings.
func PlanFields(api, human *fields.Format, maxListings int) ([]FieldSpec, error) {
	if api == nil || human == nil {
		return nil, errors.New("field name formats not configured")
	}
	plan := make([]FieldSpec, 0, len(fields.HeaderKinds())+maxListings*len(fields.LineItemKinds()))
	add := func(kind fields.FieldKind, index int) error {
		apiName, err := api.Name(kind, index)
		if err != nil {
			return err
		}
		label, err := human.Name(kind, index)
		if err != nil {
			return err
		}
		plan = append(plan, FieldSpec{Kind: kind, Index: index, APIName: apiName, Label: label})
		return nil
	}

	for _, kind := range fields.HeaderKinds() {
		if err := add(kind, 0); err != nil {
			return nil, err
		}
	}
	for i := 1; i <= maxListings; i++ {
		for _, kind := range fields.LineItemKinds() {
			if err := add(kind, i); err != nil {
				return nil, err
			}
		}
	}
	return plan, nil
}

// CreateFields creates every custom field the listings email needs and
// records each one in the registry as soon as it exists remotely.
func (r *Runner) CreateFields(ctx context.Context) (*prospect.RunResult, error) {
	return r.execute(ctx, CommandCreateFields, func(ctx context.Context, st *run) error {
		if r.registry == nil {
			return errhandling.Fail(errhandling.SiteConfigValidate, errors.New("no field registry configured"))
		}
		st.step("check_registry")
		exists, err := r.registry.Exists()
		if err != nil {
			return errhandling.Fail(errhandling.SiteRegistryIO, err)
		}
		if exists {
			return errhandling.Fail(errhandling.SiteRegistryExists, persistence.ErrRegistryExists)
		}

		naming := r.settings.FieldNaming
		plan, err := PlanFields(naming.APIFormat, naming.HumanFormat, naming.ListingCountMax)
		if err != nil {
			return errhandling.Fail(errhandling.SiteConfigValidate, err)
		}

		st.step("create")
		for _, f := range plan {
			id, err := r.api.CreateCustomField(ctx, f.Label, f.APIName)
			if err != nil {
				return errhandling.Fail(errhandling.SiteCreateField, err)
			}
			if !r.dryRun {
				if err := r.registry.Append(persistence.FieldEntry{APIName: f.APIName, ID: id}); err != nil {
					return errhandling.Fail(errhandling.SiteRegistryIO, err)
				}
			}
			st.result.FieldsCreated++
			r.metrics.FieldCreated()
			logger.WithRun(st.ctx).Debug("custom field created", "api_name", f.APIName, "field_id", id)
		}
		logger.LogStep(st.ctx, "custom fields created", "count", st.result.FieldsCreated, "registry", r.registry.Path())
		return nil
	})
}

// DeleteFields deletes every custom field listed in the registry, then
// removes the registry. After each deletion the registry is rewritten with
// the fields still left, so a failed run can be resumed.
func (r *Runner) DeleteFields(ctx context.Context) (*prospect.RunResult, error) {
	return r.execute(ctx, CommandDeleteFields, func(ctx context.Context, st *run) error {
		if r.registry == nil {
			return errhandling.Fail(errhandling.SiteConfigValidate, errors.New("no field registry configured"))
		}
		st.step("read_registry")
		entries, err := r.registry.Read()
		if err != nil {
			return errhandling.Fail(errhandling.SiteRegistryIO, err)
		}

		st.step("delete")
		for i, e := range entries {
			if err := r.api.DeleteCustomField(ctx, e.ID); err != nil {
				return errhandling.Fail(errhandling.SiteDeleteField, err)
			}
			st.result.FieldsDeleted++
			r.metrics.FieldDeleted()
			logger.WithRun(st.ctx).Debug("custom field deleted", "api_name", e.APIName, "field_id", e.ID)

			if r.dryRun {
				continue
			}
			if err := r.registry.Replace(entries[i+1:]); err != nil {
				return errhandling.Fail(errhandling.SiteRegistryIO, err)
			}
		}

		if !r.dryRun {
			if err := r.registry.Remove(); err != nil {
				return errhandling.Fail(errhandling.SiteRegistryIO, err)
			}
		}
		logger.LogStep(st.ctx, "custom fields deleted", "count", st.result.FieldsDeleted)
		return nil
	})
}
