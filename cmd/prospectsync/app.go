package main

import (
	"context"
	"database/sql"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pardreamin/prospectsync/internal/auth"
	"github.com/pardreamin/prospectsync/internal/config"
	"github.com/pardreamin/prospectsync/internal/database"
	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/internal/metrics"
	"github.com/pardreamin/prospectsync/internal/pardot"
	"github.com/pardreamin/prospectsync/internal/persistence"
	"github.com/pardreamin/prospectsync/internal/render"
	"github.com/pardreamin/prospectsync/internal/runtime"
	"github.com/pardreamin/prospectsync/internal/source"
)

// dryRunToken stands in for the access token when no request is sent.
const dryRunToken = "dry-run"

// app is everything one workflow run needs.
type app struct {
	runner  *runtime.Runner
	metrics *metrics.Recorder
	db      *sql.DB
}

// Close releases the database connection, if any.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("failed to close database", "error", err.Error())
		}
	}
}

// newApp authenticates and builds the runner for command. On failure the
// returned app still carries the metrics recorder, with the failed run
// recorded.
func newApp(ctx context.Context, settings *config.Settings, opts options, command string) (*app, error) {
	a := &app{metrics: metrics.New()}
	if err := a.build(ctx, settings, opts, command); err != nil {
		a.Close()
		a.metrics.RunFinished(command, runtime.StatusError, 0, time.Now())
		return a, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context, settings *config.Settings, opts options, command string) error {
	cred, err := authenticate(ctx, settings.Salesforce, opts.dryRun)
	if err != nil {
		return err
	}
	client, err := pardot.New(settings.Pardot, cred,
		pardot.WithDryRun(opts.dryRun),
		pardot.WithObserver(a.metrics),
	)
	if err != nil {
		return errhandling.Fail(errhandling.SiteConfigValidate, err)
	}

	runnerOpts := []runtime.Option{
		runtime.WithMetrics(a.metrics),
		runtime.WithDryRun(opts.dryRun),
	}

	if strings.HasPrefix(command, "fields") {
		reg, err := persistence.NewFieldRegistry(settings.FieldNaming.RegistryPath)
		if err != nil {
			return errhandling.Fail(errhandling.SiteConfigValidate, err)
		}
		runnerOpts = append(runnerOpts, runtime.WithRegistry(reg))
	} else {
		recipientOpts, err := a.recipientOptions(ctx, settings, opts)
		if err != nil {
			return err
		}
		runnerOpts = append(runnerOpts, recipientOpts...)
	}

	if command == runtime.CommandSendHTML {
		html, err := render.LoadHTML(settings.Send.HTMLTemplateFile)
		if err != nil {
			return errhandling.Fail(errhandling.SiteRender, err)
		}
		runnerOpts = append(runnerOpts, runtime.WithHTMLRenderer(html))
	}

	a.runner = runtime.New(settings, client, runnerOpts...)
	return nil
}

// authenticate obtains a Salesforce token. A dry run skips the identity
// provider and uses a placeholder token.
func authenticate(ctx context.Context, settings config.SalesforceSettings, dryRun bool) (auth.Credential, error) {
	if dryRun {
		logger.Info("dry run: skipping authentication")
		return auth.Credential{AccessToken: dryRunToken, IssuedAt: time.Now()}, nil
	}
	authenticator, err := auth.New(settings)
	if err != nil {
		return auth.Credential{}, errhandling.Fail(errhandling.SiteAuthenticate, err)
	}
	cred, err := authenticator.Authenticate(ctx)
	if err != nil {
		return auth.Credential{}, errhandling.Fail(errhandling.SiteAuthenticate, err)
	}
	return cred, nil
}

// recipientOptions wires the record sources, the listing sampler and the
// recipient filter.
func (a *app) recipientOptions(ctx context.Context, settings *config.Settings, opts options) ([]runtime.Option, error) {
	filter, err := newFilter(settings)
	if err != nil {
		return nil, err
	}

	var (
		recipients source.RecipientSource
		listings   source.ListingSource
	)
	switch settings.Data.Source {
	case config.SourceDatabase:
		dbSettings := settings.Data.Database
		db, err := database.Open(ctx, database.Config{
			ConnectionString:    dbSettings.ConnectionString,
			ConnectionStringRef: dbSettings.ConnectionStringRef,
			ConnectTimeout:      dbSettings.Timeout,
		})
		if err != nil {
			return nil, errhandling.Fail(errhandling.SiteLoadRecords, err)
		}
		a.db = db
		src := source.NewDatabase(db, dbSettings.RecipientsQuery, dbSettings.ListingsQuery, dbSettings.Timeout)
		recipients, listings = src, src
	default:
		recipients = source.CSVRecipients{Path: settings.Data.RecipientsFile}
		listings = source.CSVListings{Path: settings.Data.ListingsFile}
	}

	pool, err := listings.Listings(ctx)
	if err != nil {
		return nil, errhandling.Fail(errhandling.SiteLoadRecords, err)
	}
	var rng *rand.Rand
	if opts.seedSet {
		rng = source.NewSeededRand(opts.seed)
	}
	naming := settings.FieldNaming
	sampler, err := source.NewListingSampler(pool, naming.ListingCountMin, naming.ListingCountMax, rng)
	if err != nil {
		if errors.Is(err, source.ErrNoListings) {
			return nil, errhandling.Fail(errhandling.SiteLoadRecords, err)
		}
		return nil, errhandling.Fail(errhandling.SiteConfigValidate, err)
	}

	return []runtime.Option{
		runtime.WithRecipients(recipients, sampler),
		runtime.WithFilter(filter),
	}, nil
}

func newFilter(settings *config.Settings) (*source.Filter, error) {
	filter, err := source.NewFilter(settings.Recipients.Filter)
	if err != nil {
		return nil, errhandling.Fail(errhandling.SiteConfigValidate, err)
	}
	return filter, nil
}
