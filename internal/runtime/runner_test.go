package runtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pardreamin/prospectsync/internal/auth"
	"github.com/pardreamin/prospectsync/internal/config"
	"github.com/pardreamin/prospectsync/internal/errhandling"
	"github.com/pardreamin/prospectsync/internal/fields"
	"github.com/pardreamin/prospectsync/internal/pardot"
	"github.com/pardreamin/prospectsync/internal/pardot/pardottest"
	"github.com/pardreamin/prospectsync/internal/persistence"
	"github.com/pardreamin/prospectsync/internal/render"
	"github.com/pardreamin/prospectsync/internal/runtime"
	"github.com/pardreamin/prospectsync/internal/source"
	"github.com/pardreamin/prospectsync/pkg/prospect"
)

type staticRecipients []prospect.Recipient

func (s staticRecipients) Recipients(context.Context) ([]prospect.Recipient, error) {
	return s, nil
}

type failingRecipients struct{ err error }

func (f failingRecipients) Recipients(context.Context) ([]prospect.Recipient, error) {
	return nil, f.err
}

type fixedSampler []prospect.Listing

func (f fixedSampler) SampleFor(prospect.Recipient) []prospect.Listing {
	return f
}

type countingMetrics struct {
	updated, cleared, batches, emails, created, deleted int
	runs                                                []string
}

func (m *countingMetrics) ProspectsUpdated(n int) { m.updated += n }
func (m *countingMetrics) ProspectsCleared(n int) { m.cleared += n }
func (m *countingMetrics) BatchSubmitted(int)     { m.batches++ }
func (m *countingMetrics) EmailSent()             { m.emails++ }
func (m *countingMetrics) FieldCreated()          { m.created++ }
func (m *countingMetrics) FieldDeleted()          { m.deleted++ }
func (m *countingMetrics) RunFinished(command, status string, _ time.Duration, _ time.Time) {
	m.runs = append(m.runs, command+"/"+status)
}

var listing = prospect.Listing{
	Price:       "450000",
	Bedrooms:    "3",
	Bathrooms:   "2",
	Sqft:        "1800",
	FullAddress: "12 Elm St, Springfield",
	ListingURL:  "https://example.com/l/1",
	ImageURL:    "https://example.com/i/1.jpg",
}

func recipients(n int) staticRecipients {
	out := make(staticRecipients, n)
	for i := range out {
		id := string(rune('a' + i))
		out[i] = prospect.Recipient{ID: id, ProspectID: "p-" + id, FirstName: "Ada", LastName: "Byron", Agent: "Jane Doe"}
	}
	return out
}

func testSettings(srvURL string, maxBatch int) *config.Settings {
	return &config.Settings{
		Pardot: config.PardotSettings{
			URL:              srvURL,
			BusinessUnitID:   "0Uv000000000001",
			LegacyAPIVersion: 4,
			MaxBatchSize:     maxBatch,
			CampaignID:       "1234",
			EmailTemplateID:  "5678",
			SendingListID:    "91011",
			Timeout:          5 * time.Second,
		},
		FieldNaming: config.FieldNamingSettings{
			APIFormat:       fields.MustParseFormat("PD{index}_{field}"),
			HumanFormat:     fields.MustParseFormat("PD {index} {field}"),
			ListingCountMin: 1,
			ListingCountMax: 1,
		},
		Send: config.SendSettings{
			Name:        config.DefaultEmailName,
			Subject:     config.DefaultSubject,
			FromEmail:   config.DefaultFromEmail,
			FromName:    config.DefaultFromName,
			TextContent: config.DefaultTextContent,
		},
	}
}

func newClient(t *testing.T, settings *config.Settings, opts ...pardot.Option) *pardot.Client {
	t.Helper()
	c, err := pardot.New(settings.Pardot, auth.Credential{AccessToken: pardottest.DefaultToken}, opts...)
	if err != nil {
		t.Fatalf("pardot.New: %v", err)
	}
	return c
}

func newRegistry(t *testing.T) *persistence.FieldRegistry {
	t.Helper()
	reg, err := persistence.NewFieldRegistry(filepath.Join(t.TempDir(), "fields.csv"))
	if err != nil {
		t.Fatalf("NewFieldRegistry: %v", err)
	}
	return reg
}

func fixedRunID() string { return "run-test" }

func prospectsDoc(t *testing.T, req pardottest.Request) []map[string]interface{} {
	t.Helper()
	var doc struct {
		Prospects []map[string]interface{} `json:"prospects"`
	}
	if err := json.Unmarshal([]byte(req.Form.Get("prospects")), &doc); err != nil {
		t.Fatalf("decoding prospects form: %v", err)
	}
	return doc.Prospects
}

func TestSendList(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 2)
	m := &countingMetrics{}
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(5), fixedSampler{listing}),
		runtime.WithMetrics(m),
		runtime.WithRunID(fixedRunID),
	)

	result, err := r.SendList(context.Background())
	if err != nil {
		t.Fatalf("SendList: %v", err)
	}

	wantOps := []string{
		pardottest.OpBatchUpdate, pardottest.OpBatchUpdate, pardottest.OpBatchUpdate,
		pardottest.OpSendToList,
		pardottest.OpBatchUpdate, pardottest.OpBatchUpdate, pardottest.OpBatchUpdate,
	}
	if diff := cmp.Diff(wantOps, srv.Operations()); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 2, 1}, result.BatchSizes); diff != "" {
		t.Errorf("BatchSizes mismatch (-want +got):\n%s", diff)
	}
	if result.Status != runtime.StatusSuccess || result.RunID != "run-test" {
		t.Errorf("result = %+v", result)
	}
	if result.ProspectsUpdated != 5 || result.ProspectsCleared != 5 || result.EmailsSent != 1 {
		t.Errorf("counters = updated %d cleared %d sent %d", result.ProspectsUpdated, result.ProspectsCleared, result.EmailsSent)
	}

	reqs := srv.RequestsFor(pardottest.OpBatchUpdate)
	first := prospectsDoc(t, reqs[0])
	if first[0]["id"] != "p-a" || first[0]["PD_Count"] != float64(1) || first[0]["PD1_Price"] != "450000" {
		t.Errorf("first batch record = %v", first[0])
	}
	cleared := prospectsDoc(t, reqs[3])
	for k, v := range cleared[0] {
		if k == "id" {
			if v != "p-a" {
				t.Errorf("cleared id = %v, want p-a", v)
			}
			continue
		}
		if v != "" {
			t.Errorf("cleared %s = %v, want empty", k, v)
		}
	}

	if got := srv.RequestsFor(pardottest.OpSendToList)[0].Form.Get("list_ids[]"); got != "91011" {
		t.Errorf("list_ids[] = %q", got)
	}
	if m.batches != 3 || m.updated != 5 || m.cleared != 5 || m.emails != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if diff := cmp.Diff([]string{"send list/success"}, m.runs); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestSendList_NoRecipientsStillSends(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(staticRecipients{}, fixedSampler{listing}),
	)

	result, err := r.SendList(context.Background())
	if err != nil {
		t.Fatalf("SendList: %v", err)
	}
	if diff := cmp.Diff([]string{pardottest.OpSendToList}, srv.Operations()); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
	if result.BatchesSubmitted != 0 || result.EmailsSent != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestSendList_BatchFailureStopsBeforeSend(t *testing.T) {
	srv := pardottest.NewServer(t)
	srv.Fail(pardottest.OpBatchUpdate, pardottest.Failure{Status: 500, Err: "boom", After: 1})
	settings := testSettings(srv.URL, 2)
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(5), fixedSampler{listing}),
	)

	result, err := r.SendList(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitBatchUpdate {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitBatchUpdate)
	}
	if len(srv.RequestsFor(pardottest.OpSendToList)) != 0 {
		t.Error("list send must not happen after a failed batch")
	}
	if result.Status != runtime.StatusError || result.Error == nil || result.Error.Site != "batch_update" {
		t.Errorf("result = %+v", result)
	}
	if result.Error.Kind != string(errhandling.KindRemoteUpdate) {
		t.Errorf("kind = %q", result.Error.Kind)
	}
}

func TestSendList_SendFailure(t *testing.T) {
	srv := pardottest.NewServer(t)
	srv.Fail(pardottest.OpSendToList, pardottest.Failure{Status: 200, Err: "Invalid list"})
	settings := testSettings(srv.URL, 2)
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(3), fixedSampler{listing}),
	)

	_, err := r.SendList(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitSendList {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitSendList)
	}
	// Fields stay populated: clearing only follows a successful send.
	if got := len(srv.RequestsFor(pardottest.OpBatchUpdate)); got != 2 {
		t.Errorf("batch updates = %d, want 2", got)
	}
}

func TestSendList_ClearingFailure(t *testing.T) {
	srv := pardottest.NewServer(t)
	// three update batches and the first clearing batch succeed
	srv.Fail(pardottest.OpBatchUpdate, pardottest.Failure{Status: 500, Err: "Internal error", After: 4})
	settings := testSettings(srv.URL, 2)
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(5), fixedSampler{listing}),
	)

	result, err := r.SendList(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitBatchUpdate {
		t.Errorf("exit code = %d, want %d (err %v)", code, errhandling.ExitBatchUpdate, err)
	}
	if result.EmailsSent != 1 {
		t.Errorf("EmailsSent = %d, want 1", result.EmailsSent)
	}
	if result.ProspectsCleared != 2 {
		t.Errorf("ProspectsCleared = %d, want 2", result.ProspectsCleared)
	}
	wantOps := []string{
		pardottest.OpBatchUpdate, pardottest.OpBatchUpdate, pardottest.OpBatchUpdate,
		pardottest.OpSendToList,
		pardottest.OpBatchUpdate, pardottest.OpBatchUpdate,
	}
	if diff := cmp.Diff(wantOps, srv.Operations()); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
}

func TestSendList_MissingListID(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 2)
	settings.Pardot.SendingListID = ""
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(1), fixedSampler{listing}),
	)

	_, err := r.SendList(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitConfigValidation {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitConfigValidation)
	}
	if len(srv.Requests()) != 0 {
		t.Errorf("no request expected, got %v", srv.Operations())
	}
}

func TestSendList_DryRun(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 2)
	r := runtime.New(settings, newClient(t, settings, pardot.WithDryRun(true)),
		runtime.WithRecipients(recipients(3), fixedSampler{listing}),
		runtime.WithDryRun(true),
	)

	result, err := r.SendList(context.Background())
	if err != nil {
		t.Fatalf("SendList: %v", err)
	}
	if len(srv.Requests()) != 0 {
		t.Errorf("dry run reached the server: %v", srv.Operations())
	}
	var ops []string
	for _, p := range result.DryRunPreview {
		ops = append(ops, p.Operation)
	}
	want := []string{"batch_update", "batch_update", "send_to_list", "batch_update", "batch_update"}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Errorf("preview operations mismatch (-want +got):\n%s", diff)
	}
}

func TestSendTemplate(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(2), fixedSampler{listing, listing}),
	)

	result, err := r.SendTemplate(context.Background())
	if err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}

	wantOps := []string{
		pardottest.OpUpdateProspect, pardottest.OpSendOneToOne, pardottest.OpUpdateProspect,
		pardottest.OpUpdateProspect, pardottest.OpSendOneToOne, pardottest.OpUpdateProspect,
	}
	if diff := cmp.Diff(wantOps, srv.Operations()); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}

	reqs := srv.Requests()
	if reqs[0].ID != "p-a" || reqs[0].Form.Get("PD_Count") != "2" || reqs[0].Form.Get("PD2_Sqft") != "1800" {
		t.Errorf("update request = %+v", reqs[0])
	}
	if reqs[0].Form.Has("id") {
		t.Error("update form must not carry the id")
	}
	if reqs[1].Form.Get("email_template_id") != "5678" || reqs[1].Form.Get("campaign_id") != "1234" {
		t.Errorf("send form = %v", reqs[1].Form)
	}
	if got := reqs[2].Form.Get("PD_AgentName"); got != "" || !reqs[2].Form.Has("PD_AgentName") {
		t.Errorf("clearing update PD_AgentName = %q, present %v", got, reqs[2].Form.Has("PD_AgentName"))
	}
	if result.RecipientsProcessed != 2 || result.ProspectsUpdated != 2 || result.ProspectsCleared != 2 || result.EmailsSent != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestSendTemplate_Failures(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		after    int
		wantCode int
		wantOps  int
	}{
		{"first update", pardottest.OpUpdateProspect, 0, errhandling.ExitUpdateProspect, 1},
		{"send", pardottest.OpSendOneToOne, 0, errhandling.ExitSendTemplate, 2},
		{"clearing update", pardottest.OpUpdateProspect, 1, errhandling.ExitUpdateProspect, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := pardottest.NewServer(t)
			srv.Fail(tt.op, pardottest.Failure{Status: 400, Err: "Invalid prospect", After: tt.after})
			settings := testSettings(srv.URL, 50)
			r := runtime.New(settings, newClient(t, settings),
				runtime.WithRecipients(recipients(2), fixedSampler{listing}),
			)

			_, err := r.SendTemplate(context.Background())
			if code := errhandling.ExitCodeFor(err); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (err %v)", code, tt.wantCode, err)
			}
			if got := len(srv.Requests()); got != tt.wantOps {
				t.Errorf("requests = %d, want %d: %v", got, tt.wantOps, srv.Operations())
			}
			var apiErr *pardot.APIError
			if !errors.As(err, &apiErr) {
				t.Errorf("error chain should carry *pardot.APIError: %v", err)
			}
		})
	}
}

func TestSendTemplate_MalformedListing(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	broken := listing
	broken.ImageURL = ""
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(1), fixedSampler{broken}),
	)

	result, err := r.SendTemplate(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitMalformedRecord {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitMalformedRecord)
	}
	var malformed *errhandling.MalformedRecordError
	if !errors.As(err, &malformed) || malformed.Attribute != "image_url" {
		t.Errorf("err = %v, want malformed image_url", err)
	}
	if len(srv.Requests()) != 0 {
		t.Errorf("no request expected, got %v", srv.Operations())
	}
	if result.Error.Kind != string(errhandling.KindMalformedRecord) {
		t.Errorf("kind = %q", result.Error.Kind)
	}
}

func TestSendTemplate_SourceError(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(failingRecipients{err: errors.New("no such file")}, fixedSampler{listing}),
	)

	_, err := r.SendTemplate(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitMalformedRecord {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitMalformedRecord)
	}
}

func TestSendTemplate_Filter(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	filter, err := source.NewFilter(`recipient.id == "b"`)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(3), fixedSampler{listing}),
		runtime.WithFilter(filter),
	)

	result, err := r.SendTemplate(context.Background())
	if err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}
	if result.RecipientsProcessed != 1 {
		t.Errorf("RecipientsProcessed = %d, want 1", result.RecipientsProcessed)
	}
	for _, req := range srv.Requests() {
		if req.ID != "p-b" {
			t.Errorf("request for %q, want only p-b", req.ID)
		}
	}
}

func TestSendHTML(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	html, err := render.ParseHTML("weekly", `<p>Hi {{.Recipient.FirstName}}</p>{{range .Listings}}<li>{{money .Price}}</li>{{end}}`)
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(2), fixedSampler{listing, listing}),
		runtime.WithHTMLRenderer(html),
	)

	result, err := r.SendHTML(context.Background())
	if err != nil {
		t.Fatalf("SendHTML: %v", err)
	}
	reqs := srv.RequestsFor(pardottest.OpSendOneToOne)
	if len(reqs) != 2 || len(srv.Requests()) != 2 {
		t.Fatalf("operations = %v, want two sends only", srv.Operations())
	}
	form := reqs[0].Form
	if got := form.Get("subject"); got != "Here are 2 Listings Waiting for You!" {
		t.Errorf("subject = %q", got)
	}
	if got := form.Get("html_content"); !strings.Contains(got, "Hi Ada") || !strings.Contains(got, "450,000") {
		t.Errorf("html_content = %q", got)
	}
	if got := form.Get("text_content"); !strings.Contains(got, "{{EmailPreferenceCenter}}") {
		t.Errorf("text_content should keep the Pardot merge tag, got %q", got)
	}
	if form.Get("from_email") != "realty@pardreamin.com" || form.Get("name") != "ParDreamin Realty Weekly Email" {
		t.Errorf("sender = %v", form)
	}
	if result.EmailsSent != 2 {
		t.Errorf("EmailsSent = %d", result.EmailsSent)
	}
}

func TestSendHTML_Failure(t *testing.T) {
	srv := pardottest.NewServer(t)
	srv.Fail(pardottest.OpSendOneToOne, pardottest.Failure{Status: 401, Err: "Invalid API key"})
	settings := testSettings(srv.URL, 50)
	html, _ := render.ParseHTML("weekly", `<p>{{len .Listings}}</p>`)
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(2), fixedSampler{listing}),
		runtime.WithHTMLRenderer(html),
	)

	_, err := r.SendHTML(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitSendHTML {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitSendHTML)
	}
	if errhandling.GetErrorCategory(err) != errhandling.CategoryAuthentication {
		t.Errorf("category = %q", errhandling.GetErrorCategory(err))
	}
}

func TestSendHTML_RequiresTemplate(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	r := runtime.New(settings, newClient(t, settings),
		runtime.WithRecipients(recipients(1), fixedSampler{listing}),
	)

	_, err := r.SendHTML(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitConfigValidation {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitConfigValidation)
	}
}

func TestPlanFields(t *testing.T) {
	plan, err := runtime.PlanFields(
		fields.MustParseFormat("PD{index}_{field}"),
		fields.MustParseFormat("PD {index} {field}"),
		2,
	)
	if err != nil {
		t.Fatalf("PlanFields: %v", err)
	}
	if len(plan) != 2+2*7 {
		t.Fatalf("len(plan) = %d, want 16", len(plan))
	}
	var names []string
	for _, f := range plan[:4] {
		names = append(names, f.APIName)
	}
	if diff := cmp.Diff([]string{"PD_Count", "PD_AgentName", "PD1_Price", "PD1_Bedrooms"}, names); diff != "" {
		t.Errorf("first names mismatch (-want +got):\n%s", diff)
	}
	if plan[15].APIName != "PD2_ImageUrl" || plan[15].Label != "PD 2 ImageUrl" {
		t.Errorf("last field = %+v", plan[15])
	}
}

func TestFieldLifecycle(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	reg := newRegistry(t)
	m := &countingMetrics{}
	r := runtime.New(settings, newClient(t, settings), runtime.WithRegistry(reg), runtime.WithMetrics(m))

	result, err := r.CreateFields(context.Background())
	if err != nil {
		t.Fatalf("CreateFields: %v", err)
	}
	if result.FieldsCreated != 9 || len(srv.Fields()) != 9 {
		t.Errorf("created %d, server has %d, want 9", result.FieldsCreated, len(srv.Fields()))
	}
	entries, err := reg.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 9 || entries[0].APIName != "PD_Count" || entries[0].ID != srv.Fields()["PD_Count"] {
		t.Errorf("registry = %+v", entries)
	}
	if got := srv.RequestsFor(pardottest.OpCreateField)[1].Form.Get("name"); got != "PD  AgentName" {
		t.Errorf("label = %q, want %q", got, "PD  AgentName")
	}

	_, err = r.CreateFields(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitRegistryExists {
		t.Errorf("second create exit code = %d, want %d", code, errhandling.ExitRegistryExists)
	}
	if !errors.Is(err, persistence.ErrRegistryExists) {
		t.Errorf("err = %v, want ErrRegistryExists", err)
	}

	result, err = r.DeleteFields(context.Background())
	if err != nil {
		t.Fatalf("DeleteFields: %v", err)
	}
	if result.FieldsDeleted != 9 || len(srv.Fields()) != 0 {
		t.Errorf("deleted %d, server still has %v", result.FieldsDeleted, srv.Fields())
	}
	if _, err := os.Stat(reg.Path()); !os.IsNotExist(err) {
		t.Errorf("registry should be removed, stat err = %v", err)
	}
	if m.created != 9 || m.deleted != 9 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestCreateFields_PartialFailureKeepsRegistry(t *testing.T) {
	srv := pardottest.NewServer(t)
	srv.Fail(pardottest.OpCreateField, pardottest.Failure{Status: 400, Err: "Field already exists", After: 3})
	settings := testSettings(srv.URL, 50)
	reg := newRegistry(t)
	r := runtime.New(settings, newClient(t, settings), runtime.WithRegistry(reg))

	_, err := r.CreateFields(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitCreateField {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitCreateField)
	}
	entries, err := reg.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("registry has %d entries, want the 3 created fields", len(entries))
	}
}

func TestDeleteFields_FailureTracksRemaining(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	reg := newRegistry(t)
	entries := []persistence.FieldEntry{{APIName: "PD_Count", ID: "1"}, {APIName: "PD_AgentName", ID: "2"}, {APIName: "PD1_Price", ID: "3"}}
	if err := reg.Replace(entries); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	srv.Fail(pardottest.OpDeleteField, pardottest.Failure{Status: 404, Err: "not found", After: 1})
	r := runtime.New(settings, newClient(t, settings), runtime.WithRegistry(reg))

	_, err := r.DeleteFields(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitDeleteField {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitDeleteField)
	}
	left, err := reg.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(entries[1:], left); diff != "" {
		t.Errorf("remaining entries mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteFields_NoRegistry(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	r := runtime.New(settings, newClient(t, settings), runtime.WithRegistry(newRegistry(t)))

	_, err := r.DeleteFields(context.Background())
	if !errors.Is(err, persistence.ErrNoRegistry) {
		t.Errorf("err = %v, want ErrNoRegistry", err)
	}
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitRegistryIO {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitRegistryIO)
	}
}

func TestCreateFields_DryRunLeavesRegistryAlone(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	reg := newRegistry(t)
	r := runtime.New(settings, newClient(t, settings, pardot.WithDryRun(true)),
		runtime.WithRegistry(reg),
		runtime.WithDryRun(true),
	)

	result, err := r.CreateFields(context.Background())
	if err != nil {
		t.Fatalf("CreateFields: %v", err)
	}
	if len(result.DryRunPreview) != 9 {
		t.Errorf("previews = %d, want 9", len(result.DryRunPreview))
	}
	if exists, _ := reg.Exists(); exists {
		t.Error("dry run must not write the registry")
	}
	if len(srv.Requests()) != 0 {
		t.Errorf("dry run reached the server: %v", srv.Operations())
	}
}

func TestCreateFields_MissingFormatIsConfigError(t *testing.T) {
	srv := pardottest.NewServer(t)
	settings := testSettings(srv.URL, 50)
	settings.FieldNaming.HumanFormat = nil
	r := runtime.New(settings, newClient(t, settings), runtime.WithRegistry(newRegistry(t)))

	_, err := r.CreateFields(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitConfigValidation {
		t.Errorf("exit code = %d, want %d (err = %v)", code, errhandling.ExitConfigValidation, err)
	}
	if len(srv.Requests()) != 0 {
		t.Errorf("no field should be created, got %v", srv.Operations())
	}
}

func TestRunner_RequiresClient(t *testing.T) {
	r := runtime.New(testSettings("http://unused", 50), nil)

	result, err := r.SendList(context.Background())
	if code := errhandling.ExitCodeFor(err); code != errhandling.ExitConfigValidation {
		t.Errorf("exit code = %d, want %d", code, errhandling.ExitConfigValidation)
	}
	if result.Error == nil || result.Error.ExitCode != errhandling.ExitConfigValidation {
		t.Errorf("result.Error = %+v", result.Error)
	}
}
