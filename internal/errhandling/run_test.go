package errhandling

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSiteExitCodes(t *testing.T) {
	tests := []struct {
		site Site
		want int
	}{
		{SiteAuthenticate, 1},
		{SiteCreateField, 2},
		{SiteDeleteField, 3},
		{SiteUpdateProspect, 4},
		{SiteBatchUpdate, 5},
		{SiteRegistryExists, 10},
		{SiteSendHTML, 20},
		{SiteSendList, 30},
		{SiteSendTemplate, 40},
		{SiteLoadRecords, 50},
		{SiteConfigParse, 60},
		{SiteConfigValidate, 61},
		{SiteUnknown, 70},
	}
	for _, tt := range tests {
		t.Run(string(tt.site), func(t *testing.T) {
			if got := tt.site.ExitCode(); got != tt.want {
				t.Errorf("%s.ExitCode() = %d, want %d", tt.site, got, tt.want)
			}
		})
	}
}

func TestFail_InfersKind(t *testing.T) {
	tests := []struct {
		name string
		site Site
		err  error
		kind Kind
		exit int
	}{
		{"auth", SiteAuthenticate, errors.New("invalid_grant"), KindAuth, ExitAuth},
		{"batch", SiteBatchUpdate, ClassifyHTTPStatus(500, ""), KindRemoteUpdate, ExitBatchUpdate},
		{"registry", SiteRegistryExists, errors.New("exists"), KindRegistry, ExitRegistryExists},
		{"config", SiteConfigValidate, errors.New("bad"), KindConfig, ExitConfigValidation},
		{"malformed beats site", SiteUpdateProspect, NewMalformedRecord("listing", "2", "price"), KindMalformedRecord, ExitMalformedRecord},
		{"other", SiteRender, errors.New("template"), KindInternal, ExitRender},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Fail(tt.site, tt.err)
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf = %v, want %v", KindOf(err), tt.kind)
			}
			if ExitCodeFor(err) != tt.exit {
				t.Errorf("ExitCodeFor = %d, want %d", ExitCodeFor(err), tt.exit)
			}
			if !errors.Is(err, tt.err) {
				t.Error("Fail should wrap the original error")
			}
		})
	}
}

func TestFail_InnermostSiteWins(t *testing.T) {
	inner := Fail(SiteBatchUpdate, errors.New("boom"))
	outer := Fail(SiteSendList, fmt.Errorf("clearing: %w", inner))

	if SiteOf(outer) != SiteBatchUpdate {
		t.Errorf("SiteOf = %v, want %v", SiteOf(outer), SiteBatchUpdate)
	}
	if ExitCodeFor(outer) != ExitBatchUpdate {
		t.Errorf("ExitCodeFor = %d, want %d", ExitCodeFor(outer), ExitBatchUpdate)
	}
}

func TestFail_Nil(t *testing.T) {
	if err := Fail(SiteAuthenticate, nil); err != nil {
		t.Errorf("Fail(nil) = %v, want nil", err)
	}
}

func TestExitCodeFor_Unbound(t *testing.T) {
	if got := ExitCodeFor(nil); got != ExitSuccess {
		t.Errorf("ExitCodeFor(nil) = %d", got)
	}
	if got := ExitCodeFor(errors.New("x")); got != ExitRuntime {
		t.Errorf("ExitCodeFor(plain) = %d, want %d", got, ExitRuntime)
	}
	bare := fmt.Errorf("loading: %w", NewMalformedRecord("recipient", "row 3", "prospectId"))
	if got := ExitCodeFor(bare); got != ExitMalformedRecord {
		t.Errorf("ExitCodeFor(malformed) = %d, want %d", got, ExitMalformedRecord)
	}
	if SiteOf(bare) != SiteUnknown {
		t.Errorf("SiteOf(bare) = %v, want unknown", SiteOf(bare))
	}
}

func TestRunError_Message(t *testing.T) {
	err := Fail(SiteDeleteField, errors.New("status 500"))
	msg := err.Error()
	for _, want := range []string{"delete_custom_field", "remote_update", "status 500"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestMalformedRecordError_Message(t *testing.T) {
	err := NewMalformedRecord("listing", "4", "fullAddress")
	want := `malformed listing 4: missing attribute "fullAddress"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
