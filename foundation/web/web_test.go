package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ardanlabs/mineral/foundation/web"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type submit struct {
	Account string `json:"account" validate:"required"`
	Amount  uint64 `json:"amount" validate:"gt=0"`
}

func Test_Handle(t *testing.T) {
	t.Log("Given the need to route and decode requests.")
	{
		app := web.NewApp(make(chan os.Signal, 1))

		app.Handle(http.MethodGet, "v1", "/accounts/:account", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v, err := web.GetValues(ctx)
			if err != nil {
				return err
			}
			resp := struct {
				Account string `json:"account"`
				TraceID string `json:"trace_id"`
			}{
				Account: web.Param(r, "account"),
				TraceID: v.TraceID,
			}
			return web.Respond(ctx, w, resp, http.StatusOK)
		})

		app.Handle(http.MethodPost, "v1", "/submit", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var req submit
			if err := web.Decode(r, &req); err != nil {
				fields := web.GetFieldErrors(err)
				return web.Respond(ctx, w, fields.Fields(), http.StatusBadRequest)
			}
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		})

		testID := 0
		t.Logf("\tTest %d:\tWhen reading a path parameter.", testID)
		{
			r := httptest.NewRequest(http.MethodGet, "/v1/accounts/pavel", nil)
			w := httptest.NewRecorder()
			app.ServeHTTP(w, r)

			var resp struct {
				Account string `json:"account"`
				TraceID string `json:"trace_id"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the response: %v", failed, testID, err)
			}

			if w.Code != http.StatusOK || resp.Account != "pavel" || resp.TraceID == "" {
				t.Fatalf("\t%s\tTest %d:\tShould get the account with a trace id, got %d %+v.", failed, testID, w.Code, resp)
			}
			t.Logf("\t%s\tTest %d:\tShould get the account with a trace id.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen decoding a request body.", testID)
		{
			r := httptest.NewRequest(http.MethodPost, "/v1/submit", strings.NewReader(`{"account":"pavel","amount":10}`))
			w := httptest.NewRecorder()
			app.ServeHTTP(w, r)

			if w.Code != http.StatusNoContent {
				t.Fatalf("\t%s\tTest %d:\tShould accept a valid body, got %d.", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould accept a valid body.", success, testID)

			r = httptest.NewRequest(http.MethodPost, "/v1/submit", strings.NewReader(`{"amount":0}`))
			w = httptest.NewRecorder()
			app.ServeHTTP(w, r)

			var fields map[string]string
			if err := json.NewDecoder(w.Body).Decode(&fields); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the response: %v", failed, testID, err)
			}

			if w.Code != http.StatusBadRequest || fields["account"] == "" || fields["amount"] == "" {
				t.Fatalf("\t%s\tTest %d:\tShould name the invalid fields, got %d %v.", failed, testID, w.Code, fields)
			}
			t.Logf("\t%s\tTest %d:\tShould name the invalid fields.", success, testID)
		}
	}
}
