package runtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *engineFixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newEngineFixture(t)
	r := gin.New()
	NewHTTPHandler(discardLogger, f.engine, nil).Register(r)
	return r, f
}

func postForm(r http.Handler, path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func startJourney(t *testing.T, r http.Handler) string {
	t.Helper()
	w := postForm(r, "/journeys/returns", url.Values{"licenceId": {"L-1"}})
	if w.Code != http.StatusFound {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	id := w.Header().Get("X-Session-Id")
	if want := "/journeys/returns/" + id + "/reason"; w.Header().Get("Location") != want {
		t.Fatalf("Location = %q, want %q", w.Header().Get("Location"), want)
	}
	return id
}

func TestHTTPHandler_Journey(t *testing.T) {
	r, f := newTestRouter(t)
	id := startJourney(t, r)
	base := "/journeys/returns/" + id

	steps := []struct {
		path     string
		values   url.Values
		location string
	}{
		{base + "/reason", url.Values{"reason": {"new-licence"}}, base + "/purpose/0"},
		{base + "/purpose/0", url.Values{"purposes": {"spray"}}, base + "/abstraction-period/0"},
		{base + "/abstraction-period/0", url.Values{"abstractionPeriod.start": {"1-4"}, "abstractionPeriod.end": {"31-10"}}, base + "/agreements/0"},
		{base + "/agreements/0", url.Values{"agreementsExceptions": {"none", "transfer"}}, base + "/check"},
	}
	for _, st := range steps {
		w := postForm(r, st.path, st.values)
		if w.Code != http.StatusFound {
			t.Fatalf("POST %s = %d: %s", st.path, w.Code, w.Body.String())
		}
		if loc := w.Header().Get("Location"); loc != st.location {
			t.Fatalf("POST %s redirected to %q, want %q", st.path, loc, st.location)
		}
	}

	w := get(r, base+"/purpose/0")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	var view View
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Step != "purpose" || view.BackStep != "check" || view.Index != 0 {
		t.Errorf("view = %+v", view)
	}

	w = postForm(r, base+"/confirm", nil)
	if w.Code != http.StatusOK || len(f.committer.committed) != 1 {
		t.Fatalf("confirm = %d, committed %d", w.Code, len(f.committer.committed))
	}
	if w := get(r, base+"/reason"); w.Code != http.StatusNotFound {
		t.Errorf("completed session should be gone, got %d", w.Code)
	}
}

func TestHTTPHandler_ValidationFailure(t *testing.T) {
	r, f := newTestRouter(t)
	id := startJourney(t, r)
	base := "/journeys/returns/" + id
	postForm(r, base+"/reason", url.Values{"reason": {"new-licence"}})
	before := f.store.writes()

	w := postJSON(r, base+"/purpose/0", `{"purposes": "fishing"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var res SubmitResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Success || len(res.Errors) != 1 || res.Errors[0].Field != "purposes" {
		t.Errorf("result = %+v", res)
	}
	if res.View == nil || res.View.Step != "purpose" {
		t.Errorf("view = %+v", res.View)
	}
	if f.store.writes() != before {
		t.Error("rejected submission must not write")
	}
}

func TestHTTPHandler_Errors(t *testing.T) {
	r, _ := newTestRouter(t)
	id := startJourney(t, r)
	base := "/journeys/returns/" + id

	tests := []struct {
		name   string
		do     func() *httptest.ResponseRecorder
		status int
		code   WizardErrorCode
	}{
		{"unknown session", func() *httptest.ResponseRecorder { return get(r, "/journeys/returns/missing/reason") }, http.StatusNotFound, ErrorCodeSessionNotFound},
		{"unknown step", func() *httptest.ResponseRecorder { return get(r, base+"/ghost") }, http.StatusNotFound, ErrorCodeStepNotFound},
		{"unknown journey", func() *httptest.ResponseRecorder { return postForm(r, "/journeys/ghost", nil) }, http.StatusNotFound, ErrorCodeStepNotFound},
		{"bad index", func() *httptest.ResponseRecorder { return get(r, base+"/purpose/first") }, http.StatusBadRequest, ErrorCodeBadRequest},
		{"index out of range", func() *httptest.ResponseRecorder { return get(r, base+"/purpose/3") }, http.StatusBadRequest, ErrorCodeIndexOutOfRange},
		{"missing index", func() *httptest.ResponseRecorder {
			return postForm(r, base+"/purpose", url.Values{"purposes": {"spray"}})
		}, http.StatusBadRequest, ErrorCodeIndexOutOfRange},
		{"malformed json", func() *httptest.ResponseRecorder { return postJSON(r, base+"/reason", `{"reason":`) }, http.StatusBadRequest, ErrorCodeBadRequest},
		{"view under another journey", func() *httptest.ResponseRecorder { return get(r, "/journeys/notices/"+id+"/reason") }, http.StatusNotFound, ErrorCodeSessionNotFound},
		{"submit under another journey", func() *httptest.ResponseRecorder {
			return postForm(r, "/journeys/notices/"+id+"/reason", url.Values{"reason": {"new-licence"}})
		}, http.StatusNotFound, ErrorCodeSessionNotFound},
		{"cancel under another journey", func() *httptest.ResponseRecorder { return postForm(r, "/journeys/notices/"+id+"/cancel", nil) }, http.StatusNotFound, ErrorCodeSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.do()
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			var we WizardError
			if err := json.Unmarshal(w.Body.Bytes(), &we); err != nil {
				t.Fatal(err)
			}
			if we.Code != tt.code {
				t.Errorf("code = %s, want %s", we.Code, tt.code)
			}
		})
	}
}

func TestHTTPHandler_Items(t *testing.T) {
	r, f := newTestRouter(t)
	id := startJourney(t, r)
	base := "/journeys/returns/" + id
	postForm(r, base+"/reason", url.Values{"reason": {"new-licence"}})

	w := postForm(r, base+"/items", url.Values{"step": {"purpose"}, "purposes": {"not-a-purpose"}, "extra": {"x"}})
	if w.Code != http.StatusFound || w.Header().Get("Location") != base+"/purpose/1" {
		t.Fatalf("add item = %d %q", w.Code, w.Header().Get("Location"))
	}
	if item := f.session(t, id).Items[1]; len(item) != 0 {
		t.Errorf("new item = %v, want empty", item)
	}

	w = postJSON(r, base+"/items", `{}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add item = %d", w.Code)
	}

	w = postForm(r, base+"/items/0/remove", nil)
	if w.Code != http.StatusFound || w.Header().Get("Location") != base+"/check" {
		t.Fatalf("remove item = %d %q", w.Code, w.Header().Get("Location"))
	}

	s := f.session(t, id)
	if len(s.Items) != 2 || s.Flags.String(FlagNotification) != "Requirement removed" {
		t.Errorf("session = %+v", s)
	}
}

func TestHTTPHandler_CancelAndList(t *testing.T) {
	r, _ := newTestRouter(t)
	id := startJourney(t, r)

	if w := postForm(r, "/journeys/returns/"+id+"/cancel", nil); w.Code != http.StatusOK {
		t.Fatalf("cancel = %d", w.Code)
	}
	if w := postForm(r, "/journeys/returns/"+id+"/cancel", nil); w.Code != http.StatusNotFound {
		t.Errorf("second cancel = %d", w.Code)
	}

	w := get(r, "/journeys")
	var list []struct {
		ID      string   `json:"id"`
		Summary string   `json:"summary"`
		Steps   []string `json:"steps"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "returns" || list[0].Summary != "check" {
		t.Errorf("journeys = %+v", list)
	}
}
