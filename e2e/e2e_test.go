//go:build integration

package e2e_test

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/adamwoolhether/httpauth"
	"github.com/adamwoolhether/httpauth/client"
	"github.com/adamwoolhether/httpauth/client/bearer"
	"github.com/adamwoolhether/httpauth/client/document"
	"github.com/adamwoolhether/httpauth/client/download"
	"github.com/adamwoolhether/httpauth/client/refresh"
)

// -------------------------------------------------------------------------
// Types
// -------------------------------------------------------------------------

type user struct {
	Name  string `json:"name"  validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Age   int    `json:"age"`
}

type queryResp struct {
	Search string `json:"search"`
	Page   string `json:"page"`
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

const bookContent = "hello, this is test download content!"

// recorder remembers the credentials each request arrived with.
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (rec *recorder) record(r *http.Request) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.seen = append(rec.seen, fmt.Sprintf("%s auth=%q cookie=%q", r.URL.Path, r.Header.Get("Authorization"), r.Header.Get("Cookie")))
}

func (rec *recorder) requests() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.seen...)
}

func newTestApp(t *testing.T, rec *recorder) string {
	t.Helper()

	app := http.NewServeMux()
	registerRoutes(app, rec)

	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)

	return srv.URL
}

func registerRoutes(app *http.ServeMux, rec *recorder) {
	app.HandleFunc("POST /echo", echoHandler)
	app.HandleFunc("GET /query", queryHandler)
	app.HandleFunc("GET /error/not-found", notFoundHandler)
	app.HandleFunc("GET /borrow", borrowHandler(rec))
	app.HandleFunc("GET /book", bookHandler(rec))
	app.HandleFunc("GET /auth", authHandler(rec))
	app.HandleFunc("GET /landing", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "landed")
	})
}

func newClient(t *testing.T) *client.Client {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	c, err := httpauth.NewClient(client.WithLogger(log))
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	return c
}

func mustParseURL(t *testing.T, base, path string) *url.URL {
	t.Helper()

	u, err := url.Parse(base + path)
	if err != nil {
		t.Fatalf("parsing URL %s%s: %v", base, path, err)
	}

	return u
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func echoHandler(w http.ResponseWriter, r *http.Request) {
	var u user
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(u)
}

func queryHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(queryResp{
		Search: r.URL.Query().Get("search"),
		Page:   r.URL.Query().Get("page"),
	})
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", client.MIMEProblemReport)
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, `{"type":"about:blank","title":"widget not found","detail":"no widget 42","status":404}`)
}

// borrowHandler hands out a bearer token document. The token is only
// accepted by bookHandler once the borrow carried a refreshed token.
func borrowHandler(rec *recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)

		token := "stale"
		if r.Header.Get("Authorization") == "Bearer fresh" {
			token = "good"
		}

		w.Header().Set("Content-Type", bearer.ContentType)
		fmt.Fprintf(w, `{"access_token":%q,"expires_in":3600,"location":"http://%s/book"}`, token, r.Host)
	}
}

func bookHandler(rec *recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)

		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(bookContent)))
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, bookContent)
	}
}

func authHandler(rec *recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)

		name, pass, ok := r.BasicAuth()
		if !ok || name != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"accessToken":"fresh","expiresIn":3600}`)
	}
}

// -------------------------------------------------------------------------
// Tests
// -------------------------------------------------------------------------

func TestE2E_JSONRoundTrip(t *testing.T) {
	baseURL := newTestApp(t, &recorder{})
	c := newClient(t)

	sent := user{Name: "Alice", Email: "alice@test.com", Age: 30}

	props, err := c.NewProperties(mustParseURL(t, baseURL, "/echo"),
		client.WithMethod(client.Post(nil, "")),
		client.WithPayload(sent),
	)
	if err != nil {
		t.Fatalf("creating properties: %v", err)
	}

	status := c.Execute(t.Context(), props)
	defer status.Close()

	ok, isOK := status.(*client.OK)
	if !isOK {
		t.Fatalf("expected *client.OK, got %T: %v", status, status)
	}
	if ok.Status != http.StatusCreated {
		t.Errorf("status = %d, want %d", ok.Status, http.StatusCreated)
	}

	var got user
	if err := document.Decode(ok.Body, &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if got != sent {
		t.Errorf("round-trip mismatch:\n  got:  %+v\n  want: %+v", got, sent)
	}
}

func TestE2E_QueryParams(t *testing.T) {
	baseURL := newTestApp(t, &recorder{})
	c := newClient(t)

	base, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("parsing base URL: %v", err)
	}

	reqURL := c.URL(base.Scheme, base.Host, "/query",
		client.WithQueryStrings(map[string]string{
			"search": "gopher",
			"page":   "3",
		}),
	)

	props, err := c.NewProperties(reqURL)
	if err != nil {
		t.Fatalf("creating properties: %v", err)
	}

	status := c.Execute(t.Context(), props)
	defer status.Close()

	ok, isOK := status.(*client.OK)
	if !isOK {
		t.Fatalf("expected *client.OK, got %T: %v", status, status)
	}

	var got queryResp
	if err := document.Decode(ok.Body, &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if got.Search != "gopher" {
		t.Errorf("search = %q, want %q", got.Search, "gopher")
	}
	if got.Page != "3" {
		t.Errorf("page = %q, want %q", got.Page, "3")
	}
}

func TestE2E_ProblemReport(t *testing.T) {
	baseURL := newTestApp(t, &recorder{})
	c := newClient(t)

	props, err := c.NewProperties(mustParseURL(t, baseURL, "/error/not-found"))
	if err != nil {
		t.Fatalf("creating properties: %v", err)
	}

	status := c.Execute(t.Context(), props)
	defer status.Close()

	e, ok := status.(*client.Error)
	if !ok {
		t.Fatalf("expected *client.Error, got %T: %v", status, status)
	}

	if e.Status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", e.Status, http.StatusNotFound)
	}
	if e.ProblemReport == nil {
		t.Fatal("expected a problem report")
	}
	if e.ProblemReport.Title != "widget not found" {
		t.Errorf("title = %q, want %q", e.ProblemReport.Title, "widget not found")
	}
}

func TestE2E_CrossHostRedirect(t *testing.T) {
	rec := &recorder{}
	landing := newTestApp(t, rec)

	// Reach the second server through another name for the loopback
	// address so the redirect crosses hosts.
	other := strings.Replace(landing, "127.0.0.1", "localhost", 1)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		http.Redirect(w, r, other+"/landing", http.StatusFound)
	}))
	t.Cleanup(origin.Close)

	c := newClient(t)

	props, err := c.NewProperties(mustParseURL(t, origin.URL, "/start"),
		client.WithAuthorization(client.Bearer{Token: "secret"}),
		client.WithCookies(map[string]string{"session": "s1"}),
	)
	if err != nil {
		t.Fatalf("creating properties: %v", err)
	}

	status := c.Execute(t.Context(), props)
	defer status.Close()

	if _, ok := status.(*client.OK); !ok {
		t.Fatalf("expected *client.OK, got %T: %v", status, status)
	}

	got := rec.requests()
	want := []string{
		`/start auth="Bearer secret" cookie="session=s1;"`,
		`/landing auth="" cookie=""`,
	}
	if len(got) != len(want) {
		t.Fatalf("requests = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestE2E_BearerDownloadWithRefresh(t *testing.T) {
	rec := &recorder{}
	baseURL := newTestApp(t, rec)
	c := newClient(t)

	props, err := c.NewProperties(mustParseURL(t, baseURL, "/borrow"),
		refresh.WithCredentials(refresh.Properties{
			Username:   "alice",
			Password:   "secret",
			RefreshURL: mustParseURL(t, baseURL, "/auth"),
		}),
	)
	if err != nil {
		t.Fatalf("creating properties: %v", err)
	}

	destPath := filepath.Join(t.TempDir(), "downloaded.bin")

	var token string
	final, err := httpauth.Download(t.Context(), c, props, destPath,
		httpauth.WithObserver(func(s httpauth.DownloadState) {
			if r, ok := s.(download.Receiving); ok {
				token = r.AccessToken
			}
		}),
	)
	if err != nil {
		t.Fatalf("downloading: %v", err)
	}

	if _, ok := final.(download.CompletedSuccessfully); !ok {
		t.Fatalf("expected CompletedSuccessfully, got %T: %v", final, download.Err(final))
	}
	if token != "fresh" {
		t.Errorf("access token = %q, want %q", token, "fresh")
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(got) != bookContent {
		t.Errorf("file content = %q, want %q", string(got), bookContent)
	}

	if n := len(rec.requests()); n != 5 {
		t.Errorf("requests = %d, want 5: %v", n, rec.requests())
	}
}
