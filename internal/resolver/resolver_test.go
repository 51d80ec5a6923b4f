package resolver_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/resolver"
)

const productPage = `<!doctype html>
<html><head>
<title>Fallback Title</title>
<meta property="og:title" content="Motor Mount &amp; Riser">
<meta property="og:description" content="Fits 6374 motors">
<meta property="og:image" content="/img/mount.png">
<meta name="keywords" content="mount, motor, Mount">
</head><body><h1>ignored</h1></body></html>`

func newResolver(cfg config.ResolverConfig) *resolver.Resolver {
	if cfg.StageTimeout == 0 {
		cfg.StageTimeout = 2 * time.Second
	}
	cfg.UserAgent = "test-agent"
	return resolver.NewResolver(cfg, nil, zerolog.Nop())
}

func TestResolve_MissingURL(t *testing.T) {
	res := newResolver(config.ResolverConfig{}).Resolve(t.Context(), "  ")
	if res.Success || res.Error != "Missing url parameter" {
		t.Errorf("Unexpected result %+v", res)
	}

	if _, err := resolver.ParseTarget("ftp://example.com/file"); err == nil {
		t.Error("Expected non-http scheme to be rejected")
	}
}

func TestResolve_Firecrawl(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer fc-key" {
			t.Errorf("Expected bearer key, got %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if formats, _ := body["formats"].([]any); len(formats) != 1 || formats[0] != "extract" {
			t.Errorf("Expected extract format, got %v", body["formats"])
		}
		fmt.Fprint(w, `{"success":true,"data":{"extract":{"title":"Deck Clamp","description":"d","image":"https://cdn.example.com/a.jpg","tags":["clamp"]}}}`)
	}))
	defer api.Close()

	r := newResolver(config.ResolverConfig{FirecrawlAPIKey: "fc-key", FirecrawlURL: api.URL})
	res := r.Resolve(t.Context(), "https://shop.example.com/deck-clamp")

	if !res.Success || res.Source != resolver.SourceFirecrawl {
		t.Fatalf("Expected firecrawl success, got %+v", res)
	}
	if res.Title != "Deck Clamp" || res.Image != "https://cdn.example.com/a.jpg" || len(res.Tags) != 1 {
		t.Errorf("Unexpected metadata %+v", res.Metadata)
	}
}

func TestResolve_PrintablesGraphQL(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query     string            `json:"query"`
			Variables map[string]string `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if body.Variables["id"] != "123" {
			t.Errorf("Expected model id 123, got %v", body.Variables)
		}
		if !strings.Contains(body.Query, "print(id: $id)") {
			t.Errorf("Unexpected query %q", body.Query)
		}
		fmt.Fprint(w, `{"data":{"print":{"name":"Motor Mount","description":"desc","images":[{"filePath":"media/prints/123/mount.jpg"}],"tags":[{"name":"esk8"},{"name":"mount"}]}}}`)
	}))
	defer api.Close()

	r := newResolver(config.ResolverConfig{
		FirecrawlURL:    "http://unused.invalid",
		PrintablesURL:   api.URL,
		PrintablesMedia: "https://media.printables.com/",
	})
	res := r.Resolve(t.Context(), "https://www.printables.com/model/123-motor-mount")

	if !res.Success || res.Source != resolver.SourceGraphQL {
		t.Fatalf("Expected graphql success, got %+v", res)
	}
	if res.Image != "https://media.printables.com/media/prints/123/mount.jpg" {
		t.Errorf("Unexpected image %q", res.Image)
	}
	if strings.Join(res.Tags, ",") != "esk8,mount" {
		t.Errorf("Unexpected tags %v", res.Tags)
	}
	if len(res.Attempts) != 1 {
		t.Errorf("Expected firecrawl to be skipped without a key, got %d attempts", len(res.Attempts))
	}
}

func TestResolve_DirectHTML(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("Expected configured user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, productPage)
	}))
	defer page.Close()

	res := newResolver(config.ResolverConfig{}).Resolve(t.Context(), page.URL+"/parts/mount")

	if !res.Success || res.Source != resolver.SourceHTML {
		t.Fatalf("Expected html success, got %+v", res)
	}
	if res.Title != "Motor Mount & Riser" {
		t.Errorf("Expected decoded entity in title, got %q", res.Title)
	}
	if res.Image != page.URL+"/img/mount.png" {
		t.Errorf("Expected image resolved against page, got %q", res.Image)
	}
	if strings.Join(res.Tags, ",") != "mount,motor" {
		t.Errorf("Expected deduplicated keywords, got %v", res.Tags)
	}
}

func TestResolve_FallsBackToProxy(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "<html><title>Just a moment...</title></html>")
	}))
	defer page.Close()

	target := page.URL + "/parts/mount"
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("url"); got != target {
			t.Errorf("Expected relay to receive %q, got %q", target, got)
		}
		fmt.Fprint(w, productPage)
	}))
	defer relay.Close()

	r := newResolver(config.ResolverConfig{Proxies: []string{relay.URL + "/raw?url=%s"}})
	res := r.Resolve(t.Context(), target)

	if !res.Success || !strings.HasPrefix(res.Source, resolver.SourceProxy+":") {
		t.Fatalf("Expected proxy success, got %+v", res)
	}
	if res.Image != page.URL+"/img/mount.png" {
		t.Errorf("Expected image resolved against the original page, got %q", res.Image)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(res.Attempts))
	}
	direct := res.Attempts[0]
	if direct.StatusCode != http.StatusForbidden || !strings.Contains(direct.Snippet, "Just a moment") {
		t.Errorf("Expected diagnostic for blocked fetch, got %+v", direct)
	}
}

func TestResolve_ChallengePageFallsBackToProxy(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		body   string
	}{
		{name: "interstitial title", body: "<html><head><title>Just a moment...</title></head><body></body></html>"},
		{name: "blocked title", body: "<html><head><title>Attention Required! | Cloudflare</title></head></html>"},
		{name: "mitigation header", header: map[string]string{"cf-mitigated": "challenge"}, body: "<html><head><title>Mount</title></head></html>"},
		{name: "captcha script", body: `<html><head><title>Mount</title><script>window._cf_chl_opt={cType:"managed"}</script></head></html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				fmt.Fprint(w, tt.body)
			}))
			defer page.Close()
			relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, productPage)
			}))
			defer relay.Close()

			r := newResolver(config.ResolverConfig{Proxies: []string{relay.URL + "/raw?url=%s"}})
			res := r.Resolve(t.Context(), page.URL+"/parts/mount")

			if !res.Success || !strings.HasPrefix(res.Source, resolver.SourceProxy+":") {
				t.Fatalf("Expected proxy success, got %+v", res)
			}
			if len(res.Attempts) != 2 {
				t.Fatalf("Expected 2 attempts, got %d", len(res.Attempts))
			}
			direct := res.Attempts[0]
			if direct.StatusCode != http.StatusOK || !strings.Contains(direct.Error, "anti-bot challenge") {
				t.Errorf("Expected challenge diagnostic on the direct fetch, got %+v", direct)
			}
		})
	}
}

func TestResolve_Exhausted(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><head></head><body>no metadata</body></html>")
	}))
	defer page.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	r := newResolver(config.ResolverConfig{Proxies: []string{broken.URL + "/?q=%s"}})
	res := r.Resolve(t.Context(), page.URL)

	if res.Success {
		t.Fatalf("Expected failure, got %+v", res)
	}
	if res.Error != resolver.ExhaustedMessage {
		t.Errorf("Unexpected error %q", res.Error)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(res.Attempts))
	}
	if res.Attempts[0].Error != "no title found" {
		t.Errorf("Expected titleless page to be rejected, got %+v", res.Attempts[0])
	}
}

func TestResolve_StageTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	r := newResolver(config.ResolverConfig{StageTimeout: 50 * time.Millisecond})
	start := time.Now()
	res := r.Resolve(t.Context(), slow.URL)

	if res.Success {
		t.Fatal("Expected timeout failure")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected stage deadline to bound the attempt, took %s", elapsed)
	}
}
