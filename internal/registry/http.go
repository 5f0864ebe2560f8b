package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/distribution/reference"
	"github.com/docker/distribution/registry/client/auth"
	"github.com/docker/distribution/registry/client/auth/challenge"
	"github.com/docker/distribution/registry/client/transport"

	"github.com/harvard-lil/docker-compose-update-action/internal/logs"
)

const (
	dockerHubDomain = "docker.io"
	dockerHubHost   = "registry-1.docker.io"

	// maxTagPages caps Link-header pagination.
	maxTagPages = 100
)

// HTTPProbe lists tags through the registry HTTP API (/v2/<name>/tags/list).
type HTTPProbe struct {
	client *http.Client
	creds  Credentials

	mu      sync.Mutex
	clients map[string]*http.Client // host/repository -> authorizing client
}

// NewHTTPProbe uses client when non-nil, otherwise a client with timeout.
func NewHTTPProbe(client *http.Client, timeout time.Duration, creds Credentials) *HTTPProbe {
	if client == nil {
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPProbe{
		client: client,
		creds:   creds,
		clients: map[string]*http.Client{},
	}
}

type tagList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// ImageRef is a tag split the way the registry API addresses it.
type ImageRef struct {
	Host       string
	Repository string
	Tag        string
}

// ParseImageRef normalises tag with the Docker reference grammar, so
// "web:1-abc" addresses registry-1.docker.io/library/web.
func ParseImageRef(tag string) (ImageRef, error) {
	named, err := reference.ParseNormalizedNamed(tag)
	if err != nil {
		return ImageRef{}, fmt.Errorf("parse image reference %q: %w", tag, err)
	}
	tagged, ok := named.(reference.Tagged)
	if !ok {
		return ImageRef{}, fmt.Errorf("image reference %q has no tag", tag)
	}

	host := reference.Domain(named)
	if host == dockerHubDomain {
		host = dockerHubHost
	}
	return ImageRef{
		Host:       host,
		Repository: reference.Path(named),
		Tag:        tagged.Tag(),
	}, nil
}

func (p *HTTPProbe) Exists(ctx context.Context, tag string) (bool, error) {
	ref, err := ParseImageRef(tag)
	if err != nil {
		return false, err
	}

	published, found, err := p.listTags(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrProbeUnavailable, tag, err)
	}
	if !found {
		logs.Debugf("%s/%s is not in the registry yet", ref.Host, ref.Repository)
		return false, nil
	}

	warnOnDrift(tag, published)

	for _, t := range published {
		if t == ref.Tag {
			return true, nil
		}
	}
	return false, nil
}

// listTags walks every page of the tag list. found is false when the
// repository itself is unknown to the registry.
func (p *HTTPProbe) listTags(ctx context.Context, ref ImageRef) (tags []string, found bool, err error) {
	client, err := p.repositoryClient(ctx, ref)
	if err != nil {
		return nil, false, err
	}

	next := fmt.Sprintf("https://%s/v2/%s/tags/list", ref.Host, ref.Repository)

	for page := 0; next != "" && page < maxTagPages; page++ {
		resp, err := get(ctx, client, next)
		if err != nil {
			return nil, false, err
		}

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusNotFound:
			drain(resp)
			return nil, false, nil
		default:
			drain(resp)
			return nil, false, fmt.Errorf("GET %s: registry returned status %d", next, resp.StatusCode)
		}

		var list tagList
		err = json.NewDecoder(resp.Body).Decode(&list)
		link := resp.Header.Get("Link")
		resp.Body.Close()
		if err != nil {
			return nil, false, fmt.Errorf("decode tag list: %w", err)
		}
		tags = append(tags, list.Tags...)

		next, err = nextPage(resp.Request.URL, link)
		if err != nil {
			return nil, false, err
		}
	}

	if next != "" {
		logs.Warnf("%s/%s: stopped after %d pages of tags; later tags are treated as missing",
			ref.Host, ref.Repository, maxTagPages)
	}
	return tags, true, nil
}

// repositoryClient returns a client that answers the registry's auth
// challenges for pulls from ref's repository. The challenges come from one
// unauthenticated ping of /v2/; bearer tokens are cached by the token handler
// until they expire.
func (p *HTTPProbe) repositoryClient(ctx context.Context, ref ImageRef) (*http.Client, error) {
	key := ref.Host + "/" + ref.Repository

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	base := p.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	manager := challenge.NewSimpleManager()
	ping, err := get(ctx, p.client, fmt.Sprintf("https://%s/v2/", ref.Host))
	if err != nil {
		return nil, err
	}
	err = manager.AddResponse(ping)
	drain(ping)
	if err != nil {
		return nil, fmt.Errorf("read auth challenge from %s: %w", ref.Host, err)
	}

	creds := staticCredentials(p.creds)
	authorizer := auth.NewAuthorizer(manager,
		auth.NewTokenHandler(base, creds, ref.Repository, "pull"),
		auth.NewBasicHandler(creds),
	)

	c := &http.Client{
		Transport: transport.NewTransport(base, authorizer),
		Timeout:   p.client.Timeout,
	}
	p.clients[key] = c
	return c, nil
}

func get(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	return resp, nil
}

// staticCredentials serves the configured login for every realm.
type staticCredentials Credentials

func (c staticCredentials) Basic(*url.URL) (string, string) {
	return c.Username, c.Password
}

func (staticCredentials) RefreshToken(*url.URL, string) string {
	return ""
}

func (staticCredentials) SetRefreshToken(*url.URL, string, string) {}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// nextPage resolves the rel="next" target of a Link header against base.
func nextPage(base *url.URL, link string) (string, error) {
	for _, part := range strings.Split(link, ",") {
		target, params, ok := strings.Cut(strings.TrimSpace(part), ";")
		if !ok || !strings.Contains(strings.ReplaceAll(params, " ", ""), `rel="next"`) {
			continue
		}
		target = strings.Trim(strings.TrimSpace(target), "<>")
		u, err := base.Parse(target)
		if err != nil {
			return "", fmt.Errorf("parse Link target %q: %w", target, err)
		}
		return u.String(), nil
	}
	return "", nil
}
