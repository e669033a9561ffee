package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"match-wager-system/models"
	"match-wager-system/utils"
)

// StreamCheck is the result of probing one participant's channel.
type StreamCheck struct {
	Live                 bool `json:"live"`
	TitleContainsMatchID bool `json:"title_contains_match_id"`
	BitrateOK            bool `json:"bitrate_ok"`
	FPSOK                bool `json:"fps_ok"`
}

// StreamVerifier probes a single provider's channel status. One
// implementation per provider instead of a provider switch.
type StreamVerifier interface {
	Provider() models.StreamProvider
	CheckChannel(ctx context.Context, channelID, matchID string) (StreamCheck, error)
}

// VerifierRegistry maps providers to their verifier.
type VerifierRegistry struct {
	mu        sync.RWMutex
	verifiers map[models.StreamProvider]StreamVerifier
}

func NewVerifierRegistry(verifiers ...StreamVerifier) *VerifierRegistry {
	r := &VerifierRegistry{verifiers: make(map[models.StreamProvider]StreamVerifier)}
	for _, v := range verifiers {
		r.Register(v)
	}
	return r
}

func (r *VerifierRegistry) Register(v StreamVerifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[v.Provider()] = v
}

func (r *VerifierRegistry) Get(p models.StreamProvider) (StreamVerifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[p]
	return v, ok
}

// statusVerifier is the shared HTTP implementation behind the provider
// verifiers: each provider exposes a channel-status JSON endpoint through
// the platform's stream gateway.
type statusVerifier struct {
	provider   models.StreamProvider
	baseURL    string
	token      string
	httpClient *http.Client

	// minBitrateKbps / minFPS are the platform verification thresholds.
	minBitrateKbps int
	minFPS         int
}

func newStatusVerifier(provider models.StreamProvider, baseURL, token string) *statusVerifier {
	return &statusVerifier{
		provider:       provider,
		baseURL:        baseURL,
		token:          token,
		httpClient:     utils.HTTPClient,
		minBitrateKbps: 2500,
		minFPS:         30,
	}
}

func (v *statusVerifier) Provider() models.StreamProvider { return v.provider }

func (v *statusVerifier) CheckChannel(ctx context.Context, channelID, matchID string) (StreamCheck, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/streams/%s/status", v.baseURL, string(v.provider)))
	if err != nil {
		return StreamCheck{}, fmt.Errorf("failed to parse stream gateway URL: %w", err)
	}
	q := u.Query()
	q.Set("channel_id", channelID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return StreamCheck{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", v.token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return StreamCheck{}, fmt.Errorf("failed to call stream gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return StreamCheck{}, fmt.Errorf("stream gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var status struct {
		Live        bool   `json:"live"`
		Title       string `json:"title"`
		BitrateKbps int    `json:"bitrate_kbps"`
		FPS         int    `json:"fps"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return StreamCheck{}, fmt.Errorf("failed to decode stream status: %w", err)
	}

	return StreamCheck{
		Live:                 status.Live,
		TitleContainsMatchID: strings.Contains(status.Title, matchID),
		BitrateOK:            status.BitrateKbps >= v.minBitrateKbps,
		FPSOK:                status.FPS >= v.minFPS,
	}, nil
}

// NewTwitchVerifier probes Twitch channels through the stream gateway.
func NewTwitchVerifier(baseURL, token string) StreamVerifier {
	return newStatusVerifier(models.ProviderTwitch, baseURL, token)
}

// NewYouTubeVerifier probes YouTube channels through the stream gateway.
func NewYouTubeVerifier(baseURL, token string) StreamVerifier {
	return newStatusVerifier(models.ProviderYouTube, baseURL, token)
}

// NewKickVerifier probes Kick channels through the stream gateway.
func NewKickVerifier(baseURL, token string) StreamVerifier {
	return newStatusVerifier(models.ProviderKick, baseURL, token)
}

// StubVerifier returns canned results, for tests and local dev.
type StubVerifier struct {
	ProviderName models.StreamProvider

	mu      sync.Mutex
	results map[string]StreamCheck // keyed by channel id
	err     error
}

func NewStubVerifier(provider models.StreamProvider) *StubVerifier {
	return &StubVerifier{
		ProviderName: provider,
		results:      make(map[string]StreamCheck),
	}
}

func (s *StubVerifier) SetResult(channelID string, check StreamCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[channelID] = check
}

func (s *StubVerifier) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StubVerifier) Provider() models.StreamProvider { return s.ProviderName }

func (s *StubVerifier) CheckChannel(_ context.Context, channelID, _ string) (StreamCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return StreamCheck{}, s.err
	}
	return s.results[channelID], nil
}
