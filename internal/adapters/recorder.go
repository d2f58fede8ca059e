package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/httpclient"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Recorder is the county recorder scraper. It owns its own browser session
// and serializes access internally.
type Recorder interface {
	SearchByDocType(ctx context.Context, docType string, from, to time.Time) ([]types.Document, error)
	SearchBySequence(ctx context.Context, sequence string) ([]types.Document, error)
	SearchByName(ctx context.Context, name string, from, to time.Time) ([]types.Document, error)
	DownloadDocument(ctx context.Context, sequence string) ([]byte, error)
}

const recorderDateLayout = "2006-01-02"

// RecorderClient talks to the scraper sidecar over HTTP. Session cookies
// survive restarts through a JSON file.
type RecorderClient struct {
	http    *httpclient.Client
	baseURL string
	jar     *persistentJar
}

// NewRecorderClient creates a client. An empty jarPath keeps cookies in
// memory only.
func NewRecorderClient(baseURL, jarPath string, policy config.RetryPolicy, log *logger.Logger) (*RecorderClient, error) {
	jar, err := loadJar(jarPath)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Jar: jar, Timeout: policy.GetTimeout()}
	if policy.TimeoutSec <= 0 {
		hc.Timeout = 60 * time.Second
	}
	return &RecorderClient{
		http:    httpclient.New(policy, log, httpclient.WithHTTPClient(hc)),
		baseURL: strings.TrimRight(baseURL, "/"),
		jar:     jar,
	}, nil
}

type searchResponse struct {
	Documents []types.Document `json:"documents"`
}

func (c *RecorderClient) search(ctx context.Context, path string, body map[string]string) ([]types.Document, error) {
	var resp searchResponse
	if err := c.http.PostJSON(ctx, c.baseURL+path, body, &resp); err != nil {
		return nil, fmt.Errorf("recorder %s: %w", path, err)
	}
	if err := c.jar.Save(); err != nil {
		return resp.Documents, fmt.Errorf("failed to persist recorder cookies: %w", err)
	}
	return resp.Documents, nil
}

func (c *RecorderClient) SearchByDocType(ctx context.Context, docType string, from, to time.Time) ([]types.Document, error) {
	return c.search(ctx, "/search/doc_type", map[string]string{
		"doc_type": docType,
		"from":     from.Format(recorderDateLayout),
		"to":       to.Format(recorderDateLayout),
	})
}

func (c *RecorderClient) SearchBySequence(ctx context.Context, sequence string) ([]types.Document, error) {
	return c.search(ctx, "/search/sequence", map[string]string{"sequence": sequence})
}

func (c *RecorderClient) SearchByName(ctx context.Context, name string, from, to time.Time) ([]types.Document, error) {
	body := map[string]string{"name": name}
	if !from.IsZero() {
		body["from"] = from.Format(recorderDateLayout)
	}
	if !to.IsZero() {
		body["to"] = to.Format(recorderDateLayout)
	}
	return c.search(ctx, "/search/name", body)
}

// DownloadDocument returns the document image bytes.
func (c *RecorderClient) DownloadDocument(ctx context.Context, sequence string) ([]byte, error) {
	b, err := c.http.Get(ctx, c.baseURL+"/documents/"+url.PathEscape(sequence), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download document %s: %w", sequence, err)
	}
	return b, nil
}

// persistentJar is a cookiejar.Jar that remembers what it was given so the
// cookies can be written to disk.
type persistentJar struct {
	*cookiejar.Jar
	path string

	mu      sync.Mutex
	cookies map[string][]*http.Cookie
}

func loadJar(path string) (*persistentJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	j := &persistentJar{Jar: inner, path: path, cookies: make(map[string][]*http.Cookie)}
	if path == "" {
		return j, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie jar: %w", err)
	}
	var saved map[string][]*http.Cookie
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to parse cookie jar %s: %w", path, err)
	}
	for raw, cs := range saved {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		j.SetCookies(u, cs)
	}
	return j, nil
}

func (j *persistentJar) SetCookies(u *url.URL, cs []*http.Cookie) {
	j.Jar.SetCookies(u, cs)
	key := u.Scheme + "://" + u.Host
	j.mu.Lock()
	defer j.mu.Unlock()
	byName := make(map[string]*http.Cookie)
	for _, c := range j.cookies[key] {
		byName[c.Name] = c
	}
	for _, c := range cs {
		byName[c.Name] = c
	}
	merged := make([]*http.Cookie, 0, len(byName))
	for _, c := range byName {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(a, b int) bool { return merged[a].Name < merged[b].Name })
	j.cookies[key] = merged
}

// Save writes the jar to its path.
func (j *persistentJar) Save() error {
	if j.path == "" {
		return nil
	}
	j.mu.Lock()
	data, err := json.MarshalIndent(j.cookies, "", "  ")
	j.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(j.path, data, 0o600)
}

// docKeyword maps a document-type substring to a distress signal. Entries
// are matched in order, so longer phrases come before the words they
// contain. An empty signal with deed=false means "ignore this document".
type docKeyword struct {
	keyword string
	signal  string
	deed    bool
}

var docKeywords = []docKeyword{
	{keyword: "RELEASE"},
	{keyword: "SATISFACTION"},
	{keyword: "RECONVEYANCE"},
	{keyword: "DEED OF TRUST"},
	{keyword: "NOTICE OF TRUSTEE", signal: types.SignalPreForeclosure},
	{keyword: "NOTICE OF DEFAULT", signal: types.SignalPreForeclosure},
	{keyword: "NOTICE OF SALE", signal: types.SignalPreForeclosure},
	{keyword: "LIS PENDENS", signal: types.SignalPreForeclosure},
	{keyword: "TRUSTEES DEED", deed: true, signal: types.SignalPreForeclosure},
	{keyword: "JUDGMENT", signal: types.SignalJudgment},
	{keyword: "TAX LIEN", signal: types.SignalLien},
	{keyword: "MECHANIC", signal: types.SignalLien},
	{keyword: "LIEN", signal: types.SignalLien},
	{keyword: "DISSOLUTION", signal: types.SignalDivorce},
	{keyword: "DIVORCE", signal: types.SignalDivorce},
	{keyword: "PROBATE", signal: types.SignalProbate},
	{keyword: "PERSONAL REPRESENTATIVE", signal: types.SignalProbate},
	{keyword: "AFFIDAVIT OF SUCCESSION", signal: types.SignalProbate},
	{keyword: "DEATH", signal: types.SignalProbate},
	{keyword: "BENEFICIARY DEED", deed: true, signal: types.SignalProbate},
	{keyword: "WARRANTY DEED", deed: true},
	{keyword: "QUIT CLAIM", deed: true},
	{keyword: "QUITCLAIM", deed: true},
	{keyword: "JOINT TENANCY DEED", deed: true},
	{keyword: "DEED", deed: true},
}

// ClassifyDocument maps a recorder document type to a distress signal and
// reports whether the document conveys title.
func ClassifyDocument(docType string) (signal string, deed bool) {
	t := strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(docType, "'", "")), " "))
	for _, k := range docKeywords {
		if strings.Contains(t, k.keyword) {
			return k.signal, k.deed
		}
	}
	return "", false
}

// RecorderAdapter verifies recorder-derived predicates one owner at a time.
// It is never a candidate generator; the recorder cannot be searched by
// area.
type RecorderAdapter struct {
	rec      Recorder
	limiter  *rate.Limiter
	interval time.Duration
	lookback time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// NewRecorderAdapter paces searches at one per interval.
func NewRecorderAdapter(rec Recorder, interval time.Duration, log *logger.Logger) *RecorderAdapter {
	if log == nil {
		log = logger.Discard()
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RecorderAdapter{
		rec:      rec,
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		lookback: 10 * 365 * 24 * time.Hour,
		now:      time.Now,
		log:      log.With("source", SourceRecorder),
	}
}

func (r *RecorderAdapter) Name() string { return SourceRecorder }

func (r *RecorderAdapter) RateLimit() RateLimit {
	return RateLimit{Concurrency: 1, Interval: r.interval}
}

// Fetch implements Adapter.
func (r *RecorderAdapter) Fetch(context.Context, types.Predicate, Scope, int) ([]types.Lead, error) {
	return nil, fmt.Errorf("%w: recorder documents are verified per owner", ErrUnsupportedScope)
}

// Recorder exposes the underlying scraper for direct document lookups.
func (r *RecorderAdapter) Recorder() Recorder { return r.rec }

// VerifyLead searches the owner's recorded documents, adds every signal they
// carry and backfills the last sale date from the newest deed. It reports
// whether all wanted signals are present afterwards.
func (r *RecorderAdapter) VerifyLead(ctx context.Context, l *types.Lead, wanted ...string) (bool, error) {
	owner := strings.TrimSpace(l.OwnerName)
	if owner == "" {
		return false, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return false, err
	}
	now := r.now()
	docs, err := r.rec.SearchByName(ctx, owner, now.Add(-r.lookback), now)
	if err != nil {
		return false, err
	}

	seen := make(map[string]bool, len(l.Documents))
	for _, d := range l.Documents {
		seen[d.Sequence] = true
	}
	var newestDeed time.Time
	for _, d := range docs {
		signal, deed := ClassifyDocument(d.DocType)
		if signal != "" {
			l.Signals = l.Signals.Add(signal)
		}
		if deed {
			if t, ok := types.ParseDate(d.RecordedAt); ok && t.After(newestDeed) {
				newestDeed = t
			}
		}
		if (signal != "" || deed) && !seen[d.Sequence] {
			seen[d.Sequence] = true
			l.Documents = append(l.Documents, d)
		}
	}
	if l.LastSaleDate == "" && !newestDeed.IsZero() {
		l.LastSaleDate = newestDeed.Format(recorderDateLayout)
	}
	l.MarkEnriched(types.EnrichedRecorder)
	r.log.Debug("recorder verified owner", "owner", owner, "documents", len(docs))
	return l.Signals.HasAll(wanted...), nil
}
