package datasource

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opentexas/auction-worker/internal/domain"
	"github.com/opentexas/auction-worker/internal/metrics"
	"github.com/opentexas/auction-worker/internal/tracing"
	"gopkg.in/yaml.v3"
)

// auditUploadRetries/resultPostRetries are the bounded retry budgets named
// in spec.md §5 ("3 for audit upload, 2 for result posting"); on exhaustion
// the core logs and continues down the "not approved" path.
const (
	auditUploadRetries = 3
	resultPostRetries  = 2
)

// ExternalAPIConfig configures HTTPDataSource, mirroring
// OpenProcurementAPIDataSource.__init__'s config keys.
type ExternalAPIConfig struct {
	ResourceAPIServer  string
	ResourceAPIVersion string
	ResourceName       string
	ResourceAPIToken   string
	AuctionID          string
	AuctionsURLFormat  string
	HashSecret         string

	WithDocumentService bool
	DocumentServiceURL  string
	DSUsername          string
	DSPassword          string
}

// HTTPDataSource is the production Datasource, grounded on
// datasource.py: OpenProcurementAPIDataSource.
type HTTPDataSource struct {
	cfg        ExternalAPIConfig
	apiURL     string
	auctionURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewHTTPDataSource builds the production datasource from cfg.
func NewHTTPDataSource(cfg ExternalAPIConfig, logger *slog.Logger) *HTTPDataSource {
	apiURL := fmt.Sprintf("%s/api/%s/%s/%s",
		cfg.ResourceAPIServer, cfg.ResourceAPIVersion, cfg.ResourceName, cfg.AuctionID)
	return &HTTPDataSource{
		cfg:        cfg,
		apiURL:     apiURL,
		auctionURL: fmt.Sprintf(cfg.AuctionsURLFormat, cfg.AuctionID),
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (d *HTTPDataSource) Features() Features {
	return Features{PostResult: true, PostHistoryDocument: true}
}

func (d *HTTPDataSource) GetData(ctx context.Context, public, withCredentials bool) (*domain.AuctionData, error) {
	ctx, span := tracing.StartSpan(ctx, "datasource.get_data")
	defer span.End()

	url := d.apiURL
	if !public {
		url += "/auction"
	}
	token := ""
	if !public || withCredentials {
		token = d.cfg.ResourceAPIToken
	}

	var envelope struct {
		Data domain.AuctionData `json:"data"`
	}
	if err := d.doRequest(ctx, "get_data", http.MethodGet, url, token, nil, 0, &envelope); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return &envelope.Data, nil
}

func (d *HTTPDataSource) SetParticipationURLs(ctx context.Context, data *domain.AuctionData) error {
	ctx, span := tracing.StartSpan(ctx, "datasource.set_participation_urls")
	defer span.End()

	type bidURL struct {
		ID               string `json:"id"`
		ParticipationURL string `json:"participationUrl,omitempty"`
	}
	patch := struct {
		Data struct {
			AuctionURL string   `json:"auctionUrl"`
			Bids       []bidURL `json:"bids"`
		} `json:"data"`
	}{}
	patch.Data.AuctionURL = d.auctionURL

	for _, bid := range ActiveBids(data) {
		patch.Data.Bids = append(patch.Data.Bids, bidURL{
			ID:               bid.ID,
			ParticipationURL: fmt.Sprintf("%s/login?bidder_id=%s&hash=%s", d.auctionURL, bid.ID, calculateHash(bid.ID, d.cfg.HashSecret)),
		})
	}

	var discard json.RawMessage
	if err := d.doRequest(ctx, "set_participation_urls", http.MethodPatch, d.apiURL+"/auction", d.cfg.ResourceAPIToken, patch, 0, &discard); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

func (d *HTTPDataSource) UploadAudit(ctx context.Context, protocol *domain.AuctionProtocol, docID string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "datasource.upload_audit")
	defer span.End()

	body, err := yaml.Marshal(protocol)
	if err != nil {
		return "", fmt.Errorf("datasource: marshal protocol: %w", err)
	}

	if d.cfg.WithDocumentService {
		return d.uploadAuditWithDocumentService(ctx, body, docID)
	}
	return d.uploadAuditDirect(ctx, body, docID)
}

func (d *HTTPDataSource) uploadAuditWithDocumentService(ctx context.Context, body []byte, docID string) (string, error) {
	var dsResponse json.RawMessage
	err := d.multipartRequest(ctx, "upload_audit", d.cfg.DocumentServiceURL, "audit.yaml", body, d.cfg.DSUsername, d.cfg.DSPassword, auditUploadRetries, &dsResponse)
	if err != nil {
		d.logger.Warn("audit_log_not_approved", slog.String("error", err.Error()))
		return docID, nil
	}
	return d.postDocumentReference(ctx, dsResponse, docID)
}

func (d *HTTPDataSource) uploadAuditDirect(ctx context.Context, body []byte, docID string) (string, error) {
	payload := map[string]any{"file": string(body)}
	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}

	method, path := http.MethodPost, d.apiURL+"/documents"
	if docID != "" {
		method, path = http.MethodPut, d.apiURL+"/documents/"+docID
	}
	if err := d.doRequest(ctx, "upload_audit", method, path, d.cfg.ResourceAPIToken, payload, auditUploadRetries, &envelope); err != nil {
		d.logger.Warn("audit_log_not_approved", slog.String("error", err.Error()))
		return docID, nil
	}
	d.logger.Info("audit_log_approved", slog.String("doc_id", envelope.Data.ID))
	return envelope.Data.ID, nil
}

func (d *HTTPDataSource) postDocumentReference(ctx context.Context, dsResponse json.RawMessage, docID string) (string, error) {
	var envelope struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	method, path := http.MethodPost, d.apiURL+"/documents"
	if docID != "" {
		method, path = http.MethodPut, d.apiURL+"/documents/"+docID
	}
	if err := d.doRequest(ctx, "upload_audit", method, path, d.cfg.ResourceAPIToken, dsResponse, resultPostRetries, &envelope); err != nil {
		d.logger.Warn("audit_log_not_approved", slog.String("error", err.Error()))
		return docID, nil
	}
	d.logger.Info("audit_log_approved", slog.String("doc_id", envelope.Data.ID))
	return envelope.Data.ID, nil
}

func (d *HTTPDataSource) PostResults(ctx context.Context, data *domain.AuctionData, doc *domain.AuctionDocument) (*domain.AuctionDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "datasource.post_results")
	defer span.End()

	approved, err := d.postResultsData(ctx, data, doc)
	if err != nil {
		d.logger.Warn("auction_results_not_approved", slog.String("error", err.Error()))
		return nil, nil
	}
	if len(approved) == 0 {
		d.logger.Info("auction_results_not_approved")
		return nil, nil
	}

	enriched := *doc
	domain.ApplyOpenedBidderNames(&enriched, approved)
	return &enriched, nil
}

func (d *HTTPDataSource) postResultsData(ctx context.Context, data *domain.AuctionData, doc *domain.AuctionDocument) (map[string]domain.ExternalBid, error) {
	type postedBid struct {
		ID     string        `json:"id"`
		Value  domain.Amount `json:"value"`
		Date   string        `json:"date"`
		Status string        `json:"status,omitempty"`
	}
	posted := make([]postedBid, len(data.Bids))
	resultByBidder := map[string]domain.Stage{}
	for _, r := range doc.Results {
		resultByBidder[r.BidderID] = r
	}

	for i, bid := range data.Bids {
		posted[i] = postedBid{ID: bid.ID, Value: bid.Value, Date: bid.Date, Status: bid.Status}
		if bid.Status == "" || bid.Status == "active" {
			if r, ok := resultByBidder[bid.ID]; ok {
				posted[i].Value = domain.Amount{Amount: r.Amount}
				posted[i].Date = r.Time
			}
		}
	}

	payload := struct {
		Data struct {
			Bids []postedBid `json:"bids"`
		} `json:"data"`
	}{}
	payload.Data.Bids = posted

	var envelope struct {
		Data struct {
			Bids []domain.ExternalBid `json:"bids"`
		} `json:"data"`
	}
	if err := d.doRequest(ctx, "post_results", http.MethodPost, d.apiURL+"/auction", d.cfg.ResourceAPIToken, payload, resultPostRetries, &envelope); err != nil {
		return nil, err
	}

	approved := make(map[string]domain.ExternalBid, len(envelope.Data.Bids))
	for _, bid := range envelope.Data.Bids {
		approved[bid.ID] = bid
	}
	return approved, nil
}

// doRequest issues an HTTP call with a bounded retry count (0 = single
// attempt, no retry) and JSON-decodes the response into out. operation
// labels the datasource_calls_total/datasource_call_duration_seconds/
// datasource_retries_total metrics (spec.md §5's bounded retry budgets).
func (d *HTTPDataSource) doRequest(ctx context.Context, operation, method, url, token string, payload any, retries int, out any) error {
	start := time.Now()
	defer func() { metrics.DatasourceCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds()) }()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	var lastErr error
	attempts := retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.DatasourceRetriesTotal.WithLabelValues(operation).Inc()
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		func() {
			defer resp.Body.Close()
			if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("datasource: %s %s: status %d", method, url, resp.StatusCode)
				return
			}
			if resp.StatusCode >= 400 {
				lastErr = fmt.Errorf("datasource: %s %s: status %d (not retried)", method, url, resp.StatusCode)
				attempt = attempts
				return
			}
			lastErr = json.NewDecoder(resp.Body).Decode(out)
		}()
		if lastErr == nil {
			metrics.DatasourceCallsTotal.WithLabelValues(operation, "ok").Inc()
			return nil
		}
	}
	metrics.DatasourceCallsTotal.WithLabelValues(operation, "error").Inc()
	return lastErr
}

func (d *HTTPDataSource) multipartRequest(ctx context.Context, operation, url, filename string, content []byte, username, password string, retries int, out any) error {
	start := time.Now()
	defer func() { metrics.DatasourceCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds()) }()

	var buf bytes.Buffer
	buf.WriteString("--boundary\r\nContent-Disposition: form-data; name=\"file\"; filename=\"")
	buf.WriteString(filename)
	buf.WriteString("\"\r\nContent-Type: application/x-yaml\r\n\r\n")
	buf.Write(content)
	buf.WriteString("\r\n--boundary--\r\n")

	var lastErr error
	attempts := retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.DatasourceRetriesTotal.WithLabelValues(operation).Inc()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "multipart/form-data; boundary=boundary")
		if username != "" {
			req.SetBasicAuth(username, password)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		func() {
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				lastErr = fmt.Errorf("datasource: document service upload: status %d", resp.StatusCode)
				return
			}
			lastErr = json.NewDecoder(resp.Body).Decode(out)
		}()
		if lastErr == nil {
			metrics.DatasourceCallsTotal.WithLabelValues(operation, "ok").Inc()
			return nil
		}
	}
	metrics.DatasourceCallsTotal.WithLabelValues(operation, "error").Inc()
	return lastErr
}

// calculateHash derives a per-bidder participation-url token from a shared
// secret, mirroring openprocurement.auction.utils.calculate_hash's intent
// (HMAC binds the bidder id to the worker's secret; the exact digest
// function used by that helper was not present in the retrieval pack).
func calculateHash(bidderID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(bidderID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyParticipationHash reports whether hash matches the one
// SetParticipationURLs would have computed for bidderID under secret. The
// login endpoint a bidder's participation link points at uses this to
// confirm the link wasn't forged before issuing a session.
func VerifyParticipationHash(bidderID, hash, secret string) bool {
	return hmac.Equal([]byte(calculateHash(bidderID, secret)), []byte(hash))
}
