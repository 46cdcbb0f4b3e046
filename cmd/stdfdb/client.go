package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zxspring21/AISEMITEST/internal/application"
	"github.com/zxspring21/AISEMITEST/internal/domain"
	"github.com/zxspring21/AISEMITEST/internal/ingest"
)

// apiClient talks to a running "stdfdb serve".
type apiClient struct {
	httpClient *http.Client
	server     string
}

func newAPIClient(server string) *apiClient {
	return &apiClient{
		// loads of large files run inside a single request
		httpClient: &http.Client{Timeout: 30 * time.Minute},
		server:     strings.TrimRight(server, "/"),
	}
}

func (c *apiClient) request(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %v", domain.ErrNotFound, apiErr)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func lotPath(lotID uint, suffix string) string {
	return "/api/lots/" + strconv.FormatUint(uint64(lotID), 10) + suffix
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + "?limit=" + strconv.Itoa(limit)
}

// remoteBackend serves CLI commands through the HTTP API. Load sources are
// resolved on the server.
type remoteBackend struct {
	client *apiClient
}

func (b *remoteBackend) Load(ctx context.Context, source string, o ingest.Overrides) (application.LoadResult, error) {
	var out application.LoadResult
	err := b.client.request(ctx, http.MethodPost, "/api/loads", map[string]string{
		"source":  source,
		"company": o.Company,
		"product": o.Product,
		"stage":   o.Stage,
	}, &out)
	return out, err
}

func (b *remoteBackend) Overview(ctx context.Context) (domain.Overview, error) {
	var out domain.Overview
	err := b.client.request(ctx, http.MethodGet, "/api/overview", nil, &out)
	return out, err
}

func (b *remoteBackend) ListLots(ctx context.Context, query string, limit int) ([]domain.LotSummary, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/lots"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out []domain.LotSummary
	err := b.client.request(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (b *remoteBackend) GetLot(ctx context.Context, lotID uint) (domain.LotSummary, error) {
	var out domain.LotSummary
	err := b.client.request(ctx, http.MethodGet, lotPath(lotID, ""), nil, &out)
	return out, err
}

func (b *remoteBackend) DeleteLot(ctx context.Context, lotID uint) error {
	return b.client.request(ctx, http.MethodDelete, lotPath(lotID, ""), nil, nil)
}

func (b *remoteBackend) BinSummary(ctx context.Context, lotID uint) ([]domain.BinCount, error) {
	var out []domain.BinCount
	err := b.client.request(ctx, http.MethodGet, lotPath(lotID, "/bins"), nil, &out)
	return out, err
}

func (b *remoteBackend) FailPareto(ctx context.Context, lotID uint, limit int) ([]domain.FailCount, error) {
	var out []domain.FailCount
	err := b.client.request(ctx, http.MethodGet, withLimit(lotPath(lotID, "/pareto"), limit), nil, &out)
	return out, err
}

func (b *remoteBackend) SuiteItems(ctx context.Context, lotID uint) ([]domain.SuiteItems, error) {
	var out []domain.SuiteItems
	err := b.client.request(ctx, http.MethodGet, lotPath(lotID, "/suites"), nil, &out)
	return out, err
}

func (b *remoteBackend) WaferYields(ctx context.Context, lotID uint) ([]domain.WaferYield, error) {
	var out []domain.WaferYield
	err := b.client.request(ctx, http.MethodGet, lotPath(lotID, "/wafers"), nil, &out)
	return out, err
}

func (b *remoteBackend) SiteEquipment(ctx context.Context, lotID uint) ([]domain.SiteEquipment, error) {
	var out []domain.SiteEquipment
	err := b.client.request(ctx, http.MethodGet, lotPath(lotID, "/equipment"), nil, &out)
	return out, err
}

func (b *remoteBackend) ImportRuns(ctx context.Context, limit int) ([]domain.ImportRun, error) {
	var out []domain.ImportRun
	err := b.client.request(ctx, http.MethodGet, withLimit("/api/imports", limit), nil, &out)
	return out, err
}
