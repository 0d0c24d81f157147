package wpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/provider-intel/internal/core/domain"
	"github.com/kirillkom/provider-intel/internal/infrastructure/resilience"
)

const totalHeader = "X-WP-Total"

// Client reads catalog and taxonomy pages from a WordPress-style REST API.
type Client struct {
	baseURL         string
	catalogResource string
	resources       map[domain.Vocabulary]string
	userAgent       string
	httpClient      *http.Client
	executor        *resilience.Executor
}

type Options struct {
	CatalogResource string
	// Resources maps each vocabulary to its REST base; items carry term ids under the same key.
	Resources map[domain.Vocabulary]string
	UserAgent string
	Timeout   time.Duration
	Executor  *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	resources := make(map[domain.Vocabulary]string, len(options.Resources))
	for k, v := range options.Resources {
		resources[k] = v
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		catalogResource: options.CatalogResource,
		resources:       resources,
		userAgent:       options.UserAgent,
		httpClient:      &http.Client{Timeout: timeout},
		executor:        options.Executor,
	}
}

type renderedField struct {
	Rendered string `json:"rendered"`
}

func (c *Client) CatalogPage(ctx context.Context, page, pageSize int) ([]domain.CatalogEntry, int, error) {
	var raw []map[string]json.RawMessage
	header, err := c.fetchPage(ctx, "catalog.page", c.catalogResource, page, pageSize, url.Values{
		"orderby": {"id"},
		"order":   {"asc"},
	}, &raw)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]domain.CatalogEntry, 0, len(raw))
	for i, item := range raw {
		entry, err := c.decodeEntry(item)
		if err != nil {
			return nil, 0, fmt.Errorf("decode catalog page %d item %d: %w", page, i, err)
		}
		entries = append(entries, entry)
	}

	total := 0
	if header != nil {
		total, _ = strconv.Atoi(strings.TrimSpace(header.Get(totalHeader)))
	}
	return entries, total, nil
}

func (c *Client) TaxonomyPage(ctx context.Context, vocabulary domain.Vocabulary, page, pageSize int) ([]domain.TaxonomyTerm, error) {
	resource, ok := c.resources[vocabulary]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "taxonomy page", fmt.Errorf("no resource configured for vocabulary %s", vocabulary))
	}
	var terms []domain.TaxonomyTerm
	if _, err := c.fetchPage(ctx, "taxonomy.page", resource, page, pageSize, url.Values{
		"_fields": {"id,slug"},
	}, &terms); err != nil {
		return nil, err
	}
	return terms, nil
}

func (c *Client) decodeEntry(item map[string]json.RawMessage) (domain.CatalogEntry, error) {
	var entry domain.CatalogEntry
	if raw, ok := item["id"]; ok {
		if err := json.Unmarshal(raw, &entry.ID); err != nil {
			return domain.CatalogEntry{}, fmt.Errorf("id: %w", err)
		}
	}
	if raw, ok := item["title"]; ok {
		var title renderedField
		if err := json.Unmarshal(raw, &title); err != nil {
			// Some endpoints return the title as a plain string.
			if err := json.Unmarshal(raw, &entry.Title); err != nil {
				return domain.CatalogEntry{}, fmt.Errorf("title: %w", err)
			}
		} else {
			entry.Title = title.Rendered
		}
	}

	entry.Meta = make(map[string]any)
	for _, key := range []string{"meta", "acf"} {
		raw, ok := item[key]
		if !ok {
			continue
		}
		var bag map[string]any
		// WordPress renders an empty meta bag as [] rather than {}.
		if err := json.Unmarshal(raw, &bag); err != nil {
			continue
		}
		for k, v := range bag {
			if _, exists := entry.Meta[k]; !exists {
				entry.Meta[k] = v
			}
		}
	}

	entry.Terms = make(map[domain.Vocabulary][]int, len(c.resources))
	for vocabulary, resource := range c.resources {
		raw, ok := item[resource]
		if !ok {
			continue
		}
		var ids []int
		if err := json.Unmarshal(raw, &ids); err != nil {
			return domain.CatalogEntry{}, fmt.Errorf("terms %s: %w", resource, err)
		}
		entry.Terms[vocabulary] = ids
	}
	return entry, nil
}

func (c *Client) fetchPage(
	ctx context.Context,
	operation, resource string,
	page, pageSize int,
	extra url.Values,
	out any,
) (http.Header, error) {
	query := url.Values{}
	for k, v := range extra {
		query[k] = v
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(pageSize))

	var header http.Header
	call := func(callCtx context.Context) error {
		h, err := c.getJSON(callCtx, "/"+strings.TrimLeft(resource, "/"), query, out, operation)
		header = h
		return err
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation+"."+resource, call, classifyUpstreamError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if isPastLastPage(err) {
			return nil, nil
		}
		return nil, wrapTemporaryIfNeeded(operation, err)
	}
	return header, nil
}
