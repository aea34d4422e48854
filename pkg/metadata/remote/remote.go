// Package remote implements metadata.Store against the remote
// transactional metadata service.
//
// Every logical operation is dispatched as a named transaction: the
// repository's TransactionTable supplies the four-part transaction
// address, and the operation's parameters travel as name/value inputs.
// The table is configuration per repository with stock defaults, so
// the wire contract is data, not code.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/metadata"
	"github.com/stormrose-io/filegate/pkg/repository"
)

// Config configures the transaction client.
type Config struct {
	// BaseURL of the metadata service, e.g. "https://biz.example.com".
	BaseURL string

	// Timeout per HTTP attempt. Defaults to 30s.
	Timeout time.Duration

	// MaxRetries for transport-level failures and 5xx responses.
	// Defaults to 3 attempts total.
	MaxRetries int
}

// Client executes transactions against the metadata service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewClient validates the configuration and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote metadata: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
	}, nil
}

// NameValue is one transaction input parameter.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type transactionRequest struct {
	SystemID      string         `json:"systemId"`
	ServerID      string         `json:"serverId"`
	TransactionID string         `json:"transactionId"`
	FunctionID    string         `json:"functionId"`
	Inputs        []NameValue    `json:"inputs,omitempty"`
	Item          *metadata.Item `json:"item,omitempty"`
}

type transactionResponse struct {
	Acknowledge   bool             `json:"acknowledge"`
	ExceptionText string           `json:"exceptionText,omitempty"`
	Affected      int              `json:"affected,omitempty"`
	Items         []*metadata.Item `json:"items,omitempty"`
}

// execute POSTs one transaction, retrying transport failures and 5xx
// responses with a short linear backoff.
func (c *Client) execute(ctx context.Context, tx repository.Transaction, req transactionRequest) (*transactionResponse, error) {
	req.SystemID = tx.SystemID
	req.ServerID = tx.ServerID
	req.TransactionID = tx.TransactionID
	req.FunctionID = tx.FunctionID

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction request: %w", err)
	}

	url := c.baseURL + "/api/transaction"
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * 500 * time.Millisecond):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build transaction request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			logger.Warn("transaction %s attempt %d/%d failed: %v", tx, attempt, c.maxRetries, err)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("transaction %s: server status %d", tx, resp.StatusCode)
			logger.Warn("transaction %s attempt %d/%d: status %d", tx, attempt, c.maxRetries, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("transaction %s: unexpected status %d", tx, resp.StatusCode)
		}

		var out transactionResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode transaction response: %w", err)
		}
		if !out.Acknowledge {
			return nil, fmt.Errorf("transaction %s rejected: %s", tx, out.ExceptionText)
		}
		return &out, nil
	}
	return nil, fmt.Errorf("transaction %s: %w", tx, lastErr)
}

// Store implements metadata.Store by delegating to the remote service.
// It resolves each repository's transaction table through the
// registry, so per-repository overrides take effect without code
// changes.
type Store struct {
	client   *Client
	registry *repository.Registry
}

// NewStore creates a remote-backed metadata store.
func NewStore(client *Client, registry *repository.Registry) *Store {
	return &Store{client: client, registry: registry}
}

func (s *Store) transactions(repositoryID string) (repository.TransactionTable, error) {
	repo, err := s.registry.Get(repositoryID)
	if err != nil {
		return repository.TransactionTable{}, err
	}
	return repo.Transactions, nil
}

func keyInputs(key metadata.ItemKey) []NameValue {
	return []NameValue{
		{Name: "repositoryId", Value: key.RepositoryID},
		{Name: "itemId", Value: key.ItemID},
		{Name: "businessId", Value: key.BusinessID},
	}
}

func (s *Store) GetItem(ctx context.Context, key metadata.ItemKey) (*metadata.Item, error) {
	table, err := s.transactions(key.RepositoryID)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.execute(ctx, table.GetItem, transactionRequest{Inputs: keyInputs(key)})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("item %s/%s: %w", key.RepositoryID, key.ItemID, metadata.ErrItemNotFound)
	}
	return resp.Items[0], nil
}

func (s *Store) GetItems(ctx context.Context, repositoryID, dependencyID, businessID string) ([]*metadata.Item, error) {
	table, err := s.transactions(repositoryID)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.execute(ctx, table.GetItems, transactionRequest{Inputs: []NameValue{
		{Name: "repositoryId", Value: repositoryID},
		{Name: "dependencyId", Value: dependencyID},
		{Name: "businessId", Value: businessID},
	}})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (s *Store) UpsertItem(ctx context.Context, item *metadata.Item) error {
	table, err := s.transactions(item.RepositoryID)
	if err != nil {
		return err
	}
	_, err = s.client.execute(ctx, table.UpsertItem, transactionRequest{Item: item})
	return err
}

func (s *Store) DeleteItem(ctx context.Context, key metadata.ItemKey) (int, error) {
	table, err := s.transactions(key.RepositoryID)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.execute(ctx, table.DeleteItem, transactionRequest{Inputs: keyInputs(key)})
	if err != nil {
		return 0, err
	}
	return resp.Affected, nil
}

func (s *Store) UpdateDependencyID(ctx context.Context, key metadata.ItemKey, newDependencyID string) error {
	table, err := s.transactions(key.RepositoryID)
	if err != nil {
		return err
	}
	inputs := append(keyInputs(key), NameValue{Name: "targetDependencyId", Value: newDependencyID})
	resp, err := s.client.execute(ctx, table.UpdateDependencyID, transactionRequest{Inputs: inputs})
	if err != nil {
		return err
	}
	if resp.Affected == 0 {
		return fmt.Errorf("item %s/%s: %w", key.RepositoryID, key.ItemID, metadata.ErrItemNotFound)
	}
	return nil
}

// UpdateFileName implements metadata.FileNameUpdater using the
// dedicated rename transaction: the service swaps the record identity
// in one round trip.
func (s *Store) UpdateFileName(ctx context.Context, backupKey metadata.ItemKey, item *metadata.Item) error {
	table, err := s.transactions(item.RepositoryID)
	if err != nil {
		return err
	}
	_, err = s.client.execute(ctx, table.UpdateFileName, transactionRequest{
		Inputs: keyInputs(backupKey),
		Item:   item,
	})
	return err
}

func (s *Store) Close() error {
	return nil
}

// RepositoryLoader loads the repository list from the metadata
// service. Used as the registry loader when the deployment is not
// self-contained.
type RepositoryLoader struct {
	Client *Client
}

func (l RepositoryLoader) Load(ctx context.Context) ([]repository.Repository, error) {
	url := l.Client.baseURL + "/api/repositories"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build repository list request: %w", err)
	}

	resp, err := l.Client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch repository list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch repository list: status %d", resp.StatusCode)
	}

	var repos []repository.Repository
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, fmt.Errorf("decode repository list: %w", err)
	}
	return repos, nil
}
