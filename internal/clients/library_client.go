// internal/clients/library_client.go
package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"lendinglibrary/internal/domain"
	"lendinglibrary/internal/httpx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusError is a response the client has no domain error for.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

// RejectedError carries the server's message for a domain rejection.
type RejectedError struct {
	Message string
	Err     error
}

func (e *RejectedError) Error() string { return e.Message }

func (e *RejectedError) Unwrap() error { return e.Err }

// LibraryClient talks to a running library server and maps its error
// responses back onto the domain errors.
type LibraryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewLibraryClient(baseURL string) *LibraryClient {
	return &LibraryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *LibraryClient) CreateLoan(ctx context.Context, req domain.LoanRequest) (*domain.Loan, error) {
	var loan domain.Loan
	if err := c.do(ctx, http.MethodPost, "/loans", req, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *LibraryClient) GetLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	var loan domain.Loan
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/loans/%d", id), nil, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *LibraryClient) ListLoans(ctx context.Context) ([]domain.Loan, error) {
	var loans []domain.Loan
	if err := c.do(ctx, http.MethodGet, "/loans", nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (c *LibraryClient) DeleteLoan(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/loans/%d", id), nil, nil)
}

func (c *LibraryClient) MemberLoans(ctx context.Context, memberID int64) ([]domain.Loan, error) {
	var loans []domain.Loan
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/members/%d/loans", memberID), nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (c *LibraryClient) GetMember(ctx context.Context, id int64) (*domain.Member, error) {
	var member domain.Member
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/members/%d", id), nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *LibraryClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
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
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case http.StatusNoContent:
		return nil
	default:
		return decodeError(resp)
	}
}

func decodeError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	text := strings.TrimSpace(string(raw))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		var body struct {
			Kind domain.Kind `json:"kind"`
			ID   int64       `json:"id"`
		}
		if json.Unmarshal(raw, &body) == nil && body.Kind != "" {
			return domain.NewNotFound(body.Kind, body.ID)
		}
	case resp.StatusCode == http.StatusBadRequest && text == httpx.LoanLimitMessage:
		return &RejectedError{Message: text, Err: domain.ErrLoanLimitExceeded}
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: text}
}
