package nimbusapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/actron-nimbus/internal/pkg/logging"
	"github.com/jake-scott/actron-nimbus/pkg/apierrors"
	"github.com/jake-scott/actron-nimbus/pkg/models"
	"github.com/jake-scott/actron-nimbus/version"
)

type Live struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	timeout    time.Duration

	// shared by copies made with WithTimeout
	closed *int32
}

func NewLiveClient(baseURL string, tokens TokenSource, httpClient *http.Client) *Live {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Live{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		closed:     new(int32),
	}
}

func (c *Live) WithTimeout(d time.Duration) Transport {
	nc := *c
	nc.timeout = d
	return &nc
}

func (c *Live) MakeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}

	var ctx = parent
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, c.timeout)
	}

	return ctx, cancel
}

// Close releases idle connections.  Calls after the first are no-ops, and
// every later Send fails.
func (c *Live) Close() {
	if !atomic.CompareAndSwapInt32(c.closed, 0, 1) {
		return
	}
	c.httpClient.CloseIdleConnections()
}

func (c *Live) isClosed() bool {
	return atomic.LoadInt32(c.closed) != 0
}

// Send performs one API call.  The bearer token is attached; a 401 causes
// exactly one token refresh and retry.  A non-nil out is decoded from the
// JSON response and validated when it implements models.Validatable.
func (c *Live) Send(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	op := method + " " + path
	ctxLogger := logging.Logger(ctx)

	if c.isClosed() {
		return &apierrors.APIError{Op: op, Err: apierrors.ErrClosed}
	}

	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	var reqBody []byte
	if body != nil {
		var err error
		if reqBody, err = json.Marshal(body); err != nil {
			return &apierrors.ValidationError{Op: op, Err: errors.Wrap(err, "encoding request body")}
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	resp, respBody, err := c.do(ctx, op, method, endpoint, reqBody, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		ctxLogger.Debugf("Bearer token rejected by [%s], refreshing and retrying once", op)

		rec, err := c.tokens.ForceRefresh(ctx, token)
		if err != nil {
			return err
		}

		resp, respBody, err = c.do(ctx, op, method, endpoint, reqBody, rec.Value)
		if err != nil {
			return err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apierrors.APIError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody),
			Err: errors.Errorf("non-2xx response: %s", resp.Status)}
	}

	if out == nil {
		return nil
	}

	if err := decodeJSON(resp.Header, respBody, out); err != nil {
		return &apierrors.ValidationError{Op: op, Err: errors.Wrap(err, "decoding response")}
	}

	if v, ok := out.(models.Validatable); ok {
		if err := v.Validate(models.Formats); err != nil {
			return &apierrors.ValidationError{Op: op, Err: err}
		}
	}

	return nil
}

func (c *Live) do(ctx context.Context, op, method, endpoint string, reqBody []byte, token string) (*http.Response, []byte, error) {
	ctxLogger := logging.Logger(ctx)

	var rdr io.Reader
	if reqBody != nil {
		rdr = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return nil, nil, &apierrors.APIError{Op: op, Err: errors.Wrap(err, "creating request")}
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if txnID, ok := logging.TxnID(ctx); ok {
		req.Header.Set("X-Correlation-Id", txnID)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
		ctxLogger.Debugf("Sending %s %s: %s", method, endpoint, reqBody)
	} else {
		ctxLogger.Debugf("Sending %s %s", method, endpoint)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &apierrors.APIError{Op: op, Err: errors.Wrap(err, "sending request")}
	}
	defer resp.Body.Close()

	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &apierrors.APIError{Op: op, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "reading response body")}
	}

	ctxLogger.Debugf("Response from %s: HTTP %d, %d bytes", endpoint, resp.StatusCode, len(respBody))
	return resp, respBody, nil
}
