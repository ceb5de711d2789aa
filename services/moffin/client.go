// Package moffinsvc is the HTTP client of the Moffin API.
package moffinsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/moffin"
)

const (
	tokenEndpoint        = "/oauth/token"
	rfcDataEndpoint      = "/query/rfc-data"
	curpDataEndpoint     = "/query/curp-data"
	rfcCalcEndpoint      = "/query/rfc-calculator"
	formConfigsEndpoint  = "/formconfigs"
	tokenExpiryMargin    = 30 * time.Second
	defaultClientTimeout = 15 * time.Second
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type Client struct {
	creds moffin.Credentials
	rc    *rest.Client
	now   func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
	tokens singleflight.Group
}

var _ moffin.Client = (*Client)(nil)

func NewClient(creds moffin.Credentials, timeout time.Duration) (*Client, error) {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(creds.BaseURL, "BaseURL"),
		vala.StringNotEmpty(creds.ClientID, "ClientID"),
		vala.StringNotEmpty(creds.ClientSecret, "ClientSecret"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "invalid moffin credentials")
	}
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	return &Client{
		creds: creds,
		rc:    &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
		now:   time.Now,
	}, nil
}

// Factory builds the clients of the moffin service with the configured timeout.
func Factory(conf *core.Config) moffin.ClientFactory {
	return func(creds moffin.Credentials) (moffin.Client, error) {
		return NewClient(creds, conf.Moffin.Timeout)
	}
}

func checkStatus(res *rest.Response) error {
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return &moffin.APIError{StatusCode: res.StatusCode, Body: res.Body}
	}
	return nil
}

// send is rest.Client.Send bound to ctx.
func (c *Client) send(ctx context.Context, req rest.Request) (*rest.Response, error) {
	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return nil, err
	}
	httpRes, err := c.rc.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return rest.BuildResponse(httpRes)
}

// accessToken returns the cached token, or requests a new one. Concurrent callers share a single request.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiry) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	// shared by all waiters: only the http client timeout bounds it
	sharedCtx := context.WithoutCancel(ctx)
	v, err, _ := c.tokens.Do("token", func() (interface{}, error) {
		form := url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {c.creds.ClientID},
			"client_secret": {c.creds.ClientSecret},
		}
		res, err := c.send(sharedCtx, rest.Request{
			Method:  rest.Post,
			BaseURL: c.creds.BaseURL + tokenEndpoint,
			Headers: map[string]string{
				"Content-Type": "application/x-www-form-urlencoded",
				"Accept":       "application/json",
			},
			Body: []byte(form.Encode()),
		})
		if err != nil {
			return "", errors.Wrap(err, "requesting moffin token")
		}
		if err = checkStatus(res); err != nil {
			return "", errors.Wrap(err, "requesting moffin token")
		}

		var tr tokenResponse
		if err = json.Unmarshal([]byte(res.Body), &tr); err != nil {
			return "", errors.Wrap(err, "decoding moffin token")
		}
		if tr.AccessToken == "" {
			return "", errors.New("moffin returned an empty token")
		}

		c.mu.Lock()
		c.token = tr.AccessToken
		c.expiry = c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryMargin)
		c.mu.Unlock()
		return tr.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) invalidateToken(token string) {
	c.mu.Lock()
	if c.token == token {
		c.token = ""
	}
	c.mu.Unlock()
}

// post sends payload as JSON to endpoint. A rejected token is renewed once.
func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encoding moffin request")
	}

	var res *rest.Response
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		res, err = c.send(ctx, rest.Request{
			Method:  rest.Post,
			BaseURL: c.creds.BaseURL + endpoint,
			Headers: map[string]string{
				"Authorization": "Bearer " + token,
				"Content-Type":  "application/json",
				"Accept":        "application/json",
			},
			Body: body,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "calling moffin %s", endpoint)
		}
		if res.StatusCode != http.StatusUnauthorized {
			break
		}
		c.invalidateToken(token)
	}
	if err = checkStatus(res); err != nil {
		return nil, errors.Wrapf(err, "calling moffin %s", endpoint)
	}

	data := make(map[string]interface{})
	if strings.TrimSpace(res.Body) == "" {
		return data, nil
	}
	if err = json.Unmarshal([]byte(res.Body), &data); err != nil {
		return nil, errors.Wrapf(err, "decoding moffin %s response", endpoint)
	}
	return data, nil
}

func (c *Client) RFCData(ctx context.Context, rfc string) (map[string]interface{}, error) {
	return c.post(ctx, rfcDataEndpoint, map[string]string{"rfc": rfc})
}

func (c *Client) CURPData(ctx context.Context, curp string) (map[string]interface{}, error) {
	return c.post(ctx, curpDataEndpoint, map[string]string{"curp": curp})
}

func (c *Client) CalculateRFC(ctx context.Context, calc moffin.RFCCalculation) (map[string]interface{}, error) {
	return c.post(ctx, rfcCalcEndpoint, calc)
}

func (c *Client) CreateFormConfig(ctx context.Context, cfg moffin.FormConfig) (map[string]interface{}, error) {
	return c.post(ctx, formConfigsEndpoint, cfg)
}
