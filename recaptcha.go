package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultRecaptchaEndpoint is Google's siteverify endpoint.
var DefaultRecaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"

// GoogleRecaptcha verifies recaptcha response tokens against the siteverify
// endpoint.
type GoogleRecaptcha struct {
	secret   string
	endpoint string
	client   *http.Client
}

// RecaptchaOption configures a GoogleRecaptcha instance.
type RecaptchaOption func(*GoogleRecaptcha)

// WithRecaptchaEndpoint overrides the verification endpoint.
func WithRecaptchaEndpoint(endpoint string) RecaptchaOption {
	return func(r *GoogleRecaptcha) {
		if endpoint != "" {
			r.endpoint = endpoint
		}
	}
}

// WithRecaptchaClient overrides the HTTP client used for verification calls.
func WithRecaptchaClient(client *http.Client) RecaptchaOption {
	return func(r *GoogleRecaptcha) {
		if client != nil {
			r.client = client
		}
	}
}

// NewGoogleRecaptcha creates a verifier for the given secret key.
func NewGoogleRecaptcha(secret string, opts ...RecaptchaOption) *GoogleRecaptcha {
	r := &GoogleRecaptcha{
		secret:   secret,
		endpoint: DefaultRecaptchaEndpoint,
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *GoogleRecaptcha) Verify(ctx context.Context, token string) (*RecaptchaResult, error) {
	form := url.Values{}
	form.Set("secret", r.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build recaptcha request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := r.client.Do(req)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "recaptcha verification call failed")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, goerrors.New("recaptcha verification call failed", goerrors.CategoryOperation).
			WithMetadata(map[string]any{"status_code": res.StatusCode})
	}

	var result RecaptchaResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode recaptcha response")
	}

	return &result, nil
}
