package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "hmac-gateway/internal/common/errors"
	httpclient "hmac-gateway/internal/common/http"
)

// apiKeyDTO mirrors the API key service's response payload.
type apiKeyDTO struct {
	ID         int64  `json:"id"`
	ClientID   string `json:"clientId"`
	AccessKey  string `json:"accessKey"`
	Secret     string `json:"secret"`
	Status     string `json:"status"`
	AllowedIPs string `json:"allowedIps"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

type apiResponse struct {
	Data         *apiKeyDTO `json:"data"`
	ErrorMessage string     `json:"errorMessage"`
}

// HTTPOrigin fetches credentials from the API key service at
// GET {baseURL}/api/v1/api-keys/access/{accessKey}.
type HTTPOrigin struct {
	baseURL  string
	client   *http.Client
	validate *validator.Validate
}

// NewHTTPOrigin creates an origin for the service at baseURL.
func NewHTTPOrigin(baseURL string, client *http.Client) *HTTPOrigin {
	if client == nil {
		client = httpclient.NewHTTPClient()
	}
	return &HTTPOrigin{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		validate: validator.New(),
	}
}

// Fetch returns ErrNotFound on 404 or an empty payload. Any other failure is
// an unavailable error.
func (o *HTTPOrigin) Fetch(ctx context.Context, accessKey string) (*Credential, error) {
	endpoint := fmt.Sprintf("%s/api/v1/api-keys/access/%s", o.baseURL, url.PathEscape(accessKey))

	var resp apiResponse
	if err := httpclient.GetJSON(ctx, o.client, endpoint, &resp); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, apperrors.UnavailableError("api key service request failed", err)
	}

	if resp.Data == nil {
		return nil, ErrNotFound
	}

	cred := &Credential{
		ID:         resp.Data.ID,
		ClientID:   resp.Data.ClientID,
		AccessKey:  resp.Data.AccessKey,
		Secret:     resp.Data.Secret,
		Status:     Status(strings.ToUpper(resp.Data.Status)),
		AllowedIPs: ParseAllowedIPs(resp.Data.AllowedIPs),
	}
	if err := o.validate.Struct(cred); err != nil {
		return nil, apperrors.InternalError("api key service returned an invalid credential", err).
			WithContext("access_key", accessKey)
	}
	if cred.AccessKey != accessKey {
		return nil, apperrors.InternalError("api key service returned a different access key", nil).
			WithContext("access_key", accessKey)
	}
	return cred, nil
}
