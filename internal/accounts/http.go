package accounts

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/marketplace/internal/domain"
)

// HTTPDirectory looks uploaders up in the remote account service.
type HTTPDirectory struct {
	client *resty.Client
}

// HTTPConfig holds configuration for the account service client.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewHTTPDirectory creates a client for the account service.
func NewHTTPDirectory(cfg *HTTPConfig) *HTTPDirectory {
	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/"))
	client.SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &HTTPDirectory{client: client}
}

type userResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Shop     *struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	} `json:"shop"`
}

// GetUploader fetches GET /users/{id} and maps it to an Uploader.
func (d *HTTPDirectory) GetUploader(ctx context.Context, userID uint) (*domain.Uploader, error) {
	var resp userResponse
	httpResp, err := d.client.R().
		SetContext(ctx).
		SetResult(&resp).
		Get("/users/" + strconv.FormatUint(uint64(userID), 10))
	if err != nil {
		return nil, fmt.Errorf("failed to call account service: %w", err)
	}

	switch httpResp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, domain.WrapError(domain.ErrUploaderNotFound, "get uploader", fmt.Errorf("user %d", userID))
	default:
		return nil, fmt.Errorf("account service error: status %d", httpResp.StatusCode())
	}

	if resp.Shop == nil {
		return nil, domain.WrapError(domain.ErrShopNotFound, "get uploader", fmt.Errorf("user %d", userID))
	}

	return &domain.Uploader{
		UserID:   resp.ID,
		Username: resp.Username,
		Email:    resp.Email,
		ShopID:   resp.Shop.ID,
		ShopName: resp.Shop.Name,
	}, nil
}
