package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/shoplens/tiksync/internal/models"
	"github.com/shoplens/tiksync/pkg/logger"
)

const (
	userInfoFields  = "open_id,union_id,avatar_url,display_name,follower_count,following_count,likes_count,video_count"
	videoListFields = "id,title,cover_image_url,share_url,create_time,view_count,like_count,comment_count,share_count"

	// videoPageSize is the max_count accepted by the video list endpoint.
	videoPageSize = 20
	// maxVideoPages caps pagination so one slow account cannot hold the
	// store lock indefinitely.
	maxVideoPages = 50

	requestTimeout = 30 * time.Second
)

// Auth-related error codes documented for the TikTok open API.
var authErrorCodes = map[string]bool{
	"access_token_invalid":  true,
	"access_token_expired":  true,
	"invalid_grant":         true,
	"scope_not_authorized":  true,
	"scope_permission_miss": true,
}

// APIError is a structured error from the TikTok open API envelope.
type APIError struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tiktok api error %s (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Client talks to the TikTok open API. Transient transport errors and 5xx
// responses are retried by the underlying retryable HTTP client; API-level
// errors come back as *APIError.
type Client struct {
	logger *logger.Logger

	http         *http.Client
	baseURL      string
	clientKey    string
	clientSecret string
}

func New(baseURL, clientKey, clientSecret string, logger *logger.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = requestTimeout
	rc.Logger = nil

	return &Client{
		http:         rc.StandardClient(),
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientKey:    clientKey,
		clientSecret: clientSecret,
		logger:       logger,
	}
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

type userInfoResponse struct {
	Data struct {
		User models.AccountInfo `json:"user"`
	} `json:"data"`
	Error errorEnvelope `json:"error"`
}

type videoListResponse struct {
	Data struct {
		Videos  []*models.VideoItem `json:"videos"`
		Cursor  int64               `json:"cursor"`
		HasMore bool                `json:"has_more"`
	} `json:"data"`
	Error errorEnvelope `json:"error"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// GetAccountInfo fetches the account profile and counters.
func (c *Client) GetAccountInfo(ctx context.Context, accessToken string) (*models.AccountInfo, error) {
	endpoint := fmt.Sprintf("%s/v2/user/info/?fields=%s", c.baseURL, userInfoFields)

	var out userInfoResponse
	if err := c.postJSON(ctx, endpoint, accessToken, nil, &out); err != nil {
		return nil, err
	}
	if err := apiError(out.Error, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.Data.User, nil
}

// FetchAllVideos walks the cursor-paginated video list until has_more is
// false, maxItems entries are collected, or the page cap is hit.
func (c *Client) FetchAllVideos(ctx context.Context, accessToken string, maxItems int) ([]*models.VideoItem, error) {
	endpoint := fmt.Sprintf("%s/v2/video/list/?fields=%s", c.baseURL, videoListFields)

	var videos []*models.VideoItem
	var cursor int64
	for page := 0; page < maxVideoPages; page++ {
		body := map[string]interface{}{"max_count": videoPageSize}
		if cursor > 0 {
			body["cursor"] = cursor
		}

		var out videoListResponse
		if err := c.postJSON(ctx, endpoint, accessToken, body, &out); err != nil {
			return nil, err
		}
		if err := apiError(out.Error, http.StatusOK); err != nil {
			return nil, err
		}

		videos = append(videos, out.Data.Videos...)
		if len(videos) >= maxItems {
			videos = videos[:maxItems]
			break
		}
		if !out.Data.HasMore {
			break
		}
		cursor = out.Data.Cursor
	}
	return videos, nil
}

// RefreshAccessToken exchanges a refresh token for a fresh token pair.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	endpoint := c.baseURL + "/v2/oauth/token/"
	form := url.Values{}
	form.Set("client_key", c.clientKey)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	var out tokenResponse
	if err := decodeBody(resp.Body, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, &APIError{Code: out.Error, Message: out.ErrorDescription, HTTPStatus: resp.StatusCode}
	}
	if out.AccessToken == "" {
		return nil, &APIError{Code: "empty_token", Message: "token endpoint returned no access token", HTTPStatus: resp.StatusCode}
	}

	now := time.Now().Unix()
	return &models.TokenPair{
		AccessToken:      out.AccessToken,
		AccessExpiresAt:  now + out.ExpiresIn,
		RefreshToken:     out.RefreshToken,
		RefreshExpiresAt: now + out.RefreshExpiresIn,
	}, nil
}

// IsAuthFailure reports whether err means the credential was rejected
// rather than a transient upstream problem.
func (c *Client) IsAuthFailure(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.HTTPStatus == http.StatusUnauthorized || apiErr.HTTPStatus == http.StatusForbidden {
		return true
	}
	return authErrorCodes[apiErr.Code]
}

func (c *Client) postJSON(ctx context.Context, endpoint, accessToken string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &APIError{Code: "access_token_invalid", Message: "unauthorized", HTTPStatus: resp.StatusCode}
	}
	return decodeBody(resp.Body, out)
}

func decodeBody(body io.Reader, out interface{}) error {
	data, err := io.ReadAll(io.LimitReader(body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiError converts a non-ok envelope into an *APIError.
func apiError(env errorEnvelope, httpStatus int) error {
	if env.Code == "" || env.Code == "ok" {
		return nil
	}
	return &APIError{Code: env.Code, Message: env.Message, HTTPStatus: httpStatus}
}
