package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/tupyy/mdm-agent-ng/internal/entity"
)

// SessionContext carries the session token issued by initSession. Every call
// made on behalf of that session receives it explicitly; there is no ambient
// token.
type SessionContext struct {
	Token string
}

// transportWrapper is a wrapper for transport. It can be used as a middleware.
type transportWrapper func(http.RoundTripper) http.RoundTripper

// Client performs the enrollment-time and file-deploy REST calls against the
// management server.
type Client struct {
	// server's url
	serverURL *url.URL

	timeout time.Duration

	transportWrappers []transportWrapper

	// transport is the transport which makes the actual request
	transport http.RoundTripper
}

func New(path string, timeout time.Duration) (*Client, error) {
	url, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("server address error: %s", err)
	}

	// TODO dynamically enable based on log level
	logWrapper := &logTransportWrapper{}

	return &Client{
		serverURL:         url,
		timeout:           timeout,
		transportWrappers: []transportWrapper{logWrapper.Wrap},
	}, nil
}

// InitSession exchanges the user token for a session token.
func (c *Client) InitSession(ctx context.Context, userToken string) (SessionContext, error) {
	request, err := newRequestBuilder().
		Method(http.MethodGet).
		Url(fmt.Sprintf("%s/initSession", c.serverURL.String())).
		Header("Authorization", fmt.Sprintf("user_token %s", userToken)).
		Build(ctx)
	if err != nil {
		return SessionContext{}, fmt.Errorf("cannot create init session request '%w'", err)
	}

	var response struct {
		SessionToken string `json:"session_token"`
	}
	if err := c.do(request, &response); err != nil {
		return SessionContext{}, err
	}

	if response.SessionToken == "" {
		return SessionContext{}, fmt.Errorf("init session response has no session token")
	}

	return SessionContext{Token: response.SessionToken}, nil
}

// GetFullSession returns the active and guest profile ids of the session.
func (c *Client) GetFullSession(ctx context.Context, session SessionContext) (entity.FullSession, error) {
	request, err := newRequestBuilder().
		Method(http.MethodGet).
		Url(fmt.Sprintf("%s/getFullSession", c.serverURL.String())).
		Session(session).
		Build(ctx)
	if err != nil {
		return entity.FullSession{}, fmt.Errorf("cannot create full session request '%w'", err)
	}

	var response struct {
		Session struct {
			ActiveProfile struct {
				ID int `json:"id"`
			} `json:"glpiactiveprofile"`
			GuestProfileID int `json:"plugin_flyvemdm_guest_profiles_id"`
		} `json:"session"`
	}
	if err := c.do(request, &response); err != nil {
		return entity.FullSession{}, err
	}

	return entity.FullSession{
		ActiveProfileID: response.Session.ActiveProfile.ID,
		GuestProfileID:  response.Session.GuestProfileID,
	}, nil
}

// ChangeActiveProfile switches the session to the given profile.
func (c *Client) ChangeActiveProfile(ctx context.Context, session SessionContext, profileID int) error {
	request, err := newRequestBuilder().
		Method(http.MethodPost).
		Url(fmt.Sprintf("%s/changeActiveProfile", c.serverURL.String())).
		Session(session).
		Body(map[string]int{"profiles_id": profileID}).
		Build(ctx)
	if err != nil {
		return fmt.Errorf("cannot create change profile request '%w'", err)
	}

	return c.do(request, nil)
}

// RegisterAgent submits the enrollment request and returns the new agent id.
func (c *Client) RegisterAgent(ctx context.Context, session SessionContext, enrollment entity.EnrollmentRequest) (int, error) {
	request, err := newRequestBuilder().
		Method(http.MethodPost).
		Url(fmt.Sprintf("%s/PluginFlyvemdmAgent", c.serverURL.String())).
		Session(session).
		Body(map[string]entity.EnrollmentRequest{"input": enrollment}).
		Build(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot create register agent request '%w'", err)
	}

	var response struct {
		ID int `json:"id"`
	}
	if err := c.do(request, &response); err != nil {
		return 0, err
	}

	return response.ID, nil
}

// GetAgentDescriptor fetches the full agent record by id.
func (c *Client) GetAgentDescriptor(ctx context.Context, session SessionContext, agentID int) (entity.AgentIdentity, error) {
	request, err := newRequestBuilder().
		Method(http.MethodGet).
		Url(fmt.Sprintf("%s/PluginFlyvemdmAgent/%d", c.serverURL.String(), agentID)).
		Session(session).
		Build(ctx)
	if err != nil {
		return entity.AgentIdentity{}, fmt.Errorf("cannot create agent descriptor request '%w'", err)
	}

	var agent entity.AgentIdentity
	if err := c.do(request, &agent); err != nil {
		return entity.AgentIdentity{}, err
	}

	return agent, nil
}

// GetFile downloads the content of a fleet file by id.
func (c *Client) GetFile(ctx context.Context, session SessionContext, fileID string) ([]byte, error) {
	request, err := newRequestBuilder().
		Method(http.MethodGet).
		Url(fmt.Sprintf("%s/PluginFlyvemdmFile/%s", c.serverURL.String(), url.PathEscape(fileID))).
		Session(session).
		Accept("application/octet-stream").
		Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot create file request '%w'", err)
	}

	response, err := c.getClient().Do(request)
	if err != nil {
		return nil, fmt.Errorf("cannot get file '%w'", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		return nil, newAPIError(response)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read file body '%w'", err)
	}

	return data, nil
}

// do executes the request and decodes the success payload into out when out
// is not nil. A non-2xx response is returned as an APIError carrying the
// server-supplied message verbatim.
func (c *Client) do(request *http.Request, out any) error {
	response, err := c.getClient().Do(request)
	if err != nil {
		return fmt.Errorf("request failed '%w'", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		return newAPIError(response)
	}

	if out == nil {
		return nil
	}

	return decodeBody(response, out)
}

func (c *Client) getClient() *http.Client {
	if c.transport == nil {
		var transport http.RoundTripper = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		}

		// call the wrappers backwards
		for i := len(c.transportWrappers) - 1; i >= 0; i-- {
			transport = c.transportWrappers[i](transport)
		}

		c.transport = transport

		zap.S().Debugw("http transport created", "server", c.serverURL.String())
	}

	return &http.Client{
		Transport: c.transport,
		Timeout:   c.timeout,
	}
}
