// Package telegram implements the chat contract on top of the Telegram
// Bot API, hand-rolled over net/http.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mirrorleech/mirror_relay/internal/chat"
	"github.com/mirrorleech/mirror_relay/internal/logctx"
	"github.com/mirrorleech/mirror_relay/internal/progress"
)

// uploadReportInterval is how often (in bytes) the upload progress
// callback fires; rendering is throttled separately.
const uploadReportInterval = int64(256 * 1024)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	// Document uploads run as long as the file is large. The default
	// client bounds the wait for response headers only, never the whole
	// exchange; a whole-request deadline would abort big uploads mid-flight.
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 60 * time.Second,
			},
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// APIError is a non-ok response from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (code %d): %s", e.Method, e.Code, e.Description)
}

// NotModified reports whether the error is the "message is not modified"
// edit rejection, which callers treat as a successful no-op.
func (e *APIError) NotModified() bool {
	return strings.Contains(e.Description, "message is not modified")
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call posts a form-encoded Bot API request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp.Body, method, out)
}

func decodeResponse(body io.Reader, method string, out any) error {
	var apiResp apiResponse
	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if !apiResp.OK {
		return &APIError{Method: method, Code: apiResp.ErrorCode, Description: apiResp.Description}
	}

	if out != nil {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}

	return nil
}

// Update is one long-poll result from getUpdates.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
}

type IncomingMessage struct {
	MessageID int64   `json:"message_id"`
	From      *User   `json:"from"`
	Chat      ChatRef `json:"chat"`
	Text      string  `json:"text"`
}

type User struct {
	ID int64 `json:"id"`
}

type ChatRef struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

// GetUpdates long-polls for new updates past the given offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	params.Set("allowed_updates", `["message"]`)

	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}

	return updates, nil
}

// OpenChat returns the chat.Channel for a conversation.
func (c *Client) OpenChat(chatID int64) chat.Channel {
	return &conversation{client: c, chatID: chatID}
}

type conversation struct {
	client *Client
	chatID int64
}

func (cv *conversation) Reply(ctx context.Context, text string) (chat.StatusMessage, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(cv.chatID, 10))
	params.Set("text", text)
	params.Set("parse_mode", "HTML")

	var sent sentMessage
	if err := cv.client.call(ctx, "sendMessage", params, &sent); err != nil {
		return nil, err
	}

	return &statusMessage{
		client:    cv.client,
		chatID:    cv.chatID,
		messageID: sent.MessageID,
		lastText:  text,
	}, nil
}

// statusMessage serializes all writes onto the one shared message, so
// concurrent per-file renders never interleave mid-edit.
type statusMessage struct {
	client    *Client
	chatID    int64
	messageID int64

	mu       sync.Mutex
	lastText string
}

func (m *statusMessage) Edit(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if text == m.lastText {
		return nil
	}

	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(m.chatID, 10))
	params.Set("message_id", strconv.FormatInt(m.messageID, 10))
	params.Set("text", text)
	params.Set("parse_mode", "HTML")

	if err := m.client.call(ctx, "editMessageText", params, nil); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NotModified() {
			m.lastText = text

			return nil
		}

		return err
	}

	m.lastText = text

	return nil
}

// UploadFile streams a local file to sendDocument as multipart form data.
// The upload itself is not interruptible once started; cancellation takes
// effect before it begins.
func (m *statusMessage) UploadFile(ctx context.Context, up chat.Upload) error {
	logger := logctx.LoggerFromContext(ctx)

	file, err := os.Open(up.Path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	var reader io.Reader = file
	if up.OnProgress != nil {
		reader = progress.NewReader(file, info.Size(), uploadReportInterval, up.OnProgress)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeDocumentForm(mw, m.chatID, up, reader))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.client.methodURL("sendDocument"), pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := m.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}
	defer resp.Body.Close()

	if err := decodeResponse(resp.Body, "sendDocument", nil); err != nil {
		return err
	}

	logger.Debug("document relayed",
		"chat_id", m.chatID,
		"file", filepath.Base(up.Path),
		"size", humanize.Bytes(uint64(info.Size())),
	)

	return nil
}

func writeDocumentForm(mw *multipart.Writer, chatID int64, up chat.Upload, reader io.Reader) error {
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}

	if up.Caption != "" {
		if err := mw.WriteField("caption", up.Caption); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("document", filepath.Base(up.Path))
	if err != nil {
		return err
	}

	if _, err := io.Copy(part, reader); err != nil {
		return err
	}

	if up.ThumbPath != "" {
		thumb, err := os.Open(up.ThumbPath)
		if err == nil {
			tp, terr := mw.CreateFormFile("thumbnail", filepath.Base(up.ThumbPath))
			if terr == nil {
				_, terr = io.Copy(tp, thumb)
			}

			thumb.Close()

			if terr != nil {
				return terr
			}
		}
	}

	return mw.Close()
}
