package telegram_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mirrorleech/mirror_relay/internal/chat"
	"github.com/mirrorleech/mirror_relay/internal/chat/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReply_SendsMessage(t *testing.T) {
	var gotPath, gotText string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotText = r.FormValue("text")

		fmt.Fprint(w, `{"ok":true,"result":{"message_id":77}}`)
	}))
	defer ts.Close()

	client := telegram.NewClient(ts.URL, "secret-token", ts.Client())
	ch := client.OpenChat(1234)

	msg, err := ch.Reply(context.Background(), "Task ID: abc\nstarting")
	assert.NoError(t, err)
	assert.NotNil(t, msg)
	assert.Equal(t, "/botsecret-token/sendMessage", gotPath)
	assert.Equal(t, "Task ID: abc\nstarting", gotText)
}

func TestEdit_SwallowsNotModified(t *testing.T) {
	calls := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/bottok/sendMessage":
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
		default:
			calls++
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`)
		}
	}))
	defer ts.Close()

	client := telegram.NewClient(ts.URL, "tok", ts.Client())
	msg, err := client.OpenChat(9).Reply(context.Background(), "hello")
	require.NoError(t, err)

	// Remote "not modified" rejection is a no-op, not an error.
	assert.NoError(t, msg.Edit(context.Background(), "same text"))
	assert.Equal(t, 1, calls)

	// Byte-identical local repeat never reaches the API.
	assert.NoError(t, msg.Edit(context.Background(), "same text"))
	assert.Equal(t, 1, calls)
}

func TestEdit_SurfacesOtherErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bottok/sendMessage" {
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
			return
		}

		fmt.Fprint(w, `{"ok":false,"error_code":429,"description":"Too Many Requests"}`)
	}))
	defer ts.Close()

	client := telegram.NewClient(ts.URL, "tok", ts.Client())
	msg, err := client.OpenChat(9).Reply(context.Background(), "hello")
	require.NoError(t, err)

	err = msg.Edit(context.Background(), "other text")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Too Many Requests")
}

func TestUploadFile_MultipartFieldsAndProgress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 512*1024), 0o644))

	var gotCaption, gotFilename string
	var gotChatID string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bottok/sendMessage" {
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
			return
		}

		require.NoError(t, r.ParseMultipartForm(2<<20))
		gotChatID = r.FormValue("chat_id")
		gotCaption = r.FormValue("caption")

		file, header, err := r.FormFile("document")
		require.NoError(t, err)
		file.Close()
		gotFilename = header.Filename

		fmt.Fprint(w, `{"ok":true,"result":{"message_id":2}}`)
	}))
	defer ts.Close()

	client := telegram.NewClient(ts.URL, "tok", ts.Client())
	msg, err := client.OpenChat(42).Reply(context.Background(), "hello")
	require.NoError(t, err)

	var lastWritten, lastTotal int64
	err = msg.UploadFile(context.Background(), chat.Upload{
		Path:    path,
		Caption: "payload.bin",
		OnProgress: func(written, total int64) {
			lastWritten, lastTotal = written, total
		},
	})
	assert.NoError(t, err)

	assert.Equal(t, "42", gotChatID)
	assert.Equal(t, "payload.bin", gotCaption)
	assert.Equal(t, "payload.bin", gotFilename)
	assert.EqualValues(t, 512*1024, lastWritten)
	assert.EqualValues(t, 512*1024, lastTotal)
}

func TestGetUpdates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "5", r.FormValue("offset"))

		fmt.Fprint(w, `{"ok":true,"result":[
			{"update_id":6,"message":{"message_id":10,"from":{"id":42},"chat":{"id":42,"type":"private"},"text":"/mirror http://x/f.bin"}}
		]}`)
	}))
	defer ts.Close()

	client := telegram.NewClient(ts.URL, "tok", ts.Client())

	updates, err := client.GetUpdates(context.Background(), 5, time.Second)
	assert.NoError(t, err)
	require.Len(t, updates, 1)
	assert.EqualValues(t, 6, updates[0].UpdateID)
	assert.Equal(t, "/mirror http://x/f.bin", updates[0].Message.Text)
	assert.EqualValues(t, 42, updates[0].Message.From.ID)
}
