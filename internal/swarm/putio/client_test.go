package putio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mirrorleech/mirror_relay/internal/swarm"
	putio "github.com/putdotio/go-putio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	goputioClient := putio.NewClient(nil)
	u, _ := url.Parse(serverURL)
	goputioClient.BaseURL = u

	return &Client{putioClient: goputioClient, httpClient: http.DefaultClient}
}

func TestIsComplete(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"COMPLETED", true},
		{"SEEDING", true},
		{"completed", true},
		{"DOWNLOADING", false},
		{"IN_QUEUE", false},
		{"ERROR", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, isComplete(tt.status))
		})
	}
}

func TestAddTransferBytes_Validation(t *testing.T) {
	client := NewClient("test-token", nil)

	_, err := client.AddTransferBytes(context.Background(), []byte("fake"), "test.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".torrent")

	_, err = client.AddTransferBytes(context.Background(), make([]byte, 11*1024*1024), "big.torrent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestStatus_MapsTransferFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transfers/9", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"transfer":{
			"id":9,"name":"big.pack","size":2000,"downloaded":1000,
			"status":"DOWNLOADING","percent_done":50,
			"down_speed":1048576,"up_speed":2048,
			"peers_sending_to_us":8,"peers_getting_from_us":2
		}}`)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(ts.URL)

	status, err := client.Status(context.Background(), 9)
	require.NoError(t, err)

	assert.Equal(t, "big.pack", status.Name)
	assert.EqualValues(t, 1000, status.BytesDone)
	assert.EqualValues(t, 2000, status.BytesTotal)
	assert.EqualValues(t, 1048576, status.DownloadRate)
	assert.EqualValues(t, 2048, status.UploadRate)
	assert.EqualValues(t, 8, status.Seeders)
	assert.EqualValues(t, 2, status.Leechers)
	assert.False(t, status.Complete)
}

func TestFiles_RecursesDirectories(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/v2/transfers/9", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"transfer":{"id":9,"name":"pack","status":"COMPLETED","file_id":100}}`)
	})

	mux.HandleFunc("/v2/files/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"parent":{"id":100},"files":[
			{"id":101,"name":"ep1.mkv","size":1500,"file_type":"VIDEO","content_type":"video/x-matroska"},
			{"id":102,"name":"ep2.mkv","size":1600,"file_type":"VIDEO","content_type":"video/x-matroska"}
		]}`)
	})

	mux.HandleFunc("/v2/files/100", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"file":{"id":100,"name":"pack","size":0,"file_type":"FOLDER","content_type":"application/x-directory"}}`)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(ts.URL)

	files, err := client.Files(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "pack/ep1.mkv", files[0].Path)
	assert.EqualValues(t, 1500, files[0].Size)
	assert.Equal(t, "pack/ep2.mkv", files[1].Path)
}

func TestRemoveTransfer_CancelsAndDeletesFiles(t *testing.T) {
	var cancelled, deleted bool

	mux := http.NewServeMux()

	mux.HandleFunc("/v2/transfers/9", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"transfer":{"id":9,"name":"pack","status":"COMPLETED","file_id":100}}`)
	})

	mux.HandleFunc("/v2/transfers/cancel", func(w http.ResponseWriter, r *http.Request) {
		cancelled = true
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"OK"}`)
	})

	mux.HandleFunc("/v2/files/delete", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		deleted = strings.Contains(r.FormValue("file_ids"), "100")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"OK"}`)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(ts.URL)

	require.NoError(t, client.RemoveTransfer(context.Background(), 9))
	assert.True(t, cancelled)
	assert.True(t, deleted)
}

func TestGrabFile_StreamsContent(t *testing.T) {
	payload := "file bytes"

	mux := http.NewServeMux()

	mux.HandleFunc("/v2/files/101/url", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"url":%q}`, "http://"+r.Host+"/content")
	})

	mux.HandleFunc("/content", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(ts.URL)

	body, err := client.GrabFile(context.Background(), swarm.RemoteFile{ID: 101})
	require.NoError(t, err)
	defer body.Close()

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}
