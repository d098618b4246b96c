package sheetsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeSheets records the calls made against one spreadsheet
type fakeSheets struct {
	mu      sync.Mutex
	tabs    []string
	calls   []string
	written [][]interface{}
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sheet-1"):
		f.calls = append(f.calls, "get")
		var sheets []map[string]any
		for _, tab := range f.tabs {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": tab}})
		}
		json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		f.calls = append(f.calls, "create")
		json.NewEncoder(w).Encode(map[string]any{
			"replies": []map[string]any{{"addSheet": map[string]any{"properties": map[string]any{"sheetId": 7}}}},
		})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.calls = append(f.calls, "clear")
		json.NewEncoder(w).Encode(map[string]any{})
	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update")
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.written = body.Values
		json.NewEncoder(w).Encode(map[string]any{})
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewClientWithOptions(context.Background(), "sheet-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return client
}

func TestExportRows_CreatesMissingTab(t *testing.T) {
	fake := &fakeSheets{}
	client := newTestClient(t, fake)

	err := client.ExportRows(context.Background(), "History 2025-06-30", [][]string{{"Date", "Time"}, {"01/03/2025", "10:00"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"get", "create", "update"}, fake.calls)
	require.Len(t, fake.written, 2)
	assert.Equal(t, []interface{}{"01/03/2025", "10:00"}, fake.written[1])
}

func TestExportRows_OverwritesExistingTab(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"History 2025-06-30"}}
	client := newTestClient(t, fake)

	err := client.ExportRows(context.Background(), "History 2025-06-30", [][]string{{"Date"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"get", "clear", "update"}, fake.calls)
}
