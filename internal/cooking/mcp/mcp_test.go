package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rsned/cookdb/internal/cooking/catalog"
	"github.com/rsned/cookdb/internal/cooking/engine"
	"github.com/rsned/cookdb/pkg/cooking"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cat, err := catalog.Load(filepath.Join("..", "catalog", "testdata", "catalog.json"))
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	eng, err := engine.New(cat, engine.WithLogger(quiet))
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(eng, quiet)
}

// call sends one request line and decodes the result into out.
func call(t *testing.T, s *Server, line string, out any) *Response {
	t.Helper()
	resp := s.handleRequest(context.Background(), []byte(line))
	if resp == nil {
		t.Fatalf("no response to %s", line)
	}
	if out != nil && resp.Result != nil {
		data, err := json.Marshal(resp.Result)
		if err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatal(err)
		}
	}
	return resp
}

func TestInitialize(t *testing.T) {
	s := newTestServer(t)
	var got InitializeResult
	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, &got)
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}
	if got.ServerInfo.Name != "cookdb" || got.ProtocolVersion == "" || got.Capabilities.Tools == nil {
		t.Errorf("initialize = %+v", got)
	}
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t)
	var got ToolsListResult
	call(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, &got)

	var names []string
	for _, tool := range got.Tools {
		names = append(names, tool.Name)
		if tool.InputSchema.Type != "object" {
			t.Errorf("%s schema type = %q", tool.Name, tool.InputSchema.Type)
		}
	}
	want := "cook,record_lookup,find_combinations,search_records,database_info"
	if strings.Join(names, ",") != want {
		t.Errorf("tools = %v", names)
	}
}

func TestToolsCallCook(t *testing.T) {
	s := newTestServer(t)
	var got ToolCallResult
	resp := call(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"cook","arguments":{"ingredients":["Golden Apple","Raw Meat"]}}}`, &got)
	if resp.Error != nil || got.IsError || len(got.Content) != 1 {
		t.Fatalf("tools/call = %+v, %+v", got, resp.Error)
	}

	var cooked cooking.CookResponse
	if err := json.Unmarshal([]byte(got.Content[0].Text), &cooked); err != nil {
		t.Fatalf("decoding tool text: %v", err)
	}
	if cooked.Recipe.Name != "Meaty Fruit Skewer" || cooked.Recipe.Value != 25 {
		t.Errorf("cooked = %+v", cooked.Recipe)
	}
}

func TestToolErrors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name    string
		line    string
		code    int
		isError bool
	}{
		{"parse error", `{"jsonrpc":`, ErrCodeParse, false},
		{"invalid request", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, ErrCodeInvalidReq, false},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, ErrCodeMethodNotFound, false},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"bake"}}`, ErrCodeInvalidParams, false},
		{"unknown ingredient", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"cook","arguments":{"ingredients":["Durian"]}}}`, 0, true},
		{"bad arguments", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"cook","arguments":{"ingredients":7}}}`, 0, true},
		{"no database", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"record_lookup","arguments":{"rank":1}}}`, 0, true},
		{"too many slots", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"find_combinations","arguments":{"slots":[{"ingredients":["Apple"],"count":6}]}}}`, 0, true},
		{"bad modifier", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_records","arguments":{"filter":{"includes_modifier":["Sharpness"]}}}}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ToolCallResult
			resp := call(t, s, tt.line, &got)
			if tt.isError {
				if resp.Error != nil || !got.IsError {
					t.Errorf("want tool error result, got %+v / %+v", got, resp.Error)
				}
				return
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %d", resp.Error, tt.code)
			}
		})
	}
}

func TestServe(t *testing.T) {
	s := newTestServer(t)
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"database_info"}}`,
	}, "\n")

	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d responses, want 2:\n%s", len(lines), out.String())
	}
	var last struct {
		ID     int            `json:"id"`
		Result ToolCallResult `json:"result"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &last); err != nil {
		t.Fatal(err)
	}
	var info cooking.DatabaseInfoResponse
	if err := json.Unmarshal([]byte(last.Result.Content[0].Text), &info); err != nil {
		t.Fatal(err)
	}
	if last.ID != 2 || info.NumGroups != 8 || info.TotalRecords != 792 {
		t.Errorf("database_info = %+v", info)
	}
}
