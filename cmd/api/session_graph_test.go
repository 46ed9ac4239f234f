package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"wandering-wikipedian/mocks"
)

func newGraphTestServer(t *testing.T) (*server, *mocks.MockDriverSessioner, *mocks.MockSessionRunner) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	driver := mocks.NewMockDriverSessioner(ctrl)
	session := mocks.NewMockSessionRunner(ctrl)

	return &server{driver: driver}, driver, session
}

func TestHandleCrawlGraph(t *testing.T) {
	srv, driver, session := newGraphTestServer(t)

	want := sessionGraph{
		SessionID: "session-graph",
		Nodes: []graphNode{
			{Title: "Albert Einstein", Label: "Article"},
			{Title: "Relativiteitstheorie", Label: "Article"},
		},
		Edges: []graphEdge{
			{From: "Albert Einstein", To: "Relativiteitstheorie"},
		},
	}

	driver.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(session)
	session.EXPECT().ExecuteRead(gomock.Any(), gomock.Any()).Return(want, nil)
	session.EXPECT().Close(gomock.Any()).Return(nil)

	req := httptest.NewRequest(http.MethodGet, "/crawl/session-graph/graph", nil)
	rec := httptest.NewRecorder()
	srv.handleCrawlSession(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got sessionGraph
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.SessionID != want.SessionID {
		t.Fatalf("unexpected session id: %s", got.SessionID)
	}
	if len(got.Nodes) != 2 || len(got.Edges) != 1 {
		t.Fatalf("unexpected graph: %+v", got)
	}
	if got.Edges[0].From != "Albert Einstein" || got.Edges[0].To != "Relativiteitstheorie" {
		t.Fatalf("unexpected edge: %+v", got.Edges[0])
	}
}

func TestHandleCrawlGraphReadError(t *testing.T) {
	srv, driver, session := newGraphTestServer(t)

	driver.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(session)
	session.EXPECT().ExecuteRead(gomock.Any(), gomock.Any()).Return(nil, errors.New("neo4j down"))
	session.EXPECT().Close(gomock.Any()).Return(nil)

	req := httptest.NewRequest(http.MethodGet, "/crawl/session-err/graph", nil)
	rec := httptest.NewRecorder()
	srv.handleCrawlSession(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rec.Code)
	}
}

func TestHandleCrawlGraphMethodNotAllowed(t *testing.T) {
	srv, driver, _ := newGraphTestServer(t)
	driver.EXPECT().NewSession(gomock.Any(), gomock.Any()).Times(0)

	req := httptest.NewRequest(http.MethodPost, "/crawl/session-graph/graph", nil)
	rec := httptest.NewRecorder()
	srv.handleCrawlSession(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestBuildSessionGraph(t *testing.T) {
	records := []*neo4j.Record{
		{Values: []any{"Albert Einstein", "Article", "Relativiteitstheorie", "Article"}},
		{Values: []any{"Albert Einstein", "Article", "Categorie:Duits natuurkundige", "Category"}},
		// Duplicate edge record: nodes must not repeat.
		{Values: []any{"Albert Einstein", "Article", "Relativiteitstheorie", "Article"}},
		// Malformed records are skipped.
		{Values: []any{"Albert Einstein", "Article"}},
		{Values: []any{"", "Article", "Relativiteitstheorie", "Article"}},
	}

	g := buildSessionGraph("session-1", records)

	if g.SessionID != "session-1" {
		t.Fatalf("unexpected session id: %s", g.SessionID)
	}
	if len(g.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d: %+v", len(g.Nodes), g.Nodes)
	}
	if len(g.Edges) != 3 {
		t.Fatalf("expected 3 edges, got %d: %+v", len(g.Edges), g.Edges)
	}
	if g.Nodes[2].Title != "Categorie:Duits natuurkundige" || g.Nodes[2].Label != "Category" {
		t.Fatalf("unexpected node: %+v", g.Nodes[2])
	}
}

func TestBuildSessionGraphEmpty(t *testing.T) {
	g := buildSessionGraph("session-empty", nil)
	if g.Nodes == nil || g.Edges == nil {
		t.Fatal("expected empty slices, not nil")
	}
	if len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Fatalf("expected empty graph, got %+v", g)
	}
}
