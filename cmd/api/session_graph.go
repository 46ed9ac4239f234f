package main

import (
	"context"
	"log"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// sessionGraphQuery pulls every LINKS_TO relationship written for a session,
// along with the node titles and labels on both ends.
const sessionGraphQuery = "MATCH (from)-[r:LINKS_TO {session_id: $session_id}]->(to) " +
	"RETURN from.title AS from_title, head(labels(from)) AS from_label, " +
	"to.title AS to_title, head(labels(to)) AS to_label"

type graphNode struct {
	Title string `json:"title"`
	Label string `json:"label,omitempty"`
}

type graphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type sessionGraph struct {
	SessionID string      `json:"session_id"`
	Nodes     []graphNode `json:"nodes"`
	Edges     []graphEdge `json:"edges"`
}

// sessionGraph reads the adjacency for one crawl session out of Neo4j.
func (s *server) sessionGraph(ctx context.Context, sessionID string) (sessionGraph, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() {
		if err := session.Close(ctx); err != nil {
			log.Printf("neo4j session close error: %v", err)
		}
	}()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, sessionGraphQuery, map[string]any{"session_id": sessionID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return buildSessionGraph(sessionID, records), nil
	})
	if err != nil {
		return newSessionGraph(sessionID), err
	}

	g, ok := result.(sessionGraph)
	if !ok {
		return newSessionGraph(sessionID), nil
	}
	return g, nil
}

func newSessionGraph(sessionID string) sessionGraph {
	return sessionGraph{SessionID: sessionID, Nodes: []graphNode{}, Edges: []graphEdge{}}
}

// buildSessionGraph assembles unique nodes and their edges from edge records.
// Record values follow sessionGraphQuery's RETURN order.
func buildSessionGraph(sessionID string, records []*neo4j.Record) sessionGraph {
	g := newSessionGraph(sessionID)
	seen := make(map[string]bool)
	addNode := func(title, label string) {
		if title == "" || seen[title] {
			return
		}
		seen[title] = true
		g.Nodes = append(g.Nodes, graphNode{Title: title, Label: label})
	}

	for _, record := range records {
		if len(record.Values) < 4 {
			continue
		}
		fromTitle, _ := record.Values[0].(string)
		fromLabel, _ := record.Values[1].(string)
		toTitle, _ := record.Values[2].(string)
		toLabel, _ := record.Values[3].(string)
		if fromTitle == "" || toTitle == "" {
			continue
		}
		addNode(fromTitle, fromLabel)
		addNode(toTitle, toLabel)
		g.Edges = append(g.Edges, graphEdge{From: fromTitle, To: toTitle})
	}
	return g
}
