package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/quill/internal/llm"
)

// Neo4jStore keeps each conversation as a graph:
// (:Conversation {id})-[:HAS_MESSAGE]->(:Message {seq, role, content}).
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jStore connects and verifies connectivity.
func NewNeo4jStore(ctx context.Context, uri, username, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jStore{driver: driver}, nil
}

func (s *Neo4jStore) Append(ctx context.Context, id string, msgs ...llm.Message) error {
	if err := validate(id, msgs); err != nil {
		return err
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, m := range msgs {
			_, err := tx.Run(ctx,
				"MERGE (c:Conversation {id: $cid}) ON CREATE SET c.seq = 0 "+
					"SET c.seq = c.seq + 1 "+
					"CREATE (c)-[:HAS_MESSAGE]->(:Message {id: $id, seq: c.seq, role: $role, content: $content, created_at: $ts})",
				map[string]any{
					"cid":     id,
					"id":      uuid.New().String(),
					"role":    string(m.Role),
					"content": m.Content,
					"ts":      now,
				})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("append to conversation %s: %w", id, err)
	}
	return nil
}

func (s *Neo4jStore) Messages(ctx context.Context, id string, limit int) ([]llm.Message, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := "MATCH (:Conversation {id: $cid})-[:HAS_MESSAGE]->(m:Message) " +
		"RETURN m.role AS role, m.content AS content ORDER BY m.seq DESC"
	params := map[string]any{"cid": id}
	if limit > 0 {
		query += " LIMIT $limit"
		params["limit"] = limit
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var out []llm.Message
		for records.Next(ctx) {
			rec := records.Record()
			role, _ := rec.Get("role")
			content, _ := rec.Get("content")
			out = append(out, llm.Message{Role: llm.Role(role.(string)), Content: content.(string)})
		}
		return out, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	msgs := result.([]llm.Message)
	reverse(msgs)
	return msgs, nil
}

func (s *Neo4jStore) Conversations(ctx context.Context) ([]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, "MATCH (c:Conversation) RETURN c.id AS id ORDER BY id", nil)
		if err != nil {
			return nil, err
		}
		var ids []string
		for records.Next(ctx) {
			id, _ := records.Record().Get("id")
			ids = append(ids, id.(string))
		}
		return ids, records.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (s *Neo4jStore) Clear(ctx context.Context, id string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (c:Conversation {id: $cid}) OPTIONAL MATCH (c)-[:HAS_MESSAGE]->(m:Message) DETACH DELETE m, c",
			map[string]any{"cid": id})
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().NodesDeleted(), nil
	})
	if err != nil {
		return fmt.Errorf("clear conversation %s: %w", id, err)
	}
	if deleted.(int) == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}
