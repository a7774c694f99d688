// Package qdrant implements vector.Repository on a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/efebarandurmaz/quill/internal/vector"
)

const contentKey = "content"

// Repository stores documents as points in one collection.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New dials host:port. The connection is lazy; errors surface on first use.
func New(host string, port int, collection string) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Repository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet.
func (r *Repository) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(dim), Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", r.collection, err)
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		points[i] = toPoint(d)
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (r *Repository) Search(ctx context.Context, vec []float32, topK int, filter map[string]string) ([]vector.SearchResult, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		Filter:         toFilter(filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]vector.SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		results[i] = fromScored(pt)
	}
	return results, nil
}

func (r *Repository) Close() error {
	return r.conn.Close()
}

func toPoint(d vector.Document) *pb.PointStruct {
	payload := map[string]*pb.Value{
		contentKey: {Kind: &pb.Value_StringValue{StringValue: d.Content}},
	}
	for k, v := range d.Metadata {
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: d.ID}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
		Payload: payload,
	}
}

func toFilter(filter map[string]string) *pb.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*pb.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, &pb.Condition{ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   k,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}},
			},
		}})
	}
	return &pb.Filter{Must: must}
}

func fromScored(pt *pb.ScoredPoint) vector.SearchResult {
	content := ""
	meta := make(map[string]string)
	for k, v := range pt.Payload {
		if k == contentKey {
			content = v.GetStringValue()
		} else {
			meta[k] = v.GetStringValue()
		}
	}
	return vector.SearchResult{
		ID:       pt.Id.GetUuid(),
		Score:    pt.Score,
		Content:  content,
		Metadata: meta,
	}
}

var _ vector.Repository = (*Repository)(nil)
