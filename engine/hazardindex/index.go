// Package hazardindex stores fitted hazard curves in Qdrant so sites with
// similar seismic hazard can be looked up by example.
//
// Each (location, model) pair becomes one point. Its vector is log10 of the
// curve's exceedance rate at a shared set of query points, and its payload
// carries the location and model. Point IDs are derived from the pair, so
// re-indexing a location overwrites its previous points.
package hazardindex

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/greenresilience/orchestration/engine/curves"
	"github.com/greenresilience/orchestration/pkg/fn"
)

// DefaultCollection is used when Options.Collection is empty.
const DefaultCollection = "hazard_curves"

// UpsertBatchSize bounds the number of points sent per upsert.
const UpsertBatchSize = 256

// pointNamespace seeds the name-based point IDs.
var pointNamespace = uuid.MustParse("8f6c1f0e-4b7a-5d1e-9a43-6f1d2c9e7b10")

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Recommend(ctx context.Context, in *pb.RecommendPoints, opts ...grpc.CallOption) (*pb.RecommendResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Match is one similarity hit.
type Match struct {
	Location string  `json:"location"`
	Model    string  `json:"model"`
	Score    float32 `json:"score"`
}

// Options configures an Index.
type Options struct {
	Addr       string
	Collection string
	Workers    int
	Logger     *slog.Logger
}

// Index owns all Qdrant operations for hazard curves.
type Index struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	workers     int
	logger      *slog.Logger
}

// New dials Qdrant's gRPC endpoint at opts.Addr.
func New(opts Options) (*Index, error) {
	conn, err := grpc.NewClient(opts.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("hazardindex: dial qdrant %s: %w", opts.Addr, err)
	}
	ix := newIndex(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), opts)
	ix.conn = conn
	return ix, nil
}

func newIndex(points pointsAPI, collections collectionsAPI, opts Options) *Index {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Index{
		points:      points,
		collections: collections,
		collection:  opts.Collection,
		workers:     opts.Workers,
		logger:      opts.Logger,
	}
}

// Close closes the gRPC connection, if any.
func (ix *Index) Close() error {
	if ix.conn == nil {
		return nil
	}
	return ix.conn.Close()
}

// PointID returns the stable point ID of a (location, model) pair.
func PointID(location, model string) string {
	return uuid.NewSHA1(pointNamespace, []byte(location+"\x00"+model)).String()
}

// Vector samples s at xs and returns log10 of the rates. Rates below
// curves.Epsilon are clamped so the vector stays finite.
func Vector(s *curves.Spline, xs []float64) []float32 {
	return fn.Map(s.Eval(xs), func(y float64) float32 {
		return float32(math.Log10(math.Max(y, curves.Epsilon)))
	})
}

// EnsureCollection creates the collection with cosine distance if missing.
func (ix *Index) EnsureCollection(ctx context.Context, dims int) error {
	list, err := ix.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("hazardindex: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == ix.collection {
			return nil
		}
	}
	_, err = ix.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: ix.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("hazardindex: create collection %s: %w", ix.collection, err)
	}
	return nil
}

type pair struct {
	location, model string
	spline          *curves.Spline
}

func pairs(set curves.SplineSet) []pair {
	var out []pair
	for _, loc := range set.Locations() {
		models := make([]string, 0, len(set[loc]))
		for m := range set[loc] {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			out = append(out, pair{location: loc, model: m, spline: set[loc][m]})
		}
	}
	return out
}

// Index upserts one point per spline in set, sampled at xs. It returns the
// number of points written.
func (ix *Index) Index(ctx context.Context, set curves.SplineSet, xs []float64) (int, error) {
	if len(xs) == 0 {
		return 0, fmt.Errorf("hazardindex: no query points")
	}
	ps := pairs(set)
	if len(ps) == 0 {
		return 0, nil
	}
	if err := ix.EnsureCollection(ctx, len(xs)); err != nil {
		return 0, err
	}

	points := fn.ParMap(ps, ix.workers, func(p pair) *pb.PointStruct {
		return &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(p.location, p.model)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: Vector(p.spline, xs)}},
			},
			Payload: map[string]*pb.Value{
				"location": {Kind: &pb.Value_StringValue{StringValue: p.location}},
				"model":    {Kind: &pb.Value_StringValue{StringValue: p.model}},
			},
		}
	})

	wait := true
	for _, batch := range fn.Chunk(points, UpsertBatchSize) {
		if _, err := ix.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: ix.collection,
			Wait:           &wait,
			Points:         batch,
		}); err != nil {
			return 0, fmt.Errorf("hazardindex: upsert %d points: %w", len(batch), err)
		}
	}
	ix.logger.Info("hazard curves indexed", "collection", ix.collection, "points", len(points), "dims", len(xs))
	return len(points), nil
}

// Similar returns up to topK other locations whose curve for model is
// closest to location's. The location itself is excluded.
func (ix *Index) Similar(ctx context.Context, location, model string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	resp, err := ix.points.Recommend(ctx, &pb.RecommendPoints{
		CollectionName: ix.collection,
		Positive:       []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(location, model)}}},
		Filter:         &pb.Filter{Must: []*pb.Condition{fieldMatch("model", model)}},
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("hazardindex: similar to %s/%s: %w", location, model, err)
	}
	out := make([]Match, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		p := r.GetPayload()
		out = append(out, Match{
			Location: p["location"].GetStringValue(),
			Model:    p["model"].GetStringValue(),
			Score:    r.GetScore(),
		})
	}
	return out, nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
