package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/planit-ai/planit/engine/domain"
	"github.com/planit-ai/planit/pkg/resilience"
)

// payloadFields are the optional entity attributes we would like back with
// each hit. The subset that actually exists in the collection's schema is
// resolved once on connect, so the gateway tolerates schema drift across
// deployments (lat/lon vs lng, caption present or not).
var payloadFields = []string{"id", "path", "caption", "lat", "lon", "lng"}

// searchBreakerOpts trips faster than the package defaults: a search request
// blocked on a dead index holds up a whole user query, and a recovering index
// should prove itself on more than one probe before taking full traffic.
var searchBreakerOpts = resilience.BreakerOpts{
	TripAfter:  3,
	CoolDown:   15 * time.Second,
	ProbeQuota: 1,
	CloseAfter: 2,
}

// PointsAPI is the slice of the Qdrant points service this gateway uses.
type PointsAPI interface {
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// CollectionsAPI is the slice of the Qdrant collections service this
// gateway uses.
type CollectionsAPI interface {
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantGateway is the live Gateway over a Qdrant collection.
type QdrantGateway struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
	fields      []string
	breaker     *resilience.Breaker
	logger      *slog.Logger
}

var _ Gateway = (*QdrantGateway)(nil)

// Connect dials Qdrant, inspects the collection's payload schema, and returns
// a ready gateway. A connection or inspection failure is reported as
// domain.ErrIndexUnavailable so the caller can apply its deployment policy.
func Connect(ctx context.Context, addr, collection string, logger *slog.Logger) (*QdrantGateway, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("index: dial qdrant %s: %w: %w", addr, domain.ErrIndexUnavailable, err)
	}
	g := newGateway(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, logger)
	g.conn = conn
	if err := g.inspectSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return g, nil
}

// NewWithClients builds a gateway from pre-built clients. Used by tests; the
// schema must still be inspected before searching.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string, logger *slog.Logger) *QdrantGateway {
	return newGateway(points, collections, collection, logger)
}

func newGateway(points PointsAPI, collections CollectionsAPI, collection string, logger *slog.Logger) *QdrantGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantGateway{
		points:      points,
		collections: collections,
		collection:  collection,
		breaker:     resilience.NewBreaker(searchBreakerOpts),
		logger:      logger,
	}
}

// Close closes the underlying gRPC connection.
func (g *QdrantGateway) Close() error {
	if g.conn == nil {
		return nil
	}
	return g.conn.Close()
}

// inspectSchema resolves which of the desired payload fields the collection
// declares. Runs once on connect.
func (g *QdrantGateway) inspectSchema(ctx context.Context) error {
	info, err := g.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: g.collection})
	if err != nil {
		return fmt.Errorf("index: collection info %s: %w: %w", g.collection, domain.ErrIndexUnavailable, err)
	}
	declared := info.GetResult().GetPayloadSchema()

	g.fields = g.fields[:0]
	for _, f := range payloadFields {
		if _, ok := declared[f]; ok {
			g.fields = append(g.fields, f)
		}
	}
	g.logger.Info("index: schema resolved", "collection", g.collection, "fields", g.fields)
	return nil
}

// InspectSchema re-runs schema resolution. Exposed for tests and for
// reconnect paths.
func (g *QdrantGateway) InspectSchema(ctx context.Context) error {
	return g.inspectSchema(ctx)
}

// Search implements Gateway.
func (g *QdrantGateway) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	req := &pb.SearchPoints{
		CollectionName: g.collection,
		Vector:         vector,
		Limit:          uint64(topK),
	}
	if len(g.fields) > 0 {
		req.WithPayload = &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Include{
				Include: &pb.PayloadIncludeSelector{Fields: g.fields},
			},
		}
	}

	var resp *pb.SearchResponse
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = g.points.Search(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("index: search: %w: %w", domain.ErrIndexUnavailable, err)
	}

	hits := make([]domain.SearchHit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = g.toHit(r)
	}
	return hits, nil
}

// toHit converts a scored point. The location identifier lives in the "id"
// payload field; the point UUID is only a storage key.
func (g *QdrantGateway) toHit(r *pb.ScoredPoint) domain.SearchHit {
	hit := domain.SearchHit{
		Score:    float64(r.GetScore()),
		Distance: 1 - float64(r.GetScore()),
	}

	payload := r.GetPayload()
	if v, ok := payload["id"]; ok {
		hit.ID = v.GetStringValue()
	}
	if hit.ID == "" {
		hit.ID = r.GetId().GetUuid()
	}
	if v, ok := payload["path"]; ok {
		hit.Path = v.GetStringValue()
	}
	if v, ok := payload["caption"]; ok {
		hit.Caption = v.GetStringValue()
	}

	hit.Coords = coordsFromPayload(payload)
	if hit.Coords.Lat == nil {
		hit.Coords = domain.ParseLocationID(hit.ID)
	}
	return hit
}

// coordsFromPayload reads explicit coordinate fields, accepting either "lng"
// or "lon" for longitude.
func coordsFromPayload(payload map[string]*pb.Value) domain.Coordinates {
	latV, ok := payload["lat"]
	if !ok {
		return domain.Coordinates{}
	}
	lngV, ok := payload["lng"]
	if !ok {
		lngV, ok = payload["lon"]
	}
	if !ok {
		return domain.Coordinates{}
	}
	lat := latV.GetDoubleValue()
	lng := lngV.GetDoubleValue()
	return domain.Coordinates{Lat: &lat, Lng: &lng}
}

// PointRecord is a single location embedding to store.
type PointRecord struct {
	// LocationID is the "<lat>_<lng>" key carried in the payload.
	LocationID string
	// PointID is the storage UUID for the point.
	PointID   string
	Embedding []float32
	Path      string
	Caption   string
	Lat       float64
	Lng       float64
}

// Upsert stores location embeddings. Used by the ingest pipeline.
func (g *QdrantGateway) Upsert(ctx context.Context, records []PointRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := map[string]*pb.Value{
			"id":   {Kind: &pb.Value_StringValue{StringValue: r.LocationID}},
			"path": {Kind: &pb.Value_StringValue{StringValue: r.Path}},
			"lat":  {Kind: &pb.Value_DoubleValue{DoubleValue: r.Lat}},
			"lng":  {Kind: &pb.Value_DoubleValue{DoubleValue: r.Lng}},
		}
		if r.Caption != "" {
			payload["caption"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.Caption}}
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.PointID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := g.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: g.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("index: upsert %d points: %w", len(records), err)
	}
	return nil
}

// EnsureCollection creates the collection with inner-product distance if it
// does not exist.
func (g *QdrantGateway) EnsureCollection(ctx context.Context, dims int) error {
	list, err := g.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("index: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == g.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = g.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: g.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Dot,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("index: create collection %s: %w", g.collection, err)
	}
	return nil
}
