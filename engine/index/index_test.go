package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/planit-ai/planit/engine/domain"
)

// --- Mocks ---

type mockPoints struct {
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
	upsertReq  *pb.UpsertPoints
	upsertResp *pb.PointsOperationResponse
	upsertErr  error
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return m.upsertResp, m.upsertErr
}

type mockCollections struct {
	getResp    *pb.GetCollectionInfoResponse
	getErr     error
	listResp   *pb.ListCollectionsResponse
	listErr    error
	createReq  *pb.CreateCollection
	createResp *pb.CollectionOperationResponse
	createErr  error
}

func (m *mockCollections) Get(_ context.Context, _ *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	return m.getResp, m.getErr
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.createReq = in
	return m.createResp, m.createErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func schemaResp(fields ...string) *pb.GetCollectionInfoResponse {
	schema := make(map[string]*pb.PayloadSchemaInfo, len(fields))
	for _, f := range fields {
		schema[f] = &pb.PayloadSchemaInfo{}
	}
	return &pb.GetCollectionInfoResponse{
		Result: &pb.CollectionInfo{PayloadSchema: schema},
	}
}

func strVal(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func dblVal(f float64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}}
}

// --- Schema resolution ---

func TestInspectSchema_Intersection(t *testing.T) {
	cols := &mockCollections{getResp: schemaResp("id", "lat", "lon", "unrelated")}
	g := NewWithClients(&mockPoints{}, cols, "locations", testLogger())
	if err := g.InspectSchema(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"id", "lat", "lon"}
	if len(g.fields) != len(want) {
		t.Fatalf("fields = %v, want %v", g.fields, want)
	}
	for i, f := range want {
		if g.fields[i] != f {
			t.Errorf("fields[%d] = %q, want %q", i, g.fields[i], f)
		}
	}
}

func TestInspectSchema_Error(t *testing.T) {
	cols := &mockCollections{getErr: errors.New("rpc fail")}
	g := NewWithClients(&mockPoints{}, cols, "locations", testLogger())
	err := g.InspectSchema(context.Background())
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

// --- Search ---

func TestSearch_MapsHits(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "aaa-bbb"}},
					Score: 0.92,
					Payload: map[string]*pb.Value{
						"id":      strVal("38.6270_-90.1994"),
						"path":    strVal("/img/1.jpg"),
						"caption": strVal("a coffee shop"),
						"lat":     dblVal(38.6270),
						"lng":     dblVal(-90.1994),
					},
				},
			},
		},
	}
	g := NewWithClients(pts, &mockCollections{getResp: schemaResp("id", "path", "caption", "lat", "lng")}, "locations", testLogger())
	if err := g.InspectSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}

	hits, err := g.Search(context.Background(), []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	h := hits[0]
	if h.ID != "38.6270_-90.1994" {
		t.Errorf("ID = %q", h.ID)
	}
	if h.Score != 0.92 {
		t.Errorf("Score = %v", h.Score)
	}
	if got := h.Distance; got < 0.0799 || got > 0.0801 {
		t.Errorf("Distance = %v, want 1-score", got)
	}
	if h.Path != "/img/1.jpg" || h.Caption != "a coffee shop" {
		t.Errorf("payload not mapped: %+v", h)
	}
	if h.Coords.Lat == nil || *h.Coords.Lat != 38.6270 {
		t.Errorf("Lat = %v", h.Coords.Lat)
	}
	if h.Coords.Lng == nil || *h.Coords.Lng != -90.1994 {
		t.Errorf("Lng = %v", h.Coords.Lng)
	}

	// Requested payload restriction must name the resolved fields.
	include := pts.searchReq.GetWithPayload().GetInclude()
	if include == nil || len(include.GetFields()) != 5 {
		t.Errorf("payload selector = %v", pts.searchReq.GetWithPayload())
	}
}

func TestSearch_LonAliasAndIDFallback(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					// Longitude under "lon", location key only in the payload.
					Score: 0.5,
					Payload: map[string]*pb.Value{
						"id":  strVal("40.0_-74.5"),
						"lat": dblVal(40.0),
						"lon": dblVal(-74.5),
					},
				},
				{
					// No coordinate fields at all: recovered from the key.
					Score: 0.4,
					Payload: map[string]*pb.Value{
						"id": strVal("12.5_-3.25"),
					},
				},
				{
					// Nothing usable: falls back to the point UUID, no coords.
					Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "ccc-ddd"}},
					Score: 0.3,
				},
			},
		},
	}
	g := NewWithClients(pts, &mockCollections{}, "locations", testLogger())

	hits, err := g.Search(context.Background(), []float32{1}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits", len(hits))
	}
	if hits[0].Coords.Lng == nil || *hits[0].Coords.Lng != -74.5 {
		t.Errorf("lon alias not honored: %+v", hits[0].Coords)
	}
	if hits[1].Coords.Lat == nil || *hits[1].Coords.Lat != 12.5 {
		t.Errorf("coords not parsed from key: %+v", hits[1].Coords)
	}
	if hits[2].ID != "ccc-ddd" {
		t.Errorf("UUID fallback: ID = %q", hits[2].ID)
	}
	if hits[2].Coords.Lat != nil {
		t.Errorf("expected no coords for malformed key, got %+v", hits[2].Coords)
	}
}

func TestSearch_Error(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("connection refused")}
	g := NewWithClients(pts, &mockCollections{}, "locations", testLogger())
	_, err := g.Search(context.Background(), []float32{1}, 5)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

// --- Upsert ---

func TestUpsert_BuildsPayload(t *testing.T) {
	pts := &mockPoints{upsertResp: &pb.PointsOperationResponse{}}
	g := NewWithClients(pts, &mockCollections{}, "locations", testLogger())

	rec := PointRecord{
		LocationID: "38.6270_-90.1994",
		PointID:    "11111111-2222-3333-4444-555555555555",
		Embedding:  []float32{0.6, 0.8},
		Path:       "/img/1.jpg",
		Caption:    "downtown",
		Lat:        38.6270,
		Lng:        -90.1994,
	}
	if err := g.Upsert(context.Background(), []PointRecord{rec}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pts.upsertReq == nil || len(pts.upsertReq.GetPoints()) != 1 {
		t.Fatal("upsert not issued")
	}
	p := pts.upsertReq.GetPoints()[0]
	if p.GetId().GetUuid() != rec.PointID {
		t.Errorf("point id = %q", p.GetId().GetUuid())
	}
	payload := p.GetPayload()
	if payload["id"].GetStringValue() != rec.LocationID {
		t.Errorf("payload id = %v", payload["id"])
	}
	if payload["lat"].GetDoubleValue() != rec.Lat {
		t.Errorf("payload lat = %v", payload["lat"])
	}
	if payload["caption"].GetStringValue() != "downtown" {
		t.Errorf("payload caption = %v", payload["caption"])
	}
	if pts.upsertReq.GetWait() != true {
		t.Error("upsert should wait for durability")
	}
}

func TestUpsert_EmptyIsNoop(t *testing.T) {
	pts := &mockPoints{upsertErr: errors.New("should not be called")}
	g := NewWithClients(pts, &mockCollections{}, "locations", testLogger())
	if err := g.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.upsertReq != nil {
		t.Error("upsert issued for empty batch")
	}
}

func TestUpsert_Error(t *testing.T) {
	pts := &mockPoints{upsertErr: errors.New("fail")}
	g := NewWithClients(pts, &mockCollections{}, "locations", testLogger())
	err := g.Upsert(context.Background(), []PointRecord{{PointID: "x"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

// --- EnsureCollection ---

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "locations"}},
		},
	}
	g := NewWithClients(&mockPoints{}, cols, "locations", testLogger())
	if err := g.EnsureCollection(context.Background(), 768); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.createReq != nil {
		t.Error("create issued for existing collection")
	}
}

func TestEnsureCollection_Creates(t *testing.T) {
	cols := &mockCollections{
		listResp:   &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{}},
		createResp: &pb.CollectionOperationResponse{Result: true},
	}
	g := NewWithClients(&mockPoints{}, cols, "locations", testLogger())
	if err := g.EnsureCollection(context.Background(), 768); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.createReq == nil {
		t.Fatal("create not issued")
	}
	params := cols.createReq.GetVectorsConfig().GetParams()
	if params.GetSize() != 768 {
		t.Errorf("size = %d", params.GetSize())
	}
	if params.GetDistance() != pb.Distance_Dot {
		t.Errorf("distance = %v, want Dot", params.GetDistance())
	}
}

func TestEnsureCollection_ListError(t *testing.T) {
	cols := &mockCollections{listErr: errors.New("rpc fail")}
	g := NewWithClients(&mockPoints{}, cols, "locations", testLogger())
	if err := g.EnsureCollection(context.Background(), 768); err == nil {
		t.Fatal("expected error")
	}
}

// --- Mock gateway ---

func TestMockGateway_Deterministic(t *testing.T) {
	m := NewMock()
	a, err := m.Search(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := m.Search(context.Background(), []float32{0.9, 0.3}, 5)
	if len(a) != 5 || len(b) != 5 {
		t.Fatalf("got %d and %d hits, want 5", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Score != b[i].Score {
			t.Errorf("hit %d differs between calls", i)
		}
	}
	for i := 1; i < len(a); i++ {
		if a[i].Score >= a[i-1].Score {
			t.Errorf("scores not strictly decreasing at %d", i)
		}
	}
	for i, h := range a {
		if h.Coords.Lat == nil || h.Coords.Lng == nil {
			t.Fatalf("hit %d missing coords", i)
		}
		parsed := domain.ParseLocationID(h.ID)
		if parsed.Lat == nil || *parsed.Lat != *h.Coords.Lat {
			t.Errorf("hit %d id %q does not round-trip coords", i, h.ID)
		}
	}
}

func TestMockGateway_TopKBounds(t *testing.T) {
	m := NewMock()
	hits, err := m.Search(context.Background(), nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 20 {
		t.Errorf("got %d hits, want cap of 20", len(hits))
	}
	hits, _ = m.Search(context.Background(), nil, 0)
	if len(hits) != 0 {
		t.Errorf("got %d hits for topK=0", len(hits))
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"required", true},
		{"mock", true},
		{"", false},
		{"auto", false},
	}
	for _, c := range cases {
		if _, ok := ParseMode(c.in); ok != c.ok {
			t.Errorf("ParseMode(%q) ok = %v, want %v", c.in, ok, c.ok)
		}
	}
}
