package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contest-vote-backend/internal/config"
	"contest-vote-backend/internal/metrics"
	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"
	"contest-vote-backend/internal/services"

	"github.com/gorilla/websocket"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	users   *services.UserService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	users := services.NewUserService(store, "test-secret")
	photos, err := services.NewPhotoService(ctx, store, services.StorageConfig{}, config.DefaultBaseRating)
	if err != nil {
		t.Fatalf("NewPhotoService() error = %v", err)
	}
	cache := services.NewStandingsCache("", "", 0)
	hub := services.NewContestHub()
	ranking := services.NewRankingService(store, cache, hub, nil)
	contests := services.NewContestService(store, ranking, config.VotingConfig{
		BaseRating:           config.DefaultBaseRating,
		KFactor:              config.DefaultKFactor,
		DefaultMaxDailyVotes: config.DefaultMaxDailyVotes,
		DefaultWinnerCount:   config.DefaultWinnerCount,
	})

	m := metrics.New(nil)
	pairing := services.NewPairingService(store, photos, 0.25)
	pairing.Instrument(m)
	votes := services.NewVoteService(store, services.NewQuotaManager(), cache, hub)
	votes.Instrument(m)

	handler := NewRouter(Services{
		Users:       users,
		Contests:    contests,
		Photos:      photos,
		Pairing:     pairing,
		Votes:       votes,
		Ranking:     ranking,
		Hub:         hub,
		Metrics:     m,
		CORSOrigins: "*",
	})
	return &testServer{t: t, handler: handler, users: users}
}

func (s *testServer) token(userID string, role models.Role) string {
	s.t.Helper()
	token, err := s.users.GenerateJWT(userID, role)
	if err != nil {
		s.t.Fatalf("GenerateJWT() error = %v", err)
	}
	return token
}

// do sends a request and decodes the JSON response into out when non-nil
func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("Encode() error = %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

// seedContest creates a running contest with one approved photo per owner
func (s *testServer) seedContest(orgToken string, maxDaily int, owners ...string) (string, []string) {
	s.t.Helper()

	var contest models.Contest
	code := s.do(http.MethodPost, "/api/v1/contests", orgToken, map[string]any{
		"title":            "Harbour lights",
		"voting_closes_at": time.Now().Add(24 * time.Hour),
		"max_daily_votes":  maxDaily,
	}, &contest)
	if code != http.StatusCreated {
		s.t.Fatalf("create contest status = %d", code)
	}

	var ids []string
	for _, owner := range owners {
		var upload services.UploadResponse
		if code := s.do(http.MethodPost, "/api/v1/contests/"+contest.ID+"/photos/upload", s.token(owner, models.RoleVoter),
			map[string]string{"content_type": "image/jpeg"}, &upload); code != http.StatusOK {
			s.t.Fatalf("upload status = %d", code)
		}
		if code := s.do(http.MethodPost, "/api/v1/photos/"+upload.PhotoID+"/approve", orgToken, nil, nil); code != http.StatusOK {
			s.t.Fatalf("approve status = %d", code)
		}
		ids = append(ids, upload.PhotoID)
	}
	return contest.ID, ids
}

func TestRouter_CreateUserIssuesVoterToken(t *testing.T) {
	s := newTestServer(t)

	var user models.User
	if code := s.do(http.MethodPost, "/api/v1/users", "", nil, &user); code != http.StatusOK && code != http.StatusCreated {
		t.Fatalf("status = %d", code)
	}
	if user.ID == "" || user.Token == "" || user.Role != models.RoleVoter {
		t.Fatalf("user = %+v", user)
	}

	claims, err := s.users.ValidateJWT(user.Token)
	if err != nil || claims.UserID != user.ID {
		t.Errorf("ValidateJWT() = %+v, %v", claims, err)
	}

	// Sign-up tokens cannot create contests
	code := s.do(http.MethodPost, "/api/v1/contests", user.Token, map[string]any{
		"title":            "Nope",
		"voting_closes_at": time.Now().Add(time.Hour),
	}, nil)
	if code != http.StatusForbidden {
		t.Errorf("voter create contest status = %d, want 403", code)
	}
}

func TestRouter_Authentication(t *testing.T) {
	s := newTestServer(t)

	if code := s.do(http.MethodGet, "/api/v1/contests/c1", "", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", code)
	}
	if code := s.do(http.MethodGet, "/api/v1/contests/c1", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", code)
	}

	var body ErrorResponse
	if code := s.do(http.MethodGet, "/api/v1/contests/missing", s.token("v", models.RoleVoter), nil, &body); code != http.StatusNotFound {
		t.Errorf("missing contest status = %d, want 404", code)
	}
	if body.Error == "" {
		t.Error("404 without error message")
	}
}

func TestRouter_VotingFlow(t *testing.T) {
	s := newTestServer(t)
	org := s.token("org", models.RoleOrganizer)
	contestID, photos := s.seedContest(org, 2, "owner-a", "owner-b", "owner-c")
	base := "/api/v1/contests/" + contestID
	voter := s.token("voter-1", models.RoleVoter)

	var pair services.PairResult
	if code := s.do(http.MethodGet, base+"/pair", voter, nil, &pair); code != http.StatusOK {
		t.Fatalf("pair status = %d", code)
	}
	if pair.Outcome != services.PairServed || pair.PhotoA == nil || pair.PhotoB == nil || pair.PhotoA.ID == pair.PhotoB.ID {
		t.Fatalf("pair = %+v", pair)
	}

	tests := []struct {
		name    string
		winner  string
		loser   string
		want    int
		outcome services.VoteOutcome
	}{
		{"first vote", photos[0], photos[1], http.StatusOK, services.VoteAccepted},
		{"same pair reversed", photos[1], photos[0], http.StatusConflict, services.DuplicatePair},
		{"self pair", photos[2], photos[2], http.StatusBadRequest, services.InvalidPhotoPair},
		{"unknown photo", photos[0], "ghost", http.StatusBadRequest, services.InvalidPhotoPair},
		{"second vote", photos[2], photos[0], http.StatusOK, services.VoteAccepted},
		{"daily quota", photos[1], photos[2], http.StatusTooManyRequests, services.QuotaExceeded},
	}

	for _, tt := range tests {
		var result services.VoteResult
		code := s.do(http.MethodPost, base+"/votes", voter, CastVoteRequest{WinnerPhotoID: tt.winner, LoserPhotoID: tt.loser}, &result)
		if code != tt.want || result.Outcome != tt.outcome {
			t.Errorf("%s: status = %d outcome = %s, want %d %s", tt.name, code, result.Outcome, tt.want, tt.outcome)
		}
	}

	var status services.QuotaStatus
	if code := s.do(http.MethodGet, base+"/vote-status", voter, nil, &status); code != http.StatusOK {
		t.Fatalf("vote-status status = %d", code)
	}
	if status.CanVote || status.DailyVotesRemaining != 0 || status.VotesRemaining != -1 {
		t.Errorf("vote status = %+v", status)
	}

	if code := s.do(http.MethodPost, base+"/votes", voter, map[string]string{"winner": "x"}, nil); code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", code)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, want := range []string{
		`contestvote_votes_total{outcome="ok"} 2`,
		`contestvote_votes_total{outcome="invalid_photo_pair"} 2`,
		`contestvote_votes_total{outcome="quota_exceeded"} 1`,
		`contestvote_pairs_total{outcome="ok"} 1`,
	} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestRouter_StandingsAndClose(t *testing.T) {
	s := newTestServer(t)
	org := s.token("org", models.RoleOrganizer)
	contestID, photos := s.seedContest(org, 0, "owner-a", "owner-b")
	base := "/api/v1/contests/" + contestID
	voter := s.token("voter-1", models.RoleVoter)

	if code := s.do(http.MethodGet, base+"/standings", voter, nil, nil); code != http.StatusForbidden {
		t.Errorf("standings while running status = %d, want 403", code)
	}

	if code := s.do(http.MethodPost, base+"/votes", voter, CastVoteRequest{WinnerPhotoID: photos[1], LoserPhotoID: photos[0]}, nil); code != http.StatusOK {
		t.Fatalf("vote status = %d", code)
	}

	if code := s.do(http.MethodPost, base+"/close", s.token("other-org", models.RoleOrganizer), nil, nil); code != http.StatusForbidden {
		t.Errorf("foreign organizer close status = %d, want 403", code)
	}

	var closed services.StandingsResult
	if code := s.do(http.MethodPost, base+"/close", org, nil, &closed); code != http.StatusOK {
		t.Fatalf("close status = %d", code)
	}
	if !closed.Final || len(closed.Standings) != 2 || closed.Standings[0].PhotoID != photos[1] || !closed.Standings[0].Winner {
		t.Errorf("close result = %+v", closed)
	}

	var standings services.StandingsResult
	if code := s.do(http.MethodGet, base+"/standings", voter, nil, &standings); code != http.StatusOK {
		t.Fatalf("standings status = %d", code)
	}
	if !standings.Final || standings.Standings[0].PhotoID != photos[1] {
		t.Errorf("standings = %+v", standings)
	}

	var pair services.PairResult
	if code := s.do(http.MethodGet, base+"/pair", voter, nil, &pair); code != http.StatusConflict || pair.Outcome != services.PairVotingClosed {
		t.Errorf("pair after close = %d %s", code, pair.Outcome)
	}
	if code := s.do(http.MethodPost, base+"/photos/upload", voter, map[string]string{}, nil); code != http.StatusConflict {
		t.Errorf("upload after close status = %d, want 409", code)
	}
}

func TestRouter_VoteLedgerExport(t *testing.T) {
	s := newTestServer(t)
	org := s.token("org", models.RoleOrganizer)
	contestID, photos := s.seedContest(org, 0, "owner-a", "owner-b", "owner-c")
	base := "/api/v1/contests/" + contestID

	for _, v := range []struct{ voter, winner, loser string }{
		{"voter-1", photos[0], photos[1]},
		{"voter-2", photos[2], photos[0]},
	} {
		req := CastVoteRequest{WinnerPhotoID: v.winner, LoserPhotoID: v.loser}
		if code := s.do(http.MethodPost, base+"/votes", s.token(v.voter, models.RoleVoter), req, nil); code != http.StatusOK {
			t.Fatalf("vote status = %d", code)
		}
	}

	if code := s.do(http.MethodGet, base+"/votes", s.token("voter-1", models.RoleVoter), nil, nil); code != http.StatusForbidden {
		t.Errorf("voter ledger status = %d, want 403", code)
	}
	if code := s.do(http.MethodGet, base+"/votes", s.token("other-org", models.RoleOrganizer), nil, nil); code != http.StatusForbidden {
		t.Errorf("foreign organizer ledger status = %d, want 403", code)
	}

	var ledger struct {
		Votes []models.Vote `json:"votes"`
		Total int           `json:"total"`
	}
	if code := s.do(http.MethodGet, base+"/votes", org, nil, &ledger); code != http.StatusOK {
		t.Fatalf("ledger status = %d", code)
	}
	if ledger.Total != 2 || len(ledger.Votes) != 2 {
		t.Fatalf("ledger = %+v", ledger)
	}
	if ledger.Votes[0].VoterID != "voter-1" || ledger.Votes[1].WinnerPhotoID != photos[2] {
		t.Errorf("ledger order = %+v", ledger.Votes)
	}
}

func TestRouter_ModerationQueue(t *testing.T) {
	s := newTestServer(t)
	org := s.token("org", models.RoleOrganizer)
	contestID, _ := s.seedContest(org, 0)
	base := "/api/v1/contests/" + contestID

	var upload services.UploadResponse
	if code := s.do(http.MethodPost, base+"/photos/upload", s.token("owner-a", models.RoleVoter), map[string]string{"content_type": "image/png"}, &upload); code != http.StatusOK {
		t.Fatalf("upload status = %d", code)
	}

	var queue struct {
		Photos []models.Photo `json:"photos"`
		Total  int            `json:"total"`
	}
	if code := s.do(http.MethodGet, base+"/photos", org, nil, &queue); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if queue.Total != 1 || queue.Photos[0].ID != upload.PhotoID {
		t.Errorf("queue = %+v", queue)
	}

	if code := s.do(http.MethodGet, base+"/photos", s.token("v", models.RoleVoter), nil, nil); code != http.StatusForbidden {
		t.Errorf("voter list status = %d, want 403", code)
	}
	if code := s.do(http.MethodPost, base+"/photos/upload", s.token("owner-a", models.RoleVoter), map[string]string{"content_type": "image/gif"}, nil); code != http.StatusBadRequest {
		t.Errorf("gif upload status = %d, want 400", code)
	}

	var rejected models.Photo
	if code := s.do(http.MethodPost, "/api/v1/photos/"+upload.PhotoID+"/reject", org, nil, &rejected); code != http.StatusOK {
		t.Fatalf("reject status = %d", code)
	}
	if rejected.Status != models.PhotoRejected {
		t.Errorf("rejected = %+v", rejected)
	}
	if code := s.do(http.MethodPost, "/api/v1/photos/missing/approve", org, nil, nil); code != http.StatusNotFound {
		t.Errorf("approve missing status = %d, want 404", code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/users", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_WebSocketContestFeed(t *testing.T) {
	s := newTestServer(t)
	org := s.token("org", models.RoleOrganizer)
	contestID, photos := s.seedContest(org, 0, "owner-a", "owner-b")

	srv := httptest.NewServer(s.handler)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bad&contest_id="+contestID, nil); err == nil {
		t.Fatal("Dial() with bad token succeeded")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token response = %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+s.token("viewer", models.RoleVoter)+"&contest_id="+contestID, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	read := func() services.WSMessage {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg services.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return msg
	}

	if msg := read(); msg.Type != "vote_status" || msg.ContestID != contestID {
		t.Errorf("initial message = %+v", msg)
	}

	if err := conn.WriteJSON(services.WSMessage{Type: "ping"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := read(); msg.Type != "pong" {
		t.Errorf("ping reply = %+v", msg)
	}

	code := s.do(http.MethodPost, "/api/v1/contests/"+contestID+"/votes", s.token("voter-1", models.RoleVoter),
		CastVoteRequest{WinnerPhotoID: photos[0], LoserPhotoID: photos[1]}, nil)
	if code != http.StatusOK {
		t.Fatalf("vote status = %d", code)
	}
	if code := s.do(http.MethodPost, "/api/v1/contests/"+contestID+"/close", org, nil, nil); code != http.StatusOK {
		t.Fatalf("close status = %d", code)
	}
	if msg := read(); msg.Type != "contest_finished" {
		t.Errorf("after close = %+v", msg)
	}
}
