// ABOUTME: Tests for the HTTP gateway client
// ABOUTME: Covers idempotency headers, error classification, timeouts, and pulls
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/relay/models"
)

func testAction() models.OfflineAction {
	return models.OfflineAction{
		ID:         "01HACTION",
		Kind:       models.KindCreate,
		EntityType: "note",
		Payload:    json.RawMessage(`{"title":"hello"}`),
		CreatedAt:  time.Now().UTC(),
		State:      models.StatePending,
	}
}

func TestApplySendsIdempotencyKeyAndAuth(t *testing.T) {
	var gotKey, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")

		var req mutationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.KindCreate, req.Kind)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.ServerEntity{
			ID:         "n-1",
			EntityType: "note",
			Payload:    req.Payload,
			UpdatedAt:  time.Now().UTC(),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticCredentials("tok-123"))
	entity, err := client.Apply(context.Background(), testAction())
	require.NoError(t, err)
	require.NotNil(t, entity)

	assert.Equal(t, "01HACTION", gotKey, "action ID must travel as the idempotency key")
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "n-1", entity.ID, "server assigns the entity ID")
}

func TestApplyErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  ErrorKind
		retriable bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrorUnauthorized, false},
		{"conflict", http.StatusConflict, ErrorConflict, false},
		{"validation 422", http.StatusUnprocessableEntity, ErrorValidation, false},
		{"validation 400", http.StatusBadRequest, ErrorValidation, false},
		{"server error", http.StatusInternalServerError, ErrorNetwork, true},
		{"rate limited", http.StatusTooManyRequests, ErrorNetwork, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(errorResponse{Error: "nope"})
			}))
			defer server.Close()

			client := NewClient(server.URL, StaticCredentials("tok"))
			_, err := client.Apply(context.Background(), testAction())
			require.Error(t, err)

			var syncErr *SyncError
			require.ErrorAs(t, err, &syncErr)
			assert.Equal(t, tt.wantKind, syncErr.Kind)
			assert.Equal(t, tt.retriable, syncErr.Retriable())
			assert.Equal(t, "nope", syncErr.Message, "server error body should be surfaced")
		})
	}
}

func TestApplyTimeoutIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticCredentials("tok"), WithTimeout(20*time.Millisecond))
	_, err := client.Apply(context.Background(), testAction())
	require.Error(t, err)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrorNetwork, syncErr.Kind, "a timed-out call is a retriable network failure")
}

func TestApplyUnreachableIsNetwork(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", StaticCredentials("tok"), WithTimeout(100*time.Millisecond))
	_, err := client.Apply(context.Background(), testAction())
	require.Error(t, err)
	assert.Equal(t, ErrorNetwork, KindOf(err))
}

func TestPullSendsWatermark(t *testing.T) {
	watermark := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/changes", r.URL.Path)
		assert.Equal(t, watermark.Format(time.RFC3339Nano), r.URL.Query().Get("since"))

		_ = json.NewEncoder(w).Encode(pullResponse{Changes: []models.ServerEntity{
			{ID: "n-1", EntityType: "note", UpdatedAt: time.Now().UTC()},
			{ID: "n-2", EntityType: "note", Deleted: true, UpdatedAt: time.Now().UTC()},
		}})
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticCredentials("tok"))
	changes, err := client.Pull(context.Background(), watermark)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.True(t, changes[1].Deleted)
}

func TestPullZeroWatermarkOmitsSince(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("since"), "zero watermark means full pull")
		_ = json.NewEncoder(w).Encode(pullResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL, StaticCredentials("tok"))
	_, err := client.Pull(context.Background(), time.Time{})
	require.NoError(t, err)
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, ErrorNetwork, KindOf(context.DeadlineExceeded), "unclassified errors default to network")
}
