package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-fuel/internal/auth"
	"github.com/ukydev/fleet-fuel/internal/fuel"
	"github.com/ukydev/fleet-fuel/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "fuelctl-test-secret"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE", "memory")
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// adminServer checks the bearer token is a valid admin token before
// handing the request to h.
func adminServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	svc, err := auth.NewService(testSecret, time.Hour)
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := svc.ValidateToken(r.Header.Get("Authorization"))
		if err != nil || claims.Role != models.RoleAdmin {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--role", "supervisor", "--user", "ops")
	require.NoError(t, err)

	svc, err := auth.NewService(testSecret, time.Hour)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupervisor, claims.Role)
	assert.Equal(t, "ops", claims.Username)

	_, err = execute(t, "token", "--role", "janitor")
	assert.ErrorIs(t, err, auth.ErrInvalidRole)
}

func TestSeedCommand(t *testing.T) {
	var got models.ConfigSet
	server := adminServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/config", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(fuel.ConfigReport{Routes: 1, Batches: 1, Resolved: 2})
	})

	file := filepath.Join(t.TempDir(), "seed.yaml")
	seed := "routes:\n  - destination: DAR\n    total_liters: 2400\ntruck_batches:\n  - suffix: DXY\n    extra_liters: 100\n"
	require.NoError(t, os.WriteFile(file, []byte(seed), 0o600))

	out, err := execute(t, "--api", server.URL+"/api", "seed", file)
	require.NoError(t, err)
	assert.Equal(t, "routes: 1, truck batches: 1, stations: 0, notifications resolved: 2\n", out)
	require.Len(t, got.Routes, 1)
	assert.Equal(t, 2400.0, got.Routes[0].TotalLiters)
	assert.Equal(t, "DXY", got.Batches[0].Suffix)

	_, err = execute(t, "--api", server.URL+"/api", "seed")
	assert.Error(t, err)
}

func TestPendingCommand(t *testing.T) {
	var query string
	server := adminServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pending", r.URL.Path)
		query = r.URL.Query().Get("truck")
		_ = json.NewEncoder(w).Encode(fuel.Pending{
			Orphans: []models.OrphanReturn{{
				ID:          primitive.NewObjectID(),
				TruckNumber: "T699 DXY",
				Order:       models.DeliveryOrder{DONumber: "7001"},
				Reason:      models.OrphanNoGoingRecord,
			}},
			LPOs: []models.LPOEntry{{
				ID:          primitive.NewObjectID(),
				TruckNumber: "T699 DXY",
				LPONumber:   "LPO-7",
				Station:     "NAKONDE",
				Liters:      80,
			}},
		})
	})

	out, err := execute(t, "--api", server.URL+"/api", "pending", "--truck", "T699 DXY")
	require.NoError(t, err)
	assert.Equal(t, "T699 DXY", query)
	assert.Contains(t, out, "DO 7001")
	assert.Contains(t, out, "no_going_record")
	assert.Contains(t, out, "NAKONDE 80L")
	assert.Contains(t, out, "1 orphans, 1 LPOs, 0 yard dispenses pending")
}

func TestRetryCommand(t *testing.T) {
	server := adminServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/pending/retry", r.URL.Path)
		_ = json.NewEncoder(w).Encode(fuel.RetryReport{Trucks: 3, Orphans: 1, LPOs: 2})
	})

	out, err := execute(t, "--api", server.URL+"/api/", "retry")
	require.NoError(t, err)
	assert.Equal(t, "trucks: 3, orphans linked: 1, LPOs linked: 2, yard dispenses linked: 0\n", out)
}

func TestCommand_APIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := execute(t, "--api", server.URL, "--token", "viewer-token", "retry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403 Forbidden")
	assert.Contains(t, err.Error(), "Insufficient permissions")
}
