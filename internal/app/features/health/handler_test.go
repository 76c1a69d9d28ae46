package health_test

import (
	"net/http"
	"testing"

	"github.com/guildhall-club/guildhall/internal/app/features/health"
	"github.com/guildhall-club/guildhall/internal/testutil"
	"go.uber.org/zap"
)

func TestServe_DatabaseReachable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := health.NewHandler(db.Client(), zap.NewNop())

	req := testutil.NewRequest(http.MethodGet, "/health")
	rec := testutil.NewRecorder()

	h.Serve(rec.ResponseRecorder, req)

	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"status":"ok"`)
	rec.AssertContains(t, `"database":"connected"`)
}
