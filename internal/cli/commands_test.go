package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Maryclair03/Latest-LittleWatch/internal/api"
	"github.com/Maryclair03/Latest-LittleWatch/internal/config"
	"github.com/Maryclair03/Latest-LittleWatch/internal/history"
	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
	"github.com/Maryclair03/Latest-LittleWatch/internal/session"
	"github.com/Maryclair03/Latest-LittleWatch/internal/vitals"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type testEnv struct {
	mux   *http.ServeMux
	mr    *miniredis.Miniredis
	app   *App
	store *session.Store
}

func newTestEnv(t *testing.T) *testEnv {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.API.Timeout = 2 * time.Second
	cfg.API.UserAgent = "littlewatch-test"
	cfg.History.PageSize = 20

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	store := session.NewStore(session.NewRedisKVStore(client), "littlewatch:session:", logger)
	app := NewAppWithStore(cfg, store, api.NewClient(cfg, logger), logger)

	return &testEnv{mux: mux, mr: mr, app: app, store: store}
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := NewRootCommand(func() (*App, error) { return e.app, nil })
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(testContext(t))
	return out.String(), err
}

func (e *testEnv) login(t *testing.T, serial string) {
	require.NoError(t, e.store.Set(testContext(t), models.Session{UserID: "7", AuthToken: "tok", DeviceSerial: serial}))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func TestLogin_StoresSessionAndUploadsPendingToken(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.SetPendingFCMToken(testContext(t), "push-1"))

	var uploaded string
	env.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@example.com", body.Email)
		assert.Equal(t, "secret", body.Password)
		ok(w, map[string]any{
			"token": "tok",
			"user":  map[string]any{"id": 7, "name": "Ana", "device_serial": "ABC123"},
		})
	})
	env.mux.HandleFunc("PUT /api/user/fcm-token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		uploaded = body["fcmToken"]
		ok(w, nil)
	})

	out, err := env.run(t, "login", "--email", "ana@example.com", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Ana")

	sess, err := env.store.Get(testContext(t))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "7", sess.UserID)
	assert.Equal(t, "tok", sess.AuthToken)
	assert.Equal(t, "ABC123", sess.DeviceSerial)

	assert.Equal(t, "push-1", uploaded)
	pending, err := env.store.TakePendingFCMToken(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLogin_RequiresCredentials(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "login", "--email", "ana@example.com")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLogin_RejectedKeepsNoSession(t *testing.T) {
	env := newTestEnv(t)
	env.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
	})

	_, err := env.run(t, "login", "-e", "ana@example.com", "-p", "wrong")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid email or password")

	sess, err := env.store.Get(testContext(t))
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestLogout_ClearsSessionWhenServerFails(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	env.mux.HandleFunc("POST /api/user/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
	})

	out, err := env.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	sess, err := env.store.Get(testContext(t))
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestLink_StoresTrimmedSerial(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "")
	env.mux.HandleFunc("POST /api/devices/link", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ABC123", body["device_serial"])
		ok(w, nil)
	})

	out, err := env.run(t, "--format", "json", "link", "  ABC123 ")
	require.NoError(t, err)

	var res map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "ABC123", res["device_serial"])

	sess, err := env.store.Get(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "ABC123", sess.DeviceSerial)
}

func TestLink_RequiresLogin(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "link", "ABC123")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestUnlink_ClearsSerial(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	env.mux.HandleFunc("POST /api/devices/unlink", func(w http.ResponseWriter, r *http.Request) {
		ok(w, nil)
	})

	_, err := env.run(t, "unlink")
	require.NoError(t, err)

	sess, err := env.store.Get(testContext(t))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.False(t, sess.HasDevice())
	assert.Equal(t, "7", sess.UserID)
}

func TestProfile_SyncsDeviceSerial(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "OLD")
	env.mux.HandleFunc("GET /api/user/profile", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"user_id": 7, "name": "Ana", "deviceSerial": "NEW"})
	})

	out, err := env.run(t, "profile")
	require.NoError(t, err)
	assert.Contains(t, out, "NEW")

	sess, err := env.store.Get(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "NEW", sess.DeviceSerial)
}

func TestProfile_UnauthorizedClearsSession(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	env.mux.HandleFunc("GET /api/user/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Token expired"})
	})

	_, err := env.run(t, "profile")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "session expired")

	sess, err := env.store.Get(testContext(t))
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestVitals_RendersLatestReading(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	env.mux.HandleFunc("GET /api/vitals/latest-by-serial/ABC123", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{
			"vitals": map[string]any{"heart_rate": 75, "temperature": 37.0, "oxygen_saturation": 0},
			"device": map[string]any{"battery_level": 64, "is_connected": true},
		})
	})

	out, err := env.run(t, "--format", "json", "vitals")
	require.NoError(t, err)

	var view vitals.View
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "75", view.HeartRate.Value)
	assert.Equal(t, vitals.StatusCritical, view.HeartRate.Status)
	assert.Equal(t, "37.0", view.Temperature.Value)
	assert.Equal(t, vitals.LabelNormal, view.Temperature.Label)
	assert.Equal(t, vitals.Placeholder, view.Oxygen.Value)
	assert.Equal(t, vitals.LabelNoReading, view.Oxygen.Label)
	assert.Equal(t, "64%", view.Battery)
	assert.Equal(t, vitals.SourcePoll, view.Source)
}

func TestVitals_TextOutput(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	env.mux.HandleFunc("GET /api/vitals/latest-by-serial/ABC123", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{
			"vitals": map[string]any{"heart_rate": 150, "temperature": 37.0, "oxygen_saturation": 98},
			"device": map[string]any{"is_connected": false},
		})
	})

	out, err := env.run(t, "vitals")
	require.NoError(t, err)
	assert.Contains(t, out, "150 BPM")
	assert.Contains(t, out, "37.0 °C")
	assert.Contains(t, out, "98 %")
	assert.Contains(t, out, "Band is offline")
}

func TestVitals_RequiresDevice(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "")

	_, err := env.run(t, "vitals")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no device linked")
}

func TestHistory_InvalidPeriod(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")

	_, err := env.run(t, "history", "--period", "1Y")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func historyHandler(t *testing.T, calls *[]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		*calls = append(*calls, q.Get("period")+"/"+q.Get("page")+"/"+q.Get("limit"))
		ok(w, map[string]any{
			"readings": []map[string]any{
				{"id": 1, "heart_rate": 150, "temperature": 37.0, "oxygen_saturation": 98, "timestamp": "2025-03-01T08:30:00Z"},
				{"id": 2, "heart_rate": 75, "temperature": 38.2, "oxygen_saturation": 93, "is_alert": true, "timestamp": "2025-03-01T08:00:00Z"},
			},
			"summary": map[string]any{"avgHeartRate": 112.5, "avgTemperature": 37.6, "avgOxygen": 95.5, "totalReadings": 2},
		})
	}
}

func TestHistory_ShowsSummaryAndReadings(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	var calls []string
	env.mux.HandleFunc("GET /api/vitals/history-by-serial/ABC123", historyHandler(t, &calls))

	out, err := env.run(t, "history", "--period", "1W", "--pages", "3")
	require.NoError(t, err)

	assert.Equal(t, []string{"1W/1/20"}, calls)
	assert.Contains(t, out, "Period 1W, 2 readings")
	assert.Contains(t, out, "Avg Temperature  37.6 °C")
	assert.Contains(t, out, "ALERT")
	assert.NotContains(t, out, "More readings available")
}

func TestExport_WritesWorkbook(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	var calls []string
	env.mux.HandleFunc("GET /api/vitals/history-by-serial/ABC123", historyHandler(t, &calls))

	path := filepath.Join(t.TempDir(), "history.xlsx")
	out, err := env.run(t, "export", "--period", "24H", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 readings")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Readings")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, history.ReadingsHeader[0], rows[0][0])
	assert.True(t, strings.HasPrefix(rows[2][1], "75"))
}

func TestNotifications_ListUnread(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	env.mux.HandleFunc("GET /api/notifications", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []map[string]any{
			{"id": 1, "title": "High temperature", "message": "38.2°C", "read": false, "time": "2m ago"},
			{"id": 2, "title": "Low battery", "message": "10%", "read": true},
		})
	})

	out, err := env.run(t, "--format", "json", "notifications", "list", "--unread")
	require.NoError(t, err)

	var items []models.Notification
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].ID.String())
}

func TestNotifications_ReadAndClear(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	var hits []string
	record := func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.Method+" "+r.URL.Path)
		ok(w, nil)
	}
	env.mux.HandleFunc("PUT /api/notifications/5/read", record)
	env.mux.HandleFunc("PUT /api/notifications/read-all", record)
	env.mux.HandleFunc("DELETE /api/notifications/clear-all", record)

	_, err := env.run(t, "notifications", "read", "5")
	require.NoError(t, err)
	_, err = env.run(t, "notifications", "read-all")
	require.NoError(t, err)
	_, err = env.run(t, "notifications", "clear")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"PUT /api/notifications/5/read",
		"PUT /api/notifications/read-all",
		"DELETE /api/notifications/clear-all",
	}, hits)
}

func TestSleep_ShowsCurrentStatus(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	env.mux.HandleFunc("GET /api/vitals/sleep/data/ABC123", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("days"))
		ok(w, []map[string]any{{"date": "2025-03-01", "hours": 11.5}})
	})
	env.mux.HandleFunc("GET /api/vitals/sleep/statistics/ABC123", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"averageHours": 11.5})
	})
	env.mux.HandleFunc("GET /api/vitals/sleep/current/ABC123", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"isSleeping": true,
			"data":       map[string]any{"currentDurationMinutes": 95},
		})
	})

	out, err := env.run(t, "sleep", "--days", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Sleeping for 1h 35m")
	assert.Contains(t, out, "2025-03-01")
	assert.Contains(t, out, "averageHours")
}

func TestFCMToken_PendingWhenLoggedOut(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "fcm-token", "push-9")
	require.NoError(t, err)
	assert.Contains(t, out, "uploaded after login")

	token, err := env.store.TakePendingFCMToken(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "push-9", token)
}

func TestFCMToken_UploadsWhenLoggedIn(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "")
	var uploaded string
	env.mux.HandleFunc("PUT /api/user/fcm-token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		uploaded = body["fcmToken"]
		ok(w, nil)
	})

	_, err := env.run(t, "fcm-token", "push-9")
	require.NoError(t, err)
	assert.Equal(t, "push-9", uploaded)
}

func TestSettings_Notifications(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "ABC123")
	var got *bool
	env.mux.HandleFunc("PUT /api/user/notification-settings", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		v := body["notificationEnabled"]
		got = &v
		ok(w, nil)
	})

	_, err := env.run(t, "settings", "--notifications", "off")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, *got)

	_, err = env.run(t, "settings", "--notifications", "maybe")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMonitor_RequiresLogin(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "monitor", "--duration", "100ms")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "not logged in")
}

func TestViewLine(t *testing.T) {
	p := vitals.NewProjection()
	p.ApplySnapshot(&models.VitalsPayload{
		Vitals: &models.VitalsReading{
			HeartRate:        models.Float64Ptr(150),
			Temperature:      models.Float64Ptr(37),
			OxygenSaturation: models.Float64Ptr(98),
		},
		Device: &models.DeviceStatus{BatteryLevel: models.Float64Ptr(80), IsConnected: models.BoolPtr(true)},
	}, vitals.SourcePoll)
	p.RaiseAlert()

	line := viewLine(p.Render())
	assert.Equal(t,
		"Connecting... | HR 150 BPM (Normal Range) | Temp 37.0 °C (Normal Range) | SpO2 98 % (Normal Range) | Movement -- | Battery 80% | ALERT",
		line,
	)
}
