package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yt-relay/internal/history"
	"yt-relay/internal/hub"
	"yt-relay/internal/notify"
	"yt-relay/internal/store"
	"yt-relay/internal/subscriptions"
	"yt-relay/internal/test"
	"yt-relay/internal/webhook"
	"yt-relay/internal/youtube"
)

const (
	channelA = "UC_x5XG1OV2P6uZZ5FSM9Ttw"
	channelB = "UCBR8-60-B28hp2BmDPdntcQ"
	base     = "https://relay.example.com"
)

type env struct {
	router *mux.Router
	hub    *test.HubServer
	hooks  *test.WebhookReceiver
	store  *store.MemoryStore
}

func newEnv(t *testing.T) *env {
	h := test.NewHubServer(t)
	hooks := test.NewWebhookReceiver(t)
	s := store.NewMemoryStore()
	log := history.NewMemoryLog(10)
	mirror := webhook.Mirror{Enabled: true}

	rec := subscriptions.New(subscriptions.Options{
		Store:        s,
		Hub:          hub.NewClient(hub.Options{HubURL: h.SubscribeURL(), StatusURL: h.DetailsURL(), Timeout: time.Second}),
		CallbackBase: base,
		Mirror:       mirror,
	})
	fwd := notify.New(notify.Options{
		Store:   s,
		Sender:  webhook.NewDispatcher(nil, time.Second),
		History: log,
		Mirror:  mirror,
	})

	r := mux.NewRouter()
	New(rec, fwd, s, log, base).Register(r)
	return &env{router: r, hub: h, hooks: hooks, store: s}
}

func (e *env) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestSubscribeEndpoint(t *testing.T) {
	e := newEnv(t)
	hook := e.hooks.URL + "/hook"

	rr := e.do(t, http.MethodPost, "/subscribe", map[string]interface{}{
		"channelIds": []string{channelA},
		"webhookUrl": hook,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, subscriptions.MsgSubscribed, body["message"])
	assert.Equal(t, subscriptions.UserKey(hook), body["userKey"])
	assert.Equal(t, []interface{}{channelA}, body["newlySubscribedChannels"])

	rr = e.do(t, http.MethodPost, "/subscribe", map[string]interface{}{
		"channelIds": []string{channelA},
		"webhookUrl": hook,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, subscriptions.MsgResubscribed, decode(t, rr)["message"])
}

func TestSubscribeEndpointValidation(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodPost, "/subscribe", map[string]interface{}{
		"channelIds": []string{"UCnope"},
		"webhookUrl": "https://example.com/hook",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, []interface{}{"UCnope"}, decode(t, rr)["invalidChannelIds"])

	rr = e.do(t, http.MethodPost, "/subscribe", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodGet, "/subscribe", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	assert.Empty(t, e.hub.Requests())
}

func TestUnsubscribeAndStatusEndpoints(t *testing.T) {
	e := newEnv(t)
	hook := e.hooks.URL + "/hook"
	e.do(t, http.MethodPost, "/subscribe", map[string]interface{}{"channelIds": []string{channelA}, "webhookUrl": hook})
	e.hub.States[youtube.TopicURL(channelA)] = "verified"

	rr := e.do(t, http.MethodGet, "/status?webhookUrl="+url.QueryEscape(hook), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	channels := decode(t, rr)["channels"].([]interface{})
	require.Len(t, channels, 1)
	assert.Equal(t, "verified", channels[0].(map[string]interface{})["state"])

	rr = e.do(t, http.MethodPost, "/unsubscribe", map[string]interface{}{"webhookUrl": hook, "channelIds": []string{channelB}})
	assert.Equal(t, http.StatusConflict, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, []interface{}{channelB}, body["requestedChannels"])
	assert.Equal(t, []interface{}{channelA}, body["currentChannels"])

	rr = e.do(t, http.MethodPost, "/unsubscribe", map[string]interface{}{"webhookUrl": hook})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/unsubscribe", map[string]interface{}{"webhookUrl": hook, "allChannels": true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["deleted"])

	rr = e.do(t, http.MethodGet, "/status?webhookUrl="+url.QueryEscape(hook), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, decode(t, rr)["success"])
}

func TestListEndpoint(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/subscriptions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	e.do(t, http.MethodPost, "/subscribe", map[string]interface{}{"channelIds": []string{channelA}, "webhookUrl": "https://n8n.example.com/webhook-test/yt"})
	rr = e.do(t, http.MethodGet, "/subscriptions", nil)
	var subs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &subs))
	assert.Len(t, subs, 2)
}

func TestVerificationEndpoint(t *testing.T) {
	e := newEnv(t)

	q := url.Values{}
	q.Set("hub.mode", "subscribe")
	q.Set("hub.topic", youtube.TopicURL(channelA))
	q.Set("hub.challenge", "challenge-123")
	q.Set("hub.lease_seconds", "864000")
	rr := e.do(t, http.MethodGet, "/websub/some-key?"+q.Encode(), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "challenge-123", rr.Body.String())
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain"))

	q.Del("hub.challenge")
	rr = e.do(t, http.MethodGet, "/websub/some-key?"+q.Encode(), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode(t, rr)["error"], "hub.challenge")
	assert.Empty(t, e.hub.Requests())
}

func TestNotificationEndpoint(t *testing.T) {
	e := newEnv(t)
	hook := e.hooks.URL + "/hook"
	e.do(t, http.MethodPost, "/subscribe", map[string]interface{}{"channelIds": []string{channelA}, "webhookUrl": hook})
	key := subscriptions.UserKey(hook)

	rr := e.do(t, http.MethodPost, "/websub/"+key, test.Fixture(t, "notification.xml"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "dQw4w9WgXcQ", decode(t, rr)["videoId"])
	require.Len(t, e.hooks.Received("/hook"), 1)

	rr = e.do(t, http.MethodPost, "/websub/"+key, test.Fixture(t, "deleted.xml"))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = e.do(t, http.MethodPost, "/websub/"+key, "garbage")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/websub/unknown", test.Fixture(t, "notification.xml"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodGet, "/feeds/"+key, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/rss+xml", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "Test Video 1")
	assert.Contains(t, rr.Body.String(), base+"/feeds/"+key)

	rr = e.do(t, http.MethodGet, "/feeds/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestStatusForUnexpectedErrorHidesDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	writeError(rr, req, subscriptions.ErrStore)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal server error", decode(t, rr)["error"])
}
