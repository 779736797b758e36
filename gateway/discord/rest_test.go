package discord

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kithare/kithscord/gateway/types"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   []byte
}

func restFixture(t *testing.T, status int, response string) (*Client, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	client := NewClient("sekrit")
	client.SetBaseURL(srv.URL)
	return client, &reqs
}

func TestSend(t *testing.T) {
	client, reqs := restFixture(t, 200, `{"id": "555", "channel_id": "10", "author": {"id": "1"}}`)

	ref, err := client.Send(10, "hello", &types.Embed{Title: "T"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if ref.ChannelID != 10 || ref.MessageID != 555 {
		t.Errorf("ref = %+v", ref)
	}

	req := (*reqs)[0]
	if req.method != http.MethodPost || req.path != "/channels/10/messages" {
		t.Errorf("request = %s %s", req.method, req.path)
	}
	if req.auth != "Bot sekrit" {
		t.Errorf("auth header = %q", req.auth)
	}
	var payload struct {
		Content string        `json:"content"`
		Embeds  []types.Embed `json:"embeds"`
	}
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if payload.Content != "hello" || len(payload.Embeds) != 1 || payload.Embeds[0].Title != "T" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestSendClampsContent(t *testing.T) {
	client, reqs := restFixture(t, 200, `{"id": "1", "channel_id": "10", "author": {"id": "1"}}`)

	if _, err := client.Send(10, strings.Repeat("x", 3000), nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	var payload struct {
		Content string `json:"content"`
	}
	json.Unmarshal((*reqs)[0].body, &payload)
	if len(payload.Content) != types.MaxMessageLen {
		t.Errorf("content len = %d, want %d", len(payload.Content), types.MaxMessageLen)
	}
}

func TestAPIError(t *testing.T) {
	client, _ := restFixture(t, 403, `{"message": "Missing Permissions"}`)

	err := client.Delete(types.MessageRef{ChannelID: 10, MessageID: 5})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want APIError", err)
	}
	if apiErr.Status != 403 || !strings.Contains(apiErr.Body, "Missing Permissions") {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestRateLimitRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient("t")
	client.SetBaseURL(srv.URL)
	if err := client.Delete(types.MessageRef{ChannelID: 1, MessageID: 2}); err != nil {
		t.Fatalf("Delete failed after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestReactionPaths(t *testing.T) {
	client, reqs := restFixture(t, 204, "")
	ref := types.MessageRef{ChannelID: 10, MessageID: 99}

	if err := client.AddReaction(ref, "▶️"); err != nil {
		t.Fatalf("AddReaction failed: %v", err)
	}
	if err := client.RemoveReaction(ref, "▶️", 42); err != nil {
		t.Fatalf("RemoveReaction failed: %v", err)
	}
	if err := client.ClearReactions(ref); err != nil {
		t.Fatalf("ClearReactions failed: %v", err)
	}

	paths := []string{
		"/channels/10/messages/99/reactions/▶️/@me",
		"/channels/10/messages/99/reactions/▶️/42",
		"/channels/10/messages/99/reactions",
	}
	for i, want := range paths {
		if got := (*reqs)[i].path; got != want {
			t.Errorf("request %d path = %q, want %q", i, got, want)
		}
	}
}

func TestMessageDecoding(t *testing.T) {
	client, _ := restFixture(t, 200, `{
		"id": "111",
		"channel_id": "10",
		"guild_id": "999",
		"author": {"id": "1", "username": "wiz"},
		"member": {"nick": "w", "roles": ["5", "6"]},
		"content": "kh!refresh",
		"embeds": [{"footer": {"text": "Page 2 of 5."}}],
		"message_reference": {"message_id": "42", "channel_id": "10"},
		"timestamp": "2021-06-01T10:00:00+00:00"
	}`)

	msg, err := client.Message(10, 111)
	if err != nil {
		t.Fatalf("Message failed: %v", err)
	}
	if msg.ID != 111 || msg.GuildID != 999 || msg.Author.Username != "wiz" {
		t.Errorf("msg = %+v", msg)
	}
	if msg.ReplyTo == nil || msg.ReplyTo.MessageID != 42 || msg.ReplyTo.ChannelID != 10 {
		t.Errorf("ReplyTo = %+v", msg.ReplyTo)
	}
	if msg.Member == nil || len(msg.Member.Roles) != 2 || msg.Member.Roles[1] != 6 {
		t.Errorf("Member = %+v", msg.Member)
	}
	// the member payload omits the user; the author fills in
	if msg.Member.User == nil || msg.Member.User.ID != 1 {
		t.Errorf("Member.User = %+v", msg.Member.User)
	}
	if len(msg.Embeds) != 1 || msg.Embeds[0].Footer.Text != "Page 2 of 5." {
		t.Errorf("Embeds = %+v", msg.Embeds)
	}
	if msg.CreatedAt.IsZero() {
		t.Error("timestamp not parsed")
	}
}

func TestRolesOf(t *testing.T) {
	client, reqs := restFixture(t, 200, `{"user": {"id": "7"}, "roles": ["100", "200"]}`)

	roles, err := client.RolesOf(999, 7)
	if err != nil {
		t.Fatalf("RolesOf failed: %v", err)
	}
	if len(roles) != 2 || roles[0] != 100 || roles[1] != 200 {
		t.Errorf("roles = %v", roles)
	}
	if got := (*reqs)[0].path; got != "/guilds/999/members/7" {
		t.Errorf("path = %q", got)
	}
}
