package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/kithare/kithscord/gateway/types"
)

const defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// gateway opcodes
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// intents: guilds, guild/DM messages with content, guild/DM reactions
const intents = 1<<0 | 1<<9 | 1<<10 | 1<<12 | 1<<13 | 1<<15

// Events holds the callbacks invoked for gateway dispatches. Nil
// callbacks are skipped. Callbacks run on the read loop goroutine, so
// long work must be handed off.
type Events struct {
	Ready         func(bot types.User)
	MessageCreate func(*types.Message)
	MessageUpdate func(*types.Message)
	MessageDelete func(types.MessageRef)
	ReactionAdd   func(types.ReactionEvent)
}

// Socket is a Discord gateway websocket session with automatic
// resume/reconnect
type Socket struct {
	token  string
	url    string
	events Events

	writeMu sync.Mutex
	conn    *websocket.Conn

	seq       int64
	sessionID string
	resumeURL string
}

// NewSocket creates a gateway session for a bot token
func NewSocket(token string, events Events) *Socket {
	return &Socket{token: token, url: defaultGatewayURL, events: events}
}

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// Run connects and processes gateway events until the context is
// cancelled, reconnecting with backoff on every drop
func (s *Socket) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		start := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[WARN] Gateway connection dropped: %v", err)

		// a session that lived a while earns a fresh backoff
		if time.Since(start) > time.Minute {
			backoff = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 60*time.Second {
			backoff *= 2
		}
	}
}

func (s *Socket) runOnce(ctx context.Context) error {
	url := s.url
	if s.resumeURL != "" && s.sessionID != "" {
		url = s.resumeURL + "/?v=10&encoding=json"
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	conn.SetReadLimit(4 * 1024 * 1024)
	s.conn = conn
	defer conn.Close(websocket.StatusNormalClosure, "")

	// hello carries the heartbeat interval
	var hello struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	p, err := s.read(ctx)
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if p.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", p.Op)
	}
	if err := json.Unmarshal(p.D, &hello); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	if s.sessionID != "" {
		err = s.resume(ctx)
	} else {
		err = s.identify(ctx)
	}
	if err != nil {
		return err
	}

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go s.heartbeatLoop(hbCtx, time.Duration(hello.HeartbeatInterval)*time.Millisecond)

	for {
		p, err := s.read(ctx)
		if err != nil {
			return fmt.Errorf("gateway read: %w", err)
		}
		if p.S > 0 {
			s.seq = p.S
		}

		switch p.Op {
		case opDispatch:
			s.dispatch(p.T, p.D)
		case opHeartbeat:
			if err := s.sendHeartbeat(ctx); err != nil {
				return err
			}
		case opReconnect:
			return fmt.Errorf("server requested reconnect")
		case opInvalidSession:
			var resumable bool
			json.Unmarshal(p.D, &resumable)
			if !resumable {
				s.sessionID = ""
				s.resumeURL = ""
				s.seq = 0
			}
			return fmt.Errorf("session invalidated (resumable: %v)", resumable)
		case opHeartbeatACK:
			// alive
		}
	}
}

func (s *Socket) identify(ctx context.Context) error {
	log.Printf("[START] Identifying with the Discord gateway...")
	return s.send(ctx, gatewayPayload{
		Op: opIdentify,
		D: mustMarshal(map[string]any{
			"token":   s.token,
			"intents": intents,
			"properties": map[string]string{
				"os":      runtime.GOOS,
				"browser": "kithscord",
				"device":  "kithscord",
			},
		}),
	})
}

func (s *Socket) resume(ctx context.Context) error {
	log.Printf("[START] Resuming gateway session %s at seq %d...", s.sessionID, s.seq)
	return s.send(ctx, gatewayPayload{
		Op: opResume,
		D: mustMarshal(map[string]any{
			"token":      s.token,
			"session_id": s.sessionID,
			"seq":        s.seq,
		}),
	})
}

func (s *Socket) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sendHeartbeat(ctx); err != nil {
				return
			}
		}
	}
}

func (s *Socket) sendHeartbeat(ctx context.Context) error {
	return s.send(ctx, gatewayPayload{Op: opHeartbeat, D: mustMarshal(s.seq)})
}

func (s *Socket) read(ctx context.Context) (gatewayPayload, error) {
	var p gatewayPayload
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// send serializes one payload. coder/websocket writes are not safe for
// concurrent use, the mutex covers heartbeats racing dispatch replies.
func (s *Socket) send(ctx context.Context, p gatewayPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *Socket) dispatch(event string, data json.RawMessage) {
	switch event {
	case "READY":
		var ready struct {
			SessionID        string     `json:"session_id"`
			ResumeGatewayURL string     `json:"resume_gateway_url"`
			User             types.User `json:"user"`
		}
		if err := json.Unmarshal(data, &ready); err != nil {
			log.Printf("[ERROR] Bad READY payload: %v", err)
			return
		}
		s.sessionID = ready.SessionID
		s.resumeURL = ready.ResumeGatewayURL
		log.Printf("[OK] Gateway ready as %s (session %s)", ready.User.Username, ready.SessionID)
		if s.events.Ready != nil {
			s.events.Ready(ready.User)
		}

	case "RESUMED":
		log.Printf("[OK] Gateway session resumed")

	case "MESSAGE_CREATE", "MESSAGE_UPDATE":
		var wire messageWire
		if err := json.Unmarshal(data, &wire); err != nil {
			log.Printf("[ERROR] Bad %s payload: %v", event, err)
			return
		}
		msg := wire.toMessage()
		if event == "MESSAGE_CREATE" {
			if s.events.MessageCreate != nil {
				s.events.MessageCreate(msg)
			}
		} else if s.events.MessageUpdate != nil {
			s.events.MessageUpdate(msg)
		}

	case "MESSAGE_DELETE":
		var del struct {
			ID        int64 `json:"id,string"`
			ChannelID int64 `json:"channel_id,string"`
		}
		if err := json.Unmarshal(data, &del); err != nil {
			log.Printf("[ERROR] Bad MESSAGE_DELETE payload: %v", err)
			return
		}
		if s.events.MessageDelete != nil {
			s.events.MessageDelete(types.MessageRef{ChannelID: del.ChannelID, MessageID: del.ID})
		}

	case "MESSAGE_REACTION_ADD":
		var add struct {
			UserID    int64       `json:"user_id,string"`
			ChannelID int64       `json:"channel_id,string"`
			MessageID int64       `json:"message_id,string"`
			GuildID   int64       `json:"guild_id,string,omitempty"`
			Member    *memberWire `json:"member,omitempty"`
			Emoji     struct {
				Name string `json:"name"`
			} `json:"emoji"`
		}
		if err := json.Unmarshal(data, &add); err != nil {
			log.Printf("[ERROR] Bad MESSAGE_REACTION_ADD payload: %v", err)
			return
		}
		ev := types.ReactionEvent{
			MessageRef: types.MessageRef{ChannelID: add.ChannelID, MessageID: add.MessageID},
			GuildID:    add.GuildID,
			UserID:     add.UserID,
			Emoji:      add.Emoji.Name,
		}
		if add.Member != nil {
			ev.Member = add.Member.toMember()
			if ev.Member.User != nil {
				ev.Bot = ev.Member.User.Bot
			}
		}
		if s.events.ReactionAdd != nil {
			s.events.ReactionAdd(ev)
		}
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
