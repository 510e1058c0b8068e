package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/warcore/pkg/combat"
)

// WSEvent mirrors handler.WSEvent for client-side deserialization.
type WSEvent struct {
	Type   string          `json:"type"`
	GameID string          `json:"game_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Decision mirrors model.DecisionRequest as it arrives over the socket.
type Decision struct {
	GameID   string          `json:"game_id"`
	BattleID string          `json:"battle_id"`
	Kind     string          `json:"kind"`
	Nation   string          `json:"nation"`
	UserID   string          `json:"user_id"`
	Query    json.RawMessage `json:"query"`
	Deadline time.Time       `json:"deadline"`
}

// Client is an HTTP+WebSocket client for one player of a remote server.
type Client struct {
	name     string
	baseURL  string
	token    string
	userID   string
	wsConn   *websocket.Conn
	events   chan WSEvent
	httpC    *http.Client
	mu       sync.Mutex
	closedWS bool
}

// NewClient creates a new bot client targeting the given server URL.
func NewClient(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		events:  make(chan WSEvent, 64),
		httpC:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the bot name.
func (c *Client) Name() string { return c.name }

// UserID returns the bot's user ID after login.
func (c *Client) UserID() string { return c.userID }

// Login authenticates via the dev login endpoint.
func (c *Client) Login(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/dev?name="+url.QueryEscape(c.name), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpC.Do(req)
	if err != nil {
		return fmt.Errorf("dev login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dev login status %d: %s", resp.StatusCode, body)
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("decode tokens: %w", err)
	}
	c.token = tokens.AccessToken

	var user struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/me", nil, &user); err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	c.userID = user.ID
	log.Debug().Str("bot", c.name).Str("userId", c.userID).Msg("Bot logged in")
	return nil
}

// JoinGame takes the nation's seat in an existing game.
func (c *Client) JoinGame(ctx context.Context, gameID, nation string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/games/"+gameID+"/join", map[string]string{"nation": nation}, nil)
}

// FightAll asks the server to fight every battle it can.
func (c *Client) FightAll(ctx context.Context, gameID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/games/"+gameID+"/battles/fight", nil, nil)
}

// SubmitCasualties answers a casualty question.
func (c *Client) SubmitCasualties(ctx context.Context, gameID, battleID string, sel combat.CasualtyDetails) error {
	return c.do(ctx, http.MethodPost, "/api/v1/games/"+gameID+"/battles/"+battleID+"/casualties", sel, nil)
}

// SubmitRetreat answers a retreat question; an empty territory stays.
func (c *Client) SubmitRetreat(ctx context.Context, gameID, battleID string, to combat.TerritoryID) error {
	body := map[string]string{"territory": string(to)}
	return c.do(ctx, http.MethodPost, "/api/v1/games/"+gameID+"/battles/"+battleID+"/retreat", body, nil)
}

// ConnectWS opens a WebSocket connection and starts listening for events.
func (c *Client) ConnectWS(ctx context.Context) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/v1/ws?token=" + url.QueryEscape(c.token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	c.wsConn = conn

	go c.readWSLoop()
	return nil
}

// SubscribeGame sends a subscribe message for the given game.
func (c *Client) SubscribeGame(gameID string) error {
	msg := map[string]string{"action": "subscribe", "game_id": gameID}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wsConn.WriteJSON(msg)
}

// Events returns the channel of incoming WebSocket events. It is closed
// when the connection drops.
func (c *Client) Events() <-chan WSEvent { return c.events }

// CloseWS closes the WebSocket connection.
func (c *Client) CloseWS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil && !c.closedWS {
		c.closedWS = true
		c.wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wsConn.Close()
	}
}

func (c *Client) readWSLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.wsConn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closedWS
			c.mu.Unlock()
			if !closed {
				log.Debug().Err(err).Str("bot", c.name).Msg("WS read error")
			}
			return
		}
		// A frame may carry several newline-separated events.
		dec := json.NewDecoder(bytes.NewReader(msg))
		for {
			var event WSEvent
			if err := dec.Decode(&event); err != nil {
				break
			}
			c.events <- event
		}
	}
}

// do sends a JSON request and decodes the response into out when it is
// not nil. A POST without payload sends an empty object.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var bodyReader io.Reader
	if method != http.MethodGet {
		data := []byte("{}")
		if payload != nil {
			var err error
			if data, err = json.Marshal(payload); err != nil {
				return err
			}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpC.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
