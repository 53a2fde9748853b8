package lichess

// Event kinds seen on the account and game streams.
const (
	EventChallenge         = "challenge"
	EventChallengeCanceled = "challengeCanceled"
	EventChallengeDeclined = "challengeDeclined"
	EventGameStart         = "gameStart"
	EventGameFinish        = "gameFinish"
	EventGameFull          = "gameFull"
	EventGameState         = "gameState"
	EventChatLine          = "chatLine"
	EventOpponentGone      = "opponentGone"
)

// Event is one NDJSON line of either stream. Only the fields of the kind named by Type are set.
type Event struct {
	Type string `json:"type"`

	// challenge
	Challenge *Challenge `json:"challenge,omitempty"`

	// gameStart, gameFinish
	Game *GameRef `json:"game,omitempty"`

	// gameFull
	ID    string     `json:"id,omitempty"`
	White *Player    `json:"white,omitempty"`
	Black *Player    `json:"black,omitempty"`
	State *GameState `json:"state,omitempty"`

	// gameState
	Moves  string `json:"moves,omitempty"`
	Status string `json:"status,omitempty"`
	Winner string `json:"winner,omitempty"`

	// chatLine
	Username string `json:"username,omitempty"`
	Text     string `json:"text,omitempty"`
	Room     string `json:"room,omitempty"`
}

type Challenge struct {
	ID         string  `json:"id"`
	Status     string  `json:"status,omitempty"`
	Challenger Player  `json:"challenger"`
	DestUser   *Player `json:"destUser,omitempty"`
	Variant    Variant `json:"variant"`
	Rated      bool    `json:"rated"`
	Speed      string  `json:"speed,omitempty"`
	Color      string  `json:"color,omitempty"`
}

type Variant struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

type Player struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Title   string `json:"title,omitempty"`
	Rating  int    `json:"rating,omitempty"`
	AILevel int    `json:"aiLevel,omitempty"`
}

// DisplayName falls back to the id, or to a Stockfish label for AI opponents.
func (p *Player) DisplayName() string {
	switch {
	case p == nil:
		return ""
	case p.Name != "":
		return p.Name
	case p.ID != "":
		return p.ID
	case p.AILevel > 0:
		return "Stockfish"
	}
	return ""
}

type GameRef struct {
	ID     string `json:"id"`
	GameID string `json:"gameId,omitempty"`
	FullID string `json:"fullId,omitempty"`
	Color  string `json:"color,omitempty"`
}

// GameStartID returns the game id carried by a gameStart or gameFinish event.
func (e Event) GameStartID() string {
	if e.Game == nil {
		return ""
	}
	if e.Game.GameID != "" {
		return e.Game.GameID
	}
	return e.Game.ID
}

type GameState struct {
	Type   string `json:"type,omitempty"`
	Moves  string `json:"moves"`
	Status string `json:"status,omitempty"`
	Winner string `json:"winner,omitempty"`
}

type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title,omitempty"`
}
