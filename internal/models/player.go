package models

// Player is one participant in a room. Identity (ID) is stable for the room
// session; everything else mutates through snapshot replacement.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarColor string `json:"avatarColor"`
	IsHost      bool   `json:"isHost"`
	IsReady     bool   `json:"isReady"`
}

// Drawing is the encoded image one drawer produced for one round. The image
// payload is opaque to the client engine.
type Drawing struct {
	UserID    string `json:"userId"`
	Round     int    `json:"round"`
	ImageData string `json:"imageData"`
}

// Guess is one text guess by one guesser in one round.
type Guess struct {
	UserID  string `json:"userId"`
	Round   int    `json:"round"`
	Guess   string `json:"guess"`
	Correct bool   `json:"correct"`
	Score   int    `json:"score"`
}
