package models

// Player: уже аутентифицированный покупатель
type Player struct {
	UserID   int64  `json:"uid"`
	PlayerID string `json:"playerid"` // игровой идентификатор, подставляется в команду
}
