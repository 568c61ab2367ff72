package models

// Request models
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type BuyPackRequest struct {
	Pack string `json:"pack" binding:"required"`
}

// WaifuRef is what the caller saw of a waifu before acting on it
type WaifuRef struct {
	CharacterID int64 `json:"characterId" binding:"required"`
	Rarity      int   `json:"rarity"`
}

type MoneyTransferRequest struct {
	To     ActorID `json:"to" binding:"required"`
	Amount int64   `json:"amount"`
}

type WaifuTransferRequest struct {
	WaifuID int64    `json:"waifuId" binding:"required"`
	To      ActorID  `json:"to" binding:"required"`
	Seen    WaifuRef `json:"seen" binding:"required"`
}

type SignRequest struct {
	CoSigners []ActorID `json:"coSigners"`
}

type VoteRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// ChangeView is the displayable form of a queued change
type ChangeView struct {
	Kind        string  `json:"kind"`
	From        ActorID `json:"from"`
	To          ActorID `json:"to"`
	Amount      int64   `json:"amount,omitempty"`
	WaifuID     int64   `json:"waifuId,omitempty"`
	Description string  `json:"description"`
}

// Response models
type AuthResponse struct {
	Status    string  `json:"status"`
	UserID    ActorID `json:"userId,omitempty"`
	Email     string  `json:"email,omitempty"`
	Name      string  `json:"name,omitempty"`
	Token     string  `json:"token,omitempty"`
	ExpiresIn int     `json:"expiresIn,omitempty"`
}

type ProfileResponse struct {
	Status        string  `json:"status"`
	UserID        ActorID `json:"userId"`
	Name          string  `json:"name"`
	Balance       int64   `json:"balance"`
	Withdrawn     int64   `json:"withdrawn"`
	InTransaction bool    `json:"inTransaction"`
	Birthday      *string `json:"birthday,omitempty"`
}

// UserResponse is another user's public view. Unwithdrawn is income they have earned but not collected.
type UserResponse struct {
	Status      string  `json:"status"`
	UserID      ActorID `json:"userId"`
	Name        string  `json:"name"`
	Balance     int64   `json:"balance"`
	Unwithdrawn int64   `json:"unwithdrawn"`
}

type BirthdayRequest struct {
	Birthday string `json:"birthday" binding:"required"` // YYYY-MM-DD
}

type BirthdayResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	NextBirthday string `json:"nextBirthday"`
}

type PacksResponse struct {
	Status string `json:"status"`
	Packs  []Pack `json:"packs"`
}

type BuyPackResponse struct {
	Status         string  `json:"status"`
	Waifu          Waifu   `json:"waifu"`
	Duplicate      string  `json:"duplicate"`
	Refund         int64   `json:"refund,omitempty"`
	UpgradedRarity *Rarity `json:"upgradedRarity,omitempty"`
}

type WaifusResponse struct {
	Status string  `json:"status"`
	Waifus []Waifu `json:"waifus"`
}

type WaifuResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Waifu   Waifu  `json:"waifu"`
}

type RefundResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Amount  int64  `json:"amount"`
}

type ChangesResponse struct {
	Status  string       `json:"status"`
	Changes []ChangeView `json:"changes"`
}

type ChangeResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Change  ChangeView `json:"change"`
}

type SignResponse struct {
	Status       string       `json:"status"`
	Message      string       `json:"message"`
	Participants []ActorID    `json:"participants"`
	Changes      []ChangeView `json:"changes"`
}

type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
