package models

import (
	"time"
)

// ActorID identifies a user taking part in the economy
type ActorID = int64

// User represents an actor with a balance
type User struct {
	ID             ActorID   `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	Name           string    `db:"name" json:"name"`
	Password       string    `db:"password" json:"-"` // Password hash, not returned in JSON
	Balance        int64     `db:"balance" json:"balance"`
	LastWithdrawal int64     `db:"last_withdrawal" json:"-"` // Unix seconds
	Birthday       *string   `db:"birthday" json:"birthday,omitempty"` // Next birthday, YYYY-MM-DD
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Rarity is an ordered tier; Value defines the order and Weight the unnormalized draft probability
type Rarity struct {
	Value       int     `db:"value" json:"value"`
	Name        string  `db:"name" json:"name"`
	Colour      int     `db:"colour" json:"colour"`
	Weight      float64 `db:"weight" json:"-"`
	Refund      int64   `db:"refund" json:"refund"`
	UpgradeCost *int64  `db:"upgrade_cost" json:"upgradeCost,omitempty"`
	AutoUpgrade bool    `db:"auto_upgrade" json:"autoUpgrade"`
}

// Character is immutable reference data
type Character struct {
	ID       int64   `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	ImageURL *string `db:"image_url" json:"imageUrl,omitempty"`
	Series   string  `db:"series" json:"series"`
	Rarity   int     `db:"rarity" json:"baseRarity"`
	Batch    string  `db:"batch" json:"batch"`
}

// Pack is a purchasable draft source. Dates are ISO (YYYY-MM-DD) strings; a nil EndDate is open-ended.
type Pack struct {
	Name        string  `db:"name" json:"name"`
	Cost        int64   `db:"cost" json:"cost"`
	Description string  `db:"description" json:"description"`
	StartDate   string  `db:"start_date" json:"startDate"`
	EndDate     *string `db:"end_date" json:"endDate,omitempty"`
}

// BatchInPack assigns a batch of characters to a pack with a per-rarity weight
type BatchInPack struct {
	Pack   string  `db:"pack" json:"pack"`
	Batch  string  `db:"batch" json:"batch"`
	Rarity int     `db:"rarity" json:"rarity"`
	Weight float64 `db:"weight" json:"weight"`
}

// WaifuRow is the persisted shape of an owned item
type WaifuRow struct {
	ID        int64   `db:"id"`
	UserID    ActorID `db:"user_id"`
	Character int64   `db:"character_id"`
	Rarity    int     `db:"rarity"`
}

// Waifu is an owned instance of a Character at a given Rarity, fully populated
type Waifu struct {
	ID        int64     `json:"id"`
	Owner     ActorID   `json:"owner"`
	Character Character `json:"character"`
	Rarity    Rarity    `json:"rarity"`
}

// Row returns the persisted shape of the waifu
func (w *Waifu) Row() WaifuRow {
	return WaifuRow{ID: w.ID, UserID: w.Owner, Character: w.Character.ID, Rarity: w.Rarity.Value}
}

// DraftCandidate is a character eligible for a draw together with its pool weight
type DraftCandidate struct {
	Character
	Weight float64 `db:"weight"`
}
