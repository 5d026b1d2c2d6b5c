package models

// Barrel states.
const (
	BarrelNew    = "new"
	BarrelOpened = "opened"
	BarrelEmpty  = "empty"
)

// Bottle action operations.
const (
	OperationPurchased = "purchased"
	OperationMoved     = "moved"
)

// BarrelType describes a kind of barrel and its prices.
type BarrelType struct {
	Base

	Name          string  `gorm:"type:text;not null" json:"name"`
	ShortName     string  `gorm:"type:text" json:"shortName"`
	Liters        float64 `gorm:"not null;default:0" json:"liters"`
	SupplierPrice float64 `gorm:"not null;default:0" json:"supplierPrice"`
	SellPrice     float64 `gorm:"not null;default:0" json:"sellPrice"`
}

// Identity implements Entity.
func (*BarrelType) Identity() string { return "barrelType" }

// Barrel is one physical barrel, optionally placed at a team.
type Barrel struct {
	Base

	TypeID    uint64  `gorm:"not null;index" json:"typeId"`    // Barrel type ID.
	Num       int     `gorm:"not null" json:"num"`             // Sequence number within the type.
	Reference string  `gorm:"type:text" json:"reference"`      // Printed reference.
	PlaceID   *uint64 `gorm:"index" json:"placeId,omitempty"`  // Team holding the barrel.
	State     string  `gorm:"type:text;not null" json:"state"` // new, opened or empty.
}

// Identity implements Entity.
func (*Barrel) Identity() string { return "barrel" }

// BottleType describes a kind of bottle.
type BottleType struct {
	Base

	Name           string  `gorm:"type:text;not null" json:"name"`
	ShortName      string  `gorm:"type:text" json:"shortName"`
	QuantityPerBox int     `gorm:"not null;default:0" json:"quantityPerBox"`
	SellPrice      float64 `gorm:"not null;default:0" json:"sellPrice"`
	SupplierPrice  float64 `gorm:"not null;default:0" json:"supplierPrice"`
	OriginalStock  int     `gorm:"not null;default:0" json:"originalStock"`
}

// Identity implements Entity.
func (*BottleType) Identity() string { return "bottleType" }

// BottleAction records bottles purchased by or moved to a team.
type BottleAction struct {
	Base

	TeamID     *uint64 `gorm:"index" json:"teamId,omitempty"`     // Receiving team.
	FromTeamID *uint64 `gorm:"index" json:"fromTeamId,omitempty"` // Source team for moves.
	TypeID     uint64  `gorm:"not null;index" json:"typeId"`      // Bottle type ID.
	Quantity   int     `gorm:"not null" json:"quantity"`
	Operation  string  `gorm:"type:text;not null" json:"operation"` // purchased or moved.
}

// Identity implements Entity.
func (*BottleAction) Identity() string { return "bottleAction" }
