package enums

// InventoryTransactionKind classifies a ledger entry.
type InventoryTransactionKind string

const (
	InventoryKindOrderDecrement InventoryTransactionKind = "order_decrement"
	InventoryKindManualAdjust   InventoryTransactionKind = "manual_adjust"
	InventoryKindRevert         InventoryTransactionKind = "revert"
)

var inventoryKinds = closed[InventoryTransactionKind]{"inventory transaction kind", []InventoryTransactionKind{
	InventoryKindOrderDecrement,
	InventoryKindManualAdjust,
	InventoryKindRevert,
}}

func (k InventoryTransactionKind) String() string { return string(k) }

func (k InventoryTransactionKind) IsValid() bool { return inventoryKinds.has(k) }

func ParseInventoryTransactionKind(value string) (InventoryTransactionKind, error) {
	return inventoryKinds.parse(value)
}
