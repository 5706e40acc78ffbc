package settlement

// Kind labels a ledger transaction row. The row stores the moved amount as
// a magnitude; the direction is implied by the kind.
type Kind string

const (
	KindDeposit         Kind = "deposit"
	KindWithdraw        Kind = "withdraw"
	KindConvert         Kind = "convert"
	KindGambleBet       Kind = "gamble_bet"
	KindGamblingWin     Kind = "gambling_win"
	KindGambleCashout   Kind = "gamble_cashout"
	KindGamblingLoss    Kind = "gambling_loss"
	KindAssetSaleCredit Kind = "asset_sale_credit"
)

// DebtTolerant reports whether the kind belongs to the gambling debt class
// that may legitimately drive a balance below zero.
func (k Kind) DebtTolerant() bool {
	switch k {
	case KindGambleCashout, KindGamblingLoss:
		return true
	default:
		return false
	}
}
