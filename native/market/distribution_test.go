package market

import (
	"math/big"
	"testing"
)

func sumByRole(split []Payout) map[Role]*big.Int {
	totals := make(map[Role]*big.Int)
	for _, p := range split {
		total, ok := totals[p.Recipient]
		if !ok {
			total = big.NewInt(0)
			totals[p.Recipient] = total
		}
		total.Add(total, p.Amount)
	}
	return totals
}

func splitTotal(split []Payout) *big.Int {
	total := big.NewInt(0)
	for _, p := range split {
		total.Add(total, p.Amount)
	}
	return total
}

func validEventSets() []EventSet {
	sets := make([]EventSet, 0, 16)
	for _, primary := range []PrimaryEvent{PrimaryNone, PrimaryRedeemed, PrimaryRefunded, PrimaryExpired} {
		for _, complained := range []bool{false, true} {
			for _, cancelled := range []bool{false, true} {
				set := EventSet{Primary: primary, Complained: complained, Cancelled: cancelled}
				if set.Validate() != nil {
					continue
				}
				if set.Primary == PrimaryNone && !set.Cancelled {
					continue
				}
				sets = append(sets, set)
			}
		}
	}
	return sets
}

func TestComputeSplitsConservesEveryPot(t *testing.T) {
	// Odd pot sizes exercise the rounding remainders.
	price := big.NewInt(1000000001)
	sellerDeposit := big.NewInt(777777)
	buyerDeposit := big.NewInt(99999)

	for _, set := range validEventSets() {
		dist, err := ComputeSplits(set, price, sellerDeposit, buyerDeposit)
		if err != nil {
			t.Fatalf("ComputeSplits(%+v): %v", set, err)
		}
		if got := splitTotal(dist.Payment); got.Cmp(price) != 0 {
			t.Errorf("set %+v: payment split sums to %s, want %s", set, got, price)
		}
		if got := splitTotal(dist.SellerDeposit); got.Cmp(sellerDeposit) != 0 {
			t.Errorf("set %+v: seller deposit split sums to %s, want %s", set, got, sellerDeposit)
		}
		if got := splitTotal(dist.BuyerDeposit); got.Cmp(buyerDeposit) != 0 {
			t.Errorf("set %+v: buyer deposit split sums to %s, want %s", set, got, buyerDeposit)
		}
	}
}

func TestComputeSplitsRecipients(t *testing.T) {
	price := big.NewInt(1000)
	sellerDeposit := big.NewInt(400)
	buyerDeposit := big.NewInt(200)

	cases := []struct {
		name          string
		set           EventSet
		payment       map[Role]int64
		sellerDeposit map[Role]int64
		buyerDeposit  map[Role]int64
	}{
		{
			name:          "redeemed clean",
			set:           EventSet{Primary: PrimaryRedeemed},
			payment:       map[Role]int64{RoleSeller: 1000},
			sellerDeposit: map[Role]int64{RoleSeller: 400},
			buyerDeposit:  map[Role]int64{RoleBuyer: 200},
		},
		{
			name:          "refunded clean",
			set:           EventSet{Primary: PrimaryRefunded},
			payment:       map[Role]int64{RoleBuyer: 1000},
			sellerDeposit: map[Role]int64{RoleSeller: 400},
			buyerDeposit:  map[Role]int64{RolePool: 200},
		},
		{
			name:          "expired clean",
			set:           EventSet{Primary: PrimaryExpired},
			payment:       map[Role]int64{RoleBuyer: 1000},
			sellerDeposit: map[Role]int64{RoleSeller: 400},
			buyerDeposit:  map[Role]int64{RolePool: 200},
		},
		{
			name:          "redeemed with complaint",
			set:           EventSet{Primary: PrimaryRedeemed, Complained: true},
			payment:       map[Role]int64{RoleSeller: 1000},
			sellerDeposit: map[Role]int64{RolePool: 400},
			buyerDeposit:  map[Role]int64{RoleBuyer: 200},
		},
		{
			name:          "expired with complaint",
			set:           EventSet{Primary: PrimaryExpired, Complained: true},
			payment:       map[Role]int64{RoleBuyer: 1000},
			sellerDeposit: map[Role]int64{RolePool: 400},
			buyerDeposit:  map[Role]int64{RolePool: 200},
		},
		{
			name:          "redeemed then cancelled",
			set:           EventSet{Primary: PrimaryRedeemed, Cancelled: true},
			payment:       map[Role]int64{RoleSeller: 1000},
			sellerDeposit: map[Role]int64{RoleSeller: 200, RoleBuyer: 200},
			buyerDeposit:  map[Role]int64{RoleBuyer: 200},
		},
		{
			name:          "cancelled before any primary",
			set:           EventSet{Cancelled: true},
			payment:       map[Role]int64{RoleBuyer: 1000},
			sellerDeposit: map[Role]int64{RoleSeller: 200, RoleBuyer: 200},
			buyerDeposit:  map[Role]int64{RolePool: 200},
		},
		{
			name:          "cancelled and complained",
			set:           EventSet{Cancelled: true, Complained: true},
			payment:       map[Role]int64{RoleBuyer: 1000},
			sellerDeposit: map[Role]int64{RoleBuyer: 200, RoleSeller: 100, RolePool: 100},
			buyerDeposit:  map[Role]int64{RoleBuyer: 200},
		},
		{
			name:          "redeemed cancelled and complained",
			set:           EventSet{Primary: PrimaryRedeemed, Cancelled: true, Complained: true},
			payment:       map[Role]int64{RoleSeller: 1000},
			sellerDeposit: map[Role]int64{RoleBuyer: 200, RoleSeller: 100, RolePool: 100},
			buyerDeposit:  map[Role]int64{RoleBuyer: 200},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dist, err := ComputeSplits(tc.set, price, sellerDeposit, buyerDeposit)
			if err != nil {
				t.Fatalf("ComputeSplits: %v", err)
			}
			assertRoleTotals(t, "payment", dist.Payment, tc.payment)
			assertRoleTotals(t, "sellerDeposit", dist.SellerDeposit, tc.sellerDeposit)
			assertRoleTotals(t, "buyerDeposit", dist.BuyerDeposit, tc.buyerDeposit)
		})
	}
}

func assertRoleTotals(t *testing.T, pot string, split []Payout, want map[Role]int64) {
	t.Helper()
	got := sumByRole(split)
	if len(got) != len(want) {
		t.Fatalf("%s: got %d recipients, want %d (%v)", pot, len(got), len(want), got)
	}
	for role, amount := range want {
		total, ok := got[role]
		if !ok {
			t.Fatalf("%s: missing payout for %s", pot, role)
		}
		if total.Cmp(big.NewInt(amount)) != 0 {
			t.Fatalf("%s: %s received %s, want %d", pot, role, total, amount)
		}
	}
}

func TestComputeSplitsCancelThenComplainScenario(t *testing.T) {
	price, _ := new(big.Int).SetString("300000000000000000", 10)
	sellerDeposit, _ := new(big.Int).SetString("50000000000000000", 10)
	buyerDeposit, _ := new(big.Int).SetString("40000000000000000", 10)

	dist, err := ComputeSplits(EventSet{Cancelled: true, Complained: true}, price, sellerDeposit, buyerDeposit)
	if err != nil {
		t.Fatalf("ComputeSplits: %v", err)
	}

	assertRoleAmount(t, dist.Payment, RoleBuyer, "300000000000000000")
	assertRoleAmount(t, dist.SellerDeposit, RoleBuyer, "25000000000000000")
	assertRoleAmount(t, dist.SellerDeposit, RoleSeller, "12500000000000000")
	assertRoleAmount(t, dist.SellerDeposit, RolePool, "12500000000000000")
	assertRoleAmount(t, dist.BuyerDeposit, RoleBuyer, "40000000000000000")
}

func assertRoleAmount(t *testing.T, split []Payout, role Role, want string) {
	t.Helper()
	totals := sumByRole(split)
	total, ok := totals[role]
	if !ok {
		t.Fatalf("no payout for %s", role)
	}
	if total.String() != want {
		t.Fatalf("%s received %s, want %s", role, total, want)
	}
}

func TestComputeSplitsRoundingRemainderGoesToPool(t *testing.T) {
	// 7 cannot be halved or quartered evenly.
	dist, err := ComputeSplits(EventSet{Cancelled: true, Complained: true}, big.NewInt(1), big.NewInt(7), big.NewInt(0))
	if err != nil {
		t.Fatalf("ComputeSplits: %v", err)
	}
	totals := sumByRole(dist.SellerDeposit)
	if totals[RoleBuyer].Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("buyer half = %s, want 3", totals[RoleBuyer])
	}
	if totals[RoleSeller].Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("seller quarter = %s, want 1", totals[RoleSeller])
	}
	if totals[RolePool].Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("pool rest = %s, want 3", totals[RolePool])
	}
	if dist.BuyerDeposit != nil {
		t.Fatalf("zero buyer deposit should produce no payouts, got %v", dist.BuyerDeposit)
	}
}

func TestComputeSplitsRejectsUnresolvedSet(t *testing.T) {
	if _, err := ComputeSplits(EventSet{}, big.NewInt(1), big.NewInt(1), big.NewInt(1)); err == nil {
		t.Fatal("expected error for empty event set")
	}
	if _, err := ComputeSplits(EventSet{Complained: true}, big.NewInt(1), big.NewInt(1), big.NewInt(1)); err == nil {
		t.Fatal("expected error for complaint without primary event or cancellation")
	}
}

func TestComputeSplitsRejectsNegativePot(t *testing.T) {
	if _, err := ComputeSplits(EventSet{Primary: PrimaryRedeemed}, big.NewInt(-1), big.NewInt(0), big.NewInt(0)); err == nil {
		t.Fatal("expected error for negative pot")
	}
}
