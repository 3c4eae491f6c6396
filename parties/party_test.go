package parties

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/CytonicMC/Cyparty/access"
	"github.com/CytonicMC/Cyparty/assets"
	"github.com/CytonicMC/Cyparty/attendance"
	apperrors "github.com/CytonicMC/Cyparty/errors"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsMissingFields(t *testing.T) {
	book := assets.NewBook()
	id := uuid.New()
	deps := Deps{Transport: book.Transport(assets.Native(), LedgerAddress(id))}
	valid := Config{Name: "x", Deposit: big.NewInt(1), Capacity: 1, CoolingPeriod: time.Hour, Owner: owner}

	cases := map[string]func(*Config){
		"name":     func(c *Config) { c.Name = " " },
		"deposit":  func(c *Config) { c.Deposit = nil },
		"capacity": func(c *Config) { c.Capacity = 0 },
		"cooling":  func(c *Config) { c.CoolingPeriod = 0 },
		"owner":    func(c *Config) { c.Owner = common.Address{} },
		"fee rate": func(c *Config) { c.FeeRate = FeeDenominator + 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid.clone()
			mutate(&cfg)
			_, err := New(id, cfg, deps)
			requireCode(t, err, apperrors.CodeInvalidConfig)
		})
	}

	_, err := New(id, valid, Deps{})
	requireCode(t, err, apperrors.CodeInvalidConfig)
}

func TestNew_StartsOpenWithTransfersPaused(t *testing.T) {
	f := newFixture(t)
	state := f.party.State()
	assert.Equal(t, ModeOpen, state.Mode)
	assert.True(t, state.TransfersPaused)
	assert.Zero(t, state.Registered)
	assert.True(t, state.EndedAt.IsZero())
	assert.Equal(t, owner, f.party.Owner())
}

func TestRegister_IssuesContiguousIndices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	i1, err := f.party.Register(ctx, alice, big.NewInt(100))
	require.NoError(t, err)
	i2, err := f.party.Register(ctx, bob, big.NewInt(100))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), i1)
	assert.Equal(t, uint64(2), i2)
	assert.Equal(t, uint64(2), f.party.State().Registered)
	assert.Equal(t, int64(200), f.balance(t).Int64())
	assert.True(t, f.party.IsRegistered(alice))
	assert.Len(t, f.records.Of(events.KindRegister), 2)
}

func TestRegister_CapacityExceeded(t *testing.T) {
	f := newFixture(t, withCapacity(2))
	f.register(t, alice, bob)

	_, err := f.party.Register(context.Background(), carol, big.NewInt(100))
	requireCode(t, err, apperrors.CodeCapacityExceeded)
	assert.Equal(t, uint64(2), f.party.State().Registered)
	assert.Equal(t, int64(200), f.balance(t).Int64())
	assert.Equal(t, int64(10_000), f.holdings(carol))
}

func TestRegister_RejectsWrongDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, attached := range []*big.Int{big.NewInt(99), big.NewInt(101), nil} {
		_, err := f.party.Register(ctx, alice, attached)
		requireCode(t, err, apperrors.CodeWrongDepositAmount)
	}
	assert.False(t, f.party.IsRegistered(alice))
	assert.Zero(t, f.party.State().Registered)
	assert.Zero(t, f.balance(t).Sign())
	assert.Empty(t, f.records.Of(events.KindRegister))
}

func TestRegister_RejectsSecondTicket(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice)

	_, err := f.party.Register(context.Background(), alice, big.NewInt(100))
	requireCode(t, err, apperrors.CodeAlreadyRegistered)
	assert.Equal(t, int64(100), f.balance(t).Int64())
}

func TestRegister_RejectsAfterEnd(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.party.Cancel(context.Background(), owner))

	_, err := f.party.Register(context.Background(), alice, big.NewInt(100))
	requireCode(t, err, apperrors.CodeAlreadyEnded)
}

func TestRegister_TokenPartyPullsUnderAllowance(t *testing.T) {
	f := newFixture(t, withToken())
	ctx := context.Background()

	_, err := f.party.Register(ctx, alice, nil)
	requireCode(t, err, apperrors.CodeTransferFailed)

	require.NoError(t, f.book.Approve(assets.TokenAsset(token), alice, f.party.Address(), big.NewInt(100)))
	_, err = f.party.Register(ctx, alice, big.NewInt(1))
	requireCode(t, err, apperrors.CodeWrongDepositAmount)

	index, err := f.party.Register(ctx, alice, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), index)
	assert.Equal(t, int64(100), f.balance(t).Int64())
	assert.Zero(t, f.book.Allowance(assets.TokenAsset(token), alice, f.party.Address()).Sign())
}

func TestTransfer_PausedUntilOwnerUnpauses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice)

	err := f.party.Transfer(ctx, alice, alice, bob, 1)
	requireCode(t, err, apperrors.CodeTransferPaused)

	requireCode(t, f.party.Unpause(ctx, alice), apperrors.CodeUnauthorized)
	require.NoError(t, f.party.Unpause(ctx, owner))
	require.NoError(t, f.party.Transfer(ctx, alice, alice, bob, 1))

	part, err := f.party.Participant(1)
	require.NoError(t, err)
	assert.Equal(t, bob, part.Holder)
	assert.False(t, f.party.IsRegistered(alice))

	require.NoError(t, f.party.Pause(ctx, owner))
	requireCode(t, f.party.Transfer(ctx, bob, bob, carol, 1), apperrors.CodeTransferPaused)
}

func TestTransfer_ReleasesSenderToRegisterAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice)
	require.NoError(t, f.party.Unpause(ctx, owner))
	require.NoError(t, f.party.Transfer(ctx, alice, alice, bob, 1))

	index, err := f.party.Register(ctx, alice, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), index)
}

func TestTransfer_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)
	require.NoError(t, f.party.Unpause(ctx, owner))

	requireCode(t, f.party.Transfer(ctx, carol, alice, carol, 1), apperrors.CodeUnauthorized)
	requireCode(t, f.party.Transfer(ctx, alice, alice, bob, 1), apperrors.CodeHolderConflict)
	requireCode(t, f.party.Transfer(ctx, alice, alice, carol, 2), apperrors.CodeNotRegistered)
	requireCode(t, f.party.Transfer(ctx, alice, alice, carol, 9), apperrors.CodeNotRegistered)

	require.NoError(t, f.party.Approve(ctx, alice, dave, 1))
	require.NoError(t, f.party.Transfer(ctx, dave, alice, carol, 1))
	part, err := f.party.Participant(1)
	require.NoError(t, err)
	assert.Equal(t, carol, part.Holder)
}

func TestTransfer_AttendanceStaysWithIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)
	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1})))

	require.NoError(t, f.party.Unpause(ctx, owner))
	require.NoError(t, f.party.Transfer(ctx, alice, alice, carol, 1))

	assert.False(t, f.party.IsAttended(alice))
	assert.True(t, f.party.IsAttended(carol))

	payout, err := f.party.Withdraw(ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, int64(200), payout.Int64())
	assert.Equal(t, int64(10_200), f.holdings(carol))
}

func TestChangeNameAndDeposit_OnlyBeforeRegistrations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	requireCode(t, f.party.ChangeName(ctx, alice, "Other"), apperrors.CodeUnauthorized)
	require.NoError(t, f.party.ChangeName(ctx, owner, "Other"))
	require.NoError(t, f.party.ChangeDeposit(ctx, owner, big.NewInt(50)))
	requireCode(t, f.party.ChangeDeposit(ctx, owner, big.NewInt(0)), apperrors.CodeInvalidConfig)

	cfg := f.party.Config()
	assert.Equal(t, "Other", cfg.Name)
	assert.Equal(t, int64(50), cfg.Deposit.Int64())

	_, err := f.party.Register(ctx, alice, big.NewInt(50))
	require.NoError(t, err)
	requireCode(t, f.party.ChangeName(ctx, owner, "Again"), apperrors.CodeConfigLocked)
	requireCode(t, f.party.ChangeDeposit(ctx, owner, big.NewInt(10)), apperrors.CodeConfigLocked)
}

func TestSetCapacity(t *testing.T) {
	f := newFixture(t, withCapacity(3))
	ctx := context.Background()
	f.register(t, alice, bob)

	requireCode(t, f.party.SetCapacity(ctx, alice, 10), apperrors.CodeUnauthorized)
	requireCode(t, f.party.SetCapacity(ctx, owner, 1), apperrors.CodeCapacityExceeded)
	requireCode(t, f.party.SetCapacity(ctx, owner, 0), apperrors.CodeInvalidConfig)
	require.NoError(t, f.party.SetCapacity(ctx, owner, 2))
	_, err := f.party.Register(ctx, carol, big.NewInt(100))
	requireCode(t, err, apperrors.CodeCapacityExceeded)

	require.NoError(t, f.party.SetCapacity(ctx, owner, 5))
	f.register(t, carol)
	assert.Len(t, f.records.Of(events.KindUpdateParticipantLimit), 2)

	require.NoError(t, f.party.Cancel(ctx, owner))
	requireCode(t, f.party.SetCapacity(ctx, owner, 10), apperrors.CodeAlreadyEnded)
}

func TestFinalize_ProRataPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob, carol, dave)

	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1, 3})))

	state := f.party.State()
	assert.Equal(t, ModeFinalized, state.Mode)
	assert.Equal(t, uint64(2), state.Attended)
	assert.Equal(t, int64(200), state.PayoutAmount.Int64())
	assert.Equal(t, f.clock.Now(), state.EndedAt)

	for _, absent := range []common.Address{bob, dave} {
		_, err := f.party.Withdraw(ctx, absent)
		requireCode(t, err, apperrors.CodeNotEligible)
	}
	for _, present := range []common.Address{alice, carol} {
		payout, err := f.party.Withdraw(ctx, present)
		require.NoError(t, err)
		assert.Equal(t, int64(200), payout.Int64())
		assert.Equal(t, int64(10_100), f.holdings(present))
	}
	assert.Zero(t, f.balance(t).Sign())
}

func TestFinalize_LeavesDustForTheOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob, carol, dave)

	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1, 2, 4})))
	state := f.party.State()
	assert.Equal(t, int64(133), state.PayoutAmount.Int64())

	for _, addr := range []common.Address{alice, bob, dave} {
		_, err := f.party.Withdraw(ctx, addr)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), f.balance(t).Int64())
}

func TestFinalize_EmptyBitmapMeansNoAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)

	require.NoError(t, f.party.Finalize(ctx, owner, nil))
	state := f.party.State()
	assert.Zero(t, state.Attended)
	assert.Zero(t, state.PayoutAmount.Sign())

	_, err := f.party.Withdraw(ctx, alice)
	requireCode(t, err, apperrors.CodeNotEligible)
}

func TestFinalize_RejectsOutOfRangeBits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)

	err := f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1, 3}))
	requireCode(t, err, apperrors.CodeInvalidBitmapIndex)

	oversized := new(big.Int).Lsh(big.NewInt(1), attendance.WordBits)
	err = f.party.Finalize(ctx, owner, []*big.Int{oversized})
	requireCode(t, err, apperrors.CodeInvalidBitmapIndex)

	state := f.party.State()
	assert.Equal(t, ModeOpen, state.Mode)
	assert.Zero(t, state.Attended)
	assert.False(t, f.party.IsAttended(alice))
}

func TestFinalizeIndices_ProRataPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob, carol, dave)

	require.NoError(t, f.party.FinalizeIndices(ctx, owner, []uint64{3, 1, 3}))

	state := f.party.State()
	assert.Equal(t, ModeFinalized, state.Mode)
	assert.Equal(t, uint64(2), state.Attended)
	assert.Equal(t, int64(200), state.PayoutAmount.Int64())
	assert.True(t, f.party.IsAttended(alice))
	assert.True(t, f.party.IsAttended(carol))
	assert.False(t, f.party.IsAttended(bob))
}

func TestFinalizeIndices_RejectsZeroAndOutOfRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)

	for _, index := range []uint64{0, 3, 1 << 63, ^uint64(0)} {
		assert.NotPanics(t, func() {
			err := f.party.FinalizeIndices(ctx, owner, []uint64{1, index})
			requireCode(t, err, apperrors.CodeInvalidBitmapIndex)
		}, "index %d", index)
	}

	state := f.party.State()
	assert.Equal(t, ModeOpen, state.Mode)
	assert.Zero(t, state.Attended)
	assert.False(t, f.party.IsAttended(alice))
}

func TestFinalizeIndices_ChecksCallerBeforeIndices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice)

	err := f.party.FinalizeIndices(ctx, bob, []uint64{^uint64(0)})
	requireCode(t, err, apperrors.CodeUnauthorized)
	assert.Equal(t, ModeOpen, f.party.State().Mode)
}

func TestFinalize_OwnerOrAdminOnly(t *testing.T) {
	book := assets.NewBook()
	id := uuid.New()
	acl, err := access.NewRegistry(owner)
	require.NoError(t, err)
	p, err := New(id, Config{
		Name: "x", Deposit: big.NewInt(1), Capacity: 5, CoolingPeriod: time.Hour, Owner: owner,
	}, Deps{Transport: book.Transport(assets.Native(), LedgerAddress(id)), Authorizer: acl})
	require.NoError(t, err)
	ctx := context.Background()

	requireCode(t, p.Finalize(ctx, admin, nil), apperrors.CodeUnauthorized)
	require.NoError(t, acl.Grant(owner, admin))
	require.NoError(t, p.Finalize(ctx, admin, nil))
}

func TestFinalizeAndCancel_AreOneShotAndExclusive(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	require.NoError(t, f.party.Finalize(ctx, owner, nil))
	requireCode(t, f.party.Finalize(ctx, owner, nil), apperrors.CodeAlreadyEnded)
	requireCode(t, f.party.Cancel(ctx, owner), apperrors.CodeAlreadyEnded)

	g := newFixture(t)
	requireCode(t, g.party.Cancel(ctx, admin), apperrors.CodeUnauthorized)
	require.NoError(t, g.party.Cancel(ctx, owner))
	requireCode(t, g.party.Cancel(ctx, owner), apperrors.CodeAlreadyEnded)
	requireCode(t, g.party.Finalize(ctx, owner, nil), apperrors.CodeAlreadyEnded)
}

func TestCancel_RefundsEveryRegistrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)

	require.NoError(t, f.party.Cancel(ctx, owner))
	assert.Equal(t, ModeCancelled, f.party.State().Mode)
	assert.Equal(t, int64(100), f.party.State().PayoutAmount.Int64())

	for _, addr := range []common.Address{alice, bob} {
		payout, err := f.party.Withdraw(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, int64(100), payout.Int64())
		assert.Equal(t, int64(10_000), f.holdings(addr))
	}
	assert.Zero(t, f.balance(t).Sign())
}

func TestWithdraw_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice)

	_, err := f.party.Withdraw(ctx, alice)
	requireCode(t, err, apperrors.CodeNotEnded)

	require.NoError(t, f.party.Cancel(ctx, owner))
	_, err = f.party.Withdraw(ctx, bob)
	requireCode(t, err, apperrors.CodeNotRegistered)

	_, err = f.party.Withdraw(ctx, alice)
	require.NoError(t, err)
	_, err = f.party.Withdraw(ctx, alice)
	requireCode(t, err, apperrors.CodeAlreadyPaid)
	_, err = f.party.SendAndWithdraw(ctx, alice, nil, nil)
	requireCode(t, err, apperrors.CodeAlreadyPaid)
}

func TestWithdraw_FailedPaymentLeavesTicketUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice)
	require.NoError(t, f.party.Cancel(ctx, owner))

	f.transport.failPush = true
	_, err := f.party.Withdraw(ctx, alice)
	requireCode(t, err, apperrors.CodeTransferFailed)
	assert.False(t, f.party.IsPaid(alice))
	assert.Empty(t, f.records.Of(events.KindWithdraw))

	f.transport.failPush = false
	_, err = f.party.Withdraw(ctx, alice)
	require.NoError(t, err)
	assert.True(t, f.party.IsPaid(alice))
}

func TestWithdraw_ReentrantCallSeesPaidTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice)
	require.NoError(t, f.party.Cancel(ctx, owner))

	reentered := make(chan error, 1)
	f.book.OnTransfer(func(_ assets.Asset, from common.Address, tr assets.Transfer) {
		if from != f.party.Address() || tr.To != alice {
			return
		}
		go func() {
			_, err := f.party.Withdraw(ctx, alice)
			reentered <- err
		}()
	})

	_, err := f.party.Withdraw(ctx, alice)
	require.NoError(t, err)

	select {
	case err := <-reentered:
		requireCode(t, err, apperrors.CodeAlreadyPaid)
	case <-time.After(5 * time.Second):
		t.Fatal("re-entrant withdraw never returned")
	}
	assert.Equal(t, int64(10_000), f.holdings(alice))
	assert.Zero(t, f.balance(t).Sign())
}

func TestSendAndWithdraw_SplitsPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)
	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1})))

	transfers, err := f.party.SendAndWithdraw(ctx, alice,
		[]common.Address{carol, dave}, []*big.Int{big.NewInt(50), big.NewInt(30)})
	require.NoError(t, err)
	require.Len(t, transfers, 3)

	assert.Equal(t, int64(10_050), f.holdings(carol))
	assert.Equal(t, int64(10_030), f.holdings(dave))
	assert.Equal(t, int64(10_020), f.holdings(alice))
	assert.True(t, f.party.IsPaid(alice))
	assert.Zero(t, f.balance(t).Sign())
	assert.Len(t, f.records.Of(events.KindSendAndWithdraw), 1)
}

func TestSendAndWithdraw_EmptySplitPaysCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice)
	require.NoError(t, f.party.Cancel(ctx, owner))

	_, err := f.party.SendAndWithdraw(ctx, alice, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), f.holdings(alice))
}

func TestSendAndWithdraw_RejectsMismatchWithoutMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)
	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1})))
	before := f.balance(t)

	_, err := f.party.SendAndWithdraw(ctx, alice, []common.Address{bob}, []*big.Int{big.NewInt(201)})
	requireCode(t, err, apperrors.CodeSplitMismatch)

	_, err = f.party.SendAndWithdraw(ctx, alice, []common.Address{bob, carol}, []*big.Int{big.NewInt(1)})
	requireCode(t, err, apperrors.CodeSplitMismatch)

	assert.Equal(t, before.Int64(), f.balance(t).Int64())
	assert.False(t, f.party.IsPaid(alice))
	assert.Equal(t, int64(9_900), f.holdings(bob))
}

func TestClear_WaitsForCoolingPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)

	_, err := f.party.Clear(ctx, owner)
	requireCode(t, err, apperrors.CodeNotEnded)

	require.NoError(t, f.party.Cancel(ctx, owner))
	_, err = f.party.Clear(ctx, owner)
	requireCode(t, err, apperrors.CodeCoolingPeriodNotElapsed)

	f.clock.Advance(7 * 24 * time.Hour)
	_, err = f.party.Clear(ctx, alice)
	requireCode(t, err, apperrors.CodeUnauthorized)

	swept, err := f.party.Clear(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(200), swept.Int64())
	assert.Equal(t, int64(10_200), f.holdings(owner))
	assert.Zero(t, f.balance(t).Sign())

	_, err = f.party.Withdraw(ctx, alice)
	requireCode(t, err, apperrors.CodeNotEligible)
	assert.Len(t, f.records.Of(events.KindClear), 1)
}

func TestClearAndSend_WaitsForCoolingPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)
	require.NoError(t, f.party.FinalizeIndices(ctx, owner, []uint64{1}))

	_, err := f.party.ClearAndSend(ctx, owner, 0)
	requireCode(t, err, apperrors.CodeCoolingPeriodNotElapsed)

	f.clock.Advance(7*24*time.Hour - time.Second)
	_, err = f.party.ClearAndSend(ctx, owner, 0)
	requireCode(t, err, apperrors.CodeCoolingPeriodNotElapsed)

	f.clock.Advance(time.Second)
	result, err := f.party.ClearAndSend(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, result.Paid, 1)
}

func TestClearAndSend_PagesThroughAttendees(t *testing.T) {
	f := newFixture(t, withFeeRate(10))
	ctx := context.Background()
	f.register(t, alice, bob, carol)
	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1, 3})))
	// payout 150, fee 1
	f.clock.Advance(7 * 24 * time.Hour)

	first, err := f.party.ClearAndSend(ctx, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Fees.Int64())
	assert.Equal(t, uint64(1), first.Remaining)
	assert.Equal(t, int64(10_049), f.holdings(alice))

	second, err := f.party.ClearAndSend(ctx, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), second.Remaining)
	assert.Equal(t, uint64(3), second.Cursor)
	assert.Equal(t, int64(10_049), f.holdings(carol))

	_, err = f.party.ClearAndSend(ctx, owner, 1)
	requireCode(t, err, apperrors.CodeSweepExhausted)

	assert.Equal(t, int64(10_002), f.holdings(owner))
	assert.Zero(t, f.balance(t).Sign())
	assert.Equal(t, int64(9_900), f.holdings(bob))
}

func TestClearAndSend_OwnerTakesDustOnFirstCall(t *testing.T) {
	f := newFixture(t, withFeeRate(100))
	ctx := context.Background()
	f.register(t, alice, bob, carol, dave)
	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1, 2, 4})))
	// balance 400, payout 133, dust 1, fee 13
	f.clock.Advance(7 * 24 * time.Hour)

	first, err := f.party.ClearAndSend(ctx, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(14), first.OwnerCut.Int64())
	assert.Equal(t, int64(13), first.Fees.Int64())

	rest, err := f.party.ClearAndSend(ctx, owner, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(26), rest.OwnerCut.Int64())
	assert.Len(t, rest.Paid, 2)

	assert.Equal(t, int64(10_040), f.holdings(owner))
	assert.Equal(t, int64(10_020), f.holdings(alice))
	assert.Zero(t, f.balance(t).Sign())
}

func TestClearAndSend_SkipsTicketsAlreadyWithdrawn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob, carol)
	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1, 2, 3})))
	_, err := f.party.Withdraw(ctx, bob)
	require.NoError(t, err)
	f.clock.Advance(7 * 24 * time.Hour)

	result, err := f.party.ClearAndSend(ctx, owner, 0)
	require.NoError(t, err)
	require.Len(t, result.Paid, 2)
	assert.Equal(t, alice, result.Paid[0].To)
	assert.Equal(t, carol, result.Paid[1].To)
	assert.Equal(t, int64(10_000), f.holdings(bob))

	_, err = f.party.Withdraw(ctx, alice)
	requireCode(t, err, apperrors.CodeAlreadyPaid)
	_, err = f.party.ClearAndSend(ctx, owner, 0)
	requireCode(t, err, apperrors.CodeSweepExhausted)
}

func TestClearAndSend_Rejections(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	f.register(t, alice)
	_, err := f.party.ClearAndSend(ctx, owner, 0)
	requireCode(t, err, apperrors.CodeNotEnded)

	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1})))
	_, err = f.party.ClearAndSend(ctx, owner, 0)
	requireCode(t, err, apperrors.CodeCoolingPeriodNotElapsed)
	f.clock.Advance(7 * 24 * time.Hour)
	_, err = f.party.ClearAndSend(ctx, alice, 0)
	requireCode(t, err, apperrors.CodeUnauthorized)

	_, err = f.party.Clear(ctx, owner)
	require.NoError(t, err)
	_, err = f.party.ClearAndSend(ctx, owner, 0)
	requireCode(t, err, apperrors.CodeSweepExhausted)

	g := newFixture(t)
	g.register(t, alice)
	require.NoError(t, g.party.Cancel(ctx, owner))
	g.clock.Advance(7 * 24 * time.Hour)
	_, err = g.party.ClearAndSend(ctx, owner, 0)
	requireCode(t, err, apperrors.CodeNotEligible)
}

func TestClearAndSend_FailedPaymentRestoresCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob)
	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1, 2})))
	f.clock.Advance(7 * 24 * time.Hour)

	f.transport.failPush = true
	_, err := f.party.ClearAndSend(ctx, owner, 0)
	requireCode(t, err, apperrors.CodeTransferFailed)
	assert.Zero(t, f.party.State().SweepCursor)
	assert.False(t, f.party.IsPaid(alice))
	assert.False(t, f.party.IsPaid(bob))

	f.transport.failPush = false
	result, err := f.party.ClearAndSend(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, result.Paid, 2)
}

func TestConservation_AcrossFullLifecycle(t *testing.T) {
	f := newFixture(t, withFeeRate(25))
	ctx := context.Background()
	everyone := []common.Address{owner, admin, alice, bob, carol, dave, erin}
	total := func() int64 {
		var sum int64
		for _, addr := range everyone {
			sum += f.holdings(addr)
		}
		return sum + f.balance(t).Int64()
	}
	start := total()

	f.register(t, alice, bob, carol, dave, erin)
	assert.Equal(t, start, total())

	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{2, 3, 5})))
	_, err := f.party.SendAndWithdraw(ctx, bob, []common.Address{alice}, []*big.Int{big.NewInt(40)})
	require.NoError(t, err)
	assert.Equal(t, start, total())

	f.clock.Advance(7 * 24 * time.Hour)
	_, err = f.party.ClearAndSend(ctx, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, start, total())

	_, err = f.party.Clear(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, start, total())
	assert.Zero(t, f.balance(t).Sign())
}

func TestTokenURI(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice)

	uri, err := f.party.TokenURI(1)
	require.NoError(t, err)
	assert.Equal(t, f.party.Address().Hex()+"/1", uri)

	f.party.uris = staticURI("https://kickback.events/test/")
	uri, err = f.party.TokenURI(1)
	require.NoError(t, err)
	assert.Equal(t, "https://kickback.events/test/"+f.party.Address().Hex()+"/1", uri)

	_, err = f.party.TokenURI(2)
	requireCode(t, err, apperrors.CodeNotRegistered)
}

type staticURI string

func (s staticURI) BaseTokenURI() string { return string(s) }

func TestSnapshot_RestoresLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice, bob, carol)
	require.NoError(t, f.party.Unpause(ctx, owner))
	require.NoError(t, f.party.Approve(ctx, carol, dave, 3))
	require.NoError(t, f.party.Finalize(ctx, owner, attendance.Encode([]uint64{1, 3})))
	_, err := f.party.Withdraw(ctx, alice)
	require.NoError(t, err)

	snap := f.party.Snapshot()
	restored, err := Restore(snap, Deps{Transport: f.transport, Clock: f.clock})
	require.NoError(t, err)

	state := restored.State()
	assert.Equal(t, ModeFinalized, state.Mode)
	assert.True(t, f.party.State().EndedAt.Equal(state.EndedAt))
	assert.Equal(t, "150", state.PayoutAmount.String())
	assert.Equal(t, f.party.Participants(), restored.Participants())
	assert.Equal(t, snap, restored.Snapshot())

	_, err = restored.Withdraw(ctx, alice)
	requireCode(t, err, apperrors.CodeAlreadyPaid)
	require.NoError(t, restored.Transfer(ctx, dave, carol, erin, 3))
	_, err = restored.Withdraw(ctx, erin)
	require.NoError(t, err)
}
